package kex

import (
	"testing"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
	"github.com/readytrader-crypto/mpc-multisig/config"
)

func randScalarAndPoint(t *testing.T) (*curve.Scalar, *curve.Point) {
	t.Helper()
	s, err := curve.NewRandomScalar()
	if err != nil {
		t.Fatal(err)
	}
	return s, curve.ScalarMulBase(s)
}

func TestRoundTripRound1(t *testing.T) {
	priv, pub := randScalarAndPoint(t)
	_, derivationPub := randScalarAndPoint(t)
	ancillary, _ := curve.NewRandomScalar()

	msg, err := New(config.EraSeraphis, 1, priv, pub, []*curve.Point{derivationPub}, ancillary, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wire := msg.Serialize()

	parsed, err := Parse(wire)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Round != 1 || len(parsed.Pubkeys) != 1 || parsed.AncillaryPrivkey == nil {
		t.Fatalf("round-trip field mismatch: %+v", parsed)
	}
	if !parsed.SigningPubkey.Equal(pub) {
		t.Fatalf("signing pubkey mismatch")
	}
	if !parsed.AncillaryPrivkey.Equal(ancillary) {
		t.Fatalf("ancillary privkey mismatch")
	}
}

func TestRoundTripLaterRound(t *testing.T) {
	priv, pub := randScalarAndPoint(t)
	_, p1 := randScalarAndPoint(t)
	_, p2 := randScalarAndPoint(t)

	msg, err := New(config.EraSeraphis, 2, priv, pub, []*curve.Point{p1, p2}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wire := msg.Serialize()
	parsed, err := Parse(wire)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.AncillaryPrivkey != nil {
		t.Fatalf("later round must not carry ancillary privkey")
	}
	if len(parsed.Pubkeys) != 2 {
		t.Fatalf("expected 2 pubkeys, got %d", len(parsed.Pubkeys))
	}
}

func TestNewRejectsRound1WithoutAncillary(t *testing.T) {
	priv, pub := randScalarAndPoint(t)
	_, p1 := randScalarAndPoint(t)
	if _, err := New(config.EraSeraphis, 1, priv, pub, []*curve.Point{p1}, nil, nil); err == nil {
		t.Fatalf("expected error for round 1 missing ancillary privkey")
	}
}

func TestNewRejectsLaterRoundWithAncillary(t *testing.T) {
	priv, pub := randScalarAndPoint(t)
	_, p1 := randScalarAndPoint(t)
	ancillary, _ := curve.NewRandomScalar()
	if _, err := New(config.EraSeraphis, 2, priv, pub, []*curve.Point{p1}, ancillary, nil); err == nil {
		t.Fatalf("expected error for non-round-1 message carrying ancillary privkey")
	}
}

func TestParseRejectsTamperedSignature(t *testing.T) {
	priv, pub := randScalarAndPoint(t)
	_, p1 := randScalarAndPoint(t)
	ancillary, _ := curve.NewRandomScalar()
	msg, err := New(config.EraSeraphis, 1, priv, pub, []*curve.Point{p1}, ancillary, nil)
	if err != nil {
		t.Fatal(err)
	}
	wire := []byte(msg.Serialize())
	wire[len(wire)-1] ^= 0xff
	if _, err := Parse(string(wire)); err == nil {
		t.Fatalf("expected parse failure on tampered message")
	}
}
