package noncecache

import (
	"testing"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
	"github.com/readytrader-crypto/mpc-multisig/api/filter"
)

func samplePoint(t *testing.T) *curve.Point {
	t.Helper()
	s, err := curve.NewRandomScalar()
	if err != nil {
		t.Fatal(err)
	}
	return curve.ScalarMulBase(s)
}

func TestAddGetRemoveRoundTrip(t *testing.T) {
	c := New(nil)
	message := []byte("test message")
	proofKey := samplePoint(t)
	f := filter.SignerSetFilter(0b011)

	ok, err := c.TryAdd(message, proofKey, f)
	if err != nil || !ok {
		t.Fatalf("TryAdd failed: ok=%v err=%v", ok, err)
	}

	base := curve.Generator()
	pub, ok := c.TryGetPubkeysForBase(message, proofKey.Bytes(), f, base)
	if !ok {
		t.Fatalf("expected pubkeys for base")
	}

	priv1, priv2, ok := c.TryGetRecordedPrivkeys(message, proofKey.Bytes(), f)
	if !ok {
		t.Fatalf("expected privkeys")
	}

	// 8*P1 == alpha1*J
	eight := curve.InvEight()
	lhs1 := pub.Nonce1Pub.ScalarMul(mustInvertInv(t, eight))
	rhs1 := base.ScalarMul(priv1)
	if !lhs1.Equal(rhs1) {
		t.Fatalf("8*P1 != alpha1*J")
	}
	lhs2 := pub.Nonce2Pub.ScalarMul(mustInvertInv(t, eight))
	rhs2 := base.ScalarMul(priv2)
	if !lhs2.Equal(rhs2) {
		t.Fatalf("8*P2 != alpha2*J")
	}

	if !c.TryRemove(message, proofKey.Bytes(), f) {
		t.Fatalf("expected remove to succeed")
	}
	if c.Has(message, proofKey.Bytes(), f) {
		t.Fatalf("expected record gone after remove")
	}
}

func mustInvertInv(t *testing.T, invEight *curve.Scalar) *curve.Scalar {
	t.Helper()
	eight, err := invEight.Invert()
	if err != nil {
		t.Fatal(err)
	}
	return eight
}

func TestAddTwiceFails(t *testing.T) {
	c := New(nil)
	message := []byte("m")
	proofKey := samplePoint(t)
	f := filter.SignerSetFilter(1)

	ok, err := c.TryAdd(message, proofKey, f)
	if err != nil || !ok {
		t.Fatalf("first add should succeed")
	}
	ok, err = c.TryAdd(message, proofKey, f)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("second add for same record must fail silently")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	c := New(nil)
	message := []byte("m")
	proofKey := samplePoint(t)
	f := filter.SignerSetFilter(1)
	if ok, err := c.TryAdd(message, proofKey, f); err != nil || !ok {
		t.Fatalf("add failed")
	}

	records := c.Export()
	if len(records) != 1 {
		t.Fatalf("expected 1 exported record, got %d", len(records))
	}

	c2 := NewFromExport(nil, records)
	if !c2.Has(message, proofKey.Bytes(), f) {
		t.Fatalf("reconstructed cache missing record")
	}
}
