// Package kex implements the authenticated, versioned, base58-wrapped
// key-exchange messages that drive the DKG (spec sections 3, 4.2, 6),
// grounded on the Multisig Account's wire-level expectations in
// original_source/src/multisig/multisig_account.cpp and .h.
package kex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mr-tron/base58"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
	"github.com/readytrader-crypto/mpc-multisig/config"
	"github.com/readytrader-crypto/mpc-multisig/internal/errs"
)

// Message is one key-exchange round message.
type Message struct {
	Version          byte
	Round            uint32
	SigningPubkey    *curve.Point
	Pubkeys          []*curve.Point
	AncillaryPrivkey *curve.Scalar // only set (and only valid) on round 1
	Shares           []WindowShare // non-empty only on the round a window finalizes
	Signature        *Signature
}

// WindowShare carries the sender's just-finalized window privkey to one
// other holder of that same window, blinded by a pairwise Diffie-Hellman
// mask so only Recipient can recover it (spec section 4.3's windowed relay:
// only the last hop of a window's chain ever derives its privkey directly,
// so that signer must pass a usable copy to the window's other holders once
// it finalizes).
type WindowShare struct {
	Window    uint32
	Recipient *curve.Point
	Masked    *curve.Scalar
}

// New builds and signs a round message. Round 1 messages must carry exactly
// one derivation pubkey and the ancillary privkey; later rounds must carry
// one or more derivation pubkeys and no ancillary privkey. shares may be
// nil; it is only populated on the round a signer finalizes a window.
func New(era config.Era, round uint32, signingPriv *curve.Scalar, signingPub *curve.Point, pubkeys []*curve.Point, ancillary *curve.Scalar, shares []WindowShare) (*Message, error) {
	version, ok := config.VersionForEra(era)
	if !ok {
		return nil, errs.Newf(errs.InputMalformed, "kex.New", "unknown era %v", era)
	}
	if round == 1 {
		if len(pubkeys) != 1 {
			return nil, errs.New(errs.InputMalformed, "kex.New", fmt.Errorf("round 1 must carry exactly one pubkey, got %d", len(pubkeys)))
		}
		if ancillary == nil {
			return nil, errs.New(errs.InputMalformed, "kex.New", fmt.Errorf("round 1 must carry an ancillary privkey"))
		}
		if len(shares) != 0 {
			return nil, errs.New(errs.InputMalformed, "kex.New", fmt.Errorf("round 1 must not carry window shares"))
		}
	} else {
		if len(pubkeys) == 0 {
			return nil, errs.New(errs.InputMalformed, "kex.New", fmt.Errorf("round %d must carry at least one pubkey", round))
		}
		if ancillary != nil {
			return nil, errs.New(errs.InputMalformed, "kex.New", fmt.Errorf("round %d must not carry an ancillary privkey", round))
		}
	}

	body := bodyBytes(round, signingPub, pubkeys, ancillary, shares)
	sig, err := Sign(signingPriv, signingPub, body)
	if err != nil {
		return nil, errs.New(errs.InputMalformed, "kex.New", err)
	}

	return &Message{
		Version:          version,
		Round:            round,
		SigningPubkey:    signingPub,
		Pubkeys:          pubkeys,
		AncillaryPrivkey: ancillary,
		Shares:           shares,
		Signature:        sig,
	}, nil
}

func bodyBytes(round uint32, signingPub *curve.Point, pubkeys []*curve.Point, ancillary *curve.Scalar, shares []WindowShare) []byte {
	var buf bytes.Buffer
	var roundBuf [4]byte
	binary.LittleEndian.PutUint32(roundBuf[:], round)
	buf.Write(roundBuf[:])
	buf.Write(signingPub.Bytes())

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(pubkeys)))
	buf.Write(countBuf[:])
	for _, p := range pubkeys {
		buf.Write(p.Bytes())
	}
	if ancillary != nil {
		buf.WriteByte(1)
		buf.Write(ancillary.Bytes())
	} else {
		buf.WriteByte(0)
	}

	var shareCountBuf [4]byte
	binary.LittleEndian.PutUint32(shareCountBuf[:], uint32(len(shares)))
	buf.Write(shareCountBuf[:])
	for _, sh := range shares {
		var windowBuf [4]byte
		binary.LittleEndian.PutUint32(windowBuf[:], sh.Window)
		buf.Write(windowBuf[:])
		buf.Write(sh.Recipient.Bytes())
		buf.Write(sh.Masked.Bytes())
	}
	return buf.Bytes()
}

// Serialize encodes the message as <version byte> || base58(body || sig).
func (m *Message) Serialize() string {
	body := bodyBytes(m.Round, m.SigningPubkey, m.Pubkeys, m.AncillaryPrivkey, m.Shares)
	payload := append(body, m.Signature.Bytes()...)
	return string([]byte{m.Version}) + base58.Encode(payload)
}

// Parse decodes and fully validates a wire-format message: version
// separator, base58 encoding, embedded signature, canonical/prime-order
// checks on every pubkey (including the signing pubkey), and the
// round-1-carries-ancillary / later-rounds-don't invariant. Parsing
// succeeds only when the message is entirely self-consistent.
func Parse(wire string) (*Message, error) {
	const op = "kex.Parse"
	if len(wire) < 1 {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("empty message"))
	}
	version := wire[0]
	if _, ok := eraForVersion(version); !ok {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("unknown version byte %x", version))
	}

	payload, err := base58.Decode(wire[1:])
	if err != nil {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("bad base58: %w", err))
	}
	if len(payload) < 64 {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("payload too short"))
	}
	body := payload[:len(payload)-64]
	sig, err := SignatureFromBytes(payload[len(payload)-64:])
	if err != nil {
		return nil, errs.New(errs.InputMalformed, op, err)
	}

	r := bytes.NewReader(body)
	var roundBuf [4]byte
	if _, err := io.ReadFull(r, roundBuf[:]); err != nil {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("truncated round: %w", err))
	}
	round := binary.LittleEndian.Uint32(roundBuf[:])

	var pubBuf [32]byte
	if _, err := io.ReadFull(r, pubBuf[:]); err != nil {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("truncated signing pubkey: %w", err))
	}
	signingPub, err := curve.PointFromCanonicalBytes(pubBuf[:])
	if err != nil || !signingPub.InPrimeOrderSubgroup() || signingPub.IsIdentity() {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("invalid signing pubkey"))
	}

	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("truncated pubkey count: %w", err))
	}
	count := binary.LittleEndian.Uint32(countBuf[:])
	if count == 0 || count > config.MaxSigners {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("implausible pubkey count %d", count))
	}

	pubkeys := make([]*curve.Point, 0, count)
	for i := uint32(0); i < count; i++ {
		var b [32]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("truncated pubkey %d: %w", i, err))
		}
		p, err := curve.PointFromCanonicalBytes(b[:])
		if err != nil || !p.InPrimeOrderSubgroup() || p.IsIdentity() {
			return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("invalid pubkey %d", i))
		}
		pubkeys = append(pubkeys, p)
	}

	hasAncillaryByte := make([]byte, 1)
	if _, err := io.ReadFull(r, hasAncillaryByte); err != nil {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("truncated ancillary flag: %w", err))
	}

	var ancillary *curve.Scalar
	switch hasAncillaryByte[0] {
	case 0:
		if round == 1 {
			return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("round 1 message missing ancillary privkey"))
		}
	case 1:
		if round != 1 {
			return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("non-round-1 message must not carry an ancillary privkey"))
		}
		if count != 1 {
			return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("round 1 message must carry exactly one pubkey"))
		}
		var sb [32]byte
		if _, err := io.ReadFull(r, sb[:]); err != nil {
			return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("truncated ancillary privkey: %w", err))
		}
		ancillary, err = curve.ScalarFromCanonicalBytes(sb[:])
		if err != nil {
			return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("invalid ancillary privkey: %w", err))
		}
	default:
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("invalid ancillary flag byte"))
	}

	var shareCountBuf [4]byte
	if _, err := io.ReadFull(r, shareCountBuf[:]); err != nil {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("truncated window share count: %w", err))
	}
	shareCount := binary.LittleEndian.Uint32(shareCountBuf[:])
	if shareCount > config.MaxSigners {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("implausible window share count %d", shareCount))
	}
	shares := make([]WindowShare, 0, shareCount)
	for i := uint32(0); i < shareCount; i++ {
		var windowBuf [4]byte
		if _, err := io.ReadFull(r, windowBuf[:]); err != nil {
			return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("truncated window share %d index: %w", i, err))
		}
		var recipientBuf [32]byte
		if _, err := io.ReadFull(r, recipientBuf[:]); err != nil {
			return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("truncated window share %d recipient: %w", i, err))
		}
		recipient, err := curve.PointFromCanonicalBytes(recipientBuf[:])
		if err != nil || !recipient.InPrimeOrderSubgroup() || recipient.IsIdentity() {
			return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("invalid window share %d recipient", i))
		}
		var maskedBuf [32]byte
		if _, err := io.ReadFull(r, maskedBuf[:]); err != nil {
			return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("truncated window share %d masked scalar: %w", i, err))
		}
		masked, err := curve.ScalarFromCanonicalBytes(maskedBuf[:])
		if err != nil {
			return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("invalid window share %d masked scalar: %w", i, err))
		}
		shares = append(shares, WindowShare{Window: binary.LittleEndian.Uint32(windowBuf[:]), Recipient: recipient, Masked: masked})
	}
	if round == 1 && len(shares) != 0 {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("round 1 message must not carry window shares"))
	}

	msg := &Message{
		Version:          version,
		Round:            round,
		SigningPubkey:    signingPub,
		Pubkeys:          pubkeys,
		AncillaryPrivkey: ancillary,
		Shares:           shares,
		Signature:        sig,
	}
	if !Verify(signingPub, body, sig) {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("bad signature"))
	}
	return msg, nil
}

func eraForVersion(v byte) (config.Era, bool) {
	switch v {
	case config.KexVersionCryptonote:
		return config.EraCryptonote, true
	case config.KexVersionSeraphis:
		return config.EraSeraphis, true
	default:
		return 0, false
	}
}
