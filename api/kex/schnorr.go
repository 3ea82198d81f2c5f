package kex

import (
	"crypto/rand"
	"fmt"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
)

// Signature is a Schnorr-style signature over the Ed25519 group, reusing
// the curve arithmetic already in the ecosystem rather than introducing a
// second signature scheme (spec section 4.2 step 1).
type Signature struct {
	R *curve.Point
	S *curve.Scalar
}

func (sig *Signature) Bytes() []byte {
	return append(append([]byte{}, sig.R.Bytes()...), sig.S.Bytes()...)
}

func SignatureFromBytes(b []byte) (*Signature, error) {
	if len(b) != 64 {
		return nil, fmt.Errorf("kex: signature must be 64 bytes, got %d", len(b))
	}
	r, err := curve.PointFromCanonicalBytes(b[:32])
	if err != nil {
		return nil, fmt.Errorf("kex: signature R: %w", err)
	}
	s, err := curve.ScalarFromCanonicalBytes(b[32:])
	if err != nil {
		return nil, fmt.Errorf("kex: signature s: %w", err)
	}
	return &Signature{R: r, S: s}, nil
}

const signDomain = "domain_sep_multisig_schnorr_sign"

// Sign produces a Schnorr signature over message under privkey, binding in
// the claimed pubkey so the challenge cannot be replayed against a
// different signer's key.
func Sign(privkey *curve.Scalar, pubkey *curve.Point, message []byte) (*Signature, error) {
	var nonceSeed [32]byte
	if _, err := rand.Read(nonceSeed[:]); err != nil {
		return nil, fmt.Errorf("kex: sign: %w", err)
	}
	r, err := curve.HashToScalar(signDomain+"_nonce", nonceSeed[:], privkey.Bytes(), message)
	if err != nil {
		return nil, err
	}
	R := curve.ScalarMulBase(r)
	c, err := curve.HashToScalar(signDomain, R.Bytes(), pubkey.Bytes(), message)
	if err != nil {
		return nil, err
	}
	s := r.Add(c.Mul(privkey))
	return &Signature{R: R, S: s}, nil
}

// Verify checks sig against pubkey and message.
func Verify(pubkey *curve.Point, message []byte, sig *Signature) bool {
	if pubkey == nil || sig == nil || pubkey.IsIdentity() {
		return false
	}
	c, err := curve.HashToScalar(signDomain, sig.R.Bytes(), pubkey.Bytes(), message)
	if err != nil {
		return false
	}
	lhs := curve.ScalarMulBase(sig.S)
	rhs := sig.R.Add(pubkey.ScalarMul(c))
	return lhs.Equal(rhs)
}
