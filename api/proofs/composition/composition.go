// Package composition implements the multisig Schnorr-like composition
// proof over the triple-base key K = x*G + y*X + z*U (spec section 4.6),
// grounded on original_source/src/multisig/multisig_sp_composition_proof.cpp
// and seraphis_crypto/sp_composition_proof.cpp's K_t1/K_t2 substitution:
// rather than proving knowledge of (x, y, z) directly, the prover opens
//
//	t1 = 1/y           (w.r.t. base K_t1 = t1*K)
//	t2 = x/y           (w.r.t. base G,    since K_t2 := K_t1 - X - KI = t2*G)
//	ki = z/y           (w.r.t. base U,    since KI = ki*U)
//
// K_t1 is published alongside the signature; K_t2 is never transmitted, the
// verifier always recomputes it from the published K_t1, X and KeyImage.
// That recomputation is what algebraically ties KeyImage to the rest of the
// proof: a KeyImage that does not satisfy KI = (z/y)*U for the same y as K
// makes K_t2 disagree with the discrete log the r_t2 response opens, so
// Verify rejects it even though x, y, z themselves check out.
//
// y is carried in full by every account (spec's data model: "typically
// known fully, not secret-shared"), so t1 = 1/y is a known public constant
// rather than a secret shared across signers. To let every signer in a
// subgroup contribute to t1's commitment through the same threshold
// binonce mechanism used for t2 and ki (rather than designating a single
// carrier with no channel to publish its nonce to the rest of the
// subgroup), each signer contributes an equal 1/(y*m) share of t1, m being
// the subgroup's size; the shares sum back to 1/y across exactly the m
// signers who contribute a response.
package composition

import (
	"fmt"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
	"github.com/readytrader-crypto/mpc-multisig/api/filter"
	"github.com/readytrader-crypto/mpc-multisig/api/noncecache"
	"github.com/readytrader-crypto/mpc-multisig/config"
	"github.com/readytrader-crypto/mpc-multisig/internal/errs"
)

// Proposal is the key-wide portion of a composition proof.
type Proposal struct {
	K        *curve.Point
	KeyImage *curve.Point // z/y * U, revealed alongside the proof
	Message  []byte
	KT1      *curve.Point // (1/y)*K, published so the verifier can derive K_t2 without knowing y

	CommitT1 *curve.Point // alpha_t1 * K
	CommitT2 *curve.Point // alpha_t2 * G
	CommitKI *curve.Point // alpha_ki * U

	ChallengeMsg *curve.Scalar
	Challenge    *curve.Scalar
}

// PartialSig is one signer's contribution to the (r_t1, r_t2, r_ki)
// response triple.
type PartialSig struct {
	Proposal *Proposal
	RespT1   *curve.Scalar
	RespT2   *curve.Scalar
	RespKI   *curve.Scalar
}

// Signature is the complete, verifiable composition proof.
type Signature struct {
	K        *curve.Point
	KeyImage *curve.Point
	KT1      *curve.Point
	CommitT1 *curve.Point
	CommitT2 *curve.Point
	CommitKI *curve.Point
	RespT1   *curve.Scalar
	RespT2   *curve.Scalar
	RespKI   *curve.Scalar
}

// kT2 recomputes K_t1 - X - KeyImage, the point whose discrete log w.r.t. G
// the r_t2 response opens. Both Propose and Verify call this instead of
// trusting a transmitted value, which is what binds KeyImage into the proof.
func kT2(kT1, keyImage *curve.Point) *curve.Point {
	return kT1.Sub(curve.GenX()).Sub(keyImage)
}

func challengeMessage(K, keyImage *curve.Point, message []byte) (*curve.Scalar, error) {
	return curve.HashToScalar(config.DSCompositionChallengeMsg, K.Bytes(), keyImage.Bytes(), message)
}

func challenge(kT1, keyImage, commitT1, commitT2, commitKI *curve.Point, challengeMsg *curve.Scalar) (*curve.Scalar, error) {
	return curve.HashToScalar(config.DSCompositionChallenge,
		kT1.Bytes(), kT2(kT1, keyImage).Bytes(), keyImage.Bytes(),
		commitT1.Bytes(), commitT2.Bytes(), commitKI.Bytes(), challengeMsg.Bytes())
}

// Propose builds the key-wide proposal from pre-aggregated nonce
// commitments for the three bases K, G and U (agg1/agg2 back t1, t2 and ki
// respectively). yFull is the full (non-secret-shared) balance-blinding
// scalar; every signer in the subgroup calls Propose with the same inputs
// and so independently derives the identical Proposal.
func Propose(K, keyImage *curve.Point, yFull *curve.Scalar, message []byte,
	agg1T1, agg2T1, agg1T2, agg2T2, agg1KI, agg2KI *curve.Point,
	mergeT1, mergeT2, mergeKI *curve.Scalar) (*Proposal, error) {
	const op = "composition.Propose"
	if yFull == nil || yFull.IsZero() {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("yFull must be a non-zero known balance scalar"))
	}
	yInv, err := yFull.Invert()
	if err != nil {
		return nil, errs.New(errs.InputMalformed, op, err)
	}
	kT1 := K.ScalarMul(yInv)

	commitT1 := agg1T1.Add(agg2T1.ScalarMul(mergeT1))
	commitT2 := agg1T2.Add(agg2T2.ScalarMul(mergeT2))
	commitKI := agg1KI.Add(agg2KI.ScalarMul(mergeKI))

	challengeMsg, err := challengeMessage(K, keyImage, message)
	if err != nil {
		return nil, err
	}
	c, err := challenge(kT1, keyImage, commitT1, commitT2, commitKI, challengeMsg)
	if err != nil {
		return nil, err
	}
	return &Proposal{
		K: K, KeyImage: keyImage, Message: message, KT1: kT1,
		CommitT1: commitT1, CommitT2: commitT2, CommitKI: commitKI,
		ChallengeMsg: challengeMsg, Challenge: c,
	}, nil
}

// BinonceMergeFactor derives the merge factor for one base's aggregated
// nonce pair, reused identically by every signer (mirrors clsag's merge).
func BinonceMergeFactor(agg1, agg2 *curve.Point) (*curve.Scalar, error) {
	return curve.HashToScalar(config.DSBinonceMerge, agg1.Bytes(), agg2.Bytes())
}

// MakePartialSig produces one signer's (r_t1, r_t2, r_ki) contribution.
// xShare and zShare are this signer's additive shares of x and z; yFull is
// the fully-known balance-blinding scalar; m is the number of signers in
// the subgroup this partial signature is being produced for, used to split
// 1/y into m equal shares so every signer's t1 contribution sums correctly
// without a designated carrier.
func MakePartialSig(proposal *Proposal, xShare, zShare, yFull *curve.Scalar, m int,
	nonce1, nonce2 *curve.Scalar, mergeT1, mergeT2, mergeKI *curve.Scalar) (*PartialSig, error) {
	const op = "composition.MakePartialSig"
	if m <= 0 {
		return nil, errs.New(errs.InputMalformed, op, fmt.Errorf("subgroup size must be positive, got %d", m))
	}
	yInv, err := yFull.Invert()
	if err != nil {
		return nil, errs.New(errs.InputMalformed, op, err)
	}
	mInv, err := curve.ScalarFromUint64(uint64(m)).Invert()
	if err != nil {
		return nil, errs.New(errs.InputMalformed, op, err)
	}

	t1Share := yInv.Mul(mInv)
	t2Share := xShare.Mul(yInv)
	kiShare := zShare.Mul(yInv)

	c := proposal.Challenge
	localT1 := nonce1.Add(mergeT1.Mul(nonce2))
	localT2 := nonce1.Add(mergeT2.Mul(nonce2))
	localKI := nonce1.Add(mergeKI.Mul(nonce2))

	rT1 := localT1.Sub(c.Mul(t1Share))
	rT2 := localT2.Sub(c.Mul(t2Share))
	rKI := localKI.Sub(c.Mul(kiShare))

	return &PartialSig{Proposal: proposal, RespT1: rT1, RespT2: rT2, RespKI: rKI}, nil
}

// TryMakePartialSig is the nonce-cache-aware entry point: it looks up this
// signer's single recorded nonce pair for (message, proofKey, f) -- the
// same pair projects onto all three bases, as clsag.TryMakePartialSig does
// for its two bases -- builds the partial signature, and removes the
// record before returning (spec section 4.4's single-use invariant).
func TryMakePartialSig(cache *noncecache.Cache, message []byte, proofKey *curve.Point, f filter.SignerSetFilter,
	proposal *Proposal, xShare, zShare, yFull *curve.Scalar, mergeT1, mergeT2, mergeKI *curve.Scalar) (*PartialSig, error) {
	const op = "composition.TryMakePartialSig"
	nonce1, nonce2, ok := cache.TryGetRecordedPrivkeys(message, proofKey.Bytes(), f)
	if !ok {
		return nil, errs.New(errs.NonceUnavailable, op, nil)
	}
	m := int(filter.NumFlagsSet(f))
	partial, err := MakePartialSig(proposal, xShare, zShare, yFull, m, nonce1, nonce2, mergeT1, mergeT2, mergeKI)
	if err != nil {
		return nil, err
	}
	cache.TryRemove(message, proofKey.Bytes(), f)
	return partial, nil
}

// Finalize sums every signer's partial response into the final signature.
func Finalize(partials []PartialSig) (*Signature, error) {
	if len(partials) == 0 {
		return nil, errs.New(errs.InputMalformed, "composition.Finalize", fmt.Errorf("no partial signatures"))
	}
	p0 := partials[0].Proposal
	rT1 := curve.ScalarZero()
	rT2 := curve.ScalarZero()
	rKI := curve.ScalarZero()
	for _, ps := range partials {
		if !ps.Proposal.Challenge.Equal(p0.Challenge) || !ps.Proposal.K.Equal(p0.K) || !ps.Proposal.KeyImage.Equal(p0.KeyImage) {
			return nil, errs.New(errs.ProofFailure, "composition.Finalize", fmt.Errorf("partial signatures disagree on proposal"))
		}
		rT1 = rT1.Add(ps.RespT1)
		rT2 = rT2.Add(ps.RespT2)
		rKI = rKI.Add(ps.RespKI)
	}
	return &Signature{
		K: p0.K, KeyImage: p0.KeyImage, KT1: p0.KT1,
		CommitT1: p0.CommitT1, CommitT2: p0.CommitT2, CommitKI: p0.CommitKI,
		RespT1: rT1, RespT2: rT2, RespKI: rKI,
	}, nil
}

// Verify recomputes K_t2 from the published K_t1, X and KeyImage, then
// checks all three sigma equations and that the challenge was derived
// honestly:
//
//	r_t1*K  + c*K_t1 == CommitT1
//	r_t2*G  + c*K_t2 == CommitT2
//	r_ki*U  + c*KeyImage == CommitKI
//
// Because K_t2 is derived from the caller-supplied KeyImage rather than
// trusted from the wire, a KeyImage that was not produced with the same y
// as K makes the second equation fail even when the first and third hold.
func Verify(sig *Signature, message []byte) (bool, error) {
	challengeMsg, err := challengeMessage(sig.K, sig.KeyImage, message)
	if err != nil {
		return false, err
	}
	c, err := challenge(sig.KT1, sig.KeyImage, sig.CommitT1, sig.CommitT2, sig.CommitKI, challengeMsg)
	if err != nil {
		return false, err
	}

	kt2 := kT2(sig.KT1, sig.KeyImage)

	lhsT1 := sig.K.ScalarMul(sig.RespT1).Add(sig.KT1.ScalarMul(c))
	lhsT2 := curve.ScalarMulBase(sig.RespT2).Add(kt2.ScalarMul(c))
	lhsKI := curve.GenU().ScalarMul(sig.RespKI).Add(sig.KeyImage.ScalarMul(c))

	return lhsT1.Equal(sig.CommitT1) && lhsT2.Equal(sig.CommitT2) && lhsKI.Equal(sig.CommitKI), nil
}

// AggregatePubNonces applies MulByCofactor + sum across every signer's
// noncecache.PubNonces for a single base, mirroring clsag.AggregateNonces.
func AggregatePubNonces(pubNonces []noncecache.PubNonces) (agg1, agg2 *curve.Point) {
	agg1 = curve.Identity()
	agg2 = curve.Identity()
	for _, n := range pubNonces {
		agg1 = agg1.Add(n.Nonce1Pub.MulByCofactor())
		agg2 = agg2.Add(n.Nonce2Pub.MulByCofactor())
	}
	return agg1, agg2
}
