// Package clsag implements the multisig CLSAG (linkable ring signature)
// proof engine: propose, partial-sign, finalize, verify. Grounded on
// original_source/src/multisig/multisig_clsag.cpp's compute_response,
// signer_nonces_mul8, sum_together_multisig_pub_nonces,
// make_clsag_multisig_proposal, make_clsag_multisig_partial_sig (delegating
// to an inner Context mirroring CLSAG_context_t), and
// finalize_clsag_multisig_proof.
package clsag

import (
	"fmt"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
	"github.com/readytrader-crypto/mpc-multisig/api/filter"
	"github.com/readytrader-crypto/mpc-multisig/api/noncecache"
	"github.com/readytrader-crypto/mpc-multisig/config"
	"github.com/readytrader-crypto/mpc-multisig/internal/errs"
)

// RingMember is one (onetime address, amount commitment) pair in the ring.
type RingMember struct {
	P *curve.Point
	C *curve.Point
}

// Proposal is the ring-wide portion of a CLSAG proof, independent of any
// individual signer's keyshare: decoy responses, the initial challenge, and
// the data every signer needs to know they're signing the same ring.
type Proposal struct {
	Ring        []RingMember
	SignIndex   int
	PseudoOut   *curve.Point
	KeyImage    *curve.Point
	AuxKeyImage *curve.Point // D = z*Hp(P[l])
	Message     []byte

	DecoyResponses []*curve.Scalar // s_i for i != SignIndex
	Challenge0     *curve.Scalar   // c_{l+1}, the challenge the ring walk starts from
	MuP            *curve.Scalar
	MuC            *curve.Scalar

	NonceMergeFactor *curve.Scalar // merge factor signers must reuse in MakePartialSig
}

// PartialSig is one signer's contribution toward the final response at
// SignIndex.
type PartialSig struct {
	Proposal     *Proposal
	PartialResp  *curve.Scalar
	SignerPubkey *curve.Point // identifies which signer produced this, for pairwise-equality checks
}

// Signature is a complete, verifiable CLSAG ring signature.
type Signature struct {
	Responses   []*curve.Scalar
	Challenge0  *curve.Scalar
	KeyImage    *curve.Point
	AuxKeyImage *curve.Point
}

const (
	domainAgg0  = "domain_sep_clsag_agg_0"
	domainAgg1  = "domain_sep_clsag_agg_1"
	domainRound = "domain_sep_clsag_round"
)

func hashToPointForRing(p *curve.Point) (*curve.Point, error) {
	return curve.HashToPoint(config.DSHashToPointCLSAG, p.Bytes())
}

func computeMus(ring []RingMember, keyImage, auxKeyImage, pseudoOut *curve.Point) (*curve.Scalar, *curve.Scalar, error) {
	data := [][]byte{keyImage.Bytes(), auxKeyImage.Bytes(), pseudoOut.Bytes()}
	for _, m := range ring {
		data = append(data, m.P.Bytes(), m.C.Bytes())
	}
	muP, err := curve.HashToScalar(domainAgg0, data...)
	if err != nil {
		return nil, nil, err
	}
	muC, err := curve.HashToScalar(domainAgg1, data...)
	if err != nil {
		return nil, nil, err
	}
	return muP, muC, nil
}

func roundChallenge(ring []RingMember, pseudoOut *curve.Point, message []byte, L, R *curve.Point) (*curve.Scalar, error) {
	data := [][]byte{pseudoOut.Bytes(), message, L.Bytes(), R.Bytes()}
	for _, m := range ring {
		data = append(data, m.P.Bytes(), m.C.Bytes())
	}
	return curve.HashToScalar(domainRound, data...)
}

// AggregateNonces implements signer_nonces_mul8 + sum_together_multisig_pub_
// nonces: each signer's (1/8-scaled) pub nonce, for a single base, is
// cofactor-cleared and summed into one ring-wide commitment for that base.
func AggregateNonces(pubNonces []noncecache.PubNonces) (agg1, agg2 *curve.Point) {
	agg1 = curve.Identity()
	agg2 = curve.Identity()
	for _, n := range pubNonces {
		agg1 = agg1.Add(n.Nonce1Pub.MulByCofactor())
		agg2 = agg2.Add(n.Nonce2Pub.MulByCofactor())
	}
	return agg1, agg2
}

// binonceMerge combines the aggregated nonce commitments of both bases (G
// and Hp) into one merge factor (spec 4.4's MuSig2-style binonce merge); the
// same factor is reused for every base so every signer computes an
// identical response term.
func binonceMerge(agg1G, agg2G, agg1Hp, agg2Hp *curve.Point) (*curve.Scalar, error) {
	return curve.HashToScalar(config.DSBinonceMerge, agg1G.Bytes(), agg2G.Bytes(), agg1Hp.Bytes(), agg2Hp.Bytes())
}

// Propose builds the ring-wide CLSAG proposal. Callers must have already
// aggregated, across every participating signer, the pub-nonce pairs for
// both the G base and the Hp(P[SignIndex]) base (via noncecache.
// TryGetPubkeysForBase + AggregateNonces).
func Propose(ring []RingMember, signIndex int, pseudoOut, auxKeyImage, keyImage *curve.Point, message []byte,
	agg1G, agg2G, agg1Hp, agg2Hp *curve.Point) (*Proposal, error) {
	if signIndex < 0 || signIndex >= len(ring) {
		return nil, errs.New(errs.InputMalformed, "clsag.Propose", fmt.Errorf("sign index out of range"))
	}
	muP, muC, err := computeMus(ring, keyImage, auxKeyImage, pseudoOut)
	if err != nil {
		return nil, err
	}
	merge, err := binonceMerge(agg1G, agg2G, agg1Hp, agg2Hp)
	if err != nil {
		return nil, err
	}

	L0 := agg1G.Add(agg2G.ScalarMul(merge))
	R0 := agg1Hp.Add(agg2Hp.ScalarMul(merge))

	n := len(ring)
	decoys := make([]*curve.Scalar, n)
	c, err := roundChallenge(ring, pseudoOut, message, L0, R0)
	if err != nil {
		return nil, err
	}

	var c0 *curve.Scalar
	idx := (signIndex + 1) % n
	if idx == 0 {
		c0 = c
	}
	for idx != signIndex {
		s, err := curve.NewRandomScalar()
		if err != nil {
			return nil, err
		}
		decoys[idx] = s

		L := curve.ScalarMulBase(s).Add(ring[idx].P.ScalarMul(c.Mul(muP))).Add(ring[idx].C.Sub(pseudoOut).ScalarMul(c.Mul(muC)))
		hp, err := hashToPointForRing(ring[idx].P)
		if err != nil {
			return nil, err
		}
		R := hp.ScalarMul(s).Add(keyImage.ScalarMul(c.Mul(muP))).Add(auxKeyImage.ScalarMul(c.Mul(muC)))

		c, err = roundChallenge(ring, pseudoOut, message, L, R)
		if err != nil {
			return nil, err
		}
		idx = (idx + 1) % n
	}

	return &Proposal{
		Ring: ring, SignIndex: signIndex, PseudoOut: pseudoOut, KeyImage: keyImage,
		AuxKeyImage: auxKeyImage, Message: message, DecoyResponses: decoys,
		Challenge0: c, MuP: muP, MuC: muC, NonceMergeFactor: merge,
	}, nil
}

// MakePartialSig produces one signer's contribution to the final response
// at SignIndex: partial = localNonce - c*(mu_P*privShare + mu_C*zShare),
// where localNonce = nonce1 + merge*nonce2 is this signer's share of the
// aggregated ring-walk nonce (reusing the proposal's merge factor, so every
// signer applies the identical linear combination).
func MakePartialSig(proposal *Proposal, signerPubkey *curve.Point, privShare, zShare, nonce1, nonce2 *curve.Scalar) (*PartialSig, error) {
	localNonce := nonce1.Add(proposal.NonceMergeFactor.Mul(nonce2))
	c := proposal.Challenge0
	term := c.Mul(proposal.MuP.Mul(privShare).Add(proposal.MuC.Mul(zShare)))
	resp := localNonce.Sub(term)
	return &PartialSig{Proposal: proposal, PartialResp: resp, SignerPubkey: signerPubkey}, nil
}

// TryMakePartialSig is the nonce-cache-aware entry point ceremony drivers
// should call instead of MakePartialSig directly: it looks up this signer's
// recorded private nonces for (message, proofKey, f), builds the partial
// signature, and removes the nonce record before returning, so the consumed
// nonce can never leave the process attached to more than one partial
// signature (spec section 4.4's single-use invariant, enforced at the
// proof-engine boundary as section 4.5 step 7 requires).
func TryMakePartialSig(cache *noncecache.Cache, message []byte, proofKey *curve.Point, f filter.SignerSetFilter,
	proposal *Proposal, signerPubkey *curve.Point, privShare, zShare *curve.Scalar) (*PartialSig, error) {
	const op = "clsag.TryMakePartialSig"
	nonce1, nonce2, ok := cache.TryGetRecordedPrivkeys(message, proofKey.Bytes(), f)
	if !ok {
		return nil, errs.New(errs.NonceUnavailable, op, nil)
	}
	partial, err := MakePartialSig(proposal, signerPubkey, privShare, zShare, nonce1, nonce2)
	if err != nil {
		return nil, err
	}
	cache.TryRemove(message, proofKey.Bytes(), f)
	return partial, nil
}

// Finalize sums every signer's partial response into the final signature,
// after checking all partials agree on the ring-wide proposal fields
// (finalize_clsag_multisig_proof's pairwise-equality checks).
func Finalize(partials []PartialSig) (*Signature, error) {
	if len(partials) == 0 {
		return nil, errs.New(errs.InputMalformed, "clsag.Finalize", fmt.Errorf("no partial signatures"))
	}
	p0 := partials[0].Proposal
	sum := curve.ScalarZero()
	for _, ps := range partials {
		if !ps.Proposal.Challenge0.Equal(p0.Challenge0) || !ps.Proposal.KeyImage.Equal(p0.KeyImage) ||
			!ps.Proposal.AuxKeyImage.Equal(p0.AuxKeyImage) || !ps.Proposal.PseudoOut.Equal(p0.PseudoOut) {
			return nil, errs.New(errs.ProofFailure, "clsag.Finalize", fmt.Errorf("partial signatures disagree on proposal"))
		}
		sum = sum.Add(ps.PartialResp)
	}

	responses := make([]*curve.Scalar, len(p0.Ring))
	for i := range p0.Ring {
		if i == p0.SignIndex {
			responses[i] = sum
		} else {
			responses[i] = p0.DecoyResponses[i]
		}
	}

	return &Signature{
		Responses: responses, Challenge0: p0.Challenge0,
		KeyImage: p0.KeyImage, AuxKeyImage: p0.AuxKeyImage,
	}, nil
}

// Verify recomputes the full challenge ring walk and checks it closes.
func Verify(sig *Signature, ring []RingMember, pseudoOut *curve.Point, message []byte) (bool, error) {
	n := len(ring)
	if len(sig.Responses) != n {
		return false, errs.New(errs.InputMalformed, "clsag.Verify", fmt.Errorf("response count mismatch"))
	}
	muP, muC, err := computeMus(ring, sig.KeyImage, sig.AuxKeyImage, pseudoOut)
	if err != nil {
		return false, err
	}

	c := sig.Challenge0
	for i := 0; i < n; i++ {
		s := sig.Responses[i]
		L := curve.ScalarMulBase(s).Add(ring[i].P.ScalarMul(c.Mul(muP))).Add(ring[i].C.Sub(pseudoOut).ScalarMul(c.Mul(muC)))
		hp, err := hashToPointForRing(ring[i].P)
		if err != nil {
			return false, err
		}
		R := hp.ScalarMul(s).Add(sig.KeyImage.ScalarMul(c.Mul(muP))).Add(sig.AuxKeyImage.ScalarMul(c.Mul(muC)))
		var cerr error
		c, cerr = roundChallenge(ring, pseudoOut, message, L, R)
		if cerr != nil {
			return false, cerr
		}
	}
	return c.Equal(sig.Challenge0), nil
}
