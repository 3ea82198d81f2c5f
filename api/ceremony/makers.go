package ceremony

import (
	"fmt"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
	"github.com/readytrader-crypto/mpc-multisig/api/filter"
	"github.com/readytrader-crypto/mpc-multisig/api/multisig"
	"github.com/readytrader-crypto/mpc-multisig/api/noncecache"
	"github.com/readytrader-crypto/mpc-multisig/api/proofs/clsag"
	"github.com/readytrader-crypto/mpc-multisig/api/proofs/composition"
	"github.com/readytrader-crypto/mpc-multisig/internal/errs"
)

// ZShareFunc supplies the local signer's share of whatever second secret a
// scheme needs beyond the account's aggregate spend-key share (CLSAG's
// commitment-mask share z_e, or this module's composition-proof z_e share)
// for a given signer subgroup.
type ZShareFunc func(f filter.SignerSetFilter) (*curve.Scalar, error)

// CLSAGMaker is the CLSAG partial-sig maker: one instance is constructed
// per ring-signature proposal, holding the ring data every subgroup
// attempt re-derives a fresh proposal against (spec section 4.5).
type CLSAGMaker struct {
	Account      *multisig.Account
	Ring         []clsag.RingMember
	SignIndex    int
	PseudoOut    *curve.Point
	KeyImage     *curve.Point
	AuxKeyImage  *curve.Point
	ZShare       ZShareFunc
}

func (m *CLSAGMaker) Kind() SchemeKind { return SchemeCLSAG }
func (m *CLSAGMaker) BaseCount() int   { return 2 }

// AttemptMakePartialSig builds a fresh CLSAG proposal from this subgroup's
// aggregated nonces (a new proposal per subgroup attempt, since the nonce
// commitments determine the ring-walk challenge; only the eventually
// successful attempt's proposal is ever finalized, so unused decoy sets
// are simply discarded unused), then produces this signer's partial
// response via the nonce-cache-integrated entry point.
func (m *CLSAGMaker) AttemptMakePartialSig(message []byte, proofKey *curve.Point, f filter.SignerSetFilter,
	perBaseNonces [][]noncecache.PubNonces, cache *noncecache.Cache) (PartialSigVariant, error) {
	const op = "ceremony.CLSAGMaker.AttemptMakePartialSig"
	if len(perBaseNonces) != 2 {
		return PartialSigVariant{}, errs.New(errs.SemanticsException, op, fmt.Errorf("expected 2 nonce bases, got %d", len(perBaseNonces)))
	}
	agg1G, agg2G := clsag.AggregateNonces(perBaseNonces[0])
	agg1Hp, agg2Hp := clsag.AggregateNonces(perBaseNonces[1])

	proposal, err := clsag.Propose(m.Ring, m.SignIndex, m.PseudoOut, m.AuxKeyImage, m.KeyImage, message, agg1G, agg2G, agg1Hp, agg2Hp)
	if err != nil {
		return PartialSigVariant{}, err
	}

	privShare, err := m.Account.TryGetAggregateSigningKey(f)
	if err != nil {
		return PartialSigVariant{}, err
	}
	zShare, err := m.ZShare(f)
	if err != nil {
		return PartialSigVariant{}, err
	}

	partial, err := clsag.TryMakePartialSig(cache, message, proofKey, f, proposal, m.Ring[m.SignIndex].P, privShare, zShare)
	if err != nil {
		return PartialSigVariant{}, err
	}
	return PartialSigVariant{Kind: SchemeCLSAG, CLSAGSig: partial}, nil
}

// Assemble finalizes and verifies a CLSAG ring signature from every
// contributing signer's partial.
func (m *CLSAGMaker) Assemble(variants []PartialSigVariant) (interface{}, error) {
	const op = "ceremony.CLSAGMaker.Assemble"
	partials := make([]clsag.PartialSig, 0, len(variants))
	for _, v := range variants {
		if v.Kind != SchemeCLSAG || v.CLSAGSig == nil {
			return nil, errs.New(errs.SemanticsException, op, fmt.Errorf("variant is not a CLSAG partial"))
		}
		partials = append(partials, *v.CLSAGSig)
	}
	sig, err := clsag.Finalize(partials)
	if err != nil {
		return nil, err
	}
	ok, err := clsag.Verify(sig, m.Ring, m.PseudoOut, partials[0].Proposal.Message)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.ProofFailure, op, fmt.Errorf("assembled CLSAG proof failed verification"))
	}
	return sig, nil
}

// CompositionMaker is the composition-proof partial-sig maker: one
// instance per (K, KI) proposal (spec section 4.6). The three nonce bases
// a ProofSpec built around a CompositionMaker must carry are, in order,
// K itself, curve.Generator() and curve.GenU() -- see composition.go's
// K_t1/K_t2/KeyImage derivation for why those three and not G/U alone.
type CompositionMaker struct {
	Account  *multisig.Account
	K        *curve.Point
	KeyImage *curve.Point
	YFull    *curve.Scalar // the full (non-secret-shared) balance-blinding scalar y
	ZShare   ZShareFunc
}

func (m *CompositionMaker) Kind() SchemeKind { return SchemeComposition }
func (m *CompositionMaker) BaseCount() int   { return 3 }

func (m *CompositionMaker) AttemptMakePartialSig(message []byte, proofKey *curve.Point, f filter.SignerSetFilter,
	perBaseNonces [][]noncecache.PubNonces, cache *noncecache.Cache) (PartialSigVariant, error) {
	const op = "ceremony.CompositionMaker.AttemptMakePartialSig"
	if len(perBaseNonces) != 3 {
		return PartialSigVariant{}, errs.New(errs.SemanticsException, op, fmt.Errorf("expected 3 nonce bases, got %d", len(perBaseNonces)))
	}
	agg1T1, agg2T1 := composition.AggregatePubNonces(perBaseNonces[0])
	agg1T2, agg2T2 := composition.AggregatePubNonces(perBaseNonces[1])
	agg1KI, agg2KI := composition.AggregatePubNonces(perBaseNonces[2])
	mergeT1, err := composition.BinonceMergeFactor(agg1T1, agg2T1)
	if err != nil {
		return PartialSigVariant{}, err
	}
	mergeT2, err := composition.BinonceMergeFactor(agg1T2, agg2T2)
	if err != nil {
		return PartialSigVariant{}, err
	}
	mergeKI, err := composition.BinonceMergeFactor(agg1KI, agg2KI)
	if err != nil {
		return PartialSigVariant{}, err
	}

	proposal, err := composition.Propose(m.K, m.KeyImage, m.YFull, message,
		agg1T1, agg2T1, agg1T2, agg2T2, agg1KI, agg2KI, mergeT1, mergeT2, mergeKI)
	if err != nil {
		return PartialSigVariant{}, err
	}

	xShare, err := m.Account.TryGetAggregateSigningKey(f)
	if err != nil {
		return PartialSigVariant{}, err
	}
	zShare, err := m.ZShare(f)
	if err != nil {
		return PartialSigVariant{}, err
	}

	partial, err := composition.TryMakePartialSig(cache, message, proofKey, f, proposal, xShare, zShare, m.YFull, mergeT1, mergeT2, mergeKI)
	if err != nil {
		return PartialSigVariant{}, err
	}
	return PartialSigVariant{Kind: SchemeComposition, CompSig: partial}, nil
}

func (m *CompositionMaker) Assemble(variants []PartialSigVariant) (interface{}, error) {
	const op = "ceremony.CompositionMaker.Assemble"
	partials := make([]composition.PartialSig, 0, len(variants))
	for _, v := range variants {
		if v.Kind != SchemeComposition || v.CompSig == nil {
			return nil, errs.New(errs.SemanticsException, op, fmt.Errorf("variant is not a composition partial"))
		}
		partials = append(partials, *v.CompSig)
	}
	sig, err := composition.Finalize(partials)
	if err != nil {
		return nil, err
	}
	ok, err := composition.Verify(sig, partials[0].Proposal.Message)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.ProofFailure, op, fmt.Errorf("assembled composition proof failed verification"))
	}
	return sig, nil
}
