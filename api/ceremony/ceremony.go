// Package ceremony orchestrates batches of independent Schnorr-like
// multisig proofs through the three-phase init-set -> partial-sign ->
// assemble flow described in spec section 4.7, driving the CLSAG and
// composition proof engines polymorphically through a shared
// PartialSigMaker boundary. Grounded on
// original_source/src/multisig/multisig_signing_helper_utils.cpp's
// top-level flow (gather available signers, pick a filter, propose,
// collect partial sigs, finalize) and multisig_partial_sig_makers.cpp's
// strategy-object split between CLSAG and composition-proof signing.
package ceremony

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
	"github.com/readytrader-crypto/mpc-multisig/api/filter"
	"github.com/readytrader-crypto/mpc-multisig/api/noncecache"
	"github.com/readytrader-crypto/mpc-multisig/api/proofs/clsag"
	"github.com/readytrader-crypto/mpc-multisig/api/proofs/composition"
	"github.com/readytrader-crypto/mpc-multisig/internal/errs"
)

// SchemeKind tags which concrete proof scheme a PartialSigVariant carries,
// replacing the teacher ecosystem's runtime-polymorphic partial-sig-maker
// hierarchy with a closed-world tagged variant (spec section 9: "no
// runtime RTTI; dispatch is closed-world over the variant").
type SchemeKind int

const (
	SchemeCLSAG SchemeKind = iota
	SchemeComposition
)

func (k SchemeKind) String() string {
	if k == SchemeCLSAG {
		return "clsag"
	}
	return "composition"
}

// ProofKeyString is the map key used throughout this package to identify a
// proof within a batch: the proof key's canonical byte encoding.
type ProofKeyString = string

func proofKeyString(p *curve.Point) ProofKeyString { return string(p.Bytes()) }

// ProofSpec names one proof to be produced within a ceremony batch: its
// unique key, the message it signs, and the base points the scheme needs
// nonce-cache entries projected onto (length 2 for CLSAG: G and Hp(K);
// length 3 for this module's composition proof: the proof key K itself, G
// and U, since the composition proof opens three independent sigma legs
// -- 1/y against K, x/y against G, z/y against U -- rather than signing
// with x and z shares directly; see api/proofs/composition's package doc
// for why the proof is structured this way and how the 1/y leg, a known
// public constant rather than a secret share, still threads through the
// same per-base nonce aggregation as the other two).
type ProofSpec struct {
	ProofKey *curve.Point
	Message  []byte
	Bases    []*curve.Point
	Maker    PartialSigMaker
}

// PartialSigVariant is the ceremony framework's tagged-union result type:
// exactly one of CLSAGSig/CompSig is populated, selected by Kind.
type PartialSigVariant struct {
	Kind      SchemeKind
	CLSAGSig  *clsag.PartialSig
	CompSig   *composition.PartialSig
	SignerIdx int
}

// PartialSigMaker is the polymorphic boundary every proof scheme
// implements (spec section 4.7's "partial-sig maker"): given a signer
// subgroup F this local signer participates in, and that subgroup's
// per-base aggregated public nonces for this one proof, attempt to
// produce this signer's partial contribution. Implementations source
// whatever additional scheme-specific signing material they need (ring
// data, key shares, z-shares) from their own construction-time state.
type PartialSigMaker interface {
	Kind() SchemeKind
	BaseCount() int
	AttemptMakePartialSig(message []byte, proofKey *curve.Point, f filter.SignerSetFilter,
		perBaseNonces [][]noncecache.PubNonces, cache *noncecache.Cache) (PartialSigVariant, error)

	// Assemble combines one partial signature per contributing signer
	// (already filtered to the same proof key and signer subgroup by the
	// Phase 3 driver) into a finalized, independently-verifiable proof, or
	// an error if they disagree or the assembled proof fails verification.
	Assemble(variants []PartialSigVariant) (interface{}, error)
}

// Logger is injected the same way every other package in this module
// injects its zap logger; nil defaults to a no-op logger.
func defaultLogger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// permutationsContaining returns, in canonical ascending order, every
// size-threshold subset of aggregate that contains signerIdx's bit. This
// is both the outer-index order Phase 1 iterates when generating a
// signer's own init set, and the basis for recovering a participating
// signer's position within that init set during Phase 2 -- both sides
// call this exact function over the exact same (threshold, aggregate)
// pair, so the two enumerations can never drift apart (spec section 9's
// flagged open question: "an implementation must not silently accept
// mis-ordered init sets" is resolved here by construction rather than by
// a separately-carried index counter).
func permutationsContaining(threshold uint32, aggregate filter.SignerSetFilter, signerIdx int) []filter.SignerSetFilter {
	bit := filter.SignerSetFilter(1) << uint(signerIdx)
	var out []filter.SignerSetFilter
	for _, f := range filter.EnumeratePermutations(threshold, aggregate) {
		if f&bit != 0 {
			out = append(out, f)
		}
	}
	return out
}

func indexOfFilter(list []filter.SignerSetFilter, target filter.SignerSetFilter) int {
	for i, f := range list {
		if f == target {
			return i
		}
	}
	return -1
}

func expectedInitSetCount(threshold uint32, aggregatePopcount uint32) int {
	return int(binomial(aggregatePopcount-1, threshold-1))
}

func binomial(n, k uint32) uint64 {
	if k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	result := uint64(1)
	for i := uint32(0); i < k; i++ {
		result = result * uint64(n-i) / uint64(i+1)
	}
	return result
}

var errNilProposal = fmt.Errorf("ceremony: nil proof spec")

func validateProofSpec(p ProofSpec) error {
	if p.ProofKey == nil || p.Maker == nil {
		return errs.New(errs.SemanticsException, "ceremony.validateProofSpec", errNilProposal)
	}
	if len(p.Bases) != p.Maker.BaseCount() {
		return errs.Newf(errs.SemanticsException, "ceremony.validateProofSpec",
			"proof %s expects %d bases, spec carries %d", p.Maker.Kind(), p.Maker.BaseCount(), len(p.Bases))
	}
	return nil
}
