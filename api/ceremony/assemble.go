package ceremony

import (
	"go.uber.org/zap"

	"github.com/readytrader-crypto/mpc-multisig/api/filter"
	"github.com/readytrader-crypto/mpc-multisig/internal/errs"
)

// AssembledBatch is the fully finalized output of one successful signer
// subgroup: one finalized proof per proof-key in the batch.
type AssembledBatch struct {
	Filter      filter.SignerSetFilter
	FinalProofs map[ProofKeyString]interface{}
}

// FilterPartialSigsForCombining is Phase 3's input-sanitization step: from
// many signers' submitted PartialSigSets, keep only those that are
// semantically valid (correct filter popcount, a partial present for every
// proof-key in the batch of the scheme each proof declares), and suppress
// duplicate (signer, filter) submissions -- keeping the first one seen.
func FilterMultisigPartialSignaturesForCombining(threshold uint32, proofs []ProofSpec, sets []*PartialSigSet) []*PartialSigSet {
	type dedupKey struct {
		signer int
		filter filter.SignerSetFilter
	}
	seen := make(map[dedupKey]bool)
	var out []*PartialSigSet
	for _, s := range sets {
		if s == nil {
			continue
		}
		if filter.NumFlagsSet(s.Filter) != threshold {
			continue
		}
		ok := true
		for _, p := range proofs {
			variant, has := s.Partials[proofKeyString(p.ProofKey)]
			if !has || variant.Kind != p.Maker.Kind() {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		k := dedupKey{s.SignerIdx, s.Filter}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

// TryAssembleMultisigPartialSigsSignerGroupAttempts is Phase 3's assembly
// step: group the sanitized partial-sig sets by filter, and for the first
// filter bucket (in ascending filter order) where every proof-key in the
// batch assembles successfully, return the combined batch. A bucket fails
// as a whole if even one proof-key's partials don't assemble, matching
// spec section 4.7's "a filter bucket succeeds only if all proof-keys in
// the batch assemble successfully under that bucket."
func TryAssembleMultisigPartialSigsSignerGroupAttempts(log *zap.Logger, threshold uint32, proofs []ProofSpec, sets []*PartialSigSet) (*AssembledBatch, []error) {
	log = defaultLogger(log)
	const op = "ceremony.TryAssembleMultisigPartialSigsSignerGroupAttempts"

	buckets := make(map[filter.SignerSetFilter][]*PartialSigSet)
	var order []filter.SignerSetFilter
	for _, s := range sets {
		if _, ok := buckets[s.Filter]; !ok {
			order = append(order, s.Filter)
		}
		buckets[s.Filter] = append(buckets[s.Filter], s)
	}
	sortFilters(order)

	var errsOut []error
	for _, f := range order {
		bucket := buckets[f]
		if uint32(len(bucket)) < threshold {
			errsOut = append(errsOut, errs.Newf(errs.InsufficientSigners, op, "filter %x has only %d contributing signers", uint64(f), len(bucket)))
			continue
		}
		final := make(map[ProofKeyString]interface{}, len(proofs))
		bucketOK := true
		for _, p := range proofs {
			key := proofKeyString(p.ProofKey)
			var variants []PartialSigVariant
			for _, s := range bucket {
				variants = append(variants, s.Partials[key])
			}
			proof, err := p.Maker.Assemble(variants)
			if err != nil {
				errsOut = append(errsOut, errs.Newf(errs.ProofFailure, op, "filter %x proof %x: %v", uint64(f), p.ProofKey.Bytes(), err))
				bucketOK = false
				break
			}
			final[key] = proof
		}
		if !bucketOK {
			continue
		}
		log.Debug("assembled batch", zap.Uint64("filter", uint64(f)), zap.Int("num_proofs", len(final)))
		return &AssembledBatch{Filter: f, FinalProofs: final}, errsOut
	}
	return nil, errsOut
}

func sortFilters(fs []filter.SignerSetFilter) {
	for i := 1; i < len(fs); i++ {
		for j := i; j > 0 && fs[j-1] > fs[j]; j-- {
			fs[j-1], fs[j] = fs[j], fs[j-1]
		}
	}
}
