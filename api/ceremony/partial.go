package ceremony

import (
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/readytrader-crypto/mpc-multisig/api/filter"
	"github.com/readytrader-crypto/mpc-multisig/api/noncecache"
	"github.com/readytrader-crypto/mpc-multisig/internal/errs"
)

// PartialSigSet is everything this local signer produced for one signer
// subgroup F: one partial signature per proof-key in the batch. A set is
// all-or-nothing: if any single proof within it fails, the whole set is
// dropped (spec section 4.7 Phase 2 step 5).
type PartialSigSet struct {
	SignerIdx int
	Filter    filter.SignerSetFilter
	Partials  map[ProofKeyString]PartialSigVariant
}

// MakePartialSigSets is Phase 2: given this signer's own local index, the
// ceremony's aggregate filter and threshold, every participant's received
// Collection (this signer's own collection must be included and valid, or
// the call fails outright), and the batch of proof specs, attempt a
// partial-sig set for every permutation that (a) includes the local signer
// and (b) lies entirely within the set of signers who actually supplied a
// valid collection. Returns the successful sets plus a list of
// per-permutation errors for sets that failed.
func MakePartialSigSets(log *zap.Logger, localSignerIdx int, threshold uint32, aggregateFilter filter.SignerSetFilter,
	cache *noncecache.Cache, collections map[int]*Collection, proofs []ProofSpec) ([]*PartialSigSet, []error) {
	log = defaultLogger(log)
	const op = "ceremony.MakePartialSigSets"

	own, ok := collections[localSignerIdx]
	if !ok {
		return nil, []error{errs.New(errs.SemanticsException, op, nil)}
	}
	if err := validateCollection(own, aggregateFilter, threshold, proofs); err != nil {
		// An invalid collection from the LOCAL signer is a programmer error:
		// throw (in Go terms, surface as the sole terminal error) rather than
		// silently dropping our own contribution.
		return nil, []error{err}
	}

	available := filter.SignerSetFilter(1) << uint(localSignerIdx)
	validCollections := map[int]*Collection{localSignerIdx: own}
	var dropErrors []error
	for idx, c := range collections {
		if idx == localSignerIdx {
			continue
		}
		if err := validateCollection(c, aggregateFilter, threshold, proofs); err != nil {
			dropErrors = append(dropErrors, errs.Newf(errs.SemanticsException, op, "dropping signer %d's collection: %v", idx, err))
			continue
		}
		validCollections[idx] = c
		available |= filter.SignerSetFilter(1) << uint(idx)
	}

	perms := permutationsContaining(threshold, available, localSignerIdx)
	var candidates []filter.SignerSetFilter
	for _, f := range perms {
		if f&^available == 0 {
			candidates = append(candidates, f)
		}
	}

	var sets []*PartialSigSet
	var errsOut []error
	errsOut = append(errsOut, dropErrors...)

	for _, f := range candidates {
		set, err := attemptSet(log, f, threshold, aggregateFilter, cache, validCollections, proofs)
		if err != nil {
			errsOut = append(errsOut, err)
			continue
		}
		set.SignerIdx = localSignerIdx
		sets = append(sets, set)
	}
	return sets, errsOut
}

func attemptSet(log *zap.Logger, f filter.SignerSetFilter, threshold uint32, aggregateFilter filter.SignerSetFilter,
	cache *noncecache.Cache, collections map[int]*Collection, proofs []ProofSpec) (*PartialSigSet, error) {
	const op = "ceremony.attemptSet"

	members := filteredMembers(f)
	if uint32(len(members)) != threshold {
		return nil, errs.New(errs.SemanticsException, op, nil)
	}

	out := &PartialSigSet{Filter: f, Partials: make(map[ProofKeyString]PartialSigVariant, len(proofs))}

	var g errgroup.Group
	results := make([]PartialSigVariant, len(proofs))
	errOnce := make([]error, len(proofs))
	for i, p := range proofs {
		i, p := i, p
		g.Go(func() error {
			perBase, err := gatherNonces(members, threshold, aggregateFilter, collections, p)
			if err != nil {
				errOnce[i] = err
				return err
			}
			variant, err := p.Maker.AttemptMakePartialSig(p.Message, p.ProofKey, f, perBase, cache)
			if err != nil {
				errOnce[i] = err
				return err
			}
			results[i] = variant
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, e := range errOnce {
			if e != nil {
				log.Debug("partial sig set attempt aborted", zap.Uint64("filter", uint64(f)), zap.Error(e))
				return nil, e
			}
		}
		return nil, err
	}

	for i, p := range proofs {
		out.Partials[proofKeyString(p.ProofKey)] = results[i]
	}
	return out, nil
}

// gatherNonces collects, for proof p and signer subgroup f, each
// participating signer's per-base public nonce row at the outer index
// that same signer's own canonical permutation enumeration assigns to f,
// then transposes into perBase[base] = one entry per member.
func gatherNonces(members []int, threshold uint32, aggregateFilter filter.SignerSetFilter,
	collections map[int]*Collection, p ProofSpec) ([][]noncecache.PubNonces, error) {
	const op = "ceremony.gatherNonces"
	key := proofKeyString(p.ProofKey)

	perBase := make([][]noncecache.PubNonces, len(p.Bases))
	for b := range perBase {
		perBase[b] = make([]noncecache.PubNonces, 0, len(members))
	}

	targetFilter := filter.SignerSetFilter(0)
	for _, m := range members {
		targetFilter |= filter.SignerSetFilter(1) << uint(m)
	}

	for _, m := range members {
		c, ok := collections[m]
		if !ok {
			return nil, errs.Newf(errs.SemanticsException, op, "no collection for member %d", m)
		}
		set, ok := c.Sets[key]
		if !ok {
			return nil, errs.New(errs.SemanticsException, op, nil)
		}
		perms := permutationsContaining(threshold, aggregateFilter, m)
		idx := indexOfFilter(perms, targetFilter)
		if idx < 0 || idx >= len(set.Nonces) {
			return nil, errs.New(errs.SemanticsException, op, nil)
		}
		row := set.Nonces[idx]
		if len(row) != len(p.Bases) {
			return nil, errs.New(errs.SemanticsException, op, nil)
		}
		for b := range perBase {
			perBase[b] = append(perBase[b], row[b])
		}
	}
	return perBase, nil
}

func filteredMembers(f filter.SignerSetFilter) []int {
	var out []int
	for i := 0; i < 64; i++ {
		if f&(filter.SignerSetFilter(1)<<uint(i)) != 0 {
			out = append(out, i)
		}
	}
	return out
}
