package ceremony

import (
	"go.uber.org/zap"

	"github.com/readytrader-crypto/mpc-multisig/api/filter"
	"github.com/readytrader-crypto/mpc-multisig/api/noncecache"
	"github.com/readytrader-crypto/mpc-multisig/internal/errs"
)

// InitSet is one signer's per-proof contribution to Phase 1 (spec section
// 3's "Proof Init Set"): for each canonically-ordered size-threshold
// permutation of aggregateFilter that includes this signer, one row of
// per-base public nonces.
type InitSet struct {
	AggregateFilter filter.SignerSetFilter
	SignerIdx       int
	Message         []byte
	ProofKey        ProofKeyString

	// Nonces[outer][base] -- outer indexes permutationsContaining(threshold,
	// aggregateFilter, signerIdx) in order; base indexes the proof scheme's
	// base-point list (len per Maker.BaseCount: 2 for CLSAG, 3 for composition).
	Nonces [][]noncecache.PubNonces
}

// Collection is the full set of InitSets one signer produced for a batch,
// ready to broadcast to every other participant ahead of Phase 2.
type Collection struct {
	SignerIdx       int
	AggregateFilter filter.SignerSetFilter
	Sets            map[ProofKeyString]*InitSet
}

// GenerateInitSets is Phase 1: for every proof in the batch, enumerate the
// size-threshold filter permutations of aggregateFilter that include
// signerIdx, mint a fresh nonce record in cache for each, and project it
// onto every base point the scheme requires.
func GenerateInitSets(log *zap.Logger, cache *noncecache.Cache, signerIdx int, threshold uint32,
	aggregateFilter filter.SignerSetFilter, proofs []ProofSpec) (*Collection, error) {
	const op = "ceremony.GenerateInitSets"
	log = defaultLogger(log)

	perms := permutationsContaining(threshold, aggregateFilter, signerIdx)
	sets := make(map[ProofKeyString]*InitSet, len(proofs))

	for _, p := range proofs {
		if err := validateProofSpec(p); err != nil {
			return nil, err
		}
		key := proofKeyString(p.ProofKey)
		rows := make([][]noncecache.PubNonces, len(perms))
		for i, f := range perms {
			if ok, err := cache.TryAdd(p.Message, p.ProofKey, f); err != nil {
				return nil, errs.New(errs.NonceUnavailable, op, err)
			} else if !ok {
				return nil, errs.Newf(errs.NonceUnavailable, op, "nonce record already exists for proof %x filter %x", p.ProofKey.Bytes(), uint64(f))
			}
			row := make([]noncecache.PubNonces, len(p.Bases))
			for b, base := range p.Bases {
				pub, ok := cache.TryGetPubkeysForBase(p.Message, p.ProofKey.Bytes(), f, base)
				if !ok {
					return nil, errs.New(errs.NonceUnavailable, op, nil)
				}
				row[b] = pub
			}
			rows[i] = row
		}
		sets[key] = &InitSet{
			AggregateFilter: aggregateFilter, SignerIdx: signerIdx,
			Message: p.Message, ProofKey: key, Nonces: rows,
		}
	}

	log.Debug("init sets generated", zap.Int("signer", signerIdx), zap.Int("num_proofs", len(proofs)), zap.Int("num_perms", len(perms)))
	return &Collection{SignerIdx: signerIdx, AggregateFilter: aggregateFilter, Sets: sets}, nil
}

// validateCollection checks a received Collection's self-consistency
// against the ceremony's expected parameters (spec section 4.7 Phase 2
// step 1): aggregate filter must match, every proof key in the batch must
// be present with matching signer/message, and each InitSet's outer/inner
// dimensions must be exactly what that signer's own permutation enumeration
// would produce.
func validateCollection(c *Collection, expectedAggregate filter.SignerSetFilter, threshold uint32, proofs []ProofSpec) error {
	const op = "ceremony.validateCollection"
	if c.AggregateFilter != expectedAggregate {
		return errs.New(errs.SemanticsException, op, nil)
	}
	expectedPerms := permutationsContaining(threshold, expectedAggregate, c.SignerIdx)
	for _, p := range proofs {
		key := proofKeyString(p.ProofKey)
		set, ok := c.Sets[key]
		if !ok {
			return errs.Newf(errs.SemanticsException, op, "signer %d missing init set for proof %x", c.SignerIdx, p.ProofKey.Bytes())
		}
		if set.SignerIdx != c.SignerIdx || set.ProofKey != key {
			return errs.New(errs.SemanticsException, op, nil)
		}
		if len(set.Nonces) != len(expectedPerms) {
			return errs.Newf(errs.SemanticsException, op, "signer %d init set for proof %x has %d rows, expected %d",
				c.SignerIdx, p.ProofKey.Bytes(), len(set.Nonces), len(expectedPerms))
		}
		for _, row := range set.Nonces {
			if len(row) != len(p.Bases) {
				return errs.New(errs.SemanticsException, op, nil)
			}
		}
	}
	return nil
}
