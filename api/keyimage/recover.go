package keyimage

import (
	"go.uber.org/zap"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
	"github.com/readytrader-crypto/mpc-multisig/api/filter"
)

// RecoveredCore is the result of successfully recovering one one-time
// address's key-image core: the summed partial key images from a single
// honest, size-M signer subgroup.
type RecoveredCore struct {
	OnetimeAddress *curve.Point
	Core           *curve.Point
	Filter         filter.SignerSetFilter
}

// Outcome reports, for one one-time address, either a recovered core or
// the reason recovery failed.
type Outcome struct {
	OnetimeAddress *curve.Point
	Core           *curve.Point
	Filter         filter.SignerSetFilter
	Recovered      bool
	// BlamedSigners accumulates every signer index implicated by at least
	// one subgroup whose keyshare sum failed to reconstruct the group
	// spend pubkey. Blame is additive only -- once a signer index is
	// recorded here it is never removed, even if that same signer also
	// belongs to a later subgroup that succeeds (spec section 8: "blame
	// accumulates; it is never retracted by a subsequent successful
	// subgroup, since a single malicious signer can otherwise launder
	// their way back to a trusted status by briefly cooperating").
	BlamedSigners map[int]bool
	Insufficient  bool
}

// RecoverKeyImageCore implements multisig_recover_cn_keyimage_cores: given
// every partial-KI message received for one target one-time address (one
// message per known signer, already individually verified), attempt to
// reconstruct the key-image core from the first size-threshold signer
// subgroup whose reported keyshares sum to the group's base spend pubkey
// groupSpendPubkey.
//
// Messages from signers not present in signerIndex are ignored outright
// (spec section 4.8: "unknown signers contribute nothing and are not
// blamed -- blame requires having been identifiable in the first place").
func RecoverKeyImageCore(log *zap.Logger, threshold uint32, signerIndex map[string]int, groupSpendPubkey *curve.Point,
	ko *curve.Point, msgs []*PartialKIMessage) *Outcome {
	if log == nil {
		log = zap.NewNop()
	}
	out := &Outcome{OnetimeAddress: ko, BlamedSigners: make(map[int]bool)}

	byIdx := make(map[int]*PartialKIMessage)
	for _, m := range msgs {
		if !m.OnetimeAddress.Equal(ko) {
			continue
		}
		idx, known := signerIndex[string(m.SigningPubkey.Bytes())]
		if !known {
			continue
		}
		if !VerifyPartialKIMessage(m) {
			continue
		}
		byIdx[idx] = m
	}

	var available filter.SignerSetFilter
	for idx := range byIdx {
		available |= filter.SignerSetFilter(1) << uint(idx)
	}
	if filter.NumFlagsSet(available) < threshold {
		out.Insufficient = true
		log.Debug("key image recovery: insufficient known-and-verified signers",
			zap.Int("have", int(filter.NumFlagsSet(available))), zap.Int("need", int(threshold)))
		return out
	}

	for _, f := range filter.EnumeratePermutations(threshold, available) {
		members := filteredMembers(f)
		keyshareSum := curve.Identity()
		coreSum := curve.Identity()
		seenKeyshares := make(map[string]bool)
		matchedAny := false

		for _, idx := range members {
			m := byIdx[idx]
			for i, ks := range m.Keyshares {
				key := string(ks.Bytes())
				if seenKeyshares[key] {
					continue
				}
				seenKeyshares[key] = true
				keyshareSum = keyshareSum.Add(ks)
				coreSum = coreSum.Add(m.PartialKIs[i])
				matchedAny = true
			}
		}

		if !matchedAny || !keyshareSum.Equal(groupSpendPubkey) {
			for _, idx := range members {
				out.BlamedSigners[idx] = true
			}
			log.Debug("key image recovery: subgroup keyshare sum mismatch", zap.Uint64("filter", uint64(f)))
			continue
		}

		out.Recovered = true
		out.Core = coreSum
		out.Filter = f
		log.Debug("key image recovery: core recovered", zap.Uint64("filter", uint64(f)))
		return out
	}

	return out
}

func filteredMembers(f filter.SignerSetFilter) []int {
	var members []int
	for i := 0; i < 64; i++ {
		if f&(filter.SignerSetFilter(1)<<uint(i)) != 0 {
			members = append(members, i)
		}
	}
	return members
}
