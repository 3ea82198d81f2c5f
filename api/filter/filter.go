// Package filter implements bit-encoded multisig signer subsets and
// permutation enumeration, grounded on
// original_source/src/multisig/multisig_signer_set_filter.h.
package filter

import (
	"math/bits"
	"sort"

	"github.com/readytrader-crypto/mpc-multisig/config"
	"github.com/readytrader-crypto/mpc-multisig/internal/errs"
)

// SignerSetFilter is a set of multisig signers represented as bit flags
// that correspond 1:1 with an ordered, sorted signer list. Bit i set means
// signer i from that list participates.
type SignerSetFilter uint64

// NumFlagsSet counts how many signer bits are set.
func NumFlagsSet(f SignerSetFilter) uint32 {
	return uint32(bits.OnesCount64(uint64(f)))
}

func withinSignerRange(f SignerSetFilter, numSigners uint32) bool {
	if numSigners > config.MaxSigners {
		return false
	}
	if numSigners == 64 {
		return true
	}
	mask := SignerSetFilter((uint64(1) << numSigners) - 1)
	return f&^mask == 0
}

// ValidateSingle checks that exactly threshold bits are set, all within
// [0, numSigners).
func ValidateSingle(threshold, numSigners uint32, f SignerSetFilter) bool {
	return withinSignerRange(f, numSigners) && NumFlagsSet(f) == threshold
}

// ValidateAggregate checks that at least threshold bits are set, all within
// [0, numSigners).
func ValidateAggregate(threshold, numSigners uint32, f SignerSetFilter) bool {
	return withinSignerRange(f, numSigners) && NumFlagsSet(f) >= threshold
}

// EnumeratePermutations lists, in ascending numeric order, every
// size-threshold subset of the bits set in aggregate. Generated via an
// iterative Gosper-style combinatorial successor over the aggregate's set
// bit positions, so ordering is deterministic across implementations.
func EnumeratePermutations(threshold uint32, aggregate SignerSetFilter) []SignerSetFilter {
	positions := bitPositions(aggregate)
	n := uint32(len(positions))
	if threshold == 0 || threshold > n {
		return nil
	}

	// indices[i] selects positions[indices[i]] as the i-th bit in this subset.
	indices := make([]int, threshold)
	for i := range indices {
		indices[i] = i
	}

	var out []SignerSetFilter
	for {
		var f SignerSetFilter
		for _, idx := range indices {
			f |= SignerSetFilter(1) << positions[idx]
		}
		out = append(out, f)

		// advance to next combination (lexicographic successor)
		i := int(threshold) - 1
		for i >= 0 && indices[i] == int(n)-int(threshold)+i {
			i--
		}
		if i < 0 {
			break
		}
		indices[i]++
		for j := i + 1; j < int(threshold); j++ {
			indices[j] = indices[j-1] + 1
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func bitPositions(f SignerSetFilter) []uint32 {
	var pos []uint32
	for i := uint32(0); i < 64; i++ {
		if f&(SignerSetFilter(1)<<i) != 0 {
			pos = append(pos, i)
		}
	}
	return pos
}

// SignerKey is anything usable as an opaque, comparable signer identity
// (e.g. a fixed-size base pubkey byte array).
type SignerKey = [32]byte

// SignersToFilter maps the allowed subset of signerList to an aggregate
// filter. signerList must be sorted and distinct; unknown signers in
// allowed cause errs.UnknownSigner.
func SignersToFilter(allowed []SignerKey, signerList []SignerKey) (SignerSetFilter, error) {
	idx := indexOf(signerList)
	var out SignerSetFilter
	for _, a := range allowed {
		pos, ok := idx[a]
		if !ok {
			return 0, errs.Newf(errs.UnknownSigner, "filter.SignersToFilter", "signer %x not in signer list", a)
		}
		out |= SignerSetFilter(1) << pos
	}
	return out, nil
}

// SignerToFilter is SignersToFilter for a single signer.
func SignerToFilter(signer SignerKey, signerList []SignerKey) (SignerSetFilter, error) {
	return SignersToFilter([]SignerKey{signer}, signerList)
}

func indexOf(signerList []SignerKey) map[SignerKey]uint32 {
	m := make(map[SignerKey]uint32, len(signerList))
	for i, s := range signerList {
		m[s] = uint32(i)
	}
	return m
}

// FilteredSigners extracts the signers selected by f, scanning bits
// low-to-high against signerList.
func FilteredSigners(f SignerSetFilter, threshold uint32, signerList []SignerKey) []SignerKey {
	var out []SignerKey
	for i := 0; i < len(signerList) && i < 64; i++ {
		if f&(SignerSetFilter(1)<<uint(i)) != 0 {
			out = append(out, signerList[i])
		}
	}
	return out
}

// SignerIsInFilter reports whether signer is selected by testFilter.
func SignerIsInFilter(signer SignerKey, signerList []SignerKey, testFilter SignerSetFilter) bool {
	for i, s := range signerList {
		if s == signer {
			return testFilter&(SignerSetFilter(1)<<uint(i)) != 0
		}
	}
	return false
}
