package filter

import (
	"math/big"
	"testing"
)

func TestValidateSingleAndAggregate(t *testing.T) {
	if !ValidateSingle(2, 4, 0b0011) {
		t.Fatalf("expected valid single filter")
	}
	if ValidateSingle(2, 4, 0b0111) {
		t.Fatalf("3 bits set should fail threshold-exact validation")
	}
	if !ValidateAggregate(2, 4, 0b0111) {
		t.Fatalf("3 bits set should pass aggregate (>= threshold) validation")
	}
	if ValidateSingle(2, 4, 0b10000) {
		t.Fatalf("bit outside numSigners range must fail")
	}
}

func binomial(n, k uint32) int64 {
	return new(big.Int).Binomial(int64(n), int64(k)).Int64()
}

func TestEnumeratePermutationsCountAndOrder(t *testing.T) {
	aggregate := SignerSetFilter(0b10111) // 4 bits set, positions 0,1,2,4
	threshold := uint32(2)
	perms := EnumeratePermutations(threshold, aggregate)

	want := binomial(4, 2)
	if int64(len(perms)) != want {
		t.Fatalf("expected %d permutations, got %d", want, len(perms))
	}
	for i, p := range perms {
		if NumFlagsSet(p) != threshold {
			t.Fatalf("permutation %v has wrong popcount", p)
		}
		if p&^aggregate != 0 {
			t.Fatalf("permutation %v not a subset of aggregate %v", p, aggregate)
		}
		if i > 0 && perms[i-1] >= p {
			t.Fatalf("permutations not strictly ascending at index %d", i)
		}
	}
}

func TestSignersToFilterAndBack(t *testing.T) {
	var s0, s1, s2 SignerKey
	s0[0], s1[0], s2[0] = 1, 2, 3
	signerList := []SignerKey{s0, s1, s2}

	f, err := SignersToFilter([]SignerKey{s0, s2}, signerList)
	if err != nil {
		t.Fatal(err)
	}
	if f != 0b101 {
		t.Fatalf("expected filter 0b101, got %b", f)
	}

	got := FilteredSigners(f, 2, signerList)
	if len(got) != 2 || got[0] != s0 || got[1] != s2 {
		t.Fatalf("unexpected filtered signers: %v", got)
	}

	if !SignerIsInFilter(s0, signerList, f) || SignerIsInFilter(s1, signerList, f) {
		t.Fatalf("SignerIsInFilter mismatch")
	}
}

func TestSignersToFilterUnknownSigner(t *testing.T) {
	var s0, unknown SignerKey
	s0[0] = 1
	unknown[0] = 99
	_, err := SignersToFilter([]SignerKey{unknown}, []SignerKey{s0})
	if err == nil {
		t.Fatalf("expected UnknownSigner error")
	}
}
