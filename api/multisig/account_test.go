package multisig

import (
	"testing"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
	"github.com/readytrader-crypto/mpc-multisig/api/filter"
	"github.com/readytrader-crypto/mpc-multisig/api/kex"
	"github.com/readytrader-crypto/mpc-multisig/config"
)

type testSigner struct {
	priv *curve.Scalar
	pub  *curve.Point
}

func makeSigners(t *testing.T, n int) []testSigner {
	t.Helper()
	out := make([]testSigner, n)
	for i := range out {
		priv, err := curve.NewRandomScalar()
		if err != nil {
			t.Fatal(err)
		}
		out[i] = testSigner{priv: priv, pub: curve.ScalarMulBase(priv)}
	}
	return out
}

// runDKG drives every account through InitializeKex, every intermediate
// KexUpdate round, FinalizeWindowPubkeys and CompletePostKexVerification,
// returning the completed accounts. Works for any valid (n, m).
func runDKG(t *testing.T, n, m int) []*Account {
	t.Helper()
	signers := makeSigners(t, n)
	pubs := make([]*curve.Point, n)
	for i, s := range signers {
		pubs[i] = s.pub
	}

	accounts := make([]*Account, n)
	for i, s := range signers {
		a, err := New(nil, config.EraCryptonote, m, pubs, s.priv, s.pub)
		if err != nil {
			t.Fatalf("New signer %d: %v", i, err)
		}
		accounts[i] = a
	}

	ancillaries := make([]*curve.Scalar, n)
	for i := range ancillaries {
		s, err := curve.NewRandomScalar()
		if err != nil {
			t.Fatal(err)
		}
		ancillaries[i] = s
	}
	round1 := make([]*kex.Message, n)
	for i, a := range accounts {
		m1, err := a.GenerateRound1Message(ancillaries[i])
		if err != nil {
			t.Fatalf("signer %d round1: %v", i, err)
		}
		round1[i] = m1
	}

	current := make([]*kex.Message, n)
	for i, a := range accounts {
		out, err := a.InitializeKex(round1)
		if err != nil {
			t.Fatalf("signer %d InitializeKex: %v", i, err)
		}
		current[i] = out
	}

	h := windowSize(n, m)
	for round := 2; round <= h; round++ {
		next := make([]*kex.Message, n)
		for i, a := range accounts {
			out, err := a.KexUpdate(current)
			if err != nil {
				t.Fatalf("signer %d KexUpdate round %d: %v", i, round, err)
			}
			next[i] = out
		}
		current = next
	}

	for i, a := range accounts {
		if err := a.FinalizeWindowPubkeys(current); err != nil {
			t.Fatalf("signer %d FinalizeWindowPubkeys: %v", i, err)
		}
	}

	groupPub := accounts[0].GroupPubkey()
	for i, a := range accounts {
		if !a.GroupPubkey().Equal(groupPub) {
			t.Fatalf("signer %d computed a different group pubkey", i)
		}
	}
	for i, a := range accounts {
		var others []*curve.Point
		for j, b := range accounts {
			if j != i {
				others = append(others, b.GroupPubkey())
			}
		}
		if err := a.CompletePostKexVerification(others); err != nil {
			t.Fatalf("signer %d CompletePostKexVerification: %v", i, err)
		}
	}
	for i, a := range accounts {
		if !a.MultisigIsReady() {
			t.Fatalf("signer %d: expected ready after post-kex verification", i)
		}
	}
	return accounts
}

func fullFilter(n int) filter.SignerSetFilter {
	var f filter.SignerSetFilter
	for i := 0; i < n; i++ {
		f |= filter.SignerSetFilter(1) << uint(i)
	}
	return f
}

func TestDKGTwoOfTwo(t *testing.T) {
	accounts := runDKG(t, 2, 2)
	f := fullFilter(2)
	sum := curve.ScalarZero()
	for _, a := range accounts {
		share, err := a.TryGetAggregateSigningKey(f)
		if err != nil {
			t.Fatalf("TryGetAggregateSigningKey: %v", err)
		}
		sum = sum.Add(share)
	}
	if !curve.ScalarMulBase(sum).Equal(accounts[0].GroupPubkey()) {
		t.Fatal("sum of per-signer shares does not reconstruct the group pubkey")
	}
}

// TestDKGTwoOfThree exercises the general H>1 windowed case: InitializeKex
// plus one intermediate KexUpdate round, FinalizeWindowPubkeys and
// CompletePostKexVerification. It checks agreement on the group pubkey and
// full readiness, then asserts that every 2-of-3 filter (not just the full
// N-of-N one) actually reconstructs the group signing key, including
// filters that exclude a window's relay finalizer.
func TestDKGTwoOfThree(t *testing.T) {
	const n, m = 3, 2
	accounts := runDKG(t, n, m)

	common := accounts[0].AggregateCommonPrivkey()
	for i, a := range accounts {
		if !a.AggregateCommonPrivkey().Equal(common) {
			t.Fatalf("signer %d disagrees on the aggregate common privkey", i)
		}
	}

	groupPub := accounts[0].GroupPubkey()
	for _, f := range everyFilterOfSize(n, m) {
		sum := curve.ScalarZero()
		contributors := 0
		for i, a := range accounts {
			if f&(filter.SignerSetFilter(1)<<uint(i)) == 0 {
				continue
			}
			share, err := a.TryGetAggregateSigningKey(f)
			if err != nil {
				t.Fatalf("filter %03b: signer %d TryGetAggregateSigningKey: %v", uint64(f), i, err)
			}
			sum = sum.Add(share)
			contributors++
		}
		if contributors != m {
			t.Fatalf("filter %03b: expected %d contributors, got %d", uint64(f), m, contributors)
		}
		if !curve.ScalarMulBase(sum).Equal(groupPub) {
			t.Fatalf("filter %03b: sum of per-signer shares does not reconstruct the group pubkey", uint64(f))
		}
	}
}

// everyFilterOfSize enumerates every SignerSetFilter over n signers with
// exactly size bits set.
func everyFilterOfSize(n, size int) []filter.SignerSetFilter {
	var out []filter.SignerSetFilter
	total := 1 << uint(n)
	for v := 0; v < total; v++ {
		if popcount(v) == size {
			out = append(out, filter.SignerSetFilter(v))
		}
	}
	return out
}

func popcount(v int) int {
	c := 0
	for v != 0 {
		c += v & 1
		v >>= 1
	}
	return c
}

// TestDKGThreeOfFive drives a wider M<N group (H=3) and confirms every
// 3-of-5 filter, including ones that exclude a window's relay finalizer,
// still reconstructs the group signing key. This exercises the windowed
// relay's cross-holder share distribution, not just the selection rule on
// top of it.
func TestDKGThreeOfFive(t *testing.T) {
	const n, m = 5, 3
	accounts := runDKG(t, n, m)
	groupPub := accounts[0].GroupPubkey()

	for _, f := range everyFilterOfSize(n, m) {
		sum := curve.ScalarZero()
		for i, a := range accounts {
			if f&(filter.SignerSetFilter(1)<<uint(i)) == 0 {
				continue
			}
			share, err := a.TryGetAggregateSigningKey(f)
			if err != nil {
				t.Fatalf("filter %05b: signer %d TryGetAggregateSigningKey: %v", uint64(f), i, err)
			}
			sum = sum.Add(share)
		}
		if !curve.ScalarMulBase(sum).Equal(groupPub) {
			t.Fatalf("filter %05b: sum of per-signer shares does not reconstruct the group pubkey", uint64(f))
		}
	}
}

func TestForceKexUpdateSkipsMissingWindows(t *testing.T) {
	const n, m = 4, 2
	signers := makeSigners(t, n)
	pubs := make([]*curve.Point, n)
	for i, s := range signers {
		pubs[i] = s.pub
	}
	accounts := make([]*Account, n)
	for i, s := range signers {
		a, err := New(nil, config.EraCryptonote, m, pubs, s.priv, s.pub)
		if err != nil {
			t.Fatal(err)
		}
		accounts[i] = a
	}
	ancillaries := make([]*curve.Scalar, n)
	for i := range ancillaries {
		s, err := curve.NewRandomScalar()
		if err != nil {
			t.Fatal(err)
		}
		ancillaries[i] = s
	}
	round1 := make([]*kex.Message, n)
	for i, a := range accounts {
		m1, err := a.GenerateRound1Message(ancillaries[i])
		if err != nil {
			t.Fatal(err)
		}
		round1[i] = m1
	}
	current := make([]*kex.Message, n)
	for i, a := range accounts {
		out, err := a.InitializeKex(round1)
		if err != nil {
			t.Fatal(err)
		}
		current[i] = out
	}

	// Drop one signer's round-2 message; ForceKexUpdate must still proceed
	// for everyone else, with whatever windows that drop affects simply
	// failing to advance.
	degraded := current[:n-1]
	for i, a := range accounts[:n-1] {
		if _, err := a.ForceKexUpdate(degraded); err != nil {
			t.Fatalf("signer %d ForceKexUpdate: %v", i, err)
		}
	}
}

func TestKexBoosterDoesNotMutateAccount(t *testing.T) {
	const n, m = 3, 2
	signers := makeSigners(t, n)
	pubs := make([]*curve.Point, n)
	for i, s := range signers {
		pubs[i] = s.pub
	}
	accounts := make([]*Account, n)
	for i, s := range signers {
		a, err := New(nil, config.EraCryptonote, m, pubs, s.priv, s.pub)
		if err != nil {
			t.Fatal(err)
		}
		accounts[i] = a
	}
	ancillaries := make([]*curve.Scalar, n)
	for i := range ancillaries {
		s, err := curve.NewRandomScalar()
		if err != nil {
			t.Fatal(err)
		}
		ancillaries[i] = s
	}
	round1 := make([]*kex.Message, n)
	for i, a := range accounts {
		m1, err := a.GenerateRound1Message(ancillaries[i])
		if err != nil {
			t.Fatal(err)
		}
		round1[i] = m1
	}
	roundBefore := accounts[0].Round()
	current := make([]*kex.Message, n)
	for i, a := range accounts {
		out, err := a.InitializeKex(round1)
		if err != nil {
			t.Fatal(err)
		}
		current[i] = out
	}
	if accounts[0].Round() == roundBefore {
		t.Fatal("expected InitializeKex to advance the round")
	}

	roundAfterInit := accounts[0].Round()
	preview, err := accounts[0].KexBooster(current)
	if err != nil {
		t.Fatalf("KexBooster: %v", err)
	}
	if preview == nil || int(preview.Round) != roundAfterInit+2 {
		t.Fatalf("expected a preview message for round %d, got %+v", roundAfterInit+2, preview)
	}
	if accounts[0].Round() != roundAfterInit {
		t.Fatal("KexBooster advanced the account's round")
	}
	if len(accounts[0].LocalKeyshareScalars()) != 0 {
		t.Fatal("KexBooster finalized a keyshare on the account itself")
	}
}
