package composition

import (
	"testing"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
	"github.com/readytrader-crypto/mpc-multisig/api/filter"
	"github.com/readytrader-crypto/mpc-multisig/api/noncecache"
)

func randScalar(t *testing.T) *curve.Scalar {
	t.Helper()
	s, err := curve.NewRandomScalar()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// buildProposal drives two signers' nonce caches through Propose, returning
// everything a caller needs to then build and finalize partial signatures.
func buildProposal(t *testing.T, K, keyImage *curve.Point, y *curve.Scalar, message []byte, f filter.SignerSetFilter) (
	proposal *Proposal, cacheA, cacheB *noncecache.Cache, mergeT1, mergeT2, mergeKI *curve.Scalar) {
	t.Helper()

	cacheA = noncecache.New(nil)
	cacheB = noncecache.New(nil)
	if ok, err := cacheA.TryAdd(message, K, f); err != nil || !ok {
		t.Fatalf("signer A TryAdd: %v %v", ok, err)
	}
	if ok, err := cacheB.TryAdd(message, K, f); err != nil || !ok {
		t.Fatalf("signer B TryAdd: %v %v", ok, err)
	}

	pubAT1, _ := cacheA.TryGetPubkeysForBase(message, K.Bytes(), f, K)
	pubBT1, _ := cacheB.TryGetPubkeysForBase(message, K.Bytes(), f, K)
	pubAT2, _ := cacheA.TryGetPubkeysForBase(message, K.Bytes(), f, curve.Generator())
	pubBT2, _ := cacheB.TryGetPubkeysForBase(message, K.Bytes(), f, curve.Generator())
	pubAKI, _ := cacheA.TryGetPubkeysForBase(message, K.Bytes(), f, curve.GenU())
	pubBKI, _ := cacheB.TryGetPubkeysForBase(message, K.Bytes(), f, curve.GenU())

	agg1T1, agg2T1 := AggregatePubNonces([]noncecache.PubNonces{pubAT1, pubBT1})
	agg1T2, agg2T2 := AggregatePubNonces([]noncecache.PubNonces{pubAT2, pubBT2})
	agg1KI, agg2KI := AggregatePubNonces([]noncecache.PubNonces{pubAKI, pubBKI})

	var err error
	mergeT1, err = BinonceMergeFactor(agg1T1, agg2T1)
	if err != nil {
		t.Fatal(err)
	}
	mergeT2, err = BinonceMergeFactor(agg1T2, agg2T2)
	if err != nil {
		t.Fatal(err)
	}
	mergeKI, err = BinonceMergeFactor(agg1KI, agg2KI)
	if err != nil {
		t.Fatal(err)
	}

	proposal, err = Propose(K, keyImage, y, message, agg1T1, agg2T1, agg1T2, agg2T2, agg1KI, agg2KI, mergeT1, mergeT2, mergeKI)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	return proposal, cacheA, cacheB, mergeT1, mergeT2, mergeKI
}

func TestProposeSignFinalizeVerify_TwoSigners(t *testing.T) {
	x1, x2 := randScalar(t), randScalar(t)
	z1, z2 := randScalar(t), randScalar(t)
	y := randScalar(t)

	x := x1.Add(x2)
	z := z1.Add(z2)
	K := curve.ScalarMulBase(x).Add(curve.GenX().ScalarMul(y)).Add(curve.GenU().ScalarMul(z))

	yInv, err := y.Invert()
	if err != nil {
		t.Fatal(err)
	}
	keyImage := curve.GenU().ScalarMul(z.Mul(yInv))

	message := []byte("composition proof message")
	f := filter.SignerSetFilter(0b11)

	proposal, cacheA, cacheB, mergeT1, mergeT2, mergeKI := buildProposal(t, K, keyImage, y, message, f)

	n1A, n2A, _ := cacheA.TryGetRecordedPrivkeys(message, K.Bytes(), f)
	n1B, n2B, _ := cacheB.TryGetRecordedPrivkeys(message, K.Bytes(), f)

	partialA, err := MakePartialSig(proposal, x1, z1, y, 2, n1A, n2A, mergeT1, mergeT2, mergeKI)
	if err != nil {
		t.Fatalf("MakePartialSig A: %v", err)
	}
	partialB, err := MakePartialSig(proposal, x2, z2, y, 2, n1B, n2B, mergeT1, mergeT2, mergeKI)
	if err != nil {
		t.Fatalf("MakePartialSig B: %v", err)
	}

	sig, err := Finalize([]PartialSig{*partialA, *partialB})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	ok, err := Verify(sig, message)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("composition proof failed to verify")
	}
}

// TestVerify_RejectsBogusKeyImage builds a fully valid (x, y, z) proof and
// then swaps in an unrelated KeyImage before calling Verify. Verify
// recomputes both the challenge and K_t2 from the swapped KeyImage, so the
// proof must be rejected.
func TestVerify_RejectsBogusKeyImage(t *testing.T) {
	x1, x2 := randScalar(t), randScalar(t)
	z1, z2 := randScalar(t), randScalar(t)
	y := randScalar(t)

	x := x1.Add(x2)
	z := z1.Add(z2)
	K := curve.ScalarMulBase(x).Add(curve.GenX().ScalarMul(y)).Add(curve.GenU().ScalarMul(z))

	yInv, err := y.Invert()
	if err != nil {
		t.Fatal(err)
	}
	keyImage := curve.GenU().ScalarMul(z.Mul(yInv))

	message := []byte("composition proof message")
	f := filter.SignerSetFilter(0b11)

	proposal, cacheA, cacheB, mergeT1, mergeT2, mergeKI := buildProposal(t, K, keyImage, y, message, f)

	n1A, n2A, _ := cacheA.TryGetRecordedPrivkeys(message, K.Bytes(), f)
	n1B, n2B, _ := cacheB.TryGetRecordedPrivkeys(message, K.Bytes(), f)

	partialA, err := MakePartialSig(proposal, x1, z1, y, 2, n1A, n2A, mergeT1, mergeT2, mergeKI)
	if err != nil {
		t.Fatalf("MakePartialSig A: %v", err)
	}
	partialB, err := MakePartialSig(proposal, x2, z2, y, 2, n1B, n2B, mergeT1, mergeT2, mergeKI)
	if err != nil {
		t.Fatalf("MakePartialSig B: %v", err)
	}

	sig, err := Finalize([]PartialSig{*partialA, *partialB})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	bogusKeyImage := curve.GenU().ScalarMul(randScalar(t))
	sig.KeyImage = bogusKeyImage

	ok, err := Verify(sig, message)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatalf("expected Verify to reject a bogus KeyImage, but it accepted the proof")
	}
}

// TestVerify_RejectsMismatchedY checks the complementary direction: a
// KeyImage correctly formed as (z/y)*U but with K_t1 published against a
// different y than the one used to derive K_t2's x/y term. Verify
// recomputes the challenge and K_t2 from the swapped K_t1, so the proof must
// be rejected.
func TestVerify_RejectsMismatchedY(t *testing.T) {
	x1, x2 := randScalar(t), randScalar(t)
	z1, z2 := randScalar(t), randScalar(t)
	y := randScalar(t)

	x := x1.Add(x2)
	z := z1.Add(z2)
	K := curve.ScalarMulBase(x).Add(curve.GenX().ScalarMul(y)).Add(curve.GenU().ScalarMul(z))

	yInv, err := y.Invert()
	if err != nil {
		t.Fatal(err)
	}
	keyImage := curve.GenU().ScalarMul(z.Mul(yInv))

	message := []byte("composition proof message")
	f := filter.SignerSetFilter(0b11)

	proposal, cacheA, cacheB, mergeT1, mergeT2, mergeKI := buildProposal(t, K, keyImage, y, message, f)

	n1A, n2A, _ := cacheA.TryGetRecordedPrivkeys(message, K.Bytes(), f)
	n1B, n2B, _ := cacheB.TryGetRecordedPrivkeys(message, K.Bytes(), f)

	partialA, err := MakePartialSig(proposal, x1, z1, y, 2, n1A, n2A, mergeT1, mergeT2, mergeKI)
	if err != nil {
		t.Fatalf("MakePartialSig A: %v", err)
	}
	partialB, err := MakePartialSig(proposal, x2, z2, y, 2, n1B, n2B, mergeT1, mergeT2, mergeKI)
	if err != nil {
		t.Fatalf("MakePartialSig B: %v", err)
	}

	sig, err := Finalize([]PartialSig{*partialA, *partialB})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	otherY := randScalar(t)
	sig.KT1 = K.ScalarMul(mustInvert(t, otherY))

	ok, err := Verify(sig, message)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatalf("expected Verify to reject a K_t1 published against the wrong y")
	}
}

func mustInvert(t *testing.T, s *curve.Scalar) *curve.Scalar {
	t.Helper()
	inv, err := s.Invert()
	if err != nil {
		t.Fatal(err)
	}
	return inv
}
