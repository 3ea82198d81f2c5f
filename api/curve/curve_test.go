package curve

import "testing"

func TestScalarRoundTrip(t *testing.T) {
	s, err := NewRandomScalar()
	if err != nil {
		t.Fatalf("NewRandomScalar: %v", err)
	}
	s2, err := ScalarFromCanonicalBytes(s.Bytes())
	if err != nil {
		t.Fatalf("ScalarFromCanonicalBytes: %v", err)
	}
	if !s.Equal(s2) {
		t.Fatalf("round trip mismatch")
	}
}

func TestGeneratorInPrimeSubgroup(t *testing.T) {
	if !Generator().InPrimeOrderSubgroup() {
		t.Fatalf("generator must be in the prime-order subgroup")
	}
	if !Identity().InPrimeOrderSubgroup() {
		t.Fatalf("identity is trivially in every subgroup")
	}
}

func TestScalarMulBaseMatchesScalarMul(t *testing.T) {
	s, err := NewRandomScalar()
	if err != nil {
		t.Fatal(err)
	}
	p1 := ScalarMulBase(s)
	p2 := Generator().ScalarMul(s)
	if !p1.Equal(p2) {
		t.Fatalf("ScalarMulBase(s) != Generator().ScalarMul(s)")
	}
}

func TestHashToPointInPrimeSubgroup(t *testing.T) {
	p, err := HashToPoint("test-domain", []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if p.IsIdentity() {
		t.Fatalf("hash to point landed on identity")
	}
	if !p.InPrimeOrderSubgroup() {
		t.Fatalf("hash to point result not in prime-order subgroup after cofactor clearing")
	}
}

func TestGenXGenUDistinctAndValid(t *testing.T) {
	x := GenX()
	u := GenU()
	if x.Equal(u) {
		t.Fatalf("GenX and GenU must be distinct")
	}
	if !x.InPrimeOrderSubgroup() || !u.InPrimeOrderSubgroup() {
		t.Fatalf("auxiliary generators must be in the prime-order subgroup")
	}
}

func TestInvEight(t *testing.T) {
	eight, err := ScalarFromCanonicalBytes(leBytes(8))
	if err != nil {
		t.Fatal(err)
	}
	inv := InvEight()
	prod := eight.Mul(inv)
	one, err := ScalarFromCanonicalBytes(leBytes(1))
	if err != nil {
		t.Fatal(err)
	}
	if !prod.Equal(one) {
		t.Fatalf("8 * (1/8) != 1")
	}
}

func leBytes(v uint64) []byte {
	var b [32]byte
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	return b[:]
}
