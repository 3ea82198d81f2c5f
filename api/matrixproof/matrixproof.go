// Package matrixproof implements the multi-generator DL-equivalence proof
// ("matrix proof" in the glossary) used by era-conversion messages and
// partial key-image messages: it attests that two vectors of points share
// the same scalar vector under two different bases. Built as a batched
// Chaum-Pedersen proof (the ecosystem-standard technique for this exact
// "same exponents across two bases" problem), since no single dependency in
// the retrieved pack ships a ready-made matrix-proof implementation.
package matrixproof

import (
	"fmt"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
)

// Proof attests that, for the same unknown scalar vector (s_1..s_n),
// VectorA[i] = s_i*BaseA and VectorB[i] = s_i*BaseB for every i.
type Proof struct {
	CommitA []*curve.Point
	CommitB []*curve.Point
	Challenge *curve.Scalar
	Responses []*curve.Scalar
}

const domainSep = "domain_sep_matrix_dl_equivalence_proof"

// Prove builds a matrix proof for scalars over baseA/baseB.
func Prove(baseA, baseB *curve.Point, scalars []*curve.Scalar) (*Proof, []*curve.Point, []*curve.Point, error) {
	n := len(scalars)
	if n == 0 {
		return nil, nil, nil, fmt.Errorf("matrixproof: empty scalar vector")
	}
	vecA := make([]*curve.Point, n)
	vecB := make([]*curve.Point, n)
	nonces := make([]*curve.Scalar, n)
	commitA := make([]*curve.Point, n)
	commitB := make([]*curve.Point, n)

	for i, s := range scalars {
		vecA[i] = baseA.ScalarMul(s)
		vecB[i] = baseB.ScalarMul(s)
		r, err := curve.NewRandomScalar()
		if err != nil {
			return nil, nil, nil, err
		}
		nonces[i] = r
		commitA[i] = baseA.ScalarMul(r)
		commitB[i] = baseB.ScalarMul(r)
	}

	c, err := challenge(baseA, baseB, vecA, vecB, commitA, commitB)
	if err != nil {
		return nil, nil, nil, err
	}

	responses := make([]*curve.Scalar, n)
	for i := range scalars {
		responses[i] = c.MulAdd(scalars[i], nonces[i])
	}

	return &Proof{CommitA: commitA, CommitB: commitB, Challenge: c, Responses: responses}, vecA, vecB, nil
}

// Verify checks proof against the claimed vectors under baseA/baseB.
func Verify(baseA, baseB *curve.Point, vecA, vecB []*curve.Point, proof *Proof) bool {
	n := len(vecA)
	if n == 0 || len(vecB) != n || len(proof.Responses) != n ||
		len(proof.CommitA) != n || len(proof.CommitB) != n {
		return false
	}
	c, err := challenge(baseA, baseB, vecA, vecB, proof.CommitA, proof.CommitB)
	if err != nil || !c.Equal(proof.Challenge) {
		return false
	}
	for i := 0; i < n; i++ {
		lhsA := baseA.ScalarMul(proof.Responses[i])
		rhsA := proof.CommitA[i].Add(vecA[i].ScalarMul(c))
		if !lhsA.Equal(rhsA) {
			return false
		}
		lhsB := baseB.ScalarMul(proof.Responses[i])
		rhsB := proof.CommitB[i].Add(vecB[i].ScalarMul(c))
		if !lhsB.Equal(rhsB) {
			return false
		}
	}
	return true
}

func challenge(baseA, baseB *curve.Point, vecA, vecB, commitA, commitB []*curve.Point) (*curve.Scalar, error) {
	data := [][]byte{baseA.Bytes(), baseB.Bytes()}
	for _, p := range vecA {
		data = append(data, p.Bytes())
	}
	for _, p := range vecB {
		data = append(data, p.Bytes())
	}
	for _, p := range commitA {
		data = append(data, p.Bytes())
	}
	for _, p := range commitB {
		data = append(data, p.Bytes())
	}
	return curve.HashToScalar(domainSep, data...)
}
