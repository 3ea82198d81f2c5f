package multisig

import (
	"fmt"

	"github.com/mr-tron/base58"

	"go.uber.org/zap"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
	"github.com/readytrader-crypto/mpc-multisig/api/filter"
	"github.com/readytrader-crypto/mpc-multisig/api/kex"
	"github.com/readytrader-crypto/mpc-multisig/api/matrixproof"
	"github.com/readytrader-crypto/mpc-multisig/config"
	"github.com/readytrader-crypto/mpc-multisig/internal/errs"
)

// generatorForEra returns the spend-key base generator a given era signs
// over: G for Cryptonote-era keys and GenX() for Seraphis-era keys, the
// pair an era-conversion matrix proof shows DL-equivalence across.
func generatorForEra(e config.Era) *curve.Point {
	if e == config.EraSeraphis {
		return curve.GenX()
	}
	return curve.Generator()
}

// EraConversionMessage attests, via a matrix proof, that the same local
// keyshare scalars apply under both the old and new era's generator,
// allowing peers to convert their own account to the new era in lockstep.
// Grounded on original_source/src/multisig/multisig_account.cpp's era
// conversion support and multisig_account_era_conversion_msg.h's general
// shape (signer-identified, signed, carries a DL-equivalence proof).
type EraConversionMessage struct {
	OldEra        config.Era
	NewEra        config.Era
	SigningPubkey *curve.Point
	OldPubkeys    []*curve.Point
	NewPubkeys    []*curve.Point
	Proof         *matrixproof.Proof
	Signature     *kex.Signature
}

// GetAccountEraConversionMsg builds an era-conversion message proving the
// local signer's finalized keyshares carry over to newEra.
func (a *Account) GetAccountEraConversionMsg(newEra config.Era) (*EraConversionMessage, error) {
	const op = "multisig.GetAccountEraConversionMsg"
	if !a.MultisigIsReady() {
		return nil, errs.New(errs.StateViolation, op, nil)
	}
	var scalars []*curve.Scalar
	for _, ks := range a.keyshares {
		if ks.Priv != nil {
			scalars = append(scalars, ks.Priv)
		}
	}
	if len(scalars) == 0 {
		return nil, errs.New(errs.InsufficientSigners, op, fmt.Errorf("no local keyshares"))
	}

	oldBase := generatorForEra(a.era)
	newBase := generatorForEra(newEra)
	proof, oldPubkeys, newPubkeys, err := matrixproof.Prove(oldBase, newBase, scalars)
	if err != nil {
		return nil, err
	}

	sig, err := kex.Sign(a.basePriv, a.basePub, eraConversionBody(a.era, newEra, a.basePub, oldPubkeys, newPubkeys))
	if err != nil {
		return nil, err
	}

	return &EraConversionMessage{
		OldEra: a.era, NewEra: newEra, SigningPubkey: a.basePub,
		OldPubkeys: oldPubkeys, NewPubkeys: newPubkeys, Proof: proof, Signature: sig,
	}, nil
}

func eraConversionBody(oldEra, newEra config.Era, signingPub *curve.Point, oldPubkeys, newPubkeys []*curve.Point) []byte {
	var buf []byte
	buf = append(buf, byte(oldEra), byte(newEra))
	buf = append(buf, signingPub.Bytes()...)
	for _, p := range oldPubkeys {
		buf = append(buf, p.Bytes()...)
	}
	for _, p := range newPubkeys {
		buf = append(buf, p.Bytes()...)
	}
	return buf
}

// VerifyEraConversionMsg checks the message's signature and matrix proof.
func VerifyEraConversionMsg(m *EraConversionMessage) bool {
	body := eraConversionBody(m.OldEra, m.NewEra, m.SigningPubkey, m.OldPubkeys, m.NewPubkeys)
	if !kex.Verify(m.SigningPubkey, body, m.Signature) {
		return false
	}
	oldBase := generatorForEra(m.OldEra)
	newBase := generatorForEra(m.NewEra)
	return matrixproof.Verify(oldBase, newBase, m.OldPubkeys, m.NewPubkeys, m.Proof)
}

// Serialize renders the signed body (eras, signing pubkey, old and new
// keyshare pubkeys) as a base58 blob. It carries no version prefix,
// signature or matrix proof, and this package has no parser for it.
func (m *EraConversionMessage) Serialize() string {
	return base58.Encode(eraConversionBody(m.OldEra, m.NewEra, m.SigningPubkey, m.OldPubkeys, m.NewPubkeys))
}

// AddSignerRecommendations imports another signer's keyshare-holding claims
// (spec section 4.3): reusing the era-conversion message type with
// NewEra==OldEra==a.era is deliberate, avoiding a dedicated wire format for
// what is otherwise the same "signed vector of my keyshare pubkeys"
// payload. For every one of the sender's claimed keyshares that matches one
// of the local signer's own finalized keyshares, the sender's index is
// recorded as an origin of that keyshare and OR'd into the account's
// "available signers for aggregation" filter.
func (a *Account) AddSignerRecommendations(m *EraConversionMessage) error {
	const op = "multisig.AddSignerRecommendations"
	if m.OldEra != a.era || m.NewEra != a.era {
		return errs.New(errs.EraMismatch, op, nil)
	}
	if !VerifyEraConversionMsg(m) {
		return errs.New(errs.ProofFailure, op, nil)
	}
	senderIdx := indexOfPoint(a.signers, m.SigningPubkey)
	if senderIdx < 0 {
		return errs.New(errs.UnknownSigner, op, nil)
	}

	matched := false
	for _, theirShare := range m.OldPubkeys {
		for _, ks := range a.keyshares {
			if ks.Pub == nil || !ks.Pub.Equal(theirShare) {
				continue
			}
			matched = true
			if !containsInt(ks.Holders, senderIdx) {
				ks.Holders = append(append([]int{}, ks.Holders...), senderIdx)
				sortInts(ks.Holders)
			}
		}
	}
	if matched {
		a.availableSigners |= filter.SignerSetFilter(1) << uint(senderIdx)
	}
	a.log.Debug("signer recommendations imported", zap.Int("sender", senderIdx), zap.Bool("matched", matched))
	return nil
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// ApplyEraConversion builds a new-era account from >= M era-conversion
// messages (including the local signer's own), re-deriving the aggregate
// group key under newEra's generator while preserving the keyshare set and
// its origins by position (spec section 4.3).
//
// Failure modes: a message whose era fields don't match a.era/newEra is
// EraMismatch; a message from an unrecognized signer is UnknownSigner;
// fewer than a.threshold distinct signers is InsufficientSigners; an
// old-keyshare sum that doesn't reconstruct the current group pubkey is
// ProofFailure.
func (a *Account) ApplyEraConversion(newEra config.Era, msgs []*EraConversionMessage) (*Account, error) {
	const op = "multisig.ApplyEraConversion"
	if !a.MultisigIsReady() {
		return nil, errs.New(errs.StateViolation, op, nil)
	}

	seen := make(map[int]*EraConversionMessage)
	for _, m := range msgs {
		if m.OldEra != a.era || m.NewEra != newEra {
			return nil, errs.New(errs.EraMismatch, op, nil)
		}
		if !VerifyEraConversionMsg(m) {
			return nil, errs.New(errs.ProofFailure, op, nil)
		}
		idx := indexOfPoint(a.signers, m.SigningPubkey)
		if idx < 0 {
			return nil, errs.New(errs.UnknownSigner, op, nil)
		}
		seen[idx] = m
	}
	if len(seen) < a.threshold {
		return nil, errs.Newf(errs.InsufficientSigners, op, "got %d signers, need %d", len(seen), a.threshold)
	}

	// De-duplicate old-era keyshares across all messages by canonical bytes,
	// summing each exactly once, and carry the matching new-era pubkey
	// across by position (messages preserve per-signer order; positions
	// line up one-to-one since every message attests the same keyshare
	// vector length as the number of keyshares that signer locally holds).
	oldSum := curve.Identity()
	newPubByOld := make(map[string]*curve.Point)
	for _, m := range seen {
		if len(m.OldPubkeys) != len(m.NewPubkeys) {
			return nil, errs.New(errs.InputMalformed, op, nil)
		}
		for i, opk := range m.OldPubkeys {
			key := string(opk.Bytes())
			if _, dup := newPubByOld[key]; dup {
				continue
			}
			newPubByOld[key] = m.NewPubkeys[i]
			oldSum = oldSum.Add(opk)
		}
	}
	if !oldSum.Equal(a.GroupPubkey()) {
		return nil, errs.New(errs.ProofFailure, op, fmt.Errorf("old-era keyshare sum does not reconstruct the current aggregate group pubkey"))
	}

	newKeyshares := make([]*Keyshare, len(a.keyshares))
	for i, ks := range a.keyshares {
		cp := &Keyshare{Index: ks.Index, Holders: append([]int{}, ks.Holders...)}
		if ks.Pub != nil {
			if np, ok := newPubByOld[string(ks.Pub.Bytes())]; ok {
				cp.Pub = np
				cp.Priv = ks.Priv
			}
		}
		newKeyshares[i] = cp
	}

	out := &Account{
		log: a.log, era: newEra, threshold: a.threshold, signers: append([]curve.Point{}, a.signers...),
		localIdx: a.localIdx, basePriv: a.basePriv, basePub: a.basePub,
		round:               a.round,
		aggregateCommonPriv: a.aggregateCommonPriv,
		keyshares:           newKeyshares,
		windowPoints:        map[int]*curve.Point{},
		availableSigners:    a.availableSigners,
	}
	a.log.Debug("era conversion applied", zap.String("old_era", a.era.String()), zap.String("new_era", newEra.String()))
	return out, nil
}
