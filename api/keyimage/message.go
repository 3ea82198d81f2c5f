// Package keyimage implements the partial key-image message and the
// dedicated M-of-N key-image core recovery protocol (spec section 4.8),
// independent of the signing ceremony framework. Grounded on
// original_source/src/multisig/multisig.cpp's
// get_multisig_blinded_secret_key, try_process_partial_ki_msg,
// try_collect_partial_ki_keyshares, try_combine_partial_ki_shares,
// try_get_key_image_core and multisig_recover_cn_keyimage_cores.
package keyimage

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/mr-tron/base58"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
	"github.com/readytrader-crypto/mpc-multisig/api/matrixproof"
	"github.com/readytrader-crypto/mpc-multisig/api/multisig"
	"github.com/readytrader-crypto/mpc-multisig/config"
	"github.com/readytrader-crypto/mpc-multisig/internal/errs"
)

const wireVersion byte = 0xD0

// PartialKIMessage is one signer's contribution toward recovering the
// linking tag of a one-time address Ko owned by the group (spec section 3
// "Partial-KI Message"). The matrix proof attests, jointly under G and
// Hp(Ko), that Keyshares and PartialKIs share the same scalar vector --
// i.e. that PartialKIs[i] = keyshare_priv[i] * Hp(Ko) for the same private
// scalars backing Keyshares[i] = keyshare_priv[i] * G.
type PartialKIMessage struct {
	SigningPubkey  *curve.Point
	OnetimeAddress *curve.Point
	Keyshares      []*curve.Point
	PartialKIs     []*curve.Point
	Proof          *matrixproof.Proof
	Signature      *multisigSig
}

// multisigSig is this package's own Schnorr signature type (same shape as
// kex.Signature, duplicated rather than imported to keep keyimage
// independent of the KEx wire-message package as spec section 4.8 requires
// -- "Independent of the signing framework").
type multisigSig struct {
	R *curve.Point
	S *curve.Scalar
}

func signMessage(priv *curve.Scalar, pub *curve.Point, body []byte) (*multisigSig, error) {
	r, err := curve.HashToScalar(config.DSPartialKIMessageSignChall+"_nonce", priv.Bytes(), body)
	if err != nil {
		return nil, err
	}
	R := curve.ScalarMulBase(r)
	c, err := curve.HashToScalar(config.DSPartialKIMessageSignChall, R.Bytes(), pub.Bytes(), body)
	if err != nil {
		return nil, err
	}
	s := r.Add(c.Mul(priv))
	return &multisigSig{R: R, S: s}, nil
}

func verifySig(pub *curve.Point, body []byte, sig *multisigSig) bool {
	if pub == nil || sig == nil || pub.IsIdentity() {
		return false
	}
	c, err := curve.HashToScalar(config.DSPartialKIMessageSignChall, sig.R.Bytes(), pub.Bytes(), body)
	if err != nil {
		return false
	}
	lhs := curve.ScalarMulBase(sig.S)
	rhs := sig.R.Add(pub.ScalarMul(c))
	return lhs.Equal(rhs)
}

// GeneratePartialKIMessage builds the local signer's partial-KI message for
// target one-time address ko, using every locally-held keyshare.
func GeneratePartialKIMessage(account *multisig.Account, signerPriv *curve.Scalar, signerPub *curve.Point, ko *curve.Point) (*PartialKIMessage, error) {
	const op = "keyimage.GeneratePartialKIMessage"
	if !account.MultisigIsReady() {
		return nil, errs.New(errs.StateViolation, op, nil)
	}
	hp, err := curve.HashToPoint(config.DSHashToPointCLSAG, ko.Bytes())
	if err != nil {
		return nil, err
	}

	scalars := account.LocalKeyshareScalars()
	if len(scalars) == 0 {
		return nil, errs.New(errs.InsufficientSigners, op, nil)
	}

	proof, keyshares, partialKIs, err := matrixproof.Prove(curve.Generator(), hp, scalars)
	if err != nil {
		return nil, err
	}

	body := partialKIBody(signerPub, ko, keyshares, partialKIs)
	sig, err := signMessage(signerPriv, signerPub, body)
	if err != nil {
		return nil, err
	}

	return &PartialKIMessage{
		SigningPubkey: signerPub, OnetimeAddress: ko,
		Keyshares: keyshares, PartialKIs: partialKIs,
		Proof: proof, Signature: sig,
	}, nil
}

func partialKIBody(signingPub, ko *curve.Point, keyshares, partialKIs []*curve.Point) []byte {
	var buf bytes.Buffer
	buf.Write(signingPub.Bytes())
	buf.Write(ko.Bytes())
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(keyshares)))
	buf.Write(countBuf[:])
	for _, k := range keyshares {
		buf.Write(k.Bytes())
	}
	for _, p := range partialKIs {
		buf.Write(p.Bytes())
	}
	return buf.Bytes()
}

// VerifyPartialKIMessage checks the message's signature and matrix proof.
func VerifyPartialKIMessage(m *PartialKIMessage) bool {
	if len(m.Keyshares) == 0 || len(m.Keyshares) != len(m.PartialKIs) {
		return false
	}
	body := partialKIBody(m.SigningPubkey, m.OnetimeAddress, m.Keyshares, m.PartialKIs)
	if !verifySig(m.SigningPubkey, body, m.Signature) {
		return false
	}
	hp, err := curve.HashToPoint(config.DSHashToPointCLSAG, m.OnetimeAddress.Bytes())
	if err != nil {
		return false
	}
	return matrixproof.Verify(curve.Generator(), hp, m.Keyshares, m.PartialKIs, m.Proof)
}

// Serialize renders the message as <version> || base58(body || signature).
// The matrix proof is not part of the wire form.
func (m *PartialKIMessage) Serialize() string {
	body := partialKIBody(m.SigningPubkey, m.OnetimeAddress, m.Keyshares, m.PartialKIs)
	payload := append(body, m.Signature.R.Bytes()...)
	payload = append(payload, m.Signature.S.Bytes()...)
	return string([]byte{wireVersion}) + base58.Encode(payload)
}

// Parse decodes and fully validates a wire-format partial-KI message:
// version separator, base58 encoding, signature, and canonical/prime-order
// checks on every pubkey. The wire form carries no matrix proof, so the
// returned message's Proof is nil.
func Parse(wire string) (*PartialKIMessage, error) {
	const op = "keyimage.Parse"
	if len(wire) < 1 || wire[0] != wireVersion {
		return nil, errs.New(errs.InputMalformed, op, nil)
	}
	payload, err := base58.Decode(wire[1:])
	if err != nil {
		return nil, errs.New(errs.InputMalformed, op, err)
	}
	if len(payload) < 64 {
		return nil, errs.New(errs.InputMalformed, op, nil)
	}
	body := payload[:len(payload)-64]
	sigBytes := payload[len(payload)-64:]
	r, err := curve.PointFromCanonicalBytes(sigBytes[:32])
	if err != nil {
		return nil, errs.New(errs.InputMalformed, op, err)
	}
	s, err := curve.ScalarFromCanonicalBytes(sigBytes[32:])
	if err != nil {
		return nil, errs.New(errs.InputMalformed, op, err)
	}

	r2 := bytes.NewReader(body)
	var signingPubBuf, koBuf [32]byte
	if _, err := io.ReadFull(r2, signingPubBuf[:]); err != nil {
		return nil, errs.New(errs.InputMalformed, op, err)
	}
	signingPub, err := curve.PointFromCanonicalBytes(signingPubBuf[:])
	if err != nil || !signingPub.InPrimeOrderSubgroup() || signingPub.IsIdentity() {
		return nil, errs.New(errs.InputMalformed, op, nil)
	}
	if _, err := io.ReadFull(r2, koBuf[:]); err != nil {
		return nil, errs.New(errs.InputMalformed, op, err)
	}
	ko, err := curve.PointFromCanonicalBytes(koBuf[:])
	if err != nil || !ko.InPrimeOrderSubgroup() || ko.IsIdentity() {
		return nil, errs.New(errs.InputMalformed, op, nil)
	}

	var countBuf [4]byte
	if _, err := io.ReadFull(r2, countBuf[:]); err != nil {
		return nil, errs.New(errs.InputMalformed, op, err)
	}
	count := binary.LittleEndian.Uint32(countBuf[:])
	if count == 0 || count > config.MaxSigners {
		return nil, errs.New(errs.InputMalformed, op, nil)
	}

	readPoints := func(n uint32) ([]*curve.Point, error) {
		out := make([]*curve.Point, n)
		for i := uint32(0); i < n; i++ {
			var b [32]byte
			if _, err := io.ReadFull(r2, b[:]); err != nil {
				return nil, err
			}
			p, err := curve.PointFromCanonicalBytes(b[:])
			if err != nil || !p.InPrimeOrderSubgroup() || p.IsIdentity() {
				return nil, errs.New(errs.InputMalformed, op, nil)
			}
			out[i] = p
		}
		return out, nil
	}

	keyshares, err := readPoints(count)
	if err != nil {
		return nil, errs.New(errs.InputMalformed, op, err)
	}
	partialKIs, err := readPoints(count)
	if err != nil {
		return nil, errs.New(errs.InputMalformed, op, err)
	}

	msg := &PartialKIMessage{
		SigningPubkey: signingPub, OnetimeAddress: ko,
		Keyshares: keyshares, PartialKIs: partialKIs,
		Signature: &multisigSig{R: r, S: s},
	}
	if !verifySig(signingPub, body, msg.Signature) {
		return nil, errs.New(errs.InputMalformed, op, nil)
	}
	return msg, nil
}
