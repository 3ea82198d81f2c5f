// Package multisig implements the per-signer DKG state machine: pre-DKG
// construction, key-exchange round processing, aggregate signing key
// recovery, signer recommendations and era conversion. Grounded on
// original_source/src/multisig/multisig_account.h/.cpp for the outer state
// machine; the keyshare-chain construction itself follows the Open
// Question resolution recorded in DESIGN.md, since the file implementing
// multisig_account.cpp's per-round keyshare transformation was not present
// in the retrieved source.
package multisig

import (
	"sort"

	"go.uber.org/zap"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
	"github.com/readytrader-crypto/mpc-multisig/api/filter"
	"github.com/readytrader-crypto/mpc-multisig/api/kex"
	"github.com/readytrader-crypto/mpc-multisig/config"
	"github.com/readytrader-crypto/mpc-multisig/internal/errs"
)

// Keyshare is one of the N group-wide private scalars, known to a window of
// H = N-M+1 consecutive signers.
type Keyshare struct {
	Index   int
	Priv    *curve.Scalar // only populated for windows the local signer belongs to
	Pub     *curve.Point
	Holders []int // sorted signer indices who know Priv
}

// Account is one signer's view of an in-progress or completed DKG.
type Account struct {
	log *zap.Logger

	era       config.Era
	threshold int
	signers   []curve.Point // sorted base pubkeys of every signer (by canonical bytes)
	localIdx  int
	basePriv  *curve.Scalar
	basePub   *curve.Point

	round int // 0 = not started; R+1 once post-verification round completes

	aggregateCommonPriv *curve.Scalar // summed ancillary (view-key-like) contributions
	keyshares            []*Keyshare   // indexed by window id 0..N-1, only local holder windows carry Priv
	windowPoints          map[int]*curve.Point // running (unhashed) accumulator per window, during rounds

	// availableSigners is the "available signers for aggregation" filter
	// (spec section 3): signers the local account has confirmed, via
	// AddSignerRecommendations, also hold at least one keyshare in common
	// with the local signer. The local signer's own bit is always set.
	availableSigners filter.SignerSetFilter

	nextOutbound *kex.Message
}

func windowSize(n, m int) int { return n - m + 1 }

// windowMembers returns the sorted member list of window k for an N-signer
// group with threshold m.
func windowMembers(k, n, m int) []int {
	h := windowSize(n, m)
	members := make([]int, h)
	for t := 0; t < h; t++ {
		members[t] = (k + t) % n
	}
	sort.Ints(members)
	return members
}

// hopPosition returns signerIdx's 0-indexed position within window k's
// member list, or -1 if signerIdx is not a member.
func hopPosition(signerIdx, k, n, m int) int {
	h := windowSize(n, m)
	offset := (signerIdx - k + n) % n
	if offset < h {
		return offset
	}
	return -1
}

// KexRoundsRequired returns R, the number of key-exchange rounds needed
// (spec section 4.3): N-M+1.
func KexRoundsRequired(n, m int) int { return windowSize(n, m) }

// SetupRoundsRequired is KexRoundsRequired plus the one post-KEx
// verification round.
func SetupRoundsRequired(n, m int) int { return KexRoundsRequired(n, m) + 1 }

func sortedSigners(signers []*curve.Point) []curve.Point {
	out := make([]curve.Point, len(signers))
	for i, p := range signers {
		out[i] = *p
	}
	sort.Slice(out, func(i, j int) bool {
		return compareBytesLess(out[i].Bytes(), out[j].Bytes())
	})
	return out
}

func compareBytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func indexOfPoint(list []curve.Point, p *curve.Point) int {
	for i := range list {
		if list[i].Equal(p) {
			return i
		}
	}
	return -1
}

// New constructs a pre-DKG account: the local signer's base keypair plus
// the full sorted signer list, before any KEx round has been processed.
func New(log *zap.Logger, era config.Era, threshold int, signers []*curve.Point, localPriv *curve.Scalar, localPub *curve.Point) (*Account, error) {
	const op = "multisig.New"
	if log == nil {
		log = zap.NewNop()
	}
	n := len(signers)
	if n == 0 || n > config.MaxSigners {
		return nil, errs.Newf(errs.InputMalformed, op, "implausible signer count %d", n)
	}
	if threshold < 1 || threshold > n {
		return nil, errs.Newf(errs.InputMalformed, op, "threshold %d out of range for %d signers", threshold, n)
	}
	sorted := sortedSigners(signers)
	localIdx := indexOfPoint(sorted, localPub)
	if localIdx < 0 {
		return nil, errs.New(errs.UnknownSigner, op, nil)
	}

	a := &Account{
		log: log, era: era, threshold: threshold, signers: sorted, localIdx: localIdx,
		basePriv: localPriv, basePub: localPub, round: 0,
		aggregateCommonPriv: curve.ScalarZero(),
		keyshares:           make([]*Keyshare, n),
		windowPoints:        make(map[int]*curve.Point),
	}
	for k := 0; k < n; k++ {
		a.keyshares[k] = &Keyshare{Index: k, Holders: windowMembers(k, n, threshold)}
	}
	a.availableSigners = filter.SignerSetFilter(1) << uint(localIdx)
	log.Debug("multisig account constructed", zap.Int("n", n), zap.Int("m", threshold), zap.Int("local_index", localIdx))
	return a, nil
}

func (a *Account) numSigners() int { return len(a.signers) }

// localWindows returns the windows the local signer belongs to.
func (a *Account) localWindows() []int {
	n := a.numSigners()
	out := make([]int, 0, windowSize(n, a.threshold))
	for k := 0; k < n; k++ {
		if hopPosition(a.localIdx, k, n, a.threshold) >= 0 {
			out = append(out, k)
		}
	}
	return out
}

// Round reports the number of KEx rounds completed so far.
func (a *Account) Round() int { return a.round }

// MultisigIsReady reports whether the DKG (including the post-KEx
// verification round) has fully completed.
func (a *Account) MultisigIsReady() bool {
	return a.round >= SetupRoundsRequired(a.numSigners(), a.threshold)
}

// GenerateRound1Message builds the local signer's own outbound round-1
// message (P0 = basePriv*G plus a freshly chosen ancillary/common-privkey
// contribution), to be broadcast and collected alongside every other
// signer's round-1 message before calling InitializeKex.
func (a *Account) GenerateRound1Message(ancillary *curve.Scalar) (*kex.Message, error) {
	if a.round != 0 {
		return nil, errs.New(errs.StateViolation, "multisig.GenerateRound1Message", nil)
	}
	return kex.New(a.era, 1, a.basePriv, a.basePub, []*curve.Point{curve.ScalarMulBase(a.basePriv)}, ancillary, nil)
}

// InitializeKex processes the round-1 messages from every signer
// (including the local one), derives the common aggregate privkey, and
// seeds every local-window accumulator with its round-1 point.
func (a *Account) InitializeKex(round1Msgs []*kex.Message) (*kex.Message, error) {
	const op = "multisig.InitializeKex"
	if a.round != 0 {
		return nil, errs.New(errs.StateViolation, op, nil)
	}
	n := a.numSigners()
	if len(round1Msgs) != n {
		return nil, errs.Newf(errs.InsufficientSigners, op, "expected %d round-1 messages, got %d", n, len(round1Msgs))
	}

	byIndex := make([]*kex.Message, n)
	for _, m := range round1Msgs {
		if m.Round != 1 {
			return nil, errs.New(errs.InputMalformed, op, nil)
		}
		idx := indexOfPoint(a.signers, m.SigningPubkey)
		if idx < 0 {
			return nil, errs.New(errs.UnknownSigner, op, nil)
		}
		if byIndex[idx] != nil {
			return nil, errs.New(errs.InputMalformed, op, nil)
		}
		if m.AncillaryPrivkey == nil {
			return nil, errs.New(errs.InputMalformed, op, nil)
		}
		byIndex[idx] = m
	}

	aggCommon := curve.ScalarZero()
	for _, m := range byIndex {
		aggCommon = aggCommon.Add(m.AncillaryPrivkey)
	}

	h := windowSize(n, a.threshold)
	windowPoints := make(map[int]*curve.Point, len(a.windowPoints))
	var finalizedPub *curve.Point
	for k := range a.keyshares {
		hp := hopPosition(a.localIdx, k, n, a.threshold)
		if hp != 0 {
			continue
		}
		p0 := curve.ScalarMulBase(a.basePriv)
		if h == 1 {
			// Threshold == N: every window is trivially complete after round 1.
			scalar, err := curve.HashToScalar(config.DSMultisig, p0.Bytes(), []byte{byte(k)})
			if err != nil {
				return nil, err
			}
			a.keyshares[k].Priv = scalar
			a.keyshares[k].Pub = curve.ScalarMulBase(scalar)
			finalizedPub = a.keyshares[k].Pub
			continue
		}
		windowPoints[k] = p0
	}

	// As in kexUpdateImpl, a freshly finalized window's pubkey is broadcast
	// in the following round's message so non-holders can learn it too.
	var out *kex.Message
	if h == 1 {
		var err error
		out, err = kex.New(a.era, 2, a.basePriv, a.basePub, []*curve.Point{finalizedPub}, nil, nil)
		if err != nil {
			return nil, err
		}
	} else if h > 1 {
		var err error
		out, err = a.buildOutboundForRound(2, windowPoints)
		if err != nil {
			return nil, err
		}
	}

	a.aggregateCommonPriv = aggCommon
	a.windowPoints = windowPoints
	a.round = 1
	a.nextOutbound = out
	a.log.Debug("kex round 1 initialized", zap.Int("local_index", a.localIdx))
	return out, nil
}

// minOthersForRound returns the fewest other signers' round-r messages a
// force-update may proceed with (spec section 4.3 force-update mode):
// N-1-(r-1) for an intermediate round.
func minOthersForRound(n, r int) int {
	m := n - 1 - (r - 1)
	if m < 1 {
		m = 1
	}
	return m
}

// kexUpdateImpl is the shared, non-mutating core of KexUpdate/ForceKexUpdate
// and the KEx booster: given the upcoming round number r and that round's
// incoming messages, it computes the keyshare advancements and the next
// outbound message, writing any newly finalized keyshares directly into
// scratch (a private copy owned by the caller) rather than a.keyshares.
func (a *Account) kexUpdateImpl(r int, incoming []*kex.Message, minOthers int, scratch []*Keyshare) (*kex.Message, map[int]*curve.Point, error) {
	const op = "multisig.kexUpdateImpl"
	n := a.numSigners()
	if len(incoming) < minOthers {
		return nil, nil, errs.Newf(errs.InsufficientSigners, op, "expected at least %d round-%d messages, got %d", minOthers, r, len(incoming))
	}

	incomingPoints := make(map[int]*curve.Point)
	for _, m := range incoming {
		if int(m.Round) != r {
			return nil, nil, errs.Newf(errs.InputMalformed, op, "expected round %d message, got %d", r, m.Round)
		}
		senderIdx := indexOfPoint(a.signers, m.SigningPubkey)
		if senderIdx < 0 {
			return nil, nil, errs.New(errs.UnknownSigner, op, nil)
		}
		pi := 0
		for k := 0; k < n; k++ {
			if hopPosition(senderIdx, k, n, a.threshold) != r-2 {
				continue
			}
			if pi >= len(m.Pubkeys) {
				return nil, nil, errs.New(errs.InputMalformed, op, nil)
			}
			incomingPoints[k] = m.Pubkeys[pi]
			pi++
		}
	}

	newWindowPoints := make(map[int]*curve.Point)
	var finalizedPub *curve.Point
	var shares []kex.WindowShare
	for k := range a.keyshares {
		hp := hopPosition(a.localIdx, k, n, a.threshold)
		if hp != r-1 {
			continue
		}
		prior, ok := incomingPoints[k]
		if !ok {
			// Force-update: the contributing signer for this window did not
			// report this round. The window simply fails to advance; the
			// spec's own warning is that this may leave the account unable
			// to sign for filters that need this keyshare.
			continue
		}
		advanced := prior.ScalarMul(a.basePriv)
		if hp == windowSize(n, a.threshold)-1 {
			scalar, err := curve.HashToScalar(config.DSMultisig, advanced.Bytes(), []byte{byte(k)})
			if err != nil {
				return nil, nil, err
			}
			scratch[k].Priv = scalar
			scratch[k].Pub = curve.ScalarMulBase(scalar)
			finalizedPub = scratch[k].Pub

			// The local signer is the only holder who ever walks this
			// window's relay chain to its end, so it is the only one who
			// can derive Priv directly. Every other holder needs a copy to
			// be able to contribute this window under a filter that
			// excludes the local signer (TryGetAggregateSigningKey), so
			// blind one to each and carry them in this round's outbound
			// message.
			for _, holderIdx := range scratch[k].Holders {
				if holderIdx == a.localIdx {
					continue
				}
				mask, err := a.deriveShareMask(&a.signers[holderIdx], k)
				if err != nil {
					return nil, nil, err
				}
				shares = append(shares, kex.WindowShare{
					Window:    uint32(k),
					Recipient: &a.signers[holderIdx],
					Masked:    scalar.Add(mask),
				})
			}
		} else {
			newWindowPoints[k] = advanced
		}
	}

	// The round that finalizes a window is always the last kex round (every
	// signer's hop position reaches windowSize-1 only once, and only then).
	// Rather than relay nothing further, broadcast the newly finalized
	// window's pubkey (and its blinded shares for the window's other
	// holders) in that round's outbound message: this is the only chance
	// for other signers, who never see this window's hop chain themselves,
	// to learn its completed pubkey, and for the window's other holders to
	// recover its privkey too (see FinalizeWindowPubkeys).
	var out *kex.Message
	var err error
	if finalizedPub != nil && len(newWindowPoints) == 0 {
		out, err = kex.New(a.era, uint32(r+1), a.basePriv, a.basePub, []*curve.Point{finalizedPub}, nil, shares)
	} else {
		out, err = a.buildOutboundForRound(r+1, newWindowPoints)
	}
	if err != nil {
		return nil, nil, err
	}
	return out, newWindowPoints, nil
}

// deriveShareMask derives the pairwise Diffie-Hellman mask used to blind a
// just-finalized window's privkey for transport to one of its other
// holders. The mask is symmetric: the recipient re-derives the identical
// value from their own privkey and the sender's base pubkey, so neither
// party needs anything beyond keys already exchanged in round 1.
func (a *Account) deriveShareMask(counterparty *curve.Point, window int) (*curve.Scalar, error) {
	shared := counterparty.ScalarMul(a.basePriv)
	return curve.HashToScalar(config.DSMultisigBlindedSecret, shared.Bytes(), []byte{byte(window)})
}

func cloneKeyshares(ks []*Keyshare) []*Keyshare {
	out := make([]*Keyshare, len(ks))
	for i, k := range ks {
		cp := *k
		out[i] = &cp
	}
	return out
}

// KexUpdate processes this round's incoming messages (round number
// a.round+1, i.e. the output of the previous call's recipients) and
// advances every local-window accumulator one hop, finalizing any window
// whose target size is reached this round. Requires messages from every
// other signer; see ForceKexUpdate for the reduced-quorum variant.
func (a *Account) KexUpdate(incoming []*kex.Message) (*kex.Message, error) {
	return a.kexUpdate(incoming, false)
}

// ForceKexUpdate advances the round with only the spec-minimum quorum of
// other signers' messages (N-1-(r-1)). WARNING (spec section 4.3):
// force-updating with adversarial or incomplete input may produce an
// account that cannot complete signing without the missing signers, or at
// all; this is documented and intentional.
func (a *Account) ForceKexUpdate(incoming []*kex.Message) (*kex.Message, error) {
	return a.kexUpdate(incoming, true)
}

func (a *Account) kexUpdate(incoming []*kex.Message, force bool) (*kex.Message, error) {
	const op = "multisig.KexUpdate"
	if a.round < 1 {
		return nil, errs.New(errs.StateViolation, op, nil)
	}
	r := a.round + 1
	R := KexRoundsRequired(a.numSigners(), a.threshold)
	if r > R {
		return nil, errs.New(errs.StateViolation, op, nil)
	}
	min := a.numSigners() - 1
	if force {
		min = minOthersForRound(a.numSigners(), r)
	}

	// Transactional: mutate a scratch copy of the keyshares only.
	scratch := cloneKeyshares(a.keyshares)
	out, newWindowPoints, err := a.kexUpdateImpl(r, incoming, min, scratch)
	if err != nil {
		return nil, err
	}

	a.keyshares = scratch
	a.windowPoints = newWindowPoints
	a.round = r
	a.nextOutbound = out
	a.log.Debug("kex round advanced", zap.Int("round", r), zap.Bool("force", force))
	return out, nil
}

// KexBooster produces the hypothetical round-(r+1) message a participant
// would send given a set of round-r messages, without advancing the local
// account's own state. This lets fast participants "run ahead" so the
// slowest participant can finish in a single remaining step (spec section
// 4.3). Input sanitization matches a real KexUpdate call.
func (a *Account) KexBooster(incoming []*kex.Message) (*kex.Message, error) {
	const op = "multisig.KexBooster"
	if a.round < 1 {
		return nil, errs.New(errs.StateViolation, op, nil)
	}
	r := a.round + 1
	R := KexRoundsRequired(a.numSigners(), a.threshold)
	if r > R {
		return nil, errs.New(errs.StateViolation, op, nil)
	}
	scratch := cloneKeyshares(a.keyshares)
	out, _, err := a.kexUpdateImpl(r, incoming, a.numSigners()-1, scratch)
	return out, err
}

// FinalizeWindowPubkeys consumes the round-(H+1) broadcast every signer
// emits upon producing their KexRoundsRequired-th message: since each
// window's final pubkey becomes known only to the single signer who holds
// it last in its relay cycle, this is the step where every OTHER signer
// learns it too, so that GroupPubkey() becomes the full N-window aggregate
// everywhere rather than just the windows the local signer happens to
// hold. A sender's finalized window is always deterministic from its
// signer index and the cycle geometry, so no explicit window index needs
// to travel on the wire.
func (a *Account) FinalizeWindowPubkeys(msgs []*kex.Message) error {
	const op = "multisig.FinalizeWindowPubkeys"
	n := a.numSigners()
	h := windowSize(n, a.threshold)
	required := KexRoundsRequired(n, a.threshold)
	if a.round != required {
		return errs.New(errs.StateViolation, op, nil)
	}
	for _, m := range msgs {
		if int(m.Round) != required+1 {
			return errs.New(errs.InputMalformed, op, nil)
		}
		if len(m.Pubkeys) != 1 {
			return errs.New(errs.InputMalformed, op, nil)
		}
		senderIdx := indexOfPoint(a.signers, m.SigningPubkey)
		if senderIdx < 0 {
			return errs.New(errs.UnknownSigner, op, nil)
		}
		k := ((senderIdx-h+1)%n + n) % n
		existing := a.keyshares[k].Pub
		if existing == nil {
			a.keyshares[k].Pub = m.Pubkeys[0]
		} else if !existing.Equal(m.Pubkeys[0]) {
			return errs.New(errs.ProofFailure, op, nil)
		}

		// Unblind any share the sender addressed to the local signer: this
		// is how a window's non-finalizer holders recover Priv, since they
		// never walk the relay chain to its end themselves.
		for _, sh := range m.Shares {
			if int(sh.Window) != k {
				return errs.New(errs.InputMalformed, op, nil)
			}
			if !sh.Recipient.Equal(a.basePub) {
				continue
			}
			mask, err := a.deriveShareMask(m.SigningPubkey, k)
			if err != nil {
				return err
			}
			scalar := sh.Masked.Sub(mask)
			if !curve.ScalarMulBase(scalar).Equal(a.keyshares[k].Pub) {
				return errs.New(errs.ProofFailure, op, nil)
			}
			if a.keyshares[k].Priv == nil {
				a.keyshares[k].Priv = scalar
			}
		}
	}
	a.log.Debug("window pubkeys finalized", zap.Int("local_index", a.localIdx))
	return nil
}

// CompletePostKexVerification performs the final "+1" round: every signer
// confirms their locally computed aggregate group pubkey matches everyone
// else's. Call FinalizeWindowPubkeys first so GroupPubkey() reflects the
// full N-window aggregate on every account before comparing.
func (a *Account) CompletePostKexVerification(reportedGroupPubkeys []*curve.Point) error {
	const op = "multisig.CompletePostKexVerification"
	if a.round != KexRoundsRequired(a.numSigners(), a.threshold) {
		return errs.New(errs.StateViolation, op, nil)
	}
	mine := a.GroupPubkey()
	for _, p := range reportedGroupPubkeys {
		if !p.Equal(mine) {
			return errs.New(errs.EraMismatch, op, nil)
		}
	}
	a.round++
	a.log.Debug("post-kex verification complete")
	return nil
}

func (a *Account) buildOutboundForRound(round int, windowPoints map[int]*curve.Point) (*kex.Message, error) {
	keys := make([]int, 0, len(windowPoints))
	for k := range windowPoints {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	if len(keys) == 0 {
		// Nothing left for the local signer to relay this round; still emit
		// a well-formed message carrying the local base pubkey so peers can
		// distinguish "done early" from a dropped message.
		return kex.New(a.era, uint32(round), a.basePriv, a.basePub, []*curve.Point{a.basePub}, nil, nil)
	}
	pubkeys := make([]*curve.Point, len(keys))
	for i, k := range keys {
		pubkeys[i] = windowPoints[k]
	}
	return kex.New(a.era, uint32(round), a.basePriv, a.basePub, pubkeys, nil, nil)
}

// GroupPubkey sums every window's final pubkey into the group aggregate
// spend key. Only callable once every local-window keyshare is finalized.
func (a *Account) GroupPubkey() *curve.Point {
	sum := curve.Identity()
	for _, ks := range a.keyshares {
		if ks.Pub != nil {
			sum = sum.Add(ks.Pub)
		}
	}
	return sum
}

// TryGetAggregateSigningKey sums the local signer's keyshares whose
// holder-set contains no OTHER signer positioned earlier than the local
// signer within f (so each keyshare is contributed exactly once, by the
// earliest-in-filter holder), matching multisig_account.cpp's
// try_get_aggregate_signing_key rule.
func (a *Account) TryGetAggregateSigningKey(f filter.SignerSetFilter) (*curve.Scalar, error) {
	const op = "multisig.TryGetAggregateSigningKey"
	n := a.numSigners()
	if !filter.ValidateSingle(uint32(a.threshold), uint32(n), f) {
		return nil, errs.New(errs.InputMalformed, op, nil)
	}
	if f&(filter.SignerSetFilter(1)<<uint(a.localIdx)) == 0 {
		return nil, errs.New(errs.UnknownSigner, op, nil)
	}
	if f&^a.availableSigners != 0 {
		return nil, errs.Newf(errs.InsufficientSigners, op, "filter %x includes signers not yet confirmed available for aggregation", uint64(f))
	}

	sum := curve.ScalarZero()
	contributed := false
	for _, ks := range a.keyshares {
		if ks.Priv == nil {
			continue
		}
		earliestInFilter := -1
		for _, h := range ks.Holders {
			if f&(filter.SignerSetFilter(1)<<uint(h)) != 0 {
				earliestInFilter = h
				break
			}
		}
		if earliestInFilter == a.localIdx {
			sum = sum.Add(ks.Priv)
			contributed = true
		}
	}
	if !contributed {
		return nil, errs.New(errs.InsufficientSigners, op, nil)
	}
	return sum, nil
}

// AggregateCommonPrivkey returns the fully summed common (view-key-like)
// privkey, known in full once round 1 has been processed.
func (a *Account) AggregateCommonPrivkey() *curve.Scalar { return a.aggregateCommonPriv }

// LocalIndex returns the local signer's position in the sorted signer list.
func (a *Account) LocalIndex() int { return a.localIdx }

// Threshold returns M.
func (a *Account) Threshold() int { return a.threshold }

// NumSigners returns N.
func (a *Account) NumSigners() int { return a.numSigners() }

// Era returns the generator era this account operates over.
func (a *Account) Era() config.Era { return a.era }

// NextOutboundMessage returns the most recently produced outbound KEx
// message (nil before InitializeKex).
func (a *Account) NextOutboundMessage() *kex.Message { return a.nextOutbound }

// AvailableSignersFilter returns the "available signers for aggregation"
// filter: signers confirmed, via AddSignerRecommendations, to share at
// least one keyshare with the local signer. Always includes the local
// signer's own bit.
func (a *Account) AvailableSignersFilter() filter.SignerSetFilter { return a.availableSigners }

// SignerBasePubkeys returns the sorted signer base pubkey list this
// account was constructed with.
func (a *Account) SignerBasePubkeys() []curve.Point { return a.signers }

// LocalKeyshareScalars returns the private scalar of every finalized
// keyshare window this local signer currently holds, in window-index
// order. Used by api/keyimage to build the matrix proof backing a
// partial-KI message (spec section 4.8): the same private scalars that
// back TryGetAggregateSigningKey's per-window G contributions also back
// each window's partial key image under Hp(Ko).
func (a *Account) LocalKeyshareScalars() []*curve.Scalar {
	var out []*curve.Scalar
	for _, ks := range a.keyshares {
		if ks.Priv != nil {
			out = append(out, ks.Priv)
		}
	}
	return out
}
