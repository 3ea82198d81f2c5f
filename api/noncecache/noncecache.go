// Package noncecache implements the three-level nonce store
// msg -> proof-key -> signer-subgroup -> private nonces, grounded on
// original_source/src/multisig/multisig_nonce_cache.{h,cpp}.
package noncecache

import (
	"sync"

	"go.uber.org/zap"

	"github.com/readytrader-crypto/mpc-multisig/api/curve"
	"github.com/readytrader-crypto/mpc-multisig/api/filter"
)

// PubNonces is the public half of a nonce pair, stored as
// ((1/8)*alpha1*J, (1/8)*alpha2*J) for some base J. Sortable by first then
// second component (byte-comparison equivalent), matching
// multisig_nonce_cache.cpp's operator< on MultisigPubNonces.
type PubNonces struct {
	Nonce1Pub *curve.Point
	Nonce2Pub *curve.Point
}

// Less implements the canonical comparator: first component then second,
// compared as canonical byte encodings.
func (a PubNonces) Less(b PubNonces) bool {
	c1 := compareBytes(a.Nonce1Pub.Bytes(), b.Nonce1Pub.Bytes())
	if c1 != 0 {
		return c1 < 0
	}
	return compareBytes(a.Nonce2Pub.Bytes(), b.Nonce2Pub.Bytes()) < 0
}

func (a PubNonces) Equal(b PubNonces) bool {
	return a.Nonce1Pub.Equal(b.Nonce1Pub) && a.Nonce2Pub.Equal(b.Nonce2Pub)
}

func compareBytes(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// privNonces is the local signer's secret nonce pair, never serialized
// outside an explicit export/import call.
type privNonces struct {
	nonce1Priv *curve.Scalar
	nonce2Priv *curve.Scalar
}

type recordKey struct {
	message  [32]byte
	proofKey [32]byte
	filter   filter.SignerSetFilter
}

// ExportedRecord is one flattened entry of the cache's persisted state.
type ExportedRecord struct {
	Message    [32]byte
	ProofKey   [32]byte
	Filter     filter.SignerSetFilter
	Nonce1Priv *curve.Scalar
	Nonce2Priv *curve.Scalar
}

// Cache is the per-process, single-writer nonce store. Callers are
// responsible for flushing export() to durable storage before a produced
// partial signature leaves the process (spec section 4.4 persistence
// warning); this type enforces none of that by itself, it only guarantees
// single-use in memory.
type Cache struct {
	mu   sync.RWMutex
	data map[recordKey]privNonces
	log  *zap.Logger
}

// New builds an empty cache. A nil logger defaults to a no-op logger.
func New(log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{data: make(map[recordKey]privNonces), log: log}
}

// NewFromExport reconstructs a cache from previously exported records.
// Per-record failures (duplicate, or proof-key not in the prime-order
// subgroup) are silently ignored, matching the raw-tuple constructor in
// multisig_nonce_cache.cpp.
func NewFromExport(log *zap.Logger, records []ExportedRecord) *Cache {
	c := New(log)
	for _, rec := range records {
		c.tryAddImpl(rec.Message, rec.ProofKey, rec.Filter, privNonces{rec.Nonce1Priv, rec.Nonce2Priv})
	}
	return c
}

func key32(b []byte) [32]byte {
	var k [32]byte
	copy(k[:], b)
	return k
}

// Has reports whether a record exists for (message, proofKey, filter).
func (c *Cache) Has(message, proofKey []byte, f filter.SignerSetFilter) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.data[recordKey{key32(message), key32(proofKey), f}]
	return ok
}

// TryAdd generates a fresh (alpha1, alpha2) pair and inserts it. Returns
// false without error if a record already exists or proofKey is not in the
// prime-order subgroup (spec: "fail silently").
func (c *Cache) TryAdd(message []byte, proofKey *curve.Point, f filter.SignerSetFilter) (bool, error) {
	a1, err := curve.NewRandomScalar()
	if err != nil {
		return false, err
	}
	a2, err := curve.NewRandomScalar()
	if err != nil {
		return false, err
	}
	ok := c.tryAddImpl(key32(message), key32(proofKey.Bytes()), f, privNonces{a1, a2})
	if ok {
		c.log.Debug("nonce added", zap.Uint64("filter", uint64(f)))
	}
	return ok, nil
}

func (c *Cache) tryAddImpl(message, proofKey [32]byte, f filter.SignerSetFilter, n privNonces) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := recordKey{message, proofKey, f}
	if _, exists := c.data[k]; exists {
		return false
	}
	proofKeyPoint, err := curve.PointFromCanonicalBytes(proofKey[:])
	if err != nil || !proofKeyPoint.InPrimeOrderSubgroup() {
		return false
	}
	c.data[k] = n
	return true
}

// TryGetPubkeysForBase returns ((1/8)*alpha1*base, (1/8)*alpha2*base).
// base must be in the prime-order subgroup and non-identity.
func (c *Cache) TryGetPubkeysForBase(message, proofKey []byte, f filter.SignerSetFilter, base *curve.Point) (PubNonces, bool) {
	if !base.InPrimeOrderSubgroup() || base.IsIdentity() {
		panic("noncecache: pubkey base is invalid")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.data[recordKey{key32(message), key32(proofKey), f}]
	if !ok {
		return PubNonces{}, false
	}
	invEight := curve.InvEight()
	return PubNonces{
		Nonce1Pub: base.ScalarMul(n.nonce1Priv).ScalarMul(invEight),
		Nonce2Pub: base.ScalarMul(n.nonce2Priv).ScalarMul(invEight),
	}, true
}

// TryGetRecordedPrivkeys returns the raw private nonce pair, exposed only
// to the local proof-engine invocation. It does not remove the record.
func (c *Cache) TryGetRecordedPrivkeys(message, proofKey []byte, f filter.SignerSetFilter) (*curve.Scalar, *curve.Scalar, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.data[recordKey{key32(message), key32(proofKey), f}]
	if !ok {
		return nil, nil, false
	}
	return n.nonce1Priv, n.nonce2Priv, true
}

// TryRemove erases the record. Cascading cleanup of empty intermediate maps
// is implicit since this cache is a single flat map keyed on the full
// composite key; callers observe the same has()==false contract as the
// nested-map original.
func (c *Cache) TryRemove(message, proofKey []byte, f filter.SignerSetFilter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := recordKey{key32(message), key32(proofKey), f}
	if _, ok := c.data[k]; !ok {
		return false
	}
	delete(c.data, k)
	c.log.Debug("nonce removed", zap.Uint64("filter", uint64(f)))
	return true
}

// Export flattens the cache to a vector of records for persistence. Callers
// must hold their own external write-lock discipline around export+disk
// writes per the spec's persistence warning; this call itself takes the
// cache's internal read lock only for the duration of the copy.
func (c *Cache) Export() []ExportedRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ExportedRecord, 0, len(c.data))
	for k, v := range c.data {
		out = append(out, ExportedRecord{
			Message:    k.message,
			ProofKey:   k.proofKey,
			Filter:     k.filter,
			Nonce1Priv: v.nonce1Priv,
			Nonce2Priv: v.nonce2Priv,
		})
	}
	return out
}
