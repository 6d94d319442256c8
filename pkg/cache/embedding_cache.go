// Package cache provides a size-bounded, TTL-based cache for query
// embeddings.
//
// Embedding the same query text repeatedly is the hottest external call on
// the retrieval path; caching the vector keyed by tenant and text avoids
// re-embedding identical queries inside the TTL window.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Default sizing for the embedding cache.
const (
	// DefaultMaxCost bounds the cache at roughly 64 MiB of vector data.
	DefaultMaxCost = 64 << 20

	// DefaultTTL is how long a cached embedding stays valid.
	DefaultTTL = 5 * time.Minute
)

// Config configures an EmbeddingCache.
type Config struct {
	// MaxCost is the cache's total cost budget in bytes; each entry costs
	// its vector size. Zero means DefaultMaxCost.
	MaxCost int64

	// TTL is the entry lifetime. Zero means DefaultTTL.
	TTL time.Duration
}

// EmbeddingCache caches query embeddings keyed by tenant and query text.
//
// Entries expire after the configured TTL and the cache evicts under its
// cost budget, so stale or cold vectors never accumulate. Safe for
// concurrent use.
type EmbeddingCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// New creates an EmbeddingCache.
func New(cfg Config) (*EmbeddingCache, error) {
	maxCost := cfg.MaxCost
	if maxCost <= 0 {
		maxCost = DefaultMaxCost
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		// Ristretto recommends 10x the expected unique item count; with
		// 8 KiB entries (1536 dims) the budget holds ~8k vectors.
		NumCounters: maxCost / 1024,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &EmbeddingCache{cache: cache, ttl: ttl}, nil
}

// Get returns the cached embedding for a tenant's query text, if present
// and not expired.
func (c *EmbeddingCache) Get(tenantID, text string) ([]float64, bool) {
	value, ok := c.cache.Get(key(tenantID, text))
	if !ok {
		return nil, false
	}
	embedding, ok := value.([]float64)
	return embedding, ok
}

// Set stores an embedding for a tenant's query text. Ristretto admission is
// best-effort; a rejected set is not an error.
func (c *EmbeddingCache) Set(tenantID, text string, embedding []float64) {
	cost := int64(len(embedding) * 8)
	c.cache.SetWithTTL(key(tenantID, text), embedding, cost, c.ttl)
}

// Wait blocks until pending sets are applied. Intended for tests.
func (c *EmbeddingCache) Wait() {
	c.cache.Wait()
}

// Close releases the cache's resources.
func (c *EmbeddingCache) Close() {
	c.cache.Close()
}

// key hashes tenant and text together so tenants never share entries and
// arbitrary text lengths map to fixed-size keys.
func key(tenantID, text string) string {
	h := sha256.New()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
