package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/perclft/qcircuit/circuit"
)

// ------------------------------------------------------------------
// Redis report cache
// ------------------------------------------------------------------

// HashCircuit is the cache key of c transpiled for backend: the hex sha256
// of the backend name and the circuit's JSON form.
func HashCircuit(backend string, c circuit.Circuit) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", errors.Wrap(err, "encode circuit")
	}
	h := sha256.New()
	h.Write([]byte(backend))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

type cachedEntry struct {
	Report   Report `json:"report"`
	CachedAt int64  `json:"cached_at"`
}

// CacheStats counts lookups since the cache was created.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// RedisCache keeps reports under "cache:<hash>" with a fixed TTL.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func cacheKey(hash string) string { return "cache:" + hash }

func (c *RedisCache) Get(ctx context.Context, hash string) (Report, bool, error) {
	data, err := c.rdb.Get(ctx, cacheKey(hash)).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		cacheLookupsTotal.WithLabelValues("miss").Inc()
		return Report{}, false, nil
	}
	if err != nil {
		return Report{}, false, errors.Wrap(err, "read cached report")
	}
	var entry cachedEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Report{}, false, errors.Wrap(err, "decode cached report")
	}
	c.hits.Add(1)
	cacheLookupsTotal.WithLabelValues("hit").Inc()
	return entry.Report, true, nil
}

func (c *RedisCache) Put(ctx context.Context, hash string, r Report) error {
	data, err := json.Marshal(cachedEntry{Report: r, CachedAt: time.Now().Unix()})
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	if err := c.rdb.Set(ctx, cacheKey(hash), data, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "cache report")
	}
	return nil
}

// Invalidate drops one cached report and reports whether it existed.
func (c *RedisCache) Invalidate(ctx context.Context, hash string) (bool, error) {
	n, err := c.rdb.Del(ctx, cacheKey(hash)).Result()
	if err != nil {
		return false, errors.Wrap(err, "invalidate report")
	}
	return n > 0, nil
}

func (c *RedisCache) Stats() CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	st := CacheStats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		st.HitRate = float64(hits) / float64(total)
	}
	return st
}
