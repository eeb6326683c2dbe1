package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/triage-ai/backend/internal/models"
)

// Cache memoizes classifier output keyed by ticket text so repeated runs
// over the same batch skip the model call.
type Cache interface {
	Get(ctx context.Context, key string) (models.Enrichment, bool)
	Set(ctx context.Context, key string, e models.Enrichment)
}

func cacheKey(model, title, body string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(model))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(title))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(body))
	return fmt.Sprintf("triage:enrichment:%x", h.Sum64())
}

type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value models.Enrichment
	exp   time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, entries: map[string]memoryEntry{}}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (models.Enrichment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		if time.Now().Before(e.exp) {
			return e.value, true
		}
		delete(m.entries, key)
	}
	return models.Enrichment{}, false
}

func (m *MemoryCache) Set(ctx context.Context, key string, e models.Enrichment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: e, exp: time.Now().Add(m.ttl)}
}

// RedisCache shares enrichment results across processes. Failures are
// treated as cache misses; the classifier never depends on Redis health.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: client, TTL: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) (models.Enrichment, bool) {
	b, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		return models.Enrichment{}, false
	}
	var e models.Enrichment
	if err := json.Unmarshal(b, &e); err != nil {
		return models.Enrichment{}, false
	}
	return e, true
}

func (r *RedisCache) Set(ctx context.Context, key string, e models.Enrichment) {
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = r.Client.Set(ctx, key, b, r.TTL).Err()
}
