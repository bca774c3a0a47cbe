package tmdb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

const (
	// DefaultCacheTTL keeps search responses for an hour.
	DefaultCacheTTL = time.Hour

	cacheKeyPrefix   = "tmdb:search"
	cacheCallTimeout = 2 * time.Second
)

// Cache stores raw search payloads by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ValkeyCache keeps search responses in a valkey (or redis) instance.
type ValkeyCache struct {
	client valkey.Client
}

// NewValkeyClient dials the cache at address ("host:port").
func NewValkeyClient(address string) (valkey.Client, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("valkey cache: address required")
	}
	return valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{address},
		DisableCache: true,
	})
}

// NewValkeyCache wraps an existing client.
func NewValkeyCache(client valkey.Client) *ValkeyCache {
	return &ValkeyCache{client: client}
}

func (c *ValkeyCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, cacheCallTimeout)
	defer cancel()

	data, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, len(data) > 0, nil
}

func (c *ValkeyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, cacheCallTimeout)
	defer cancel()

	return c.client.Do(ctx, c.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Ex(ttl).Build()).Error()
}

// MemoryCache is an in-process Cache used when no valkey address is configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache builds an empty in-process cache.
func NewMemoryCache(clock func() time.Time) *MemoryCache {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryCache{entries: make(map[string]memoryEntry), clock: clock}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.clock().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: c.clock().Add(ttl),
	}
	return nil
}

func cacheKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return cacheKeyPrefix + ":" + normalized
}
