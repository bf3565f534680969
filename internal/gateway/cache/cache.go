package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mrmushfiq/llm0-express/internal/express/dispatch"
	"github.com/mrmushfiq/llm0-express/internal/shared/models"
	"github.com/mrmushfiq/llm0-express/internal/shared/redis"
)

// Store is the key/value backend the cache needs
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// Recorder receives cache hit/miss events
type Recorder interface {
	RecordCacheHit(model string)
	RecordCacheMiss(model string)
}

type Cache struct {
	store Store
}

// New creates a new cache instance
func New(store Store) *Cache {
	return &Cache{store: store}
}

// generateCacheKey generates a hash of the request for caching
func (c *Cache) generateCacheKey(model string, messages []models.Message, opts dispatch.Options) (string, error) {
	// Create a deterministic key from the request
	keyData, err := json.Marshal(struct {
		Model    string           `json:"model"`
		Messages []models.Message `json:"messages"`
		Options  dispatch.Options `json:"options"`
	}{model, messages, opts})
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(keyData)
	return "cache:exact:" + hex.EncodeToString(hash[:]), nil
}

// Get retrieves a cached response
func (c *Cache) Get(ctx context.Context, model string, messages []models.Message, opts dispatch.Options) (*dispatch.Response, error) {
	key, err := c.generateCacheKey(model, messages, opts)
	if err != nil {
		return nil, err
	}

	val, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	// Deserialize
	var cachedResp dispatch.Response
	if err := json.Unmarshal([]byte(val), &cachedResp); err != nil {
		return nil, fmt.Errorf("failed to deserialize cached response: %w", err)
	}

	return &cachedResp, nil
}

// Set stores a response in cache
func (c *Cache) Set(ctx context.Context, model string, messages []models.Message, opts dispatch.Options, resp *dispatch.Response, ttl time.Duration) error {
	key, err := c.generateCacheKey(model, messages, opts)
	if err != nil {
		return err
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to serialize response: %w", err)
	}

	return c.store.Set(ctx, key, string(data), ttl)
}

// Invoker serves repeated requests from the cache and forwards the rest
type Invoker struct {
	next     dispatch.Invoker
	cache    *Cache
	ttl      time.Duration
	recorder Recorder
	logger   *zap.Logger
}

// NewInvoker wraps next with the cache; recorder may be nil
func NewInvoker(next dispatch.Invoker, cache *Cache, ttl time.Duration, recorder Recorder, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		next:     next,
		cache:    cache,
		ttl:      ttl,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "cache")),
	}
}

func (i *Invoker) Invoke(ctx context.Context, model string, messages []models.Message, opts dispatch.Options) (*dispatch.Response, error) {
	cached, err := i.cache.Get(ctx, model, messages, opts)
	if err == nil {
		if i.recorder != nil {
			i.recorder.RecordCacheHit(model)
		}
		cached.Cached = true
		cached.LatencyMs = 0
		return cached, nil
	}
	if !errors.Is(err, redis.ErrNotFound) {
		// a broken cache must not fail the request
		i.logger.Warn("cache lookup failed", zap.Error(err))
	}
	if i.recorder != nil {
		i.recorder.RecordCacheMiss(model)
	}

	resp, err := i.next.Invoke(ctx, model, messages, opts)
	if err != nil {
		return nil, err
	}

	if err := i.cache.Set(ctx, model, messages, opts, resp, i.ttl); err != nil {
		i.logger.Warn("cache store failed", zap.Error(err))
	}
	return resp, nil
}

var _ dispatch.Invoker = (*Invoker)(nil)
