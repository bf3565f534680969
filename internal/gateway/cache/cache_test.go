package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrmushfiq/llm0-express/internal/express/dispatch"
	"github.com/mrmushfiq/llm0-express/internal/express/limits"
	"github.com/mrmushfiq/llm0-express/internal/shared/models"
	"github.com/mrmushfiq/llm0-express/internal/shared/redis"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := redis.New(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type countingInvoker struct {
	calls atomic.Int32
	err   error
}

func (c *countingInvoker) Invoke(_ context.Context, model string, messages []models.Message, _ dispatch.Options) (*dispatch.Response, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &dispatch.Response{ID: "r", Model: model, Content: "echo:" + messages[0].Content, LatencyMs: 40}, nil
}

type hitRecorder struct{ hits, misses int }

func (h *hitRecorder) RecordCacheHit(string)  { h.hits++ }
func (h *hitRecorder) RecordCacheMiss(string) { h.misses++ }

func TestInvoker_SecondCallIsServedFromCache(t *testing.T) {
	_, client := setupTestRedis(t)
	next := &countingInvoker{}
	rec := &hitRecorder{}
	inv := NewInvoker(next, New(client), time.Minute, rec, zap.NewNop())
	msgs := []models.Message{{Role: "user", Content: "hi"}}
	ctx := context.Background()

	first, err := inv.Invoke(ctx, "gpt-4", msgs, dispatch.Options{})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := inv.Invoke(ctx, "gpt-4", msgs, dispatch.Options{})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "echo:hi", second.Content)
	assert.Zero(t, second.LatencyMs)

	assert.EqualValues(t, 1, next.calls.Load())
	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 1, rec.misses)
}

func TestInvoker_KeyIncludesOptions(t *testing.T) {
	_, client := setupTestRedis(t)
	next := &countingInvoker{}
	inv := NewInvoker(next, New(client), time.Minute, nil, nil)
	msgs := []models.Message{{Role: "user", Content: "hi"}}
	temp := float32(0.9)

	_, err := inv.Invoke(context.Background(), "gpt-4", msgs, dispatch.Options{})
	require.NoError(t, err)
	_, err = inv.Invoke(context.Background(), "gpt-4", msgs, dispatch.Options{Temperature: &temp})
	require.NoError(t, err)
	_, err = inv.Invoke(context.Background(), "gpt-3.5-turbo", msgs, dispatch.Options{})
	require.NoError(t, err)

	assert.EqualValues(t, 3, next.calls.Load())
}

func TestInvoker_ErrorsAreNotCached(t *testing.T) {
	_, client := setupTestRedis(t)
	next := &countingInvoker{err: errors.New("upstream 500")}
	inv := NewInvoker(next, New(client), time.Minute, nil, nil)
	msgs := []models.Message{{Role: "user", Content: "hi"}}

	for i := 0; i < 2; i++ {
		_, err := inv.Invoke(context.Background(), "gpt-4", msgs, dispatch.Options{})
		assert.Error(t, err)
	}
	assert.EqualValues(t, 2, next.calls.Load())
}

func TestInvoker_BrokenCacheFallsThrough(t *testing.T) {
	mr, client := setupTestRedis(t)
	next := &countingInvoker{}
	inv := NewInvoker(next, New(client), time.Minute, nil, nil)
	mr.Close()

	resp, err := inv.Invoke(context.Background(), "gpt-4", []models.Message{{Role: "user", Content: "hi"}}, dispatch.Options{})
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", resp.Content)
}

func TestInvoker_Expiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	next := &countingInvoker{}
	inv := NewInvoker(next, New(client), time.Minute, nil, nil)
	msgs := []models.Message{{Role: "user", Content: "hi"}}

	_, err := inv.Invoke(context.Background(), "gpt-4", msgs, dispatch.Options{})
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = inv.Invoke(context.Background(), "gpt-4", msgs, dispatch.Options{})
	require.NoError(t, err)

	assert.EqualValues(t, 2, next.calls.Load())
}

func TestUsageCounter_Add(t *testing.T) {
	_, client := setupTestRedis(t)
	u := NewUsageCounter(client, zap.NewNop())
	u.now = func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }
	lim := limits.Limit{RPD: 5}
	ctx := context.Background()

	total, over, err := u.Add(ctx, "gpt-4", lim, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.False(t, over)

	total, over, err = u.Add(ctx, "gpt-4", lim, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 6, total)
	assert.True(t, over)

	// a new day starts a new counter
	u.now = func() time.Time { return time.Date(2026, 10, 19, 0, 0, 1, 0, time.UTC) }
	total, over, err = u.Add(ctx, "gpt-4", lim, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.False(t, over)
}

func TestUsageCounter_NoRPD(t *testing.T) {
	_, client := setupTestRedis(t)
	u := NewUsageCounter(client, nil)

	_, over, err := u.Add(context.Background(), "gpt-4", limits.Limit{RPD: 0}, 100)
	require.NoError(t, err)
	assert.False(t, over)

	total, _, err := u.Add(context.Background(), "gpt-4", limits.Limit{}, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}
