package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mrmushfiq/llm0-express/internal/express/limits"
)

// Counter is the windowed counter backend
type Counter interface {
	IncrWindow(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error)
}

// UsageCounter tracks requests per model per UTC day against the RPD
// column of the limit table. It only warns; dispatch is never blocked.
type UsageCounter struct {
	counter Counter
	now     func() time.Time
	logger  *zap.Logger
}

// NewUsageCounter creates a counter over c
func NewUsageCounter(c Counter, logger *zap.Logger) *UsageCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsageCounter{
		counter: c,
		now:     time.Now,
		logger:  logger.With(zap.String("component", "usage")),
	}
}

func (u *UsageCounter) key(model string) string {
	return fmt.Sprintf("usage:rpd:%s:%s", model, u.now().UTC().Format("2006-01-02"))
}

// Add records n dispatched requests and reports whether the daily limit
// has been passed
func (u *UsageCounter) Add(ctx context.Context, model string, lim limits.Limit, n int) (int64, bool, error) {
	if n <= 0 {
		return 0, false, nil
	}
	total, err := u.counter.IncrWindow(ctx, u.key(model), int64(n), 24*time.Hour)
	if err != nil {
		return 0, false, fmt.Errorf("usage counter: %w", err)
	}

	over := lim.RPD > 0 && total > int64(lim.RPD)
	if over {
		u.logger.Warn("daily request limit exceeded, requests may be rejected upstream",
			zap.String("model", model),
			zap.Int64("today", total),
			zap.Int("rpd", lim.RPD),
		)
	}
	return total, over, nil
}
