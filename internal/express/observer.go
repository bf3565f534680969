package express

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mrmushfiq/llm0-express/internal/express/dispatch"
	"github.com/mrmushfiq/llm0-express/internal/express/limits"
	"github.com/mrmushfiq/llm0-express/internal/express/planner"
	"github.com/mrmushfiq/llm0-express/internal/shared/models"
)

// runObserver writes the run log and usage counters for one call.
// Failures are logged and never affect dispatch.
type runObserver struct {
	ctx      context.Context
	runID    string
	tier     limits.Tier
	strategy dispatch.Strategy
	limit    limits.Limit
	runLog   RunLogger
	usage    UsageTracker
	logger   *zap.Logger
}

func (o *runObserver) BatchStarted(model string, b planner.Batch) {
	if o.usage == nil {
		return
	}
	if _, _, err := o.usage.Add(o.ctx, model, o.limit, b.Sendable()); err != nil {
		o.logger.Warn("failed to count usage", zap.Error(err))
	}
}

func (o *runObserver) BatchFinished(model string, b planner.Batch, results []dispatch.Result, elapsed time.Duration) {
	if o.runLog == nil {
		return
	}

	log := &models.BatchLog{
		RunID:      o.runID,
		BatchIndex: b.Index,
		Model:      model,
		Tier:       string(o.tier),
		Strategy:   string(o.strategy),
		Requests:   len(b.Entries),
		Skipped:    b.Skipped(),
		CostTokens: b.Cost(),
		LatencyMs:  int(elapsed.Milliseconds()),
	}
	var errs []string
	for _, r := range results {
		if r.Err != nil {
			log.Failed++
			errs = append(errs, r.Err.Error())
		}
	}
	if len(errs) > 0 {
		msg := strings.Join(errs, "; ")
		log.ErrorMessage = &msg
	}

	// the caller may have cancelled; the row is still worth keeping
	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), 5*time.Second)
	defer cancel()
	if err := o.runLog.LogBatch(ctx, log); err != nil {
		o.logger.Warn("failed to log batch", zap.Int("batch", b.Index), zap.Error(err))
	}
}

func (o *runObserver) WindowWait(string, time.Duration) {}
