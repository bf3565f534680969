package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mrmushfiq/llm0-express/internal/express/planner"
)

// Cooperative runs the batches of plan in order from the calling
// goroutine. Each batch starts at least one window after the previous one
// started, except that nothing waits after the last batch. Cancelling ctx
// aborts the whole call.
func (e *Engine) Cooperative(ctx context.Context, model string, opts Options, plan planner.Plan) (Results, error) {
	if err := ValidatePlan(model, plan); err != nil {
		return nil, err
	}
	perBatch := make([][]Result, len(plan.Batches))

	for i, b := range plan.Batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		results, err := e.runBatch(ctx, Job{Model: model, Options: opts, Batch: b})
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		perBatch[i] = results

		elapsed := time.Since(start)
		if elapsed < e.window && i+1 < len(plan.Batches) {
			wait := e.window - elapsed
			e.observer.WindowWait(model, wait)
			e.logger.Info("waiting for next rate window",
				zap.Int("next_batch", i+1),
				zap.Int("batches", len(plan.Batches)),
				zap.Duration("wait", wait),
			)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	return Aggregate(plan, perBatch)
}
