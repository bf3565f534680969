package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mrmushfiq/llm0-express/internal/shared/models"
)

// runBatch issues every sendable entry of job concurrently and waits for
// all of them. Per-request failures land in their slot; the returned error
// is reserved for a malformed work unit.
func (e *Engine) runBatch(ctx context.Context, job Job) ([]Result, error) {
	if err := job.validate(); err != nil {
		return nil, err
	}

	b := job.Batch
	e.observer.BatchStarted(job.Model, b)
	start := time.Now()

	results := make([]Result, len(b.Entries))
	var g errgroup.Group
	for i, entry := range b.Entries {
		results[i] = Result{Position: entry.Position}
		if entry.Skip {
			results[i].Skipped = true
			continue
		}
		i, entry := i, entry
		g.Go(func() error {
			resp, err := e.invoke(ctx, job, entry.Request.Messages)
			results[i].Response = resp
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	e.observer.BatchFinished(job.Model, b, results, elapsed)
	e.logger.Debug("batch finished",
		zap.Int("batch", b.Index),
		zap.Int("sent", b.Sendable()),
		zap.Int("skipped", b.Skipped()),
		zap.Int("tokens", b.Cost()),
		zap.Duration("elapsed", elapsed),
	)
	return results, nil
}

// invoke calls the Invoker, turning a panic into a slot error
func (e *Engine) invoke(ctx context.Context, job Job, messages []models.Message) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("invoker panicked", zap.Int("batch", job.Batch.Index), zap.Any("panic", r))
			resp, err = nil, fmt.Errorf("%w: invoker panicked: %v", ErrWorkerFailure, r)
		}
	}()
	return e.invoker.Invoke(ctx, job.Model, messages, job.Options)
}
