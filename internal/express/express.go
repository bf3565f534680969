// Package express dispatches many independent chat requests to a
// rate-limited endpoint and returns the replies in input order.
//
//	x := express.New(limits.OpenAI(), estimator, invoker, express.Options{Logger: logger})
//	results, err := x.FastChatCompletion(ctx, requests, "gpt-3.5-turbo", limits.Tier4, dispatch.Options{})
//
// Both entry points resolve the model's limits before doing anything else,
// so an unknown model or tier fails with a configuration error without a
// single remote call.
package express

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mrmushfiq/llm0-express/internal/express/dispatch"
	"github.com/mrmushfiq/llm0-express/internal/express/limits"
	"github.com/mrmushfiq/llm0-express/internal/express/planner"
	"github.com/mrmushfiq/llm0-express/internal/shared/models"
)

// Estimator returns the cost function that prices message lists for a model
type Estimator interface {
	ForModel(model string) func([]models.Message) (int, error)
}

// RunLogger persists one row per dispatched batch
type RunLogger interface {
	LogBatch(ctx context.Context, log *models.BatchLog) error
}

// UsageTracker counts dispatched requests against the daily limit
type UsageTracker interface {
	Add(ctx context.Context, model string, lim limits.Limit, n int) (int64, bool, error)
}

// Options wires the optional collaborators and dispatch tuning
type Options struct {
	Window       time.Duration
	Workers      int
	BatchTimeout time.Duration
	Observer     dispatch.Observer
	RunLog       RunLogger
	Usage        UsageTracker
	Logger       *zap.Logger
}

// Express is the batch dispatcher service
type Express struct {
	limits    *limits.Table
	estimator Estimator
	invoker   dispatch.Invoker
	opts      Options
	logger    *zap.Logger
}

// Run is the outcome of one call
type Run struct {
	ID      string           `json:"run_id"`
	Batches int              `json:"batches"`
	Limit   limits.Limit     `json:"limit"`
	Results dispatch.Results `json:"results"`
}

// New creates an Express service
func New(table *limits.Table, estimator Estimator, invoker dispatch.Invoker, opts Options) *Express {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Express{
		limits:    table,
		estimator: estimator,
		invoker:   invoker,
		opts:      opts,
		logger:    opts.Logger.With(zap.String("component", "express")),
	}
}

// FastChatCompletion dispatches requests one window at a time from the
// calling goroutine
func (x *Express) FastChatCompletion(ctx context.Context, requests []planner.Request, model string, tier limits.Tier, opts dispatch.Options) (dispatch.Results, error) {
	run, err := x.Complete(ctx, dispatch.Cooperative, requests, model, tier, opts)
	if err != nil {
		return nil, err
	}
	return run.Results, nil
}

// FastChatCompletionWorker dispatches requests through the worker pool
func (x *Express) FastChatCompletionWorker(ctx context.Context, requests []planner.Request, model string, tier limits.Tier, opts dispatch.Options) (dispatch.Results, error) {
	run, err := x.Complete(ctx, dispatch.Pool, requests, model, tier, opts)
	if err != nil {
		return nil, err
	}
	return run.Results, nil
}

// Complete looks up limits, plans, dispatches with strategy and
// aggregates. Per-request failures stay in their result slot; the error
// return is for configuration errors, worker failures and cancellation.
func (x *Express) Complete(ctx context.Context, strategy dispatch.Strategy, requests []planner.Request, model string, tier limits.Tier, opts dispatch.Options) (*Run, error) {
	lim, err := x.limits.Lookup(model, tier)
	if err != nil {
		return nil, err
	}

	run := &Run{ID: uuid.NewString(), Limit: lim}
	logger := x.logger.With(
		zap.String("run_id", run.ID),
		zap.String("model", model),
		zap.String("tier", string(tier)),
		zap.String("strategy", string(strategy)),
	)

	plan, err := planner.Make(requests, x.estimator.ForModel(model), lim, logger)
	if err != nil {
		return nil, err
	}
	run.Batches = len(plan.Batches)

	logger.Info("dispatching",
		zap.Int("requests", len(requests)),
		zap.Int("batches", len(plan.Batches)),
		zap.Int("rpm", lim.RPM),
		zap.Int("tpm", lim.TPM),
	)

	observers := dispatch.Observers{}
	if x.opts.Observer != nil {
		observers = append(observers, x.opts.Observer)
	}
	if x.opts.RunLog != nil || x.opts.Usage != nil {
		observers = append(observers, &runObserver{
			ctx:      ctx,
			runID:    run.ID,
			tier:     tier,
			strategy: strategy,
			limit:    lim,
			runLog:   x.opts.RunLog,
			usage:    x.opts.Usage,
			logger:   logger,
		})
	}

	engine := dispatch.NewEngine(x.invoker, dispatch.Config{
		Window:       x.opts.Window,
		Workers:      x.opts.Workers,
		BatchTimeout: x.opts.BatchTimeout,
		Observer:     observers,
		Logger:       logger,
	})

	start := time.Now()
	results, err := engine.Run(ctx, strategy, model, opts, plan)
	if err != nil {
		logger.Error("dispatch failed", zap.Error(err))
		return nil, err
	}
	run.Results = results

	logger.Info("dispatch finished",
		zap.Int("results", len(results)),
		zap.Int("failed", results.Failed()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return run, nil
}
