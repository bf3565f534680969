// Package dispatch sends planned batches to a chat-completion endpoint and
// reassembles the replies in input order.
//
// Two strategies share the same per-batch execution: Cooperative runs the
// batches one window at a time from the calling goroutine, Pool fans them
// out to a fixed set of worker goroutines fed through a work channel.
// Either way every request of a batch is issued concurrently, a skip entry
// never reaches the Invoker, and results carry their batch index so the
// aggregator restores the planned order regardless of completion order.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mrmushfiq/llm0-express/internal/express/limits"
	"github.com/mrmushfiq/llm0-express/internal/express/planner"
	"github.com/mrmushfiq/llm0-express/internal/shared/models"
)

var (
	// ErrMalformedWork means a work unit lacks its model or message list
	ErrMalformedWork = fmt.Errorf("%w: malformed work unit", limits.ErrConfiguration)
	// ErrWorkerFailure means a worker died or exceeded the batch timeout
	ErrWorkerFailure = errors.New("worker failure")
	// ErrAggregate means per-batch results do not line up with the plan
	ErrAggregate = errors.New("result aggregation mismatch")
)

const (
	// DefaultWindow is one minute plus a two second safety margin
	DefaultWindow       = 62 * time.Second
	DefaultBatchTimeout = 10 * time.Minute
)

// Options are generation parameters passed through to the endpoint unchanged
type Options struct {
	Temperature      *float32 `json:"temperature,omitempty"`
	TopP             *float32 `json:"top_p,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	N                int      `json:"n,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	PresencePenalty  *float32 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float32 `json:"frequency_penalty,omitempty"`
	Seed             *int     `json:"seed,omitempty"`
	User             string   `json:"user,omitempty"`
}

// Response is the endpoint's reply to one request
type Response struct {
	ID               string   `json:"id"`
	Model            string   `json:"model"`
	Content          string   `json:"content"`
	Choices          []string `json:"choices,omitempty"`
	FinishReason     string   `json:"finish_reason,omitempty"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	LatencyMs        int      `json:"latency_ms,omitempty"`
	Cached           bool     `json:"cached,omitempty"`
}

// Invoker is the remote chat-completion call. Errors are reported per
// request and never retried here.
type Invoker interface {
	Invoke(ctx context.Context, model string, messages []models.Message, opts Options) (*Response, error)
}

// InvokerFunc adapts a function to Invoker
type InvokerFunc func(ctx context.Context, model string, messages []models.Message, opts Options) (*Response, error)

func (f InvokerFunc) Invoke(ctx context.Context, model string, messages []models.Message, opts Options) (*Response, error) {
	return f(ctx, model, messages, opts)
}

// Result is one output slot, aligned with the input position
type Result struct {
	Position int       `json:"index"`
	Response *Response `json:"response,omitempty"`
	Skipped  bool      `json:"skipped,omitempty"`
	Err      error     `json:"-"`
}

// Results is the flat, input ordered output of a dispatch
type Results []Result

// Err combines every per-slot error, or returns nil
func (rs Results) Err() error {
	var err error
	for _, r := range rs {
		if r.Err != nil {
			err = multierr.Append(err, fmt.Errorf("request %d: %w", r.Position, r.Err))
		}
	}
	return err
}

// Responses returns the responses with nil for skipped and failed slots
func (rs Results) Responses() []*Response {
	out := make([]*Response, len(rs))
	for i, r := range rs {
		out[i] = r.Response
	}
	return out
}

// Failed returns the number of slots holding an error
func (rs Results) Failed() int {
	n := 0
	for _, r := range rs {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Strategy selects how batches are executed
type Strategy string

const (
	Cooperative Strategy = "cooperative"
	Pool        Strategy = "pool"
)

// ParseStrategy accepts "cooperative" or "pool" (also "worker")
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(Cooperative):
		return Cooperative, nil
	case string(Pool), "worker":
		return Pool, nil
	}
	return "", fmt.Errorf("%w: unknown dispatch strategy %q", limits.ErrConfiguration, s)
}

// Job is one unit of work handed to a batch executor
type Job struct {
	Model   string
	Options Options
	Batch   planner.Batch
}

func (j Job) validate() error {
	if j.Model == "" {
		return fmt.Errorf("%w: batch %d has no model", ErrMalformedWork, j.Batch.Index)
	}
	for _, e := range j.Batch.Entries {
		if e.Skip {
			continue
		}
		if e.Request == nil || len(e.Request.Messages) == 0 {
			return fmt.Errorf("%w: request %d has no messages", ErrMalformedWork, e.Position)
		}
	}
	return nil
}

// ValidatePlan checks every batch of plan as a work unit for model, so a
// malformed request fails the call before the first batch is sent
func ValidatePlan(model string, plan planner.Plan) error {
	for _, b := range plan.Batches {
		if err := (Job{Model: model, Batch: b}).validate(); err != nil {
			return err
		}
	}
	return nil
}

// Config tunes an Engine
type Config struct {
	// Window is the minimum spacing between batch starts
	Window time.Duration
	// Workers is the pool size; 0 means runtime.NumCPU()
	Workers int
	// BatchTimeout bounds how long the pool waits on one batch; 0 disables it
	BatchTimeout time.Duration
	Observer     Observer
	Logger       *zap.Logger
}

// Engine executes plans against an Invoker
type Engine struct {
	invoker      Invoker
	window       time.Duration
	workers      int
	batchTimeout time.Duration
	observer     Observer
	logger       *zap.Logger
}

// NewEngine creates an engine; zero Config fields take their defaults
// except BatchTimeout, where zero disables the watchdog.
func NewEngine(invoker Invoker, cfg Config) *Engine {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{
		invoker:      invoker,
		window:       cfg.Window,
		workers:      cfg.Workers,
		batchTimeout: cfg.BatchTimeout,
		observer:     cfg.Observer,
		logger:       cfg.Logger.With(zap.String("component", "dispatch")),
	}
}

// Run executes plan with the selected strategy
func (e *Engine) Run(ctx context.Context, strategy Strategy, model string, opts Options, plan planner.Plan) (Results, error) {
	switch strategy {
	case Cooperative, "":
		return e.Cooperative(ctx, model, opts, plan)
	case Pool:
		return e.Pool(ctx, model, opts, plan)
	}
	return nil, fmt.Errorf("%w: unknown dispatch strategy %q", limits.ErrConfiguration, strategy)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
