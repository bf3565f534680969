package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mrmushfiq/llm0-express/internal/express/planner"
)

// work is a job tagged with its batch index
type work struct {
	index int
	job   Job
}

// batchResult carries the batch index back so order never depends on
// which worker finished first
type batchResult struct {
	index   int
	results []Result
	err     error
}

// Pool fans the batches of plan out to worker goroutines. The supervisor
// enqueues one batch per window (the first immediately) and then closes
// the work channel, which stops every worker. It drains exactly one result
// per batch; a batch that produces nothing within BatchTimeout of a worker
// picking it up fails the call with ErrWorkerFailure. Time spent queued
// behind busy workers does not count.
func (e *Engine) Pool(ctx context.Context, model string, opts Options, plan planner.Plan) (Results, error) {
	if err := ValidatePlan(model, plan); err != nil {
		return nil, err
	}
	n := len(plan.Batches)
	if n == 0 {
		return Aggregate(plan, nil)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := e.workers
	if workers > n {
		workers = n
	}

	jobs := make(chan work, n)
	results := make(chan batchResult, n)
	started := make(chan int, n)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.worker(ctx, id, jobs, started, results)
		}(w)
	}

	go e.supervise(ctx, model, opts, plan, jobs)

	perBatch, err := e.drain(ctx, n, results, started)
	if err != nil {
		// a hung worker may never return, so do not wait for the pool here
		cancel()
		return nil, err
	}
	wg.Wait()

	return Aggregate(plan, perBatch)
}

// supervise enqueues the batches, spaced one window apart
func (e *Engine) supervise(ctx context.Context, model string, opts Options, plan planner.Plan, jobs chan<- work) {
	defer close(jobs)

	for i, b := range plan.Batches {
		if i > 0 {
			e.observer.WindowWait(model, e.window)
			if err := sleepCtx(ctx, e.window); err != nil {
				return
			}
		}
		select {
		case jobs <- work{index: i, job: Job{Model: model, Options: opts, Batch: b}}:
		case <-ctx.Done():
			return
		}
		e.logger.Debug("batch enqueued", zap.Int("batch", i), zap.Int("batches", len(plan.Batches)))
	}
}

// worker runs jobs until the work channel is closed, announcing each
// batch on started as it picks it up
func (e *Engine) worker(ctx context.Context, id int, jobs <-chan work, started chan<- int, results chan<- batchResult) {
	for w := range jobs {
		started <- w.index
		results <- e.runGuarded(ctx, id, w)
	}
}

func (e *Engine) runGuarded(ctx context.Context, id int, w work) (br batchResult) {
	br.index = w.index
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("worker panicked", zap.Int("worker", id), zap.Int("batch", w.index), zap.Any("panic", r))
			br.results = nil
			br.err = fmt.Errorf("%w: worker %d panicked on batch %d: %v", ErrWorkerFailure, id, w.index, r)
		}
	}()

	if e.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.batchTimeout)
		defer cancel()
	}
	br.results, br.err = e.runBatch(ctx, w.job)
	return br
}

// drain collects one result per batch. Each batch gets a deadline of
// BatchTimeout from its pickup; the earliest outstanding deadline arms the timer.
func (e *Engine) drain(ctx context.Context, n int, results <-chan batchResult, started <-chan int) ([][]Result, error) {
	perBatch := make([][]Result, n)
	pending := make(map[int]time.Time, n)
	received := make(map[int]bool, n)

	for len(received) < n {
		var timeout <-chan time.Time
		var timer *time.Timer
		if _, deadline, ok := earliest(pending); ok && e.batchTimeout > 0 {
			timer = time.NewTimer(time.Until(deadline))
			timeout = timer.C
		}

		select {
		case idx := <-started:
			if !received[idx] {
				pending[idx] = time.Now().Add(e.batchTimeout)
			}
		case r := <-results:
			if r.err != nil {
				stopTimer(timer)
				return nil, r.err
			}
			if received[r.index] {
				stopTimer(timer)
				return nil, fmt.Errorf("%w: batch %d reported twice", ErrAggregate, r.index)
			}
			received[r.index] = true
			delete(pending, r.index)
			perBatch[r.index] = r.results
		case <-timeout:
			idx, _, _ := earliest(pending)
			return nil, fmt.Errorf("%w: batch %d produced no result within %s", ErrWorkerFailure, idx, e.batchTimeout)
		case <-ctx.Done():
			stopTimer(timer)
			return nil, ctx.Err()
		}
		stopTimer(timer)
	}
	return perBatch, nil
}

func earliest(pending map[int]time.Time) (int, time.Time, bool) {
	idx, first, ok := -1, time.Time{}, false
	for i, d := range pending {
		if !ok || d.Before(first) || (d.Equal(first) && i < idx) {
			idx, first, ok = i, d, true
		}
	}
	return idx, first, ok
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
