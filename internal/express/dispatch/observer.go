package dispatch

import (
	"time"

	"github.com/mrmushfiq/llm0-express/internal/express/planner"
)

// Observer watches batch execution. Implementations must be safe for
// concurrent use; the pool strategy calls them from worker goroutines.
type Observer interface {
	BatchStarted(model string, b planner.Batch)
	BatchFinished(model string, b planner.Batch, results []Result, elapsed time.Duration)
	WindowWait(model string, d time.Duration)
}

// NopObserver ignores every event
type NopObserver struct{}

func (NopObserver) BatchStarted(string, planner.Batch) {}

func (NopObserver) BatchFinished(string, planner.Batch, []Result, time.Duration) {}

func (NopObserver) WindowWait(string, time.Duration) {}

// Observers fans events out to each observer in order
type Observers []Observer

func (obs Observers) BatchStarted(model string, b planner.Batch) {
	for _, o := range obs {
		o.BatchStarted(model, b)
	}
}

func (obs Observers) BatchFinished(model string, b planner.Batch, results []Result, elapsed time.Duration) {
	for _, o := range obs {
		o.BatchFinished(model, b, results, elapsed)
	}
}

func (obs Observers) WindowWait(model string, d time.Duration) {
	for _, o := range obs {
		o.WindowWait(model, d)
	}
}
