package dispatch

import (
	"fmt"

	"github.com/mrmushfiq/llm0-express/internal/express/planner"
)

// Aggregate flattens per-batch results, indexed by batch index, back into
// input order. It fails if any batch is missing or the wrong size.
func Aggregate(plan planner.Plan, perBatch [][]Result) (Results, error) {
	if len(perBatch) != len(plan.Batches) {
		return nil, fmt.Errorf("%w: %d batches planned, %d reported", ErrAggregate, len(plan.Batches), len(perBatch))
	}

	out := make(Results, 0, plan.Len())
	for i, b := range plan.Batches {
		got := perBatch[i]
		if len(got) != len(b.Entries) {
			return nil, fmt.Errorf("%w: batch %d has %d entries, %d results", ErrAggregate, i, len(b.Entries), len(got))
		}
		for j, entry := range b.Entries {
			if got[j].Position != entry.Position {
				return nil, fmt.Errorf("%w: batch %d slot %d holds position %d, want %d",
					ErrAggregate, i, j, got[j].Position, entry.Position)
			}
		}
		out = append(out, got...)
	}
	return out, nil
}
