// Package planner packs chat requests into batches that fit a per-minute
// request and token envelope.
//
// The planner walks the input once, left to right, and never reorders.
// A request whose cost exceeds the context window is turned into a skip
// entry. Skip entries ride along in whatever batch is open when they are
// met, but they count toward neither the request nor the token budget
// because they are never sent.
package planner

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mrmushfiq/llm0-express/internal/express/limits"
	"github.com/mrmushfiq/llm0-express/internal/shared/models"
)

// Request is an immutable chat message list
type Request struct {
	Messages []models.Message `json:"messages"`
}

// CostFunc returns the token cost of a message list
type CostFunc func(messages []models.Message) (int, error)

// Entry is one input position inside a batch
type Entry struct {
	Position int
	Cost     int
	Request  *Request
	Skip     bool
}

// Batch is a group of entries dispatched inside one window
type Batch struct {
	Index   int
	Entries []Entry
}

// Sendable returns the number of entries that will reach the endpoint
func (b Batch) Sendable() int {
	n := 0
	for _, e := range b.Entries {
		if !e.Skip {
			n++
		}
	}
	return n
}

// Cost returns the summed cost of the sendable entries
func (b Batch) Cost() int {
	total := 0
	for _, e := range b.Entries {
		if !e.Skip {
			total += e.Cost
		}
	}
	return total
}

// Skipped returns the number of skip entries
func (b Batch) Skipped() int {
	return len(b.Entries) - b.Sendable()
}

// Plan is the ordered list of batches covering every input position once
type Plan struct {
	Batches []Batch
}

// Len returns the number of positions covered by the plan
func (p Plan) Len() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b.Entries)
	}
	return n
}

// Entries returns the plan flattened back into input order
func (p Plan) Entries() []Entry {
	out := make([]Entry, 0, p.Len())
	for _, b := range p.Batches {
		out = append(out, b.Entries...)
	}
	return out
}

// builder accumulates the batch under evaluation
type builder struct {
	lim      limits.Limit
	batches  []Batch
	current  []Entry
	sendable int
	tokens   int
}

func (b *builder) full(cost int) bool {
	if !b.lim.UnlimitedRPM() && b.sendable >= b.lim.RPM {
		return true
	}
	if !b.lim.UnlimitedTPM() && b.tokens+cost > b.lim.TPM {
		return true
	}
	return false
}

func (b *builder) close() {
	if len(b.current) == 0 {
		return
	}
	b.batches = append(b.batches, Batch{Index: len(b.batches), Entries: b.current})
	b.current = nil
	b.sendable = 0
	b.tokens = 0
}

func (b *builder) add(e Entry) {
	if e.Skip {
		b.current = append(b.current, e)
		return
	}
	// never close an empty batch: an over-TPM request gets its own singleton
	if b.sendable > 0 && b.full(e.Cost) {
		b.close()
	}
	b.current = append(b.current, e)
	b.sendable++
	b.tokens += e.Cost
}

// Make builds the plan for requests under lim. The only error it returns
// comes from cost; requests that pass the context check are never dropped.
func Make(requests []Request, cost CostFunc, lim limits.Limit, logger *zap.Logger) (Plan, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &builder{lim: lim}

	for i := range requests {
		req := &requests[i]
		c, err := cost(req.Messages)
		if err != nil {
			return Plan{}, fmt.Errorf("estimate request %d: %w", i, err)
		}

		if lim.ContextLen > 0 && c > lim.ContextLen {
			logger.Warn("request exceeds context length, skipping",
				zap.Int("position", i),
				zap.Int("tokens", c),
				zap.Int("context_len", lim.ContextLen),
				zap.Any("messages", req.Messages),
			)
			b.add(Entry{Position: i, Cost: c, Skip: true})
			continue
		}

		b.add(Entry{Position: i, Cost: c, Request: req})
	}
	b.close()

	return Plan{Batches: b.batches}, nil
}
