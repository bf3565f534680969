// Package tokens estimates the prompt cost of chat requests.
package tokens

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mrmushfiq/llm0-express/internal/express/limits"
	"github.com/mrmushfiq/llm0-express/internal/shared/models"
)

// ErrUnsupportedModel is returned for model names with no known message framing
var ErrUnsupportedModel = fmt.Errorf("%w: unsupported model for token counting", limits.ErrConfiguration)

// replyPriming covers <|start|>assistant<|message|> on every reply
const replyPriming = 3

type framing struct {
	perMessage int
	perName    int
}

// Snapshots with a known chat framing. Unversioned names alias to one of
// these in resolve.
var framings = map[string]framing{
	"gpt-3.5-turbo-0613":     {perMessage: 3, perName: 1},
	"gpt-3.5-turbo-16k-0613": {perMessage: 3, perName: 1},
	"gpt-4-0314":             {perMessage: 3, perName: 1},
	"gpt-4-32k-0314":         {perMessage: 3, perName: 1},
	"gpt-4-0613":             {perMessage: 3, perName: 1},
	"gpt-4-32k-0613":         {perMessage: 3, perName: 1},
	// role is omitted when a name is present
	"gpt-3.5-turbo-0301": {perMessage: 4, perName: -1},
}

// Encoder turns text into token ids
type Encoder interface {
	Encode(text string) []int
}

// Estimator counts prompt tokens for chat message lists
type Estimator struct {
	enc    Encoder
	logger *zap.Logger
	// models already warned about aliasing
	warned sync.Map
}

// NewEstimator creates an estimator over enc
func NewEstimator(enc Encoder, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{
		enc:    enc,
		logger: logger.With(zap.String("component", "tokens")),
	}
}

// resolve maps model to the snapshot whose framing applies.
// gpt-3.5-turbo* aliases to gpt-3.5-turbo-0613 and gpt-4* to gpt-4-0613;
// both may drift as the provider ships new snapshots. The warning is
// logged once per model.
func (e *Estimator) resolve(model string) (string, framing, error) {
	if f, ok := framings[model]; ok {
		return model, f, nil
	}

	var alias string
	switch {
	case strings.Contains(model, "gpt-3.5-turbo"):
		alias = "gpt-3.5-turbo-0613"
	case strings.Contains(model, "gpt-4"):
		alias = "gpt-4-0613"
	default:
		return "", framing{}, fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
	}

	if _, seen := e.warned.LoadOrStore(model, struct{}{}); !seen {
		e.logger.Warn("model may change over time, counting tokens as its snapshot",
			zap.String("model", model),
			zap.String("assumed", alias),
		)
	}
	return alias, framings[alias], nil
}

// Estimate returns the prompt token count of messages for model
func (e *Estimator) Estimate(model string, messages []models.Message) (int, error) {
	if e.enc == nil {
		return 0, errors.New("tokens: estimator has no encoder")
	}
	_, f, err := e.resolve(model)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, msg := range messages {
		total += f.perMessage
		total += len(e.enc.Encode(msg.Role))
		total += len(e.enc.Encode(msg.Content))
		if msg.Name != "" {
			total += len(e.enc.Encode(msg.Name))
			total += f.perName
		}
	}
	total += replyPriming
	return total, nil
}

// ForModel binds the estimator to model for use as a planner cost function
func (e *Estimator) ForModel(model string) func([]models.Message) (int, error) {
	return func(messages []models.Message) (int, error) {
		return e.Estimate(model, messages)
	}
}
