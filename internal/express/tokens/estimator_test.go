package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mrmushfiq/llm0-express/internal/express/limits"
	"github.com/mrmushfiq/llm0-express/internal/shared/models"
)

// wordEncoder yields one token per whitespace separated word
type wordEncoder struct{}

func (wordEncoder) Encode(text string) []int {
	return make([]int, len(strings.Fields(text)))
}

func TestEstimator_SnapshotFraming(t *testing.T) {
	e := NewEstimator(wordEncoder{}, zap.NewNop())
	msgs := []models.Message{
		{Role: "system", Content: "you are terse"},
		{Role: "user", Content: "say this is a test", Name: "bob"},
	}

	got, err := e.Estimate("gpt-4-0613", msgs)
	require.NoError(t, err)
	// 2*3 overhead + (1+3) + (1+5) + name 1 + perName 1 + priming 3
	assert.Equal(t, 21, got)

	got, err = e.Estimate("gpt-3.5-turbo-0301", msgs)
	require.NoError(t, err)
	// 2*4 overhead + 4 + 6 + name 1 - 1 + priming 3
	assert.Equal(t, 21, got)
}

func TestEstimator_EmptyMessages(t *testing.T) {
	e := NewEstimator(wordEncoder{}, nil)
	got, err := e.Estimate("gpt-4-0613", nil)
	require.NoError(t, err)
	assert.Equal(t, replyPriming, got)
}

func TestEstimator_AliasWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e := NewEstimator(wordEncoder{}, zap.New(core))
	msgs := []models.Message{{Role: "user", Content: "hello there"}}

	aliased, err := e.Estimate("gpt-3.5-turbo", msgs)
	require.NoError(t, err)
	direct, err := e.Estimate("gpt-3.5-turbo-0613", msgs)
	require.NoError(t, err)
	assert.Equal(t, direct, aliased)

	_, err = e.Estimate("gpt-4-turbo-preview", msgs)
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "gpt-3.5-turbo-0613", entries[0].ContextMap()["assumed"])
	assert.Equal(t, "gpt-4-0613", entries[1].ContextMap()["assumed"])
}

func TestEstimator_AliasWarnsOncePerModel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e := NewEstimator(wordEncoder{}, zap.New(core))
	msgs := []models.Message{{Role: "user", Content: "hi"}}

	for i := 0; i < 100; i++ {
		_, err := e.Estimate("gpt-3.5-turbo", msgs)
		require.NoError(t, err)
	}
	_, err := e.Estimate("gpt-4", msgs)
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterField(zap.String("model", "gpt-3.5-turbo")).Len())
	assert.Equal(t, 1, logs.FilterField(zap.String("model", "gpt-4")).Len())
}

func TestEstimator_UnsupportedModel(t *testing.T) {
	e := NewEstimator(wordEncoder{}, zap.NewNop())
	_, err := e.Estimate("claude-3-opus", []models.Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedModel)
	assert.ErrorIs(t, err, limits.ErrConfiguration)
}

func TestEstimator_ForModel(t *testing.T) {
	e := NewEstimator(wordEncoder{}, zap.NewNop())
	cost := e.ForModel("gpt-4-0613")
	got, err := cost([]models.Message{{Role: "user", Content: "a b c"}})
	require.NoError(t, err)
	assert.Equal(t, 3+1+3+3, got)
}

func TestEstimator_NoEncoder(t *testing.T) {
	e := NewEstimator(nil, zap.NewNop())
	_, err := e.Estimate("gpt-4-0613", nil)
	assert.Error(t, err)
}
