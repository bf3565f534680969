package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrmushfiq/llm0-express/internal/express/dispatch"
	"github.com/mrmushfiq/llm0-express/internal/shared/models"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *OpenAIInvoker {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIInvoker("sk-test", srv.URL+"/v1")
}

func TestOpenAIInvoker_Invoke(t *testing.T) {
	var got openai.ChatCompletionRequest
	inv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4-0613",
			Choices: []openai.ChatCompletionChoice{
				{Index: 0, Message: openai.ChatCompletionMessage{Role: "assistant", Content: "this is a test"}, FinishReason: openai.FinishReasonStop},
			},
			Usage: openai.Usage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17},
		})
	})

	temp := float32(0.2)
	maxTokens := 64
	resp, err := inv.Invoke(context.Background(), "gpt-4",
		[]models.Message{{Role: "user", Content: "Say this is a test", Name: "tester"}},
		dispatch.Options{Temperature: &temp, MaxTokens: &maxTokens, Stop: []string{"\n"}})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "tester", got.Messages[0].Name)
	assert.InDelta(t, 0.2, got.Temperature, 1e-6)
	assert.Equal(t, 64, got.MaxTokens)
	assert.Equal(t, []string{"\n"}, got.Stop)

	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "this is a test", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, []string{"this is a test"}, resp.Choices)
	assert.Equal(t, 17, resp.TotalTokens)
}

func TestOpenAIInvoker_ErrorPropagates(t *testing.T) {
	inv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	})

	_, err := inv.Invoke(context.Background(), "gpt-4", []models.Message{{Role: "user", Content: "hi"}}, dispatch.Options{})
	require.Error(t, err)

	var apiErr *openai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.HTTPStatusCode)
}
