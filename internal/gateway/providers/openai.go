package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/mrmushfiq/llm0-express/internal/express/dispatch"
	"github.com/mrmushfiq/llm0-express/internal/shared/models"
)

// OpenAIInvoker sends chat completions to OpenAI or a compatible endpoint
type OpenAIInvoker struct {
	client *openai.Client
}

// NewOpenAIInvoker creates an invoker; an empty baseURL uses api.openai.com
func NewOpenAIInvoker(apiKey, baseURL string) *OpenAIInvoker {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIInvoker{
		client: openai.NewClientWithConfig(cfg),
	}
}

// Invoke makes one chat completion request. Errors are returned as-is
// wrapped with the provider name; nothing is retried here.
func (p *OpenAIInvoker) Invoke(ctx context.Context, model string, messages []models.Message, opts dispatch.Options) (*dispatch.Response, error) {
	startTime := time.Now()

	resp, err := p.client.CreateChatCompletion(ctx, buildRequest(model, messages, opts))
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	out := &dispatch.Response{
		ID:               resp.ID,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		LatencyMs:        int(time.Since(startTime).Milliseconds()),
	}
	for i, choice := range resp.Choices {
		if i == 0 {
			out.Content = choice.Message.Content
			out.FinishReason = string(choice.FinishReason)
		}
		out.Choices = append(out.Choices, choice.Message.Content)
	}
	return out, nil
}

// buildRequest maps generation options onto the OpenAI request
func buildRequest(model string, messages []models.Message, opts dispatch.Options) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, len(messages)),
		N:        opts.N,
		Stop:     opts.Stop,
		Seed:     opts.Seed,
		User:     opts.User,
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
			Name:    m.Name,
		}
	}

	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}
	if opts.PresencePenalty != nil {
		req.PresencePenalty = *opts.PresencePenalty
	}
	if opts.FrequencyPenalty != nil {
		req.FrequencyPenalty = *opts.FrequencyPenalty
	}
	return req
}

var _ dispatch.Invoker = (*OpenAIInvoker)(nil)
