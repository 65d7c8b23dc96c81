package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/flowforge/flowforge/types"
)

// DefaultModel is used when an agent node leaves the model unset.
const DefaultModel = "gpt-4o-mini"

// OpenAI is a Client backed by the OpenAI chat-completions API.
type OpenAI struct {
	client *openai.Client
	logger *zap.Logger
}

// NewOpenAI creates an OpenAI client. baseURL may be empty for the public
// endpoint.
func NewOpenAI(apiKey, baseURL string, logger *zap.Logger) *OpenAI {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		logger: logger.With(zap.String("component", "llm.openai")),
	}
}

func (c *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	apiReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature != nil {
		apiReq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		apiReq.MaxTokens = req.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "chat completion failed").
			WithCause(err).WithRetryable(true)
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "chat completion returned no choices")
	}

	c.logger.Debug("chat completion",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
