package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/PabloGalante/justice-council/internal/domain"
)

const defaultOpenAIModel = openai.GPT4oMini

type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

type OpenAIClient struct {
	client      *openai.Client
	modelName   string
	temperature float32
}

func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: openai needs an API key", ErrUnavailable)
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		modelName:   model,
		temperature: opts.Temperature,
	}, nil
}

// Messages maps own voice to the assistant role and everyone else to user.
func Messages(req domain.GenerationRequest) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Context)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.Instruction,
	})
	for _, e := range req.Context {
		role := openai.ChatMessageRoleUser
		if e.Role == domain.ContextOwnVoice {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: e.Content})
	}
	return append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: Cue(req),
	})
}

// Generate implements domain.Generator.
func (o *OpenAIClient) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.modelName,
		Messages:    Messages(req),
		MaxTokens:   req.MaxOutputTokens,
		Temperature: o.temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && retryableStatus(apiErr.HTTPStatusCode) {
			return "", fmt.Errorf("openai chat completion: %w: %w", domain.ErrTransient, err)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && retryableStatus(reqErr.HTTPStatusCode) {
			return "", fmt.Errorf("openai chat completion: %w: %w", domain.ErrTransient, err)
		}
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
