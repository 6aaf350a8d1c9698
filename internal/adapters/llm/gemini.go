package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/PabloGalante/justice-council/internal/domain"
)

const defaultGeminiModel = "gemini-2.0-flash"

type GeminiOptions struct {
	APIKey      string
	UseVertex   bool
	Project     string
	Location    string
	Model       string
	Temperature float32
}

type GeminiClient struct {
	client      *genai.Client
	modelName   string
	temperature float32
}

// NewGeminiClient talks to the Gemini API with an API key, or to Vertex AI
// when UseVertex is set.
func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	cc := &genai.ClientConfig{}
	switch {
	case opts.UseVertex:
		if opts.Project == "" || opts.Location == "" {
			return nil, fmt.Errorf("%w: vertex needs a project and a location", ErrUnavailable)
		}
		cc.Project = opts.Project
		cc.Location = opts.Location
		cc.Backend = genai.BackendVertexAI
	case opts.APIKey != "":
		cc.APIKey = opts.APIKey
		cc.Backend = genai.BackendGeminiAPI
	default:
		return nil, fmt.Errorf("%w: gemini needs an API key or vertex settings", ErrUnavailable)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiClient{
		client:      client,
		modelName:   model,
		temperature: opts.Temperature,
	}, nil
}

// Contents maps the context onto the two roles Gemini understands and ends
// with the speaker cue as a user turn.
func Contents(req domain.GenerationRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.Context)+1)
	for _, e := range req.Context {
		role := genai.Role(genai.RoleUser)
		if e.Role == domain.ContextOwnVoice {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(e.Content, role))
	}
	return append(contents, genai.NewContentFromText(Cue(req), genai.RoleUser))
}

// Generate implements domain.Generator.
func (g *GeminiClient) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	temp := g.temperature
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.Instruction, genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   int32(req.MaxOutputTokens),
	}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, Contents(req), cfg)
	if err != nil {
		return "", classify(fmt.Errorf("gemini generate content: %w", err))
	}
	return strings.TrimSpace(res.Text()), nil
}

// classify marks rate limits and server errors reported by the API as
// retryable. Anything else, including transport errors, stays permanent.
func classify(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}
