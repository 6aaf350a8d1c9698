package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/PabloGalante/justice-council/internal/config"
	"github.com/PabloGalante/justice-council/internal/domain"
)

func sampleRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		Speaker:     "Amara Ndlovu",
		Instruction: "You are Amara.",
		Context: []domain.ContextEntry{
			{Role: domain.ContextExternalInput, Content: "[User]: Is punishment ever justified?"},
			{Role: domain.ContextOwnVoice, Content: "[Amara Ndlovu]: Healing first."},
			{Role: domain.ContextExternalInput, Content: "[Jordan Chex]: Fairness first."},
		},
		Stimulus:        domain.Stimulus{Speaker: "Jordan Chex", Text: "Fairness first."},
		MaxOutputTokens: 100,
	}
}

func TestCueNamesStimulusAndSpeaker(t *testing.T) {
	req := sampleRequest()
	req.Stimulus.Text = "  Fairness first.  "

	assert.Equal(t, "Jordan Chex: Fairness first.\nAmara Ndlovu:", Cue(req))
}

func TestGeminiContentsRoles(t *testing.T) {
	contents := Contents(sampleRequest())
	require.Len(t, contents, 4)

	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	assert.Equal(t, string(genai.RoleUser), contents[2].Role)
	assert.Equal(t, string(genai.RoleUser), contents[3].Role)
	assert.Equal(t, "Jordan Chex: Fairness first.\nAmara Ndlovu:", contents[3].Parts[0].Text)
}

func TestOpenAIMessagesRoles(t *testing.T) {
	msgs := Messages(sampleRequest())
	require.Len(t, msgs, 5)

	roles := make([]string, 0, len(msgs))
	for _, m := range msgs {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{
		openai.ChatMessageRoleSystem,
		openai.ChatMessageRoleUser,
		openai.ChatMessageRoleAssistant,
		openai.ChatMessageRoleUser,
		openai.ChatMessageRoleUser,
	}, roles)
}

func TestOpenAIGenerate(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  We heal together.  "},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIOptions{APIKey: "test", BaseURL: srv.URL + "/v1", Model: "gpt-test"})
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "We heal together.", text)
	assert.Equal(t, "gpt-test", got.Model)
	assert.Equal(t, 100, got.MaxTokens)
	assert.Len(t, got.Messages, 5)
}

func TestOpenAIRateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIOptions{APIKey: "test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestOpenAIBadRequestIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIOptions{APIKey: "test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrTransient))
}

func TestMockIsDeterministic(t *testing.T) {
	m := NewMock()
	a, err := m.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	b, err := m.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Contains(t, a, "Jordan Chex")
}

func TestMockTruncatesOnRunes(t *testing.T) {
	req := sampleRequest()
	req.Stimulus.Text = "a" + strings.Repeat("é", 100)

	out, err := NewMock().Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "a"+strings.Repeat("é", 79)+"...")
	assert.NotContains(t, out, strings.Repeat("é", 80))
}

func TestNewSelectsProvider(t *testing.T) {
	ctx := context.Background()

	gen, err := New(ctx, config.GenerationConfig{Provider: "none"}, "")
	require.NoError(t, err)
	assert.Nil(t, gen)

	gen, err = New(ctx, config.GenerationConfig{Provider: "auto"}, "")
	require.NoError(t, err)
	assert.Nil(t, gen, "auto without credentials means no provider")

	gen, err = New(ctx, config.GenerationConfig{Provider: "auto", OpenAIAPIKey: "k"}, "")
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, gen)

	gen, err = New(ctx, config.GenerationConfig{}, "mock")
	require.NoError(t, err)
	assert.IsType(t, &Mock{}, gen)

	gen, err = New(ctx, config.GenerationConfig{}, ProviderOpenAI)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, gen)

	_, err = New(ctx, config.GenerationConfig{}, "llama")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}), domain.ErrTransient)
	assert.ErrorIs(t, classify(fmt.Errorf("gemini generate content: %w", genai.APIError{Code: 503})), domain.ErrTransient)
	assert.False(t, errors.Is(classify(genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}), domain.ErrTransient))

	// digits in a message are not a status code
	assert.False(t, errors.Is(classify(errors.New("prompt mentions 500 apples and 429 pears")), domain.ErrTransient))
}
