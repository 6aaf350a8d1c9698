// Package llm holds the generation providers behind domain.Generator.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/PabloGalante/justice-council/internal/config"
	"github.com/PabloGalante/justice-council/internal/domain"
)

// ErrUnavailable reports a provider that lacks the settings it needs.
var ErrUnavailable = errors.New("generation provider not configured")

// Provider names accepted by New.
const (
	ProviderAuto   = "auto"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
	ProviderNone   = "none"
)

// New builds the named provider; an empty name uses cfg.Provider. "none",
// and "auto" without credentials, return a nil generator and no error.
func New(ctx context.Context, cfg config.GenerationConfig, name string) (domain.Generator, error) {
	if name == "" {
		name = cfg.Provider
	}

	switch name {
	case ProviderAuto:
		switch {
		case cfg.GoogleAPIKey != "" || (cfg.UseVertex && cfg.GCPProject != ""):
			return New(ctx, cfg, ProviderGemini)
		case cfg.OpenAIAPIKey != "":
			return New(ctx, cfg, ProviderOpenAI)
		default:
			return nil, nil
		}
	case ProviderGemini:
		g, err := NewGeminiClient(ctx, GeminiOptions{
			APIKey:      cfg.GoogleAPIKey,
			UseVertex:   cfg.UseVertex,
			Project:     cfg.GCPProject,
			Location:    cfg.GCPLocation,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	case ProviderOpenAI:
		o, err := NewOpenAIClient(OpenAIOptions{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, err
		}
		return o, nil
	case ProviderMock:
		return NewMock(), nil
	case ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", name)
	}
}
