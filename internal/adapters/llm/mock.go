package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/PabloGalante/justice-council/internal/domain"
)

const mockEchoRunes = 80

// Mock answers deterministically without any network call.
type Mock struct{}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := strings.TrimSpace(req.Stimulus.Text)
	if runes := []rune(text); len(runes) > mockEchoRunes {
		text = string(runes[:mockEchoRunes]) + "..."
	}
	return fmt.Sprintf("%s, I hear you say %q. Let me weigh that against what the council has said so far (%d lines).",
		req.Stimulus.Speaker, text, len(req.Context)), nil
}
