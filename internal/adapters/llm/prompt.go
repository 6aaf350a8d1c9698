package llm

import (
	"strings"

	"github.com/PabloGalante/justice-council/internal/domain"
)

// Cue is the closing message of every request: the stimulus and the name the
// reply is expected from.
func Cue(req domain.GenerationRequest) string {
	return req.Stimulus.Speaker + ": " + strings.TrimSpace(req.Stimulus.Text) + "\n" + req.Speaker + ":"
}
