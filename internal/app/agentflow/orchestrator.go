package agentflow

import (
	"context"
	"strings"
	"time"

	"github.com/PabloGalante/justice-council/internal/domain"
	"github.com/PabloGalante/justice-council/internal/metrics"
	"github.com/PabloGalante/justice-council/internal/observability"
)

// User-facing notices returned instead of a transcript.
const (
	NoticeEmptyInput = "Please type something for the council to discuss."
	NoticeNoAgents   = "No agents are active."
)

// Entry is one line of a fan-out transcript.
type Entry struct {
	Speaker  string
	Content  string
	Degraded bool
}

type FanOutResult struct {
	// Notice is set when the input was rejected; Transcript is then empty.
	Notice     string
	Transcript []Entry
}

// Orchestrator runs one fan-out per user input: the user turn, the primary
// speaker's answer, then every other active agent reacting to it.
type Orchestrator struct {
	store domain.TurnStore
}

func NewOrchestrator(store domain.TurnStore) *Orchestrator {
	return &Orchestrator{store: store}
}

// Primary returns the first custom agent in active, else the first agent.
func Primary(active []*Agent) *Agent {
	for _, a := range active {
		if a.IsCustom() {
			return a
		}
	}
	if len(active) == 0 {
		return nil
	}
	return active[0]
}

// FanOut executes the agents sequentially. Only storage faults abort it;
// a failing generator yields its placeholder in its slot.
func (o *Orchestrator) FanOut(
	ctx context.Context,
	sessionID domain.SessionID,
	userText string,
	active []*Agent,
) (*FanOutResult, error) {
	log := observability.LoggerFromContext(ctx).With().
		Str("session_id", string(sessionID)).
		Logger()

	text := strings.TrimSpace(userText)
	if text == "" {
		return &FanOutResult{Notice: NoticeEmptyInput}, nil
	}
	if len(active) == 0 {
		return &FanOutResult{Notice: NoticeNoAgents}, nil
	}

	start := time.Now()
	defer func() { metrics.FanOutDuration.Observe(time.Since(start).Seconds()) }()

	log.Info().Int("agents_count", len(active)).Msg("fan-out started")

	if _, err := o.store.Append(ctx, sessionID, domain.UserSpeaker, domain.RoleUser, text); err != nil {
		log.Error().Err(err).Msg("failed to append user turn")
		return nil, err
	}
	metrics.TurnsAppended.WithLabelValues(string(domain.RoleUser)).Inc()

	result := &FanOutResult{
		Transcript: make([]Entry, 0, len(active)+1),
	}
	result.Transcript = append(result.Transcript, Entry{Speaker: domain.UserSpeaker, Content: text})

	primary := Primary(active)
	first, err := primary.RespondToUser(ctx, sessionID, text)
	if err != nil {
		log.Error().Err(err).Str("agent", primary.Name()).Msg("primary agent failed")
		return nil, err
	}
	result.Transcript = append(result.Transcript, entryOf(first))

	for _, ag := range active {
		if ag == primary {
			continue
		}
		reply, err := ag.RespondToAgent(ctx, sessionID, primary.Name(), first.Text)
		if err != nil {
			log.Error().Err(err).Str("agent", ag.Name()).Msg("agent failed")
			return nil, err
		}
		result.Transcript = append(result.Transcript, entryOf(reply))
	}

	log.Info().
		Str("primary", primary.Name()).
		Int("entries", len(result.Transcript)).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("fan-out end")
	return result, nil
}

func entryOf(r Reply) Entry {
	return Entry{Speaker: r.Speaker, Content: r.Text, Degraded: r.Degraded}
}
