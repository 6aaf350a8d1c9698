package agentflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/PabloGalante/justice-council/internal/app/contextbuilder"
	"github.com/PabloGalante/justice-council/internal/domain"
	"github.com/PabloGalante/justice-council/internal/metrics"
	"github.com/PabloGalante/justice-council/internal/observability"
)

// FailureKind classifies why a generation call produced no usable text.
type FailureKind string

const (
	FailureNotConfigured FailureKind = "not_configured"
	FailureProviderError FailureKind = "provider_error"
	FailureTimeout       FailureKind = "timeout"
	FailureEmptyReply    FailureKind = "empty_reply"
)

// GenerationFailure is the typed result of a failed generation call. It
// never leaves the Agent as an error; it rides on a degraded Reply.
type GenerationFailure struct {
	Kind FailureKind
	Err  error
}

func (f *GenerationFailure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *GenerationFailure) Unwrap() error {
	return f.Err
}

// Reply is what one agent said during a fan-out.
type Reply struct {
	Speaker  string
	Text     string
	Degraded bool
	Failure  *GenerationFailure
	Turn     *domain.Turn
}

// Placeholder is the stand-in text recorded when generation fails.
func Placeholder(speaker string, kind FailureKind) string {
	if kind == FailureNotConfigured {
		return fmt.Sprintf("(%s has nothing configured and stays silent.)", speaker)
	}
	return fmt.Sprintf("(%s could not respond: %s.)", speaker, strings.ReplaceAll(string(kind), "_", " "))
}

type AgentOptions struct {
	MaxOutputTokens int
	MaxTurns        int
	Timeout         time.Duration

	// Retries is the number of extra attempts after a transient failure.
	Retries int
	Backoff time.Duration
}

func (o AgentOptions) withDefaults() AgentOptions {
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = 100
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = 250 * time.Millisecond
	}
	return o
}

// Agent is one council member: a persona bound to a generator and the
// shared turn store.
type Agent struct {
	persona domain.Persona
	gen     domain.Generator
	store   domain.TurnStore
	context *contextbuilder.Builder
	opts    AgentOptions
}

// NewAgent binds persona to gen. A nil gen is allowed; every reply of such
// an agent is the not-configured placeholder.
func NewAgent(
	persona domain.Persona,
	gen domain.Generator,
	store domain.TurnStore,
	builder *contextbuilder.Builder,
	opts AgentOptions,
) *Agent {
	return &Agent{
		persona: persona,
		gen:     gen,
		store:   store,
		context: builder,
		opts:    opts.withDefaults(),
	}
}

func (a *Agent) Name() string {
	return a.persona.Name
}

func (a *Agent) Persona() domain.Persona {
	return a.persona
}

func (a *Agent) IsCustom() bool {
	return a.persona.Custom
}

// RespondToUser answers the user's text. The user turn must already be in
// the store.
func (a *Agent) RespondToUser(ctx context.Context, sessionID domain.SessionID, userText string) (Reply, error) {
	return a.respond(ctx, sessionID, domain.Stimulus{Speaker: domain.UserSpeaker, Text: userText})
}

// RespondToAgent answers another agent's reply, which must already be in
// the store.
func (a *Agent) RespondToAgent(ctx context.Context, sessionID domain.SessionID, otherSpeaker, otherText string) (Reply, error) {
	return a.respond(ctx, sessionID, domain.Stimulus{Speaker: otherSpeaker, Text: otherText})
}

// EndSession forgets everything said in the session.
func (a *Agent) EndSession(ctx context.Context, sessionID domain.SessionID) error {
	return a.store.DeleteSession(ctx, sessionID)
}

func (a *Agent) respond(ctx context.Context, sessionID domain.SessionID, stimulus domain.Stimulus) (Reply, error) {
	log := observability.LoggerFromContext(ctx).With().
		Str("session_id", string(sessionID)).
		Str("agent", a.Name()).
		Str("stimulus_from", stimulus.Speaker).
		Logger()

	entries, err := a.context.Build(ctx, sessionID, a.Name(), a.opts.MaxTurns)
	if err != nil {
		log.Error().Err(err).Msg("failed to build context")
		return Reply{}, err
	}

	start := time.Now()
	text, failure := a.generate(ctx, domain.GenerationRequest{
		Speaker:         a.Name(),
		Instruction:     a.persona.Instruction,
		Context:         entries,
		Stimulus:        stimulus,
		MaxOutputTokens: a.opts.MaxOutputTokens,
	})
	elapsed := time.Since(start)
	metrics.GenerationDuration.WithLabelValues(a.Name()).Observe(elapsed.Seconds())

	reply := Reply{Speaker: a.Name(), Text: text}
	if failure != nil {
		metrics.GenerationFailures.WithLabelValues(string(failure.Kind)).Inc()
		log.Warn().Err(failure.Err).Str("kind", string(failure.Kind)).Msg("generation degraded to placeholder")
		reply.Text = Placeholder(a.Name(), failure.Kind)
		reply.Degraded = true
		reply.Failure = failure
	}

	turn, err := a.store.Append(ctx, sessionID, a.Name(), domain.RoleAssistant, reply.Text)
	if err != nil {
		log.Error().Err(err).Msg("failed to append reply")
		return Reply{}, err
	}
	metrics.TurnsAppended.WithLabelValues(string(domain.RoleAssistant)).Inc()
	reply.Turn = turn

	log.Info().
		Int("context_entries", len(entries)).
		Bool("degraded", reply.Degraded).
		Int64("elapsed_ms", elapsed.Milliseconds()).
		Msg("agent replied")
	return reply, nil
}

// generate calls the provider under a per-attempt timeout. Transient errors
// are retried with exponential backoff; timeouts are not.
func (a *Agent) generate(ctx context.Context, req domain.GenerationRequest) (string, *GenerationFailure) {
	if a.gen == nil {
		return "", &GenerationFailure{Kind: FailureNotConfigured}
	}

	var (
		text    string
		failure *GenerationFailure
	)

	backoff := retry.WithMaxRetries(uint64(a.opts.Retries), retry.NewExponential(a.opts.Backoff))
	_ = retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()

		out, err := a.gen.Generate(callCtx, req)
		switch {
		case err == nil:
			text, failure = strings.TrimSpace(out), nil
			if text == "" {
				failure = &GenerationFailure{Kind: FailureEmptyReply}
			}
			return nil
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
			failure = &GenerationFailure{Kind: FailureTimeout, Err: err}
			return nil
		default:
			failure = &GenerationFailure{Kind: FailureProviderError, Err: err}
			if errors.Is(err, domain.ErrTransient) {
				return retry.RetryableError(err)
			}
			return nil
		}
	})
	return text, failure
}
