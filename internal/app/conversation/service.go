package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/justice-council/internal/app/agentflow"
	"github.com/PabloGalante/justice-council/internal/app/contextbuilder"
	"github.com/PabloGalante/justice-council/internal/app/persona"
	"github.com/PabloGalante/justice-council/internal/domain"
	"github.com/PabloGalante/justice-council/internal/observability"
)

// Session policies.
const (
	PolicyPersistent = "persistent"
	PolicyPerInput   = "per_input"
)

// Generators resolves the generator of a persona. A persona pinned to a
// provider missing from ByProvider falls back to Default.
type Generators struct {
	Default    domain.Generator
	ByProvider map[string]domain.Generator
}

func (g Generators) For(provider string) domain.Generator {
	if gen, ok := g.ByProvider[provider]; ok && provider != "" {
		return gen
	}
	return g.Default
}

// Options tune the service. A zero Window keeps only turns stamped at the
// current instant; negative values count as zero.
type Options struct {
	Window   time.Duration
	MaxTurns int
	Policy   string
	Agent    agentflow.AgentOptions
}

type member struct {
	agent  *agentflow.Agent
	active bool
}

// Service is the front-end facing council: the ordered agent registry,
// the toggles and one serialized fan-out per session at a time.
type Service struct {
	store        domain.TurnStore
	builder      *contextbuilder.Builder
	orchestrator *agentflow.Orchestrator
	generators   Generators
	opts         Options

	mu      sync.RWMutex
	members []*member

	locks *sessionLocks
}

// NewService registers personas in order, all active.
func NewService(store domain.TurnStore, generators Generators, personas []domain.Persona, opts Options) (*Service, error) {
	if opts.Window < 0 {
		opts.Window = 0
	}
	if opts.Policy == "" {
		opts.Policy = PolicyPersistent
	}
	if opts.Policy != PolicyPersistent && opts.Policy != PolicyPerInput {
		return nil, fmt.Errorf("unknown session policy %q", opts.Policy)
	}

	s := &Service{
		store:        store,
		builder:      contextbuilder.New(store, opts.Window, opts.MaxTurns),
		orchestrator: agentflow.NewOrchestrator(store),
		generators:   generators,
		opts:         opts,
		locks:        newSessionLocks(),
	}

	for _, p := range personas {
		if err := validatePersona(p.Name, p.Instruction); err != nil {
			return nil, err
		}
		if s.find(p.Name) != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicatePersona, p.Name)
		}
		s.members = append(s.members, &member{agent: s.newAgent(p), active: true})
	}
	return s, nil
}

func (s *Service) newAgent(p domain.Persona) *agentflow.Agent {
	return agentflow.NewAgent(p, s.generators.For(p.Provider), s.store, s.builder, s.opts.Agent)
}

// NewSession mints a fresh session id.
func (s *Service) NewSession() domain.SessionID {
	return domain.SessionID(uuid.NewString())
}

type SubmitInput struct {
	SessionID domain.SessionID
	Text      string
}

type SubmitOutput struct {
	SessionID  domain.SessionID
	Notice     string
	Transcript []agentflow.Entry
}

// Submit fans the user's text out to the currently active agents.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitOutput, error) {
	sessionID := in.SessionID
	if sessionID == "" || s.opts.Policy == PolicyPerInput {
		sessionID = s.NewSession()
	}

	log := observability.LoggerFromContext(ctx).With().
		Str("session_id", string(sessionID)).
		Logger()

	unlock := s.locks.lock(sessionID)
	defer unlock()

	active := s.activeAgents()
	log.Info().Int("active_agents", len(active)).Msg("submitting user input")

	res, err := s.orchestrator.FanOut(ctx, sessionID, in.Text, active)
	if err != nil {
		log.Error().Err(err).Msg("fan-out failed")
		return nil, err
	}

	log.Info().Str("notice", res.Notice).Int("entries", len(res.Transcript)).Msg("submit completed")
	return &SubmitOutput{
		SessionID:  sessionID,
		Notice:     res.Notice,
		Transcript: res.Transcript,
	}, nil
}

func (s *Service) activeAgents() []*agentflow.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*agentflow.Agent, 0, len(s.members))
	for _, m := range s.members {
		if m.active {
			out = append(out, m.agent)
		}
	}
	return out
}

// SetActive toggles an agent on or off and returns the notice to show.
func (s *Service) SetActive(name string, on bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.find(name)
	if m == nil {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownAgent, name)
	}
	m.active = on

	if on {
		return fmt.Sprintf("%s joined the council.", m.agent.Name()), nil
	}
	return fmt.Sprintf("%s left the council.", m.agent.Name()), nil
}

// find must be called with s.mu held.
func (s *Service) find(name string) *member {
	for _, m := range s.members {
		if strings.EqualFold(m.agent.Name(), strings.TrimSpace(name)) {
			return m
		}
	}
	return nil
}

type RegisterInput struct {
	Name        string
	Instruction string
	Custom      bool

	// Advocate composes the instruction when Instruction is empty.
	Advocate *persona.Advocate
}

// RegisterPersona adds an active agent. A custom persona takes the single
// custom slot, replacing the previous occupant.
func (s *Service) RegisterPersona(ctx context.Context, in RegisterInput) (*agentflow.Agent, error) {
	log := observability.LoggerFromContext(ctx)

	p, err := buildPersona(in)
	if err != nil {
		return nil, err
	}
	name := p.Name

	s.mu.Lock()
	defer s.mu.Unlock()

	members := make([]*member, 0, len(s.members)+1)
	for _, m := range s.members {
		if in.Custom && m.agent.IsCustom() {
			continue
		}
		if strings.EqualFold(m.agent.Name(), name) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicatePersona, name)
		}
		members = append(members, m)
	}

	ag := s.newAgent(p)
	s.members = append(members, &member{agent: ag, active: true})

	log.Info().Str("agent", name).Bool("custom", in.Custom).Msg("persona registered")
	return ag, nil
}

func buildPersona(in RegisterInput) (domain.Persona, error) {
	if strings.TrimSpace(in.Instruction) == "" && in.Advocate != nil {
		p, err := persona.NewCustom(in.Name, *in.Advocate)
		if err != nil {
			return domain.Persona{}, err
		}
		if !in.Custom {
			p.Key = personaKey(p.Name)
			p.Custom = false
		}
		return p, nil
	}

	name := strings.TrimSpace(in.Name)
	instruction := strings.TrimSpace(in.Instruction)
	if err := validatePersona(name, instruction); err != nil {
		return domain.Persona{}, err
	}
	p := domain.Persona{Key: persona.KeyCustom, Name: name, Instruction: instruction, Custom: in.Custom}
	if !in.Custom {
		p.Key = personaKey(name)
	}
	return p, nil
}

func personaKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

func validatePersona(name, instruction string) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(instruction) == "" {
		return domain.ErrInvalidPersona
	}
	return nil
}

type AgentStatus struct {
	Key    string
	Name   string
	Custom bool
	Active bool
}

// Agents lists the registry in council order.
func (s *Service) Agents() []AgentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]AgentStatus, 0, len(s.members))
	for _, m := range s.members {
		p := m.agent.Persona()
		out = append(out, AgentStatus{Key: p.Key, Name: p.Name, Custom: p.Custom, Active: m.active})
	}
	return out
}

// Timeline returns the session's turns no older than window.
func (s *Service) Timeline(ctx context.Context, sessionID domain.SessionID, window time.Duration) ([]*domain.Turn, error) {
	log := observability.LoggerFromContext(ctx).With().
		Str("session_id", string(sessionID)).
		Dur("window", window).
		Logger()

	turns, err := s.store.Recent(ctx, sessionID, window)
	if err != nil {
		log.Error().Err(err).Msg("failed to read timeline")
		return nil, err
	}

	log.Debug().Int("turn_count", len(turns)).Msg("fetched session timeline")
	return turns, nil
}

// EndSession forgets a session once any running fan-out on it finishes.
func (s *Service) EndSession(ctx context.Context, sessionID domain.SessionID) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	observability.LoggerFromContext(ctx).Info().Str("session_id", string(sessionID)).Msg("session ended")
	return nil
}

// Reset wipes every session.
func (s *Service) Reset(ctx context.Context) error {
	return s.store.ClearAll(ctx)
}

// Window is the default look-back used for timelines.
func (s *Service) Window() time.Duration {
	return s.opts.Window
}

// Ping reports whether the turn store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
