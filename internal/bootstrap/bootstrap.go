// Package bootstrap wires configuration into a ready conversation service.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/PabloGalante/justice-council/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/justice-council/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/justice-council/internal/adapters/storage/memory"
	pgstore "github.com/PabloGalante/justice-council/internal/adapters/storage/postgres"
	redisstore "github.com/PabloGalante/justice-council/internal/adapters/storage/redis"
	sqlitestore "github.com/PabloGalante/justice-council/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/justice-council/internal/app/agentflow"
	"github.com/PabloGalante/justice-council/internal/app/conversation"
	"github.com/PabloGalante/justice-council/internal/app/persona"
	"github.com/PabloGalante/justice-council/internal/config"
	"github.com/PabloGalante/justice-council/internal/domain"
)

// OpenStore opens the configured turn store backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (domain.TurnStore, error) {
	switch cfg.Backend {
	case "memory":
		return memstore.NewTurnStore(nil), nil
	case "sqlite":
		return sqlitestore.NewStore(ctx, cfg.SQLitePath, nil)
	case "postgres":
		return pgstore.NewStore(ctx, cfg.PostgresURL, nil)
	case "redis":
		return redisstore.NewStore(ctx, cfg.RedisURL, redisstore.WithTTL(cfg.RedisTTL))
	case "firestore":
		return firestorestore.NewStore(ctx, cfg.GCPProject, nil)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Personas returns the configured council, or the built-ins.
func Personas(cfg *config.Config) []domain.Persona {
	if len(cfg.Personas) == 0 {
		return persona.Builtins()
	}
	out := make([]domain.Persona, 0, len(cfg.Personas))
	for _, p := range cfg.Personas {
		key := p.Key
		if key == "" {
			key = p.Name
		}
		out = append(out, domain.Persona{
			Key:         key,
			Name:        p.Name,
			Instruction: p.Instruction,
			Custom:      p.Custom,
			Provider:    p.Provider,
		})
	}
	return out
}

// Generators builds the default provider plus every provider a persona is
// pinned to. A provider that cannot be built is logged and left out, so the
// agents using it degrade instead of blocking startup.
func Generators(ctx context.Context, cfg *config.Config, personas []domain.Persona, log zerolog.Logger) conversation.Generators {
	gens := conversation.Generators{ByProvider: map[string]domain.Generator{}}

	def, err := llm.New(ctx, cfg.Generation, "")
	if err != nil {
		log.Warn().Err(err).Str("provider", cfg.Generation.Provider).Msg("generation provider unavailable, agents will use placeholders")
	}
	gens.Default = def
	if def == nil && err == nil {
		log.Warn().Msg("no generation provider configured, agents will use placeholders")
	}

	for _, p := range personas {
		if p.Provider == "" {
			continue
		}
		if _, done := gens.ByProvider[p.Provider]; done {
			continue
		}
		gen, err := llm.New(ctx, cfg.Generation, p.Provider)
		if err != nil {
			log.Warn().Err(err).Str("provider", p.Provider).Str("agent", p.Name).Msg("pinned provider unavailable")
		}
		gens.ByProvider[p.Provider] = gen
	}
	return gens
}

// Council is a running service and the store it owns.
type Council struct {
	Service *conversation.Service
	Store   domain.TurnStore
}

// New opens the store, optionally clears it and assembles the service.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Council, error) {
	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
	log.Info().Str("backend", cfg.Store.Backend).Msg("turn store ready")

	if cfg.Store.ResetOnStart {
		if err := store.ClearAll(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("clearing store on start: %w", err)
		}
	}

	personas := Personas(cfg)
	svc, err := conversation.NewService(store, Generators(ctx, cfg, personas, log), personas, conversation.Options{
		Window:   cfg.Memory.Window(),
		MaxTurns: cfg.Memory.MaxTurns,
		Policy:   cfg.Session.Policy,
		Agent: agentflow.AgentOptions{
			MaxOutputTokens: cfg.Generation.MaxOutputTokens,
			MaxTurns:        cfg.Memory.MaxTurns,
			Timeout:         cfg.Generation.Timeout,
			Retries:         cfg.Generation.Retries,
		},
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Council{Service: svc, Store: store}, nil
}

// Close clears the store when configured to, then closes it.
func (c *Council) Close(ctx context.Context, cfg *config.Config) error {
	if cfg.Store.ClearOnShutdown {
		if err := c.Store.ClearAll(ctx); err != nil {
			_ = c.Store.Close()
			return fmt.Errorf("clearing store on shutdown: %w", err)
		}
	}
	return c.Store.Close()
}
