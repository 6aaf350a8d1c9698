package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeLocal      Mode = "local"
	ModeProduction Mode = "production"
)

// Session id policies.
const (
	// SessionPersistent keeps one session id per conversation until it is ended.
	SessionPersistent = "persistent"
	// SessionPerInput mints a fresh session for every user input.
	SessionPerInput = "per_input"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or COUNCIL_* environment variables.
type Config struct {
	Mode Mode   `mapstructure:"mode"`
	Port string `mapstructure:"port"`

	Log        LogConfig        `mapstructure:"log"`
	Store      StoreConfig      `mapstructure:"store"`
	Memory     MemoryConfig     `mapstructure:"memory"`
	Generation GenerationConfig `mapstructure:"generation"`
	Session    SessionConfig    `mapstructure:"session"`

	// Personas replaces the built-in council when not empty.
	Personas []PersonaConfig `mapstructure:"personas"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// StoreConfig selects and configures the turn store backend.
type StoreConfig struct {
	Backend         string        `mapstructure:"backend"` // memory, sqlite, postgres, redis, firestore
	SQLitePath      string        `mapstructure:"sqlite_path"`
	PostgresURL     string        `mapstructure:"postgres_url"`
	RedisURL        string        `mapstructure:"redis_url"`
	RedisTTL        time.Duration `mapstructure:"redis_ttl"`
	GCPProject      string        `mapstructure:"gcp_project"`
	ResetOnStart    bool          `mapstructure:"reset_on_start"`
	ClearOnShutdown bool          `mapstructure:"clear_on_shutdown"`
}

// MemoryConfig bounds the context built for each reply.
type MemoryConfig struct {
	WindowMinutes int `mapstructure:"window_minutes"`
	MaxTurns      int `mapstructure:"max_turns"`
}

// Window returns the rolling window as a duration.
func (m MemoryConfig) Window() time.Duration {
	return time.Duration(m.WindowMinutes) * time.Minute
}

type GenerationConfig struct {
	Provider        string        `mapstructure:"provider"` // auto, gemini, openai, mock, none
	Model           string        `mapstructure:"model"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
	Temperature     float32       `mapstructure:"temperature"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Retries         int           `mapstructure:"retries"`

	GoogleAPIKey string `mapstructure:"google_api_key"`
	UseVertex    bool   `mapstructure:"use_vertex"`
	GCPProject   string `mapstructure:"gcp_project"`
	GCPLocation  string `mapstructure:"gcp_location"`

	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
}

type SessionConfig struct {
	Policy string `mapstructure:"policy"`
}

type PersonaConfig struct {
	Key         string `mapstructure:"key"`
	Name        string `mapstructure:"name"`
	Instruction string `mapstructure:"instruction"`
	Custom      bool   `mapstructure:"custom"`
	Provider    string `mapstructure:"provider"`
}

// Load reads configuration from configPath (optional) and the environment.
// A .env file in the working directory is loaded first if it exists.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("council")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix("COUNCIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("generation.google_api_key", "COUNCIL_GENERATION_GOOGLE_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("generation.openai_api_key", "COUNCIL_GENERATION_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("port", "COUNCIL_PORT", "PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeLocal))
	v.SetDefault("port", "8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.sqlite_path", "./data/justice_memory.db")
	v.SetDefault("store.postgres_url", "")
	v.SetDefault("store.redis_url", "")
	v.SetDefault("store.redis_ttl", "0s")
	v.SetDefault("store.gcp_project", "")
	v.SetDefault("store.reset_on_start", true)
	v.SetDefault("store.clear_on_shutdown", true)

	v.SetDefault("memory.window_minutes", 30)
	v.SetDefault("memory.max_turns", 12)

	v.SetDefault("generation.provider", "auto")
	v.SetDefault("generation.model", "")
	v.SetDefault("generation.max_output_tokens", 100)
	v.SetDefault("generation.temperature", 0.7)
	v.SetDefault("generation.timeout", "30s")
	v.SetDefault("generation.retries", 1)
	v.SetDefault("generation.google_api_key", "")
	v.SetDefault("generation.use_vertex", false)
	v.SetDefault("generation.gcp_project", "")
	v.SetDefault("generation.gcp_location", "us-central1")
	v.SetDefault("generation.openai_api_key", "")
	v.SetDefault("generation.openai_base_url", "")

	v.SetDefault("session.policy", SessionPersistent)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeLocal, ModeProduction:
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}

	switch c.Store.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("config: store.postgres_url is required for the postgres backend")
		}
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("config: store.redis_url is required for the redis backend")
		}
	case "firestore":
		if c.Store.GCPProject == "" {
			return fmt.Errorf("config: store.gcp_project is required for the firestore backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}

	if c.Memory.WindowMinutes < 0 {
		return fmt.Errorf("config: memory.window_minutes must not be negative")
	}
	if c.Memory.MaxTurns <= 0 {
		return fmt.Errorf("config: memory.max_turns must be positive")
	}

	switch c.Generation.Provider {
	case "auto", "gemini", "openai", "mock", "none":
	default:
		return fmt.Errorf("config: unknown generation provider %q", c.Generation.Provider)
	}
	if c.Generation.MaxOutputTokens <= 0 {
		return fmt.Errorf("config: generation.max_output_tokens must be positive")
	}
	if c.Generation.Retries < 0 {
		return fmt.Errorf("config: generation.retries must not be negative")
	}

	switch c.Session.Policy {
	case SessionPersistent, SessionPerInput:
	default:
		return fmt.Errorf("config: unknown session policy %q", c.Session.Policy)
	}

	for i, p := range c.Personas {
		if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Instruction) == "" {
			return fmt.Errorf("config: personas[%d] needs a name and an instruction", i)
		}
	}
	return nil
}

// LogFormat resolves the log format, defaulting to console in local mode.
func (c *Config) LogFormat() string {
	if c.Log.Format != "" {
		return c.Log.Format
	}
	if c.Mode == ModeLocal {
		return "console"
	}
	return "json"
}
