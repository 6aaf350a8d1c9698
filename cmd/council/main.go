package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/PabloGalante/justice-council/internal/bootstrap"
	"github.com/PabloGalante/justice-council/internal/config"
	"github.com/PabloGalante/justice-council/internal/observability"
)

type options struct {
	Config    string `short:"f" long:"config" description:"YAML config path"`
	MaxTokens int    `long:"max-tokens" description:"maximum tokens per agent reply, overrides config"`
	Store     string `long:"store" description:"turn store backend, overrides config"`
	Provider  string `long:"provider" description:"generation provider, overrides config"`
	NoColor   bool   `long:"no-color" description:"disable speaker colors"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		observability.Logger().Fatal().Err(err).Msg("loading config")
	}
	applyOptions(cfg, opts)
	if err := cfg.Validate(); err != nil {
		observability.Logger().Fatal().Err(err).Msg("invalid options")
	}

	// The chat owns stdout; logs go to stderr.
	logger := observability.Setup(cfg.Log.Level, "console", os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	council, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("starting council")
	}

	r := newREPL(council.Service, os.Stdin, os.Stdout, newTheme(!opts.NoColor))
	runErr := r.run(ctx)

	if err := council.Close(context.Background(), cfg); err != nil {
		logger.Error().Err(err).Msg("closing turn store")
	}
	if runErr != nil {
		logger.Fatal().Err(runErr).Msg("chat ended with an error")
	}
}

// applyOptions layers command-line flags over the loaded config. Unset flags
// leave the config untouched.
func applyOptions(cfg *config.Config, opts options) {
	if opts.MaxTokens > 0 {
		cfg.Generation.MaxOutputTokens = opts.MaxTokens
	}
	if opts.Store != "" {
		cfg.Store.Backend = opts.Store
	}
	if opts.Provider != "" {
		cfg.Generation.Provider = opts.Provider
	}
}
