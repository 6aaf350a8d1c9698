package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	httpadapter "github.com/PabloGalante/justice-council/internal/adapters/http"
	"github.com/PabloGalante/justice-council/internal/bootstrap"
	"github.com/PabloGalante/justice-council/internal/config"
	"github.com/PabloGalante/justice-council/internal/observability"
)

type options struct {
	Config string `short:"f" long:"config" description:"YAML config path"`
	Port   string `short:"p" long:"port" description:"listen port, overrides config"`
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

	if opts.Port != "" {
		cfg.Port = opts.Port
	}

	logger := observability.Setup(cfg.Log.Level, cfg.LogFormat(), os.Stdout)
	ctx := context.Background()

	council, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("starting council")
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     httpadapter.NewServer(council.Service),
		ReadTimeout: 15 * time.Second,
		// A fan-out runs every active agent in turn.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("mode", string(cfg.Mode)).
			Str("store", cfg.Store.Backend).
			Msg("justice council API listening")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := council.Close(shutdownCtx, cfg); err != nil {
		logger.Error().Err(err).Msg("closing turn store")
	}

	logger.Info().Msg("server stopped")
}
