package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/chattrix/chattrix/internal/adapters/http"
	"github.com/chattrix/chattrix/internal/broker"
	"github.com/chattrix/chattrix/internal/config"
	"github.com/chattrix/chattrix/internal/core"
	"github.com/chattrix/chattrix/internal/dispatch"
	"github.com/chattrix/chattrix/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("store close")
		}
	}()

	// Fan-out runs through the broker seam: in-process by default, redis
	// pub/sub when configured, so a scaled deployment shares one stream.
	var b broker.Broker
	if cfg.RedisURL != "" {
		b, err = broker.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis broker")
		}
	} else {
		b = broker.NewLocal()
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Error().Err(err).Msg("broker close")
		}
	}()

	rooms := core.NewRouter(b)
	sessions := core.NewSessionRegistry(rooms)
	presence := core.NewPresenceTracker(st, rooms)
	d := dispatch.New(st, sessions, presence, rooms)

	r := router.SetupRouter(ctx, cfg, st, d)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Chattrix server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
