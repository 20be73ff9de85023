package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dhanucoding/retro-app/go/internal/app"
	"github.com/dhanucoding/retro-app/go/internal/cache"
	"github.com/dhanucoding/retro-app/go/internal/config"
	"github.com/dhanucoding/retro-app/go/internal/gateway"
	"github.com/dhanucoding/retro-app/go/internal/store"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(getEnv("RETRO_CONFIG", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := dialStore(ctx, cfg)
	defer st.Close()

	bc := openCache(cfg.CachePath)
	if bc != nil {
		defer bc.Close()
	}

	hub := gateway.NewHub(gateway.DefaultConfig())
	a := app.New(cfg, st, bc, hub)
	hub.Bind(a)

	if err := a.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("restore cached board")
	}

	go hub.Start(ctx)
	go a.Run(ctx)

	srv := setupServer(cfg, hub)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("retro server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}

// dialStore connects to the replicated store, falling back to an
// in-process store so the app still works offline.
func dialStore(ctx context.Context, cfg config.Config) store.Store {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := store.DialNATS(dialCtx, cfg.NATS.URL, cfg.NATS.Bucket)
	if err != nil {
		log.Warn().Err(err).Str("url", cfg.NATS.URL).
			Msg("replicated store unreachable, running offline")
		return store.NewMemoryStore()
	}
	log.Info().Str("url", cfg.NATS.URL).Str("bucket", cfg.NATS.Bucket).
		Dur("server_offset", st.ServerOffset()).Msg("connected to replicated store")
	return st
}

// openCache opens the durable board cache. A cache failure is not fatal,
// the app just loses restart persistence.
func openCache(path string) *cache.BoardCache {
	bc, err := cache.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("board cache unavailable")
		return nil
	}
	return bc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
