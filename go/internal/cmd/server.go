package main

import (
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/dhanucoding/retro-app/go/internal/config"
	"github.com/dhanucoding/retro-app/go/internal/gateway"
)

func setupServer(cfg config.Config, hub *gateway.Hub) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	mux.HandleFunc("/ws", hub.HandleWS)
	setupHealthCheck(mux)

	return &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: c.Handler(mux),
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
