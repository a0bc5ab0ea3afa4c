// Package main our entry point.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johndosdos/skillxchange/internal/auth"
	"github.com/johndosdos/skillxchange/internal/config"
	"github.com/johndosdos/skillxchange/internal/contact"
	"github.com/johndosdos/skillxchange/internal/handler"
	ratelimiter "github.com/johndosdos/skillxchange/internal/rate_limiter"
	"github.com/johndosdos/skillxchange/internal/relay"
	"github.com/johndosdos/skillxchange/internal/store"
	"github.com/johndosdos/skillxchange/internal/store/embedded"
	"github.com/johndosdos/skillxchange/internal/store/postgres"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := config.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting application...", "store", cfg.StoreBackend)

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}

	// hub.Run is the only goroutine that writes to connected clients.
	hub := relay.NewHub(st, relay.Options{
		MaxContent:   cfg.MaxContentLength,
		ClientBuffer: cfg.ClientBuffer,
		MessageLimit: relay.Limit{Requests: cfg.MessageRate, Window: cfg.MessageRateWindow},
		TypingLimit:  relay.Limit{Requests: cfg.TypingRate, Window: cfg.TypingRateWindow},
	})
	go hub.Run(ctx)

	limiter := ratelimiter.NewIPRateLimiter(cfg.HTTPRate, cfg.HTTPRateWindow, ratelimiter.CleanupOpts{})
	defer limiter.Cancel()

	router := handler.NewRouter(handler.Deps{
		Messages: st,
		Users:    st,
		Contacts: contact.NewDiscovery(st, st, logger),
		Hub:      hub,
		Tokens: auth.Issuer{
			Secret: cfg.JWTSecret,
			Name:   cfg.JWTIssuer,
			TTL:    cfg.JWTTTL,
		},
		Limiter: limiter.Middleware,
	})

	// ServeWs clears these deadlines for upgraded connections.
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "addr", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received; shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}

	// The hub stops with ctx and drains its pending writes; the store must
	// outlive them.
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
	}

	if err := st.Close(); err != nil {
		logger.Error("close store", "error", err)
	}

	logger.Info("Server stopped")
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendBadger:
		st, err := embedded.Open(cfg.BadgerPath, logger, cfg.MaxContentLength)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		st, err := postgres.Open(ctx, cfg.DBURL, cfg.MaxContentLength)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}
