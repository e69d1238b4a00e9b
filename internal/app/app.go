// Package app boots the duelgrounds server: store selection, service
// wiring, the broadcast hub and the HTTP listener.
package app

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"time"

	"go.uber.org/zap"

	"duelgrounds/internal/auth"
	"duelgrounds/internal/combat"
	"duelgrounds/internal/config"
	servernet "duelgrounds/internal/net"
	"duelgrounds/internal/store"
	"duelgrounds/internal/world"
)

const shutdownGrace = 5 * time.Second

// Run wires the server and blocks until ctx is canceled or the listener
// fails. Cancellation drains stream subscribers, then shuts the listener
// down gracefully.
func Run(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) error {
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.Warnw("closing store", "error", cerr)
		}
	}()

	authSvc := auth.NewService(st, cfg.SessionTTL, log)
	presence := world.NewPresence()
	resolver := combat.NewResolver(st, authSvc, cfg.MaxHitDistance, log)
	hub := world.NewHub(st, presence, cfg.BroadcastHz, cfg.MaxSubscribers, log)

	// The hub is stopped explicitly during shutdown rather than tied to
	// ctx, so subscribers drain before the listener closes.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	handler := servernet.NewHandler(servernet.Deps{
		Store:    st,
		Auth:     authSvc,
		Combat:   resolver,
		Hub:      hub,
		Presence: presence,
	}, servernet.HandlerConfig{
		ClientDir: cfg.ClientDir,
		Logger:    log,
	})

	srv := &nethttp.Server{Addr: cfg.Addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server listening",
			"addr", cfg.Addr,
			"broadcastHz", cfg.BroadcastHz,
			"maxHitDistance", cfg.MaxHitDistance)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Infow("shutting down")
		stopHub()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}
}

func openStore(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Infow("using in-memory store")
		return store.NewMemory(), nil
	}
	log.Infow("using postgres store")
	return store.OpenPostgres(ctx, cfg.DatabaseURL)
}
