package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wapcast-server/internal/config"
	"github.com/vovakirdan/wapcast-server/internal/core"
	"github.com/vovakirdan/wapcast-server/internal/store"
	"github.com/vovakirdan/wapcast-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wapcast-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.PresenceStore
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	hubCfg, err := HubConfig(cfg)
	if err != nil {
		return nil, err
	}

	var presence store.PresenceStore
	var recorder core.PresenceRecorder
	if cfg.DatabasePath != "" {
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		closed, err := st.CloseOpenSessions(context.Background(), time.Now().UTC())
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("close stale sessions: %w", err)
		}
		logger.Info().Str("db_path", cfg.DatabasePath).Int64("stale_sessions", closed).Msg("presence journal initialized")
		presence, recorder = st, st
	} else {
		logger.Info().Msg("presence journal disabled")
	}

	hub := core.NewHub(hubCfg, recorder, logger)
	server := transporthttp.NewServer(hub, presence, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           presence,
		log:             logger,
	}, nil
}

// HubConfig translates server configuration into hub tuning.
func HubConfig(cfg *config.Config) (core.HubConfig, error) {
	fanOut, err := core.ParseFanOut(cfg.UserFanOut)
	if err != nil {
		return core.HubConfig{}, err
	}
	return core.HubConfig{
		CommandBuffer: cfg.CommandBuffer,
		EventBuffer:   cfg.SendBuffer,
		ChatEcho:      cfg.ChatEcho,
		FanOut:        fanOut,
	}, nil
}

// Hub exposes the running hub.
func (a *App) Hub() *core.Hub {
	return a.hub
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(hubCtx)
		close(hubDone)
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopHub()
		<-hubDone
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// hijacked websocket connections are not tracked by Shutdown; the
		// hub closes their queues so the handlers return
		<-hubDone
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
