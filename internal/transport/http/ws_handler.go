package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"slices"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wapcast-server/internal/auth"
	"github.com/vovakirdan/wapcast-server/internal/config"
	"github.com/vovakirdan/wapcast-server/internal/core"
	"github.com/vovakirdan/wapcast-server/internal/proto"
	"github.com/vovakirdan/wapcast-server/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges them to core.Connection.
type WSHandler struct {
	hub      *core.Hub
	log      *zerolog.Logger
	accept   *websocket.AcceptOptions
	readMax  int64
	rate     int
	verifier identityVerifier
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	accept := &websocket.AcceptOptions{}
	if len(cfg.AllowedOrigins) == 0 || slices.Contains(cfg.AllowedOrigins, "*") {
		accept.InsecureSkipVerify = true
	} else {
		accept.OriginPatterns = cfg.AllowedOrigins
	}

	verifier := identityVerifier{required: cfg.IdentifyRequired}
	if cfg.IdentifySecret != "" {
		verifier.jwt = &auth.JWTConfig{Secret: []byte(cfg.IdentifySecret)}
	}

	return &WSHandler{
		hub:      hub,
		log:      logger,
		accept:   accept,
		readMax:  cfg.MaxMessageBytes,
		rate:     cfg.RateLimitPerMinute,
		verifier: verifier,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.readMax > 0 {
		conn.SetReadLimit(h.readMax)
	}

	client := h.hub.NewConnection(utils.NewID())
	if err := h.hub.RegisterClient(client); err != nil {
		h.log.Warn().Err(err).Msg("ws register rejected")
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.hub.UnregisterClient(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.rate)
	limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Connection, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("read ws inbound")
			}
			return fmt.Errorf("read inbound: %w", err)
		}

		if !limiter.allow() {
			h.hub.Reject(client, core.NewError(core.ErrCodeRateLimited, "rate limit exceeded"))
			continue
		}

		cmd, rejection := inboundToCommand(inbound, h.verifier)
		if rejection != nil {
			h.log.Debug().
				Str("conn_id", client.ID).
				Str("type", inbound.Type).
				Str("code", rejection.Code).
				Msg("inbound rejected")
			h.hub.Reject(client, rejection)
			continue
		}
		if !client.Submit(cmd) {
			return nil
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Connection) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return fmt.Errorf("write event: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
