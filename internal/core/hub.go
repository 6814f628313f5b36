package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const presenceTimeout = 2 * time.Second

// PresenceRecorder is notified when users come online and go offline.
// Implementations must be safe for concurrent use.
type PresenceRecorder interface {
	RecordOnline(ctx context.Context, userID, connID string, at time.Time) error
	RecordOffline(ctx context.Context, userID, connID string, at time.Time) error
}

// HubConfig tunes queue sizes and routing behaviour. The zero value is usable.
type HubConfig struct {
	CommandBuffer int
	EventBuffer   int
	ChatEcho      bool
	FanOut        FanOut
}

// DefaultHubConfig echoes chat messages and fans out to every connection
// of a user.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		CommandBuffer: DefaultCommandBuffer,
		EventBuffer:   DefaultEventBuffer,
		ChatEcho:      true,
		FanOut:        FanOutAll,
	}
}

// Hub owns the registry and router, and runs one coordinating goroutine per
// connection so that each connection's commands apply in order.
type Hub struct {
	cfg      HubConfig
	registry *Registry
	router   *Router
	policies Policies
	presence PresenceRecorder
	log      *zerolog.Logger

	mu       sync.Mutex
	stopped  bool
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub creates a hub. presence and logger may be nil.
func NewHub(cfg HubConfig, presence PresenceRecorder, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	reg := NewRegistry()
	router := NewRouter(reg, logger)
	router.SetFanOut(cfg.FanOut)

	return &Hub{
		cfg:      cfg,
		registry: reg,
		router:   router,
		policies: DefaultPolicies().WithChatEcho(cfg.ChatEcho),
		presence: presence,
		log:      logger,
		done:     make(chan struct{}),
	}
}

// Registry exposes the hub's connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Router exposes the hub's broadcast router.
func (h *Hub) Router() *Router {
	return h.router
}

// NewConnection builds a connection sized by the hub configuration.
func (h *Hub) NewConnection(id string) *Connection {
	return NewConnectionSize(id, h.cfg.CommandBuffer, h.cfg.EventBuffer)
}

// Run blocks until ctx is cancelled, then tears down every connection.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.stop()
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.stopped = true
		close(h.done)
		h.mu.Unlock()

		for _, c := range h.registry.Connections() {
			h.UnregisterClient(c)
		}
		h.wg.Wait()
		h.log.Info().Msg("hub stopped")
	})
}

// RegisterClient adds c to the registry and starts processing its commands.
func (h *Hub) RegisterClient(c *Connection) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		c.Close()
		return ErrHubStopped
	}
	if err := h.registry.Register(c); err != nil {
		return err
	}
	h.log.Info().Str("conn_id", c.ID).Msg("new connection")

	h.wg.Add(1)
	go h.serve(c)
	return nil
}

// UnregisterClient removes c and everything derived from it, then closes
// its outbound queue. Safe to call repeatedly.
func (h *Hub) UnregisterClient(c *Connection) {
	info, ok := h.registry.Unregister(c.ID)
	if !ok {
		c.Close()
		return
	}
	c.Close()

	if info.UserID != "" {
		h.recordOffline(info.UserID, c.ID)
	}
	h.log.Info().Str("conn_id", c.ID).Msg("connection closed")
}

// Reject sends a domain error to a single connection.
func (h *Hub) Reject(c *Connection, err *CoreError) bool {
	return c.deliver(&Event{Type: EventError, Error: err})
}

// Stats returns registry occupancy together with delivery counters.
func (h *Hub) Stats() (Stats, uint64, uint64) {
	return h.registry.Stats(), h.router.Delivered(), h.router.Dropped()
}

func (h *Hub) serve(c *Connection) {
	defer h.wg.Done()

	for {
		select {
		case cmd := <-c.Commands:
			if cmd != nil {
				h.handle(c, cmd)
			}
		case <-c.Done():
			return
		case <-h.done:
			return
		}
	}
}

func (h *Hub) handle(c *Connection, cmd *Command) {
	logger := h.log.With().Str("conn_id", c.ID).Str("command", cmd.Kind.String()).Logger()

	switch cmd.Kind {
	case CommandJoinRoom, CommandEnterEditorContext:
		cat := CategoryPrimary
		if cmd.Kind == CommandEnterEditorContext {
			cat = CategoryEditorContext
		}
		prev, joined := h.registry.JoinRoom(c.ID, cmd.Label, cat)
		if !joined {
			return
		}
		if prev != "" {
			logger.Info().Str("room", prev).Str("category", cat.String()).Msg("connection is leaving room")
		}
		logger.Info().Str("room", cmd.Label).Str("category", cat.String()).Msg("connection joined room")

	case CommandLeaveRoom, CommandLeaveEditorContext:
		cat := CategoryPrimary
		if cmd.Kind == CommandLeaveEditorContext {
			cat = CategoryEditorContext
		}
		if label, left := h.registry.LeaveRoom(c.ID, cat); left {
			logger.Info().Str("room", label).Str("category", cat.String()).Msg("connection is leaving room")
		}

	case CommandWatchUser:
		if h.registry.Watch(c.ID, cmd.Label) {
			logger.Info().Str("label", cmd.Label).Msg("watching label")
		}

	case CommandUnwatchUser:
		if h.registry.Unwatch(c.ID, cmd.Label) {
			logger.Info().Str("label", cmd.Label).Msg("stopped watching label")
		}

	case CommandIdentify:
		prev, err := h.registry.SetUser(c.ID, cmd.UserID)
		if err != nil {
			logger.Warn().Err(err).Msg("identify failed")
			return
		}
		if prev == cmd.UserID {
			return
		}
		if prev != "" {
			h.recordOffline(prev, c.ID)
		}
		h.recordOnline(cmd.UserID, c.ID)
		// a disconnect that raced the journal write has already recorded
		// offline; close the session it could not see
		if info, ok := h.registry.Info(c.ID); !ok || info.UserID != cmd.UserID {
			h.recordOffline(cmd.UserID, c.ID)
			return
		}
		logger.Info().Str("user_id", cmd.UserID).Msg("connection identified")

	case CommandClearIdentity:
		if prev, cleared := h.registry.ClearUser(c.ID); cleared {
			h.recordOffline(prev, c.ID)
			logger.Info().Str("user_id", prev).Msg("connection identity cleared")
		}

	default:
		h.broadcast(c, cmd, logger)
	}
}

func (h *Hub) broadcast(c *Connection, cmd *Command, logger zerolog.Logger) {
	pol, ok := h.policies.Lookup(cmd.Kind)
	if !ok {
		logger.Warn().Msg("no routing policy for command")
		return
	}
	info, ok := h.registry.Info(c.ID)
	if !ok {
		return
	}

	route := Route{Room: info.Room}
	if pol.RoomFromCommand {
		route.Room = cmd.Room
	}
	if pol.ExcludeSender {
		route.ExcludeUserID = info.UserID
	}
	if pol.RequireRoom && route.Room == "" {
		logger.Debug().Str("event", pol.EventType).Msg("dropped command outside of a room")
		return
	}

	n := h.router.Dispatch(&Event{Type: pol.EventType, Data: cmd.Data}, route)
	logger.Debug().
		Str("event", pol.EventType).
		Str("room", route.Room).
		Bool("exclude_sender", pol.ExcludeSender).
		Int("delivered", n).
		Msg("broadcast command")
}

func (h *Hub) recordOnline(userID, connID string) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.presence.RecordOnline(ctx, userID, connID, time.Now().UTC()); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("failed to record presence")
	}
}

func (h *Hub) recordOffline(userID, connID string) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.presence.RecordOffline(ctx, userID, connID, time.Now().UTC()); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("failed to record presence")
	}
}
