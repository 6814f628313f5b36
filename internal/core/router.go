package core

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// FanOut selects how user-targeted events reach users with several
// simultaneous connections.
type FanOut int

const (
	// FanOutAll delivers to every connection of the user.
	FanOutAll FanOut = iota
	// FanOutFirst delivers to the lowest-ordered connection only.
	FanOutFirst
)

func (f FanOut) String() string {
	if f == FanOutFirst {
		return "first"
	}
	return "all"
}

// ParseFanOut maps "all" or "first" to a FanOut. Empty means all.
func ParseFanOut(s string) (FanOut, error) {
	switch s {
	case "", "all":
		return FanOutAll, nil
	case "first":
		return FanOutFirst, nil
	default:
		return FanOutAll, fmt.Errorf("unknown fan-out %q", s)
	}
}

// Route is the routing directive of an event. At most one of WatchLabel and
// UserID is expected; when both are empty the event is broadcast to Room (or
// globally) minus the connections of ExcludeUserID.
type Route struct {
	Room          string
	WatchLabel    string
	UserID        string
	ExcludeUserID string
}

// Router computes recipient sets from the registry and dispatches events.
type Router struct {
	reg    *Registry
	log    *zerolog.Logger
	fanOut atomic.Int32

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewRouter creates a router over reg. A nil logger disables logging.
func NewRouter(reg *Registry, logger *zerolog.Logger) *Router {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Router{reg: reg, log: logger}
}

// SetFanOut changes the user-targeted delivery policy.
func (r *Router) SetFanOut(f FanOut) {
	r.fanOut.Store(int32(f))
}

// Recipients computes the target connections for a route from one
// consistent registry snapshot.
func (r *Router) Recipients(route Route) []*Connection {
	reg := r.reg
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	switch {
	case route.WatchLabel != "":
		return reg.connectionsLocked(reg.watchers[route.WatchLabel], nil)
	case route.UserID != "":
		conns := reg.connectionsLocked(reg.users[route.UserID], nil)
		if FanOut(r.fanOut.Load()) == FanOutFirst && len(conns) > 1 {
			conns = conns[:1]
		}
		return conns
	}

	var exclude map[string]struct{}
	if route.ExcludeUserID != "" {
		exclude = reg.users[route.ExcludeUserID]
	}

	if route.Room != "" {
		return reg.connectionsLocked(reg.rooms[CategoryPrimary][route.Room], exclude)
	}

	all := make([]*Connection, 0, len(reg.conns))
	for id, st := range reg.conns {
		if _, skip := exclude[id]; skip {
			continue
		}
		all = append(all, st.conn)
	}
	return all
}

// Dispatch delivers ev to the route's recipients without blocking and
// returns how many accepted it. Recipients whose queue is full or closed
// miss the event.
func (r *Router) Dispatch(ev *Event, route Route) int {
	recipients := r.Recipients(route)

	delivered := 0
	for _, c := range recipients {
		if c.deliver(ev) {
			delivered++
			continue
		}
		r.dropped.Add(1)
		r.log.Debug().Str("conn_id", c.ID).Str("event", ev.Type).Msg("dropped event for slow or closed connection")
	}
	r.delivered.Add(uint64(delivered))
	return delivered
}

// EmitToRoomOrGlobal delivers to everyone watching label, or to every
// connection when label is empty.
func (r *Router) EmitToRoomOrGlobal(eventType string, data any, label string) int {
	if label == "" {
		r.log.Info().Str("event", eventType).Msg("emit to all")
		return r.Dispatch(&Event{Type: eventType, Data: data}, Route{})
	}
	return r.EmitToWatchers(label, eventType, data)
}

// EmitToRoom delivers to every member of a primary room.
func (r *Router) EmitToRoom(eventType string, data any, room string) int {
	if room == "" {
		return 0
	}
	r.log.Info().Str("event", eventType).Str("room", room).Msg("emit to room")
	return r.Dispatch(&Event{Type: eventType, Data: data}, Route{Room: room})
}

// EmitToUser delivers to the connections of userID according to the fan-out
// policy. An unknown user is not an error.
func (r *Router) EmitToUser(eventType string, data any, userID string) int {
	if userID == "" {
		return 0
	}
	n := r.Dispatch(&Event{Type: eventType, Data: data}, Route{UserID: userID})
	if n == 0 {
		r.log.Info().Str("event", eventType).Str("user_id", userID).Msg("no active connection for user")
	} else {
		r.log.Info().Str("event", eventType).Str("user_id", userID).Int("connections", n).Msg("emitted event to user")
	}
	return n
}

// BroadcastExcludingSender sends to room (or everyone when room is empty)
// except the connections of senderUserID. When the sender has no
// connection the event reaches the whole audience.
func (r *Router) BroadcastExcludingSender(eventType string, data any, room, senderUserID string) int {
	logEv := r.log.Info().Str("event", eventType)
	if room != "" {
		logEv = logEv.Str("room", room)
	}
	if senderUserID != "" {
		logEv = logEv.Str("exclude_user_id", senderUserID)
	}
	logEv.Msg("broadcasting event")

	return r.Dispatch(&Event{Type: eventType, Data: data}, Route{Room: room, ExcludeUserID: senderUserID})
}

// EmitToWatchers delivers to every connection watching label.
func (r *Router) EmitToWatchers(label, eventType string, data any) int {
	if label == "" {
		return 0
	}
	r.log.Info().Str("event", eventType).Str("label", label).Msg("emit to watchers")
	return r.Dispatch(&Event{Type: eventType, Data: data}, Route{WatchLabel: label})
}

// Delivered returns the number of events accepted by recipients so far.
func (r *Router) Delivered() uint64 {
	return r.delivered.Load()
}

// Dropped returns the number of events lost to full or closed queues.
func (r *Router) Dropped() uint64 {
	return r.dropped.Load()
}
