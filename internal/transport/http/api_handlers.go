package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wapcast-server/internal/core"
	"github.com/vovakirdan/wapcast-server/internal/store"
)

// APIHandlers lets collaborator services push events and inspect presence.
type APIHandlers struct {
	hub      *core.Hub
	presence store.PresenceStore
	log      *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance. presence may be nil.
func NewAPIHandlers(hub *core.Hub, presence store.PresenceStore, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		hub:      hub,
		presence: presence,
		log:      logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// EmitRequest is the body of every emit endpoint.
type EmitRequest struct {
	Type string          `json:"type" binding:"required"`
	Data json.RawMessage `json:"data"`
	// Label selects watchers for POST /api/emit; empty means everyone.
	Label string `json:"label"`
}

// BroadcastRequest is the body of POST /api/broadcast.
type BroadcastRequest struct {
	Type         string          `json:"type" binding:"required"`
	Data         json.RawMessage `json:"data"`
	Room         string          `json:"room"`
	SenderUserID string          `json:"senderUserId"`
}

// EmitResponse reports how many connections the event was queued for.
type EmitResponse struct {
	Delivered int `json:"delivered"`
}

// MembersResponse lists the connections in a room.
type MembersResponse struct {
	Room     string   `json:"room"`
	Category string   `json:"category"`
	Members  []string `json:"members"`
}

// PresenceResponse combines live connections with the presence journal.
type PresenceResponse struct {
	UserID        string   `json:"userId"`
	Online        bool     `json:"online"`
	Connections   []string `json:"connections"`
	LastOnlineAt  string   `json:"lastOnlineAt,omitempty"`
	LastOfflineAt string   `json:"lastOfflineAt,omitempty"`
}

// StatsResponse reports hub occupancy and delivery counters.
type StatsResponse struct {
	Connections    int    `json:"connections"`
	Identified     int    `json:"identified"`
	Users          int    `json:"users"`
	Rooms          int    `json:"rooms"`
	EditorContexts int    `json:"editorContexts"`
	WatchLabels    int    `json:"watchLabels"`
	Delivered      uint64 `json:"delivered"`
	Dropped        uint64 `json:"dropped"`
}

// Emit sends to everyone, or to the watchers of label.
// POST /api/emit
func (h *APIHandlers) Emit(c *gin.Context) {
	var req EmitRequest
	if !h.bind(c, &req) {
		return
	}
	n := h.hub.Router().EmitToRoomOrGlobal(req.Type, payload(req.Data), req.Label)
	h.log.Info().Str("type", req.Type).Str("label", req.Label).Int("delivered", n).Msg("api emit")
	c.JSON(http.StatusOK, EmitResponse{Delivered: n})
}

// EmitToRoom sends to every member of a primary room.
// POST /api/rooms/:room/emit
func (h *APIHandlers) EmitToRoom(c *gin.Context) {
	var req EmitRequest
	if !h.bind(c, &req) {
		return
	}
	room := c.Param("room")
	n := h.hub.Router().EmitToRoom(req.Type, payload(req.Data), room)
	h.log.Info().Str("type", req.Type).Str("room", room).Int("delivered", n).Msg("api emit to room")
	c.JSON(http.StatusOK, EmitResponse{Delivered: n})
}

// EmitToUser sends to the connections of a user.
// POST /api/users/:userId/emit
func (h *APIHandlers) EmitToUser(c *gin.Context) {
	var req EmitRequest
	if !h.bind(c, &req) {
		return
	}
	userID := c.Param("userId")
	n := h.hub.Router().EmitToUser(req.Type, payload(req.Data), userID)
	h.log.Info().Str("type", req.Type).Str("user_id", userID).Int("delivered", n).Msg("api emit to user")
	c.JSON(http.StatusOK, EmitResponse{Delivered: n})
}

// Broadcast sends to a room or everyone, skipping the sender's connections.
// POST /api/broadcast
func (h *APIHandlers) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if !h.bind(c, &req) {
		return
	}
	n := h.hub.Router().BroadcastExcludingSender(req.Type, payload(req.Data), req.Room, req.SenderUserID)
	h.log.Info().
		Str("type", req.Type).
		Str("room", req.Room).
		Str("sender_user_id", req.SenderUserID).
		Int("delivered", n).
		Msg("api broadcast")
	c.JSON(http.StatusOK, EmitResponse{Delivered: n})
}

// EmitToWatchers sends to the watchers of a label.
// POST /api/watchers/:label/emit
func (h *APIHandlers) EmitToWatchers(c *gin.Context) {
	var req EmitRequest
	if !h.bind(c, &req) {
		return
	}
	label := c.Param("label")
	n := h.hub.Router().EmitToWatchers(label, req.Type, payload(req.Data))
	h.log.Info().Str("type", req.Type).Str("label", label).Int("delivered", n).Msg("api emit to watchers")
	c.JSON(http.StatusOK, EmitResponse{Delivered: n})
}

// Members lists the connections in a room.
// GET /api/rooms/:room/members?category=primary|editorContext
func (h *APIHandlers) Members(c *gin.Context) {
	category, err := core.ParseCategory(c.Query("category"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	room := c.Param("room")
	members := h.hub.Registry().MembersOf(room, category)
	if members == nil {
		members = []string{}
	}
	c.JSON(http.StatusOK, MembersResponse{Room: room, Category: category.String(), Members: members})
}

// Presence reports whether a user is connected and when they were last seen.
// GET /api/users/:userId/presence
func (h *APIHandlers) Presence(c *gin.Context) {
	userID := c.Param("userId")

	conns := h.hub.Registry().FindByUser(userID)
	resp := PresenceResponse{
		UserID:      userID,
		Online:      len(conns) > 0,
		Connections: make([]string, 0, len(conns)),
	}
	for _, conn := range conns {
		resp.Connections = append(resp.Connections, conn.ID)
	}

	if h.presence != nil {
		seen, err := h.presence.LastSeen(c.Request.Context(), userID)
		switch {
		case err == nil:
			resp.LastOnlineAt = seen.LastOnlineAt.Format(time.RFC3339)
			if seen.LastOfflineAt != nil {
				resp.LastOfflineAt = seen.LastOfflineAt.Format(time.RFC3339)
			}
		case errors.Is(err, store.ErrNotFound):
		default:
			h.log.Warn().Err(err).Str("user_id", userID).Msg("failed to read presence journal")
		}
	}

	if !resp.Online && resp.LastOnlineAt == "" {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not seen"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Stats reports hub occupancy.
// GET /api/stats
func (h *APIHandlers) Stats(c *gin.Context) {
	stats, delivered, dropped := h.hub.Stats()
	c.JSON(http.StatusOK, StatsResponse{
		Connections:    stats.Connections,
		Identified:     stats.Identified,
		Users:          stats.Users,
		Rooms:          stats.PrimaryRooms,
		EditorContexts: stats.EditorContexts,
		WatchLabels:    stats.WatchLabels,
		Delivered:      delivered,
		Dropped:        dropped,
	})
}

func (h *APIHandlers) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.log.Debug().Err(err).Msg("invalid emit request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func payload(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
