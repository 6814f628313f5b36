package core

// Outbound event types produced by the core for client commands.
const (
	EventStateUpdated      = "state-updated"
	EventPointerMoved      = "pointer-moved"
	EventChatMessageAdded  = "chat-message-added"
	EventLeadAdded         = "lead-added"
	EventSubscriptionAdded = "subscription-added"
	EventScheduleAdded     = "schedule-added"
	EventError             = "error"
)

// Event is an ephemeral notification pushed to connections.
// Data is opaque to the core and is encoded by the transport.
type Event struct {
	Type  string
	Data  any
	Error *CoreError
}
