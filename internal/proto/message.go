package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	InboundTypeJoinRoom           = "join-room"
	InboundTypeLeaveRoom          = "leave-room"
	InboundTypeUpdateState        = "update-state"
	InboundTypeUpdatePointer      = "update-pointer"
	InboundTypeChatMessage        = "chat-message"
	InboundTypeWatchUser          = "watch-user"
	InboundTypeUnwatchUser        = "unwatch-user"
	InboundTypeIdentify           = "identify"
	InboundTypeClearIdentity      = "clear-identity"
	InboundTypeSubmitLead         = "submit-lead"
	InboundTypeSubmitSubscription = "submit-subscription"
	InboundTypeSubmitSchedule     = "submit-schedule"
	InboundTypeEnterEditorContext = "enter-editor-context"
	InboundTypeLeaveEditorContext = "leave-editor-context"

	OutboundTypeError = "error"
)

// RoomData names a room. Clients may also send the bare label as a string.
type RoomData struct {
	Room string `json:"room"`
}

// ContextData names an editor context. A bare string is accepted too.
type ContextData struct {
	ContextID string `json:"contextId"`
}

// UserData names a user to watch. A bare string is accepted too.
type UserData struct {
	UserID string `json:"userId"`
}

// IdentifyData associates a user with the connection. Token is a signed
// JWT whose subject is the user id; it is required when the server is
// configured to verify identities.
type IdentifyData struct {
	UserID string `json:"userId,omitempty"`
	Token  string `json:"token,omitempty"`
}

// LeadData is a lead captured on a published site.
type LeadData struct {
	Room string `json:"room"`
	Lead
}

// Lead is the lead record delivered to the room.
type Lead struct {
	Wap      json.RawMessage `json:"wap,omitempty"`
	Title    string          `json:"title,omitempty"`
	Date     json.RawMessage `json:"date,omitempty"`
	Email    string          `json:"email,omitempty"`
	Location string          `json:"location,omitempty"`
	Name     string          `json:"name,omitempty"`
	Phone    string          `json:"phone,omitempty"`
	Schedule json.RawMessage `json:"schedule,omitempty"`
}

// SubscriptionData is a newsletter subscription captured on a site.
type SubscriptionData struct {
	Room string `json:"room"`
	Subscription
}

// Subscription is the subscription record delivered to the room.
type Subscription struct {
	Wap   json.RawMessage `json:"wap,omitempty"`
	Email string          `json:"email,omitempty"`
	Date  json.RawMessage `json:"date,omitempty"`
}

// ScheduleData is an appointment booked on a site.
type ScheduleData struct {
	Room string `json:"room"`
	Schedule
}

// Schedule is the appointment record delivered to the room.
type Schedule struct {
	Wap      json.RawMessage `json:"wap,omitempty"`
	Schedule json.RawMessage `json:"schedule,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
