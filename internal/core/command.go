package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom moves the connection into a primary room.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom drops the connection's primary room.
	CommandLeaveRoom
	// CommandUpdateState shares a workspace state blob with the room.
	CommandUpdateState
	// CommandUpdatePointer shares a cursor position with the room.
	CommandUpdatePointer
	// CommandChatMessage posts a chat message to the room.
	CommandChatMessage
	// CommandWatchUser subscribes to events about a label, usually a user id.
	CommandWatchUser
	// CommandUnwatchUser cancels a watch subscription.
	CommandUnwatchUser
	// CommandIdentify associates a user id with the connection.
	CommandIdentify
	// CommandClearIdentity removes the associated user id.
	CommandClearIdentity
	// CommandSubmitLead announces a captured lead to a room.
	CommandSubmitLead
	// CommandSubmitSubscription announces a newsletter subscription to a room.
	CommandSubmitSubscription
	// CommandSubmitSchedule announces a booked appointment to a room.
	CommandSubmitSchedule
	// CommandEnterEditorContext moves the connection into an editor context.
	CommandEnterEditorContext
	// CommandLeaveEditorContext drops the connection's editor context.
	CommandLeaveEditorContext
)

var commandNames = map[CommandKind]string{
	CommandJoinRoom:           "join-room",
	CommandLeaveRoom:          "leave-room",
	CommandUpdateState:        "update-state",
	CommandUpdatePointer:      "update-pointer",
	CommandChatMessage:        "chat-message",
	CommandWatchUser:          "watch-user",
	CommandUnwatchUser:        "unwatch-user",
	CommandIdentify:           "identify",
	CommandClearIdentity:      "clear-identity",
	CommandSubmitLead:         "submit-lead",
	CommandSubmitSubscription: "submit-subscription",
	CommandSubmitSchedule:     "submit-schedule",
	CommandEnterEditorContext: "enter-editor-context",
	CommandLeaveEditorContext: "leave-editor-context",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind
	// Label is the room, editor context or watch label the command refers to.
	Label string
	// Room is the explicit target room for submit-* commands.
	Room   string
	UserID string
	Data   any
}
