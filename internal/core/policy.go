package core

// Policy describes how a broadcasting command is routed.
type Policy struct {
	// EventType is the outbound event type recipients receive.
	EventType string
	// ExcludeSender drops the sender's connections from the audience when
	// the sender is identified.
	ExcludeSender bool
	// RoomFromCommand targets Command.Room instead of the sender's current
	// primary room.
	RoomFromCommand bool
	// RequireRoom drops the command when the resolved room is empty instead
	// of falling back to every connection.
	RequireRoom bool
}

// Policies maps broadcasting command kinds to their routing policy.
type Policies map[CommandKind]Policy

// DefaultPolicies returns the stock routing table. Chat messages are echoed
// back to the sender and only ever reach the sender's room; every other
// broadcast skips the sender.
func DefaultPolicies() Policies {
	return Policies{
		CommandUpdateState:        {EventType: EventStateUpdated, ExcludeSender: true},
		CommandUpdatePointer:      {EventType: EventPointerMoved, ExcludeSender: true},
		CommandChatMessage:        {EventType: EventChatMessageAdded, ExcludeSender: false, RequireRoom: true},
		CommandSubmitLead:         {EventType: EventLeadAdded, ExcludeSender: true, RoomFromCommand: true},
		CommandSubmitSubscription: {EventType: EventSubscriptionAdded, ExcludeSender: true, RoomFromCommand: true},
		CommandSubmitSchedule:     {EventType: EventScheduleAdded, ExcludeSender: true, RoomFromCommand: true},
	}
}

// WithChatEcho returns a copy of p where chat messages are (or are not)
// echoed back to the sender.
func (p Policies) WithChatEcho(echo bool) Policies {
	out := make(Policies, len(p))
	for k, v := range p {
		out[k] = v
	}
	chat := out[CommandChatMessage]
	if chat.EventType == "" {
		chat.EventType = EventChatMessageAdded
	}
	chat.ExcludeSender = !echo
	out[CommandChatMessage] = chat
	return out
}

// Lookup returns the policy for kind and whether kind broadcasts at all.
func (p Policies) Lookup(kind CommandKind) (Policy, bool) {
	pol, ok := p[kind]
	return pol, ok
}
