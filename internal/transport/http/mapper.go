package http

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/vovakirdan/wapcast-server/internal/auth"
	"github.com/vovakirdan/wapcast-server/internal/core"
	"github.com/vovakirdan/wapcast-server/internal/proto"
)

var errNoLabel = errors.New("label is empty")

// identityVerifier checks identify tokens. A nil jwt means tokens are not
// verified and the payload's userId is trusted.
type identityVerifier struct {
	jwt      *auth.JWTConfig
	required bool
}

// inboundToCommand validates an inbound envelope and maps it to a core
// command. Rejections carry the error code to send back to the client.
func inboundToCommand(inbound proto.Inbound, verifier identityVerifier) (*core.Command, *core.CoreError) {
	switch inbound.Type {
	case proto.InboundTypeJoinRoom:
		room, err := decodeLabel(inbound.Data, "room")
		if err != nil {
			return nil, core.NewError(core.ErrCodeBadRequest, "room is required")
		}
		return &core.Command{Kind: core.CommandJoinRoom, Label: room}, nil

	case proto.InboundTypeLeaveRoom:
		return &core.Command{Kind: core.CommandLeaveRoom}, nil

	case proto.InboundTypeEnterEditorContext:
		contextID, err := decodeLabel(inbound.Data, "contextId")
		if err != nil {
			return nil, core.NewError(core.ErrCodeBadRequest, "contextId is required")
		}
		return &core.Command{Kind: core.CommandEnterEditorContext, Label: contextID}, nil

	case proto.InboundTypeLeaveEditorContext:
		return &core.Command{Kind: core.CommandLeaveEditorContext}, nil

	case proto.InboundTypeUpdateState:
		return &core.Command{Kind: core.CommandUpdateState, Data: opaque(inbound.Data)}, nil

	case proto.InboundTypeUpdatePointer:
		return &core.Command{Kind: core.CommandUpdatePointer, Data: opaque(inbound.Data)}, nil

	case proto.InboundTypeChatMessage:
		return &core.Command{Kind: core.CommandChatMessage, Data: opaque(inbound.Data)}, nil

	case proto.InboundTypeWatchUser, proto.InboundTypeUnwatchUser:
		label, err := decodeLabel(inbound.Data, "userId")
		if err != nil {
			return nil, core.NewError(core.ErrCodeBadRequest, "userId is required")
		}
		kind := core.CommandWatchUser
		if inbound.Type == proto.InboundTypeUnwatchUser {
			kind = core.CommandUnwatchUser
		}
		return &core.Command{Kind: kind, Label: label}, nil

	case proto.InboundTypeIdentify:
		return identifyCommand(inbound.Data, verifier)

	case proto.InboundTypeClearIdentity:
		return &core.Command{Kind: core.CommandClearIdentity}, nil

	case proto.InboundTypeSubmitLead:
		var lead proto.LeadData
		if err := json.Unmarshal(inbound.Data, &lead); err != nil {
			return nil, core.NewError(core.ErrCodeBadRequest, "invalid lead payload")
		}
		if lead.Room == "" {
			return nil, core.NewError(core.ErrCodeBadRequest, "room is required")
		}
		return &core.Command{Kind: core.CommandSubmitLead, Room: lead.Room, Data: lead.Lead}, nil

	case proto.InboundTypeSubmitSubscription:
		var sub proto.SubscriptionData
		if err := json.Unmarshal(inbound.Data, &sub); err != nil {
			return nil, core.NewError(core.ErrCodeBadRequest, "invalid subscription payload")
		}
		if sub.Room == "" {
			return nil, core.NewError(core.ErrCodeBadRequest, "room is required")
		}
		return &core.Command{Kind: core.CommandSubmitSubscription, Room: sub.Room, Data: sub.Subscription}, nil

	case proto.InboundTypeSubmitSchedule:
		var sched proto.ScheduleData
		if err := json.Unmarshal(inbound.Data, &sched); err != nil {
			return nil, core.NewError(core.ErrCodeBadRequest, "invalid schedule payload")
		}
		if sched.Room == "" {
			return nil, core.NewError(core.ErrCodeBadRequest, "room is required")
		}
		return &core.Command{Kind: core.CommandSubmitSchedule, Room: sched.Room, Data: sched.Schedule}, nil

	default:
		return nil, core.NewError(core.ErrCodeInvalidMessage, "unknown message type")
	}
}

func identifyCommand(raw json.RawMessage, verifier identityVerifier) (*core.Command, *core.CoreError) {
	var data proto.IdentifyData
	if isScalar(raw) {
		label, err := scalarLabel(raw)
		if err != nil {
			return nil, core.NewError(core.ErrCodeBadRequest, "userId is required")
		}
		data.UserID = label
	} else if err := json.Unmarshal(raw, &data); err != nil {
		return nil, core.NewError(core.ErrCodeBadRequest, "invalid identify payload")
	}

	if data.Token == "" {
		if verifier.required {
			return nil, core.NewError(core.ErrCodeUnauthorized, "token is required")
		}
		if data.UserID == "" {
			return nil, core.NewError(core.ErrCodeBadRequest, "userId is required")
		}
		return &core.Command{Kind: core.CommandIdentify, UserID: data.UserID}, nil
	}

	if verifier.jwt == nil {
		if data.UserID == "" {
			return nil, core.NewError(core.ErrCodeBadRequest, "userId is required")
		}
		return &core.Command{Kind: core.CommandIdentify, UserID: data.UserID}, nil
	}

	claims, err := auth.ValidateToken(verifier.jwt, data.Token)
	if err != nil {
		return nil, core.NewError(core.ErrCodeUnauthorized, "invalid token")
	}
	if data.UserID != "" && data.UserID != claims.Subject {
		return nil, core.NewError(core.ErrCodeUnauthorized, "token does not match userId")
	}
	return &core.Command{Kind: core.CommandIdentify, UserID: claims.Subject}, nil
}

// decodeLabel accepts a bare string or number, or an object holding field.
func decodeLabel(raw json.RawMessage, field string) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return scalarLabel(raw)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	inner, ok := obj[field]
	if !ok || !isScalar(inner) {
		return "", errNoLabel
	}
	return scalarLabel(inner)
}

func scalarLabel(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errNoLabel
	}

	var label string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &label); err != nil {
			return "", err
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", err
		}
		label = n.String()
	}
	if label == "" {
		return "", errNoLabel
	}
	return label, nil
}

func isScalar(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] != '{' && raw[0] != '['
}

// opaque passes client payloads through untouched.
func opaque(raw json.RawMessage) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return raw
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	if event.Type == core.EventError {
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	}
	return proto.Outbound{Type: event.Type, Data: event.Data}
}
