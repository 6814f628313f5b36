package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wapcast-server/internal/auth"
	"github.com/vovakirdan/wapcast-server/internal/core"
	"github.com/vovakirdan/wapcast-server/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	ts, _ := startTestServer(t, testConfig(), nil)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, hub := startTestServer(t, testConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dial(t, ctx, ts)
	waitFor(t, "connection registered", func() bool { return hub.Registry().Len() == 1 })

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "wapcast_connections 1") {
		t.Fatalf("expected connection gauge, got:\n%s", body)
	}
}

func TestWebSocketPointerReachesRoomButNotSender(t *testing.T) {
	ts, hub := startTestServer(t, testConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dial(t, ctx, ts)
	connB := dial(t, ctx, ts)
	connC := dial(t, ctx, ts)

	send(t, ctx, connA, proto.InboundTypeIdentify, "ua")
	send(t, ctx, connB, proto.InboundTypeIdentify, "ub")
	send(t, ctx, connC, proto.InboundTypeIdentify, "uc")
	send(t, ctx, connA, proto.InboundTypeJoinRoom, "doc1")
	send(t, ctx, connB, proto.InboundTypeJoinRoom, proto.RoomData{Room: "doc1"})
	send(t, ctx, connC, proto.InboundTypeJoinRoom, "doc2")

	reg := hub.Registry()
	waitFor(t, "rooms to settle", func() bool {
		return len(reg.MembersOf("doc1", core.CategoryPrimary)) == 2 &&
			len(reg.MembersOf("doc2", core.CategoryPrimary)) == 1 &&
			len(reg.FindByUser("ua")) == 1
	})

	send(t, ctx, connA, proto.InboundTypeUpdatePointer, map[string]int{"x": 10, "y": 20})
	// commands of one connection apply in order, so an echoed pointer would
	// reach A before its chat echo
	send(t, ctx, connA, proto.InboundTypeChatMessage, "hi")

	got := read(t, ctx, connB)
	if got.Type != core.EventPointerMoved {
		t.Fatalf("expected pointer-moved, got %+v", got)
	}
	var pos map[string]int
	if err := json.Unmarshal(got.Data, &pos); err != nil || pos["x"] != 10 || pos["y"] != 20 {
		t.Fatalf("unexpected pointer payload %s", got.Data)
	}
	if got := read(t, ctx, connB); got.Type != core.EventChatMessageAdded {
		t.Fatalf("expected chat after pointer, got %+v", got)
	}

	if got := read(t, ctx, connA); got.Type != core.EventChatMessageAdded {
		t.Fatalf("sender must not receive its own pointer, got %+v", got)
	}
	if hub.Router().Delivered() < 3 {
		t.Fatalf("expected at least 3 deliveries, got %d", hub.Router().Delivered())
	}
}

func TestWebSocketRejectsMalformedInput(t *testing.T) {
	ts, _ := startTestServer(t, testConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, ts)

	send(t, ctx, conn, proto.InboundTypeJoinRoom, map[string]string{})
	if got := read(t, ctx, conn); got.Type != "error" || got.Error == nil || got.Error.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got %+v", got)
	}

	send(t, ctx, conn, "set-wap-room", "doc1")
	if got := read(t, ctx, conn); got.Error == nil || got.Error.Code != core.ErrCodeInvalidMessage {
		t.Fatalf("expected invalid_message, got %+v", got)
	}

	send(t, ctx, conn, proto.InboundTypeSubmitLead, map[string]string{"email": "a@b.c"})
	if got := read(t, ctx, conn); got.Error == nil || got.Error.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request for lead without room, got %+v", got)
	}
}

func TestWebSocketSubmitLeadReachesTargetRoom(t *testing.T) {
	ts, hub := startTestServer(t, testConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	visitor := dial(t, ctx, ts)
	owner := dial(t, ctx, ts)
	send(t, ctx, visitor, proto.InboundTypeJoinRoom, "site-42")
	send(t, ctx, owner, proto.InboundTypeJoinRoom, "dashboard-7")
	waitFor(t, "rooms to settle", func() bool {
		return len(hub.Registry().MembersOf("dashboard-7", core.CategoryPrimary)) == 1 &&
			len(hub.Registry().MembersOf("site-42", core.CategoryPrimary)) == 1
	})

	send(t, ctx, visitor, proto.InboundTypeSubmitLead, map[string]any{
		"room":  "dashboard-7",
		"email": "lead@example.com",
		"name":  "Dana",
		"wap":   map[string]string{"_id": "w1"},
	})

	got := read(t, ctx, owner)
	if got.Type != core.EventLeadAdded {
		t.Fatalf("expected lead-added, got %+v", got)
	}
	var lead proto.Lead
	if err := json.Unmarshal(got.Data, &lead); err != nil {
		t.Fatalf("decode lead: %v", err)
	}
	if lead.Email != "lead@example.com" || lead.Name != "Dana" || len(lead.Wap) == 0 {
		t.Fatalf("unexpected lead %+v", lead)
	}
	if strings.Contains(string(got.Data), `"room"`) {
		t.Fatalf("room must not leak into the lead payload: %s", got.Data)
	}
}

func TestWebSocketIdentifyRequiresValidToken(t *testing.T) {
	cfg := testConfig()
	cfg.IdentifySecret = "identify-secret"
	cfg.IdentifyRequired = true
	ts, hub := startTestServer(t, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, ts)

	send(t, ctx, conn, proto.InboundTypeIdentify, "user1")
	if got := read(t, ctx, conn); got.Error == nil || got.Error.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized without token, got %+v", got)
	}

	send(t, ctx, conn, proto.InboundTypeIdentify, proto.IdentifyData{Token: "invalid"})
	if got := read(t, ctx, conn); got.Error == nil || got.Error.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized for bad token, got %+v", got)
	}

	token, err := auth.GenerateToken(&auth.JWTConfig{Secret: []byte(cfg.IdentifySecret), TTL: time.Minute}, "user1", "Alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	send(t, ctx, conn, proto.InboundTypeIdentify, proto.IdentifyData{Token: token})
	waitFor(t, "user1 identified", func() bool {
		return len(hub.Registry().FindByUser("user1")) == 1
	})
}

func TestWebSocketRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 3
	ts, hub := startTestServer(t, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, ts)

	// chat only reaches a room, and the join spends one token
	send(t, ctx, conn, proto.InboundTypeJoinRoom, "doc1")
	waitFor(t, "room joined", func() bool {
		return len(hub.Registry().MembersOf("doc1", core.CategoryPrimary)) == 1
	})
	for i := 0; i < 3; i++ {
		send(t, ctx, conn, proto.InboundTypeChatMessage, "hello")
	}

	// two echoes and one rejection, in any order
	var echoes, limited int
	for i := 0; i < 3; i++ {
		got := read(t, ctx, conn)
		switch {
		case got.Type == core.EventChatMessageAdded:
			echoes++
		case got.Error != nil && got.Error.Code == core.ErrCodeRateLimited:
			limited++
		default:
			t.Fatalf("unexpected message %+v", got)
		}
	}
	if echoes != 2 || limited != 1 {
		t.Fatalf("expected 2 echoes and 1 rejection, got %d and %d", echoes, limited)
	}
}

func TestWebSocketDisconnectReleasesState(t *testing.T) {
	ts, hub := startTestServer(t, testConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, ts)

	send(t, ctx, conn, proto.InboundTypeIdentify, "u1")
	send(t, ctx, conn, proto.InboundTypeJoinRoom, "doc1")
	send(t, ctx, conn, proto.InboundTypeWatchUser, "u2")
	send(t, ctx, conn, proto.InboundTypeEnterEditorContext, "el-1")
	waitFor(t, "state to settle", func() bool {
		s := hub.Registry().Stats()
		return s.Identified == 1 && s.PrimaryRooms == 1 && s.WatchLabels == 1 && s.EditorContexts == 1
	})

	conn.Close(websocket.StatusNormalClosure, "bye")

	waitFor(t, "registry to empty", func() bool {
		return hub.Registry().Stats() == core.Stats{}
	})
}

func TestWebSocketOriginAllowList(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"example.com"}
	ts, _ := startTestServer(t, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"

	_, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://evil.test"}},
	})
	if err == nil {
		t.Fatalf("expected foreign origin to be rejected")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://example.com"}},
	})
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}
