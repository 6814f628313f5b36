package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wapcast-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run joins a room with two sockets, moves the pointer on one and waits
// for the other to see it.
func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "tester", "user id to identify with")
	room := flag.String("room", "smoke-room", "room name")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sender, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial sender: %w", err)
	}
	defer sender.Close(websocket.StatusNormalClosure, "bye")

	receiver, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial receiver: %w", err)
	}
	defer receiver.Close(websocket.StatusNormalClosure, "bye")

	send := func(conn *websocket.Conn, msgType string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", msgType, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", msgType, err)
		}
		return nil
	}

	steps := []struct {
		conn    *websocket.Conn
		msgType string
		data    any
	}{
		{sender, proto.InboundTypeIdentify, *user},
		{receiver, proto.InboundTypeIdentify, *user + "-peer"},
		{sender, proto.InboundTypeJoinRoom, proto.RoomData{Room: *room}},
		{receiver, proto.InboundTypeJoinRoom, proto.RoomData{Room: *room}},
	}
	for _, step := range steps {
		if err := send(step.conn, step.msgType, step.data); err != nil {
			return err
		}
	}

	// joins are not acknowledged; give the server a moment to apply them
	time.Sleep(200 * time.Millisecond)

	if err := send(sender, proto.InboundTypeUpdatePointer, map[string]int{"x": 1, "y": 2}); err != nil {
		return err
	}

	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, receiver, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s\n", outbound.Type)
		if outbound.Error != nil {
			return fmt.Errorf("server error: %s: %s", outbound.Error.Code, outbound.Error.Msg)
		}

		if outbound.Type == "pointer-moved" {
			raw, err := json.Marshal(outbound.Data)
			if err != nil {
				return fmt.Errorf("marshal outbound data: %w", err)
			}
			fmt.Printf("Pointer: %s\n", raw)
			return nil
		}
	}
}
