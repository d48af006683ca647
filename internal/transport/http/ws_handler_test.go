package http

import (
	"testing"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"pushgate/internal/config"
	"pushgate/internal/core"
	"pushgate/internal/proto"
)

func TestServerAssignedIdentity(t *testing.T) {
	env := newTestEnv(t, config.IdentityServer, []string{"news"})
	conn := env.dial(t)

	var hello proto.ServerConnection
	expectFrame(t, conn, proto.OutboundTypeServerConnection, &hello)

	if _, err := uuid.Parse(hello.Identifier); err != nil {
		t.Fatalf("identifier %q is not a UUID: %v", hello.Identifier, err)
	}
	if len(hello.Rooms) != 0 {
		t.Fatalf("handshake rooms = %v, want empty", hello.Rooms)
	}
	if hello.Authorization.Level != string(core.LevelGuest) {
		t.Fatalf("handshake level = %q, want guest", hello.Authorization.Level)
	}
}

func TestJoinAndLeaveOverWebSocket(t *testing.T) {
	env := newTestEnv(t, config.IdentityServer, []string{"news"})
	conn := env.dial(t)

	var hello proto.ServerConnection
	expectFrame(t, conn, proto.OutboundTypeServerConnection, &hello)

	writeJSON(t, conn, joinFrame("news"))
	var rooms proto.Rooms
	expectFrame(t, conn, proto.OutboundTypeRooms, &rooms)
	if len(rooms.Rooms) != 1 || rooms.Rooms[0] != "invalidate/news" {
		t.Fatalf("rooms = %v, want [invalidate/news]", rooms.Rooms)
	}

	writeJSON(t, conn, map[string]any{
		"type":  "route",
		"route": core.RouteInvalidateLeave,
		"body": map[string]string{
			"room":     core.RouteInvalidateLeave,
			"endpoint": "news",
		},
	})
	expectFrame(t, conn, proto.OutboundTypeRooms, &rooms)
	if len(rooms.Rooms) != 0 {
		t.Fatalf("rooms after leave = %v, want empty", rooms.Rooms)
	}
}

func TestMalformedFrameOverWebSocket(t *testing.T) {
	env := newTestEnv(t, config.IdentityServer, nil)
	conn := env.dial(t)

	var hello proto.ServerConnection
	expectFrame(t, conn, proto.OutboundTypeServerConnection, &hello)

	writeJSON(t, conn, map[string]any{"type": "shout"})
	var errFrame proto.Error
	expectFrame(t, conn, proto.OutboundTypeError, &errFrame)
	if errFrame.Message != core.MsgMalformedEnvelope || !errFrame.CanRetry {
		t.Fatalf("error frame = %+v", errFrame)
	}

	// The connection survives the bad frame.
	writeJSON(t, conn, joinFrame("anything"))
	var resp proto.Response
	expectFrame(t, conn, proto.OutboundTypeResponse, &resp)
	if resp.Status != "error" {
		t.Fatalf("response status = %q, want error for unknown endpoint", resp.Status)
	}
}

func TestClientIdentityHandshake(t *testing.T) {
	env := newTestEnv(t, config.IdentityClient, []string{"news"})
	conn := env.dial(t)
	id := uuid.NewString()

	// Before identifying, anything else earns a retryable nudge.
	writeJSON(t, conn, joinFrame("news"))
	var errFrame proto.Error
	expectFrame(t, conn, proto.OutboundTypeError, &errFrame)
	if errFrame.Message != core.MsgIdentityRequired || !errFrame.CanRetry {
		t.Fatalf("error frame = %+v", errFrame)
	}

	writeJSON(t, conn, proto.Inbound{Type: proto.InboundTypeIdentification, Identifier: id})
	var hello proto.ServerConnection
	expectFrame(t, conn, proto.OutboundTypeServerConnection, &hello)
	if hello.Identifier != id {
		t.Fatalf("handshake identifier = %q, want %q", hello.Identifier, id)
	}
}

func TestClientIdentityRejectsBadIdentifier(t *testing.T) {
	env := newTestEnv(t, config.IdentityClient, nil)
	conn := env.dial(t)

	writeJSON(t, conn, proto.Inbound{Type: proto.InboundTypeIdentification, Identifier: "not-a-uuid"})
	var errFrame proto.Error
	expectFrame(t, conn, proto.OutboundTypeError, &errFrame)
	if errFrame.Message != core.MsgIdentityRejected || errFrame.CanRetry {
		t.Fatalf("error frame = %+v", errFrame)
	}
}

func TestClientIdentityRejectsCollision(t *testing.T) {
	env := newTestEnv(t, config.IdentityClient, nil)
	id := uuid.NewString()

	first := env.dial(t)
	writeJSON(t, first, proto.Inbound{Type: proto.InboundTypeIdentification, Identifier: id})
	var hello proto.ServerConnection
	expectFrame(t, first, proto.OutboundTypeServerConnection, &hello)

	second := env.dial(t)
	writeJSON(t, second, proto.Inbound{Type: proto.InboundTypeIdentification, Identifier: id})
	var errFrame proto.Error
	expectFrame(t, second, proto.OutboundTypeError, &errFrame)
	if errFrame.Message != core.MsgIdentityRejected || errFrame.CanRetry {
		t.Fatalf("error frame = %+v", errFrame)
	}
}

func TestCloseIsSweptFromRegistry(t *testing.T) {
	env := newTestEnv(t, config.IdentityServer, nil)
	conn := env.dial(t)

	var hello proto.ServerConnection
	expectFrame(t, conn, proto.OutboundTypeServerConnection, &hello)

	if n := env.hub.ClientCount(); n != 1 {
		t.Fatalf("client count = %d, want 1", n)
	}
	conn.Close(websocket.StatusNormalClosure, "bye")

	// The registry entry lingers until the next sweep; the snapshot
	// stays readable in the meantime.
	if _, ok := env.hub.Snapshot(hello.Identifier); !ok {
		t.Fatal("client vanished before sweep")
	}
}
