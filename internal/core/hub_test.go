package core

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"pushgate/internal/log"
	"pushgate/internal/proto"
)

// fakeTransport captures pushed frames on a channel so tests can wait
// for asynchronous dispatch results.
type fakeTransport struct {
	frames chan any
	closed atomic.Bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan any, 32)}
}

func (f *fakeTransport) Send(frame any) bool {
	if f.closed.Load() {
		return false
	}
	select {
	case f.frames <- frame:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) Closed() bool {
	return f.closed.Load()
}

func startHub(t *testing.T, endpoints []string, sweepEvery time.Duration) *Hub {
	t.Helper()
	h := NewHub(endpoints, sweepEvery, log.Disabled())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

// nextFrame blocks until the transport receives a frame or the test
// deadline budget runs out.
func nextFrame(t *testing.T, tr *fakeTransport) any {
	t.Helper()
	select {
	case frame := <-tr.frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func assertNoFrame(t *testing.T, tr *fakeTransport) {
	t.Helper()
	select {
	case frame := <-tr.frames:
		t.Fatalf("unexpected frame: %#v", frame)
	case <-time.After(100 * time.Millisecond):
	}
}

func routeFrame(route, endpoint string) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"route","route":%q,"body":{"room":%q,"endpoint":%q}}`,
		route, route, endpoint,
	))
}

func TestConnectSendsHandshake(t *testing.T) {
	h := startHub(t, []string{"news"}, 0)
	tr := newFakeTransport()

	info := h.Connect(tr)
	if info.ID == "" {
		t.Fatal("expected server-assigned identifier")
	}
	if info.Level != LevelGuest {
		t.Fatalf("new client level = %q, want guest", info.Level)
	}

	frame, ok := nextFrame(t, tr).(proto.ServerConnection)
	if !ok {
		t.Fatalf("expected server-connection frame, got %#v", frame)
	}
	if frame.Identifier != info.ID {
		t.Fatalf("handshake identifier = %q, want %q", frame.Identifier, info.ID)
	}
	if len(frame.Rooms) != 0 {
		t.Fatalf("handshake rooms = %v, want empty", frame.Rooms)
	}
	if frame.Authorization.Level != string(LevelGuest) {
		t.Fatalf("handshake level = %q, want guest", frame.Authorization.Level)
	}
}

func TestConnectAsRejectsDuplicateIdentifier(t *testing.T) {
	h := startHub(t, nil, 0)

	first := newFakeTransport()
	if _, err := h.ConnectAs("client-a", first); err != nil {
		t.Fatalf("first ConnectAs: %v", err)
	}

	second := newFakeTransport()
	if _, err := h.ConnectAs("client-a", second); err != ErrIdentifierTaken {
		t.Fatalf("duplicate ConnectAs error = %v, want ErrIdentifierTaken", err)
	}
	assertNoFrame(t, second)

	if n := h.ClientCount(); n != 1 {
		t.Fatalf("client count = %d, want 1", n)
	}
}

func TestJoinAndLeaveAreIdempotent(t *testing.T) {
	h := startHub(t, []string{"news"}, 0)
	tr := newFakeTransport()
	info := h.Connect(tr)
	nextFrame(t, tr) // handshake

	h.Dispatch(tr, info.ID, routeFrame(RouteInvalidateJoin, "news"))
	rooms := nextFrame(t, tr).(proto.Rooms)
	if len(rooms.Rooms) != 1 || rooms.Rooms[0] != "invalidate/news" {
		t.Fatalf("rooms after join = %v, want [invalidate/news]", rooms.Rooms)
	}

	// Joining again changes nothing but still syncs the room set.
	h.Dispatch(tr, info.ID, routeFrame(RouteInvalidateJoin, "news"))
	rooms = nextFrame(t, tr).(proto.Rooms)
	if len(rooms.Rooms) != 1 {
		t.Fatalf("rooms after duplicate join = %v, want one entry", rooms.Rooms)
	}

	h.Dispatch(tr, info.ID, routeFrame(RouteInvalidateLeave, "news"))
	rooms = nextFrame(t, tr).(proto.Rooms)
	if len(rooms.Rooms) != 0 {
		t.Fatalf("rooms after leave = %v, want empty", rooms.Rooms)
	}

	h.Dispatch(tr, info.ID, routeFrame(RouteInvalidateLeave, "news"))
	rooms = nextFrame(t, tr).(proto.Rooms)
	if len(rooms.Rooms) != 0 {
		t.Fatalf("rooms after duplicate leave = %v, want empty", rooms.Rooms)
	}
}

func TestMalformedEnvelopeGetsRetryableError(t *testing.T) {
	h := startHub(t, nil, 0)
	tr := newFakeTransport()
	info := h.Connect(tr)
	nextFrame(t, tr)

	h.Dispatch(tr, info.ID, []byte(`{not json`))
	errFrame, ok := nextFrame(t, tr).(proto.Error)
	if !ok {
		t.Fatalf("expected error frame, got %#v", errFrame)
	}
	if errFrame.Message != MsgMalformedEnvelope {
		t.Fatalf("error message = %q, want %q", errFrame.Message, MsgMalformedEnvelope)
	}
	if !errFrame.CanRetry {
		t.Fatal("malformed envelope should be retryable")
	}

	// A parseable envelope with a non-route type is just as malformed.
	h.Dispatch(tr, info.ID, []byte(`{"type":"shout"}`))
	errFrame = nextFrame(t, tr).(proto.Error)
	if errFrame.Message != MsgMalformedEnvelope {
		t.Fatalf("error message = %q, want %q", errFrame.Message, MsgMalformedEnvelope)
	}
}

func TestUnknownRouteLeavesStateUntouched(t *testing.T) {
	h := startHub(t, []string{"news"}, 0)
	tr := newFakeTransport()
	info := h.Connect(tr)
	nextFrame(t, tr)

	h.Dispatch(tr, info.ID, []byte(`{"type":"route","route":"/chat/send","body":{}}`))
	errFrame, ok := nextFrame(t, tr).(proto.Error)
	if !ok {
		t.Fatalf("expected error frame, got %#v", errFrame)
	}
	if errFrame.Message != MsgUnknownRoute {
		t.Fatalf("error message = %q, want %q", errFrame.Message, MsgUnknownRoute)
	}
	if errFrame.CanRetry {
		t.Fatal("unknown route must not be retryable")
	}
	if errFrame.Request != "/chat/send" {
		t.Fatalf("error request = %q, want /chat/send", errFrame.Request)
	}

	snap, ok := h.Snapshot(info.ID)
	if !ok {
		t.Fatal("client missing after unknown route")
	}
	if len(snap.Rooms) != 0 || snap.Level != LevelGuest {
		t.Fatalf("unknown route mutated client: %+v", snap)
	}
}

func TestRouteBodyValidation(t *testing.T) {
	h := startHub(t, []string{"news"}, 0)
	tr := newFakeTransport()
	info := h.Connect(tr)
	nextFrame(t, tr)

	cases := []struct {
		name  string
		raw   string
		field string
	}{
		{"missing body", `{"type":"route","route":"/invalidate/join"}`, "body"},
		{"body not an object", `{"type":"route","route":"/invalidate/join","body":[1]}`, "body"},
		{"room mismatch", `{"type":"route","route":"/invalidate/join","body":{"room":"/invalidate/leave","endpoint":"news"}}`, "room"},
		{"missing endpoint", `{"type":"route","route":"/invalidate/join","body":{"room":"/invalidate/join"}}`, "endpoint"},
		{"unknown endpoint", `{"type":"route","route":"/invalidate/join","body":{"room":"/invalidate/join","endpoint":"scores"}}`, "endpoint"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h.Dispatch(tr, info.ID, []byte(tc.raw))
			resp, ok := nextFrame(t, tr).(proto.Response)
			if !ok {
				t.Fatalf("expected response frame, got %#v", resp)
			}
			if resp.Status != "error" {
				t.Fatalf("response status = %q, want error", resp.Status)
			}
			details, ok := resp.Error.(map[string]string)
			if !ok {
				t.Fatalf("response error details = %#v", resp.Error)
			}
			if _, ok := details[tc.field]; !ok {
				t.Fatalf("expected validation error on %q, got %v", tc.field, details)
			}
		})
	}

	snap, _ := h.Snapshot(info.ID)
	if len(snap.Rooms) != 0 {
		t.Fatalf("failed requests mutated rooms: %v", snap.Rooms)
	}
}

func TestDispatchForUnknownClient(t *testing.T) {
	h := startHub(t, []string{"news"}, 0)
	tr := newFakeTransport()

	h.Dispatch(tr, "ghost", routeFrame(RouteInvalidateJoin, "news"))
	errFrame, ok := nextFrame(t, tr).(proto.Error)
	if !ok {
		t.Fatalf("expected error frame, got %#v", errFrame)
	}
	if errFrame.Message != MsgClientNotFound {
		t.Fatalf("error message = %q, want %q", errFrame.Message, MsgClientNotFound)
	}
}

func TestInvalidateTargetsOnlySubscribers(t *testing.T) {
	h := startHub(t, []string{"news", "scores"}, 0)

	newsOnly := newFakeTransport()
	newsInfo := h.Connect(newsOnly)
	nextFrame(t, newsOnly)
	h.Dispatch(newsOnly, newsInfo.ID, routeFrame(RouteInvalidateJoin, "news"))
	nextFrame(t, newsOnly)

	both := newFakeTransport()
	bothInfo := h.Connect(both)
	nextFrame(t, both)
	h.Dispatch(both, bothInfo.ID, routeFrame(RouteInvalidateJoin, "news"))
	nextFrame(t, both)
	h.Dispatch(both, bothInfo.ID, routeFrame(RouteInvalidateJoin, "scores"))
	nextFrame(t, both)

	idle := newFakeTransport()
	h.Connect(idle)
	nextFrame(t, idle)

	// Duplicate endpoint names collapse to one.
	notified := h.Invalidate([]string{"news", "scores", "scores"})
	if notified != 2 {
		t.Fatalf("notified = %d, want 2", notified)
	}

	frame := nextFrame(t, newsOnly).(proto.Invalidate)
	if len(frame.Rooms) != 1 || frame.Rooms[0] != "news" {
		t.Fatalf("news-only client got %v, want [news]", frame.Rooms)
	}

	frame = nextFrame(t, both).(proto.Invalidate)
	sort.Strings(frame.Rooms)
	if len(frame.Rooms) != 2 || frame.Rooms[0] != "news" || frame.Rooms[1] != "scores" {
		t.Fatalf("subscribed client got %v, want [news scores]", frame.Rooms)
	}

	assertNoFrame(t, idle)
}

func TestElevateAndDeElevate(t *testing.T) {
	h := startHub(t, nil, 0)
	tr := newFakeTransport()
	info := h.Connect(tr)
	nextFrame(t, tr)

	if err := h.Elevate(info.ID, 42, LevelUser); err != nil {
		t.Fatalf("elevate: %v", err)
	}
	frame := nextFrame(t, tr).(proto.AuthorizationFrame)
	if frame.Level != string(LevelUser) {
		t.Fatalf("authorization level = %q, want user", frame.Level)
	}

	snap, _ := h.Snapshot(info.ID)
	if snap.Level != LevelUser || snap.UserID != 42 {
		t.Fatalf("snapshot after elevate = %+v", snap)
	}

	if err := h.DeElevate(info.ID); err != nil {
		t.Fatalf("de-elevate: %v", err)
	}
	frame = nextFrame(t, tr).(proto.AuthorizationFrame)
	if frame.Level != string(LevelGuest) {
		t.Fatalf("authorization level = %q, want guest", frame.Level)
	}

	snap, _ = h.Snapshot(info.ID)
	if snap.Level != LevelGuest || snap.UserID != 0 {
		t.Fatalf("snapshot after de-elevate = %+v", snap)
	}
}

func TestElevateAdminAndUnknownLevels(t *testing.T) {
	h := startHub(t, nil, 0)
	tr := newFakeTransport()
	info := h.Connect(tr)
	nextFrame(t, tr)

	if err := h.Elevate(info.ID, 1, LevelAdmin); err != nil {
		t.Fatalf("elevate admin: %v", err)
	}
	frame := nextFrame(t, tr).(proto.AuthorizationFrame)
	if frame.Level != string(LevelAdmin) {
		t.Fatalf("authorization level = %q, want admin", frame.Level)
	}

	// Anything that is not admin collapses to user.
	if err := h.Elevate(info.ID, 1, Level("superuser")); err != nil {
		t.Fatalf("elevate with unknown level: %v", err)
	}
	frame = nextFrame(t, tr).(proto.AuthorizationFrame)
	if frame.Level != string(LevelUser) {
		t.Fatalf("authorization level = %q, want user", frame.Level)
	}
}

func TestElevateUnknownClient(t *testing.T) {
	h := startHub(t, nil, 0)

	if err := h.Elevate("ghost", 1, LevelUser); err != ErrClientNotFound {
		t.Fatalf("elevate unknown client error = %v, want ErrClientNotFound", err)
	}
	if err := h.DeElevate("ghost"); err != ErrClientNotFound {
		t.Fatalf("de-elevate unknown client error = %v, want ErrClientNotFound", err)
	}
}

func TestSweepRemovesClosedClients(t *testing.T) {
	h := startHub(t, []string{"news"}, 20*time.Millisecond)
	tr := newFakeTransport()
	info := h.Connect(tr)
	nextFrame(t, tr)
	h.Dispatch(tr, info.ID, routeFrame(RouteInvalidateJoin, "news"))
	nextFrame(t, tr)

	tr.closed.Store(true)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == 0 {
			if h.Invalidate([]string{"news"}) != 0 {
				t.Fatal("swept client still targeted by invalidation")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("closed client was never swept")
}
