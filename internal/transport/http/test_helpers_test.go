package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"pushgate/internal/auth"
	"pushgate/internal/config"
	"pushgate/internal/core"
	"pushgate/internal/log"
	"pushgate/internal/store/sqlite"
)

type testEnv struct {
	ts  *httptest.Server
	hub *core.Hub
}

// newTestEnv spins up a full server: in-memory store, running hub, and
// the real HTTP router behind an httptest listener.
func newTestEnv(t *testing.T, identity string, endpoints []string) *testEnv {
	t.Helper()

	logger := log.Disabled()
	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.IdentitySource = identity
	cfg.Endpoints = endpoints

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.AccessTokenTTL,
	}
	authService := auth.NewService(st, st, jwtConfig, cfg.SessionTTL)

	hub := core.NewHub(endpoints, 0, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := NewServer(hub, authService, &cfg, logger)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub}
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
}

// dial opens a WebSocket connection to the test server.
func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, e.wsURL(), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

// readFrame reads one frame and returns its type discriminator plus the
// raw payload for further decoding.
func readFrame(t *testing.T, conn *websocket.Conn) (string, []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, raw, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal frame %s: %v", raw, err)
	}
	return envelope.Type, raw
}

func expectFrame(t *testing.T, conn *websocket.Conn, frameType string, target any) {
	t.Helper()
	gotType, raw := readFrame(t, conn)
	if gotType != frameType {
		t.Fatalf("frame type = %q, want %q (payload %s)", gotType, frameType, raw)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		t.Fatalf("decode %s frame: %v", frameType, err)
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, v); err != nil {
		t.Fatalf("ws write: %v", err)
	}
}

func joinFrame(endpoint string) map[string]any {
	return map[string]any{
		"type":  "route",
		"route": core.RouteInvalidateJoin,
		"body": map[string]string{
			"room":     core.RouteInvalidateJoin,
			"endpoint": endpoint,
		},
	}
}

// postJSON sends a JSON body and decodes the JSON response into out
// (when out is non-nil). Returns the HTTP status code.
func (e *testEnv) postJSON(t *testing.T, path, token string, body, out any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := stdhttp.NewRequest(stdhttp.MethodPost, e.ts.URL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response for %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

// register creates an account and returns its token pair.
func (e *testEnv) register(t *testing.T, username, password string) AuthResponse {
	t.Helper()
	var resp AuthResponse
	status := e.postJSON(t, "/api/register", "", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if status != stdhttp.StatusCreated {
		t.Fatalf("register status = %d, want 201", status)
	}
	return resp
}
