package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"pushgate/internal/core"
	"pushgate/internal/proto"
)

// State is the connection state of the client.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateReady
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a Client.
type Options struct {
	// URL is the gateway WebSocket endpoint.
	URL string
	// Identifier enables the client-sourced identification handshake
	// when non-empty.
	Identifier string
	// Endpoints are joined on every READY, since the server discards
	// room membership across reconnects.
	Endpoints []string

	Logger *zerolog.Logger

	// OnReady fires after the server-connection handshake, with the
	// identifier the server knows this connection by.
	OnReady func(identifier string)
	// OnRooms fires on every room-set sync from the server.
	OnRooms func(rooms []string)
	// OnAuthorization fires when the connection's level changes.
	OnAuthorization func(level string)
	// OnInvalidate fires when subscribed rooms go stale.
	OnInvalidate func(rooms []string)
	// OnError fires on server error frames.
	OnError func(message string, canRetry bool)
}

// Client maintains a gateway connection across failures: exponential
// backoff on reconnect (2s initial, doubling, capped at 30s), frame
// dispatch by type, and room re-subscription once the handshake lands.
type Client struct {
	opts Options
	log  *zerolog.Logger

	mu          sync.Mutex
	state       State
	identifier  string
	endpoints   map[string]struct{}
	conn        *websocket.Conn
	backoff     *backoff.ExponentialBackOff
	reconnectAt time.Time
}

// New constructs a client; Run starts it.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		disabled := zerolog.New(nil).Level(zerolog.Disabled)
		logger = &disabled
	}
	endpoints := make(map[string]struct{}, len(opts.Endpoints))
	for _, e := range opts.Endpoints {
		endpoints[e] = struct{}{}
	}
	return &Client{
		opts:      opts,
		log:       logger,
		state:     StateConnecting,
		endpoints: endpoints,
		backoff:   newReconnectBackoff(),
	}
}

func newReconnectBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identifier returns the server-side identifier of the live
// connection, empty before the first handshake.
func (c *Client) Identifier() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identifier
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run connects and keeps reconnecting until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		c.setState(StateConnecting)
		conn, _, err := websocket.Dial(ctx, c.opts.URL, nil)
		if err == nil {
			c.onOpen(conn)
			err = c.session(ctx, conn)
			conn.Close(websocket.StatusNormalClosure, "closing")
		}

		if ctx.Err() != nil {
			c.setState(StateClosed)
			return ctx.Err()
		}
		if err != nil {
			c.log.Warn().Err(err).Msg("connection lost")
		}

		c.setState(StateReconnecting)
		deadline := c.scheduleReconnect()
		select {
		case <-time.After(time.Until(deadline)):
		case <-ctx.Done():
			c.setState(StateClosed)
			return ctx.Err()
		}
	}
}

// onOpen resets the backoff: only a successful dial counts as recovery.
func (c *Client) onOpen(conn *websocket.Conn) {
	c.mu.Lock()
	c.state = StateOpen
	c.conn = conn
	c.backoff.Reset()
	c.reconnectAt = time.Time{}
	c.mu.Unlock()
}

// scheduleReconnect picks the next attempt time. Duplicate close and
// error events for the same outage reuse the pending deadline instead
// of stacking timers.
func (c *Client) scheduleReconnect() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.reconnectAt.After(now) {
		return c.reconnectAt
	}
	c.reconnectAt = now.Add(c.backoff.NextBackOff())
	return c.reconnectAt
}

func (c *Client) session(ctx context.Context, conn *websocket.Conn) error {
	if c.opts.Identifier != "" {
		identify := proto.Inbound{
			Type:       proto.InboundTypeIdentification,
			Identifier: c.opts.Identifier,
		}
		if err := wsjson.Write(ctx, conn, identify); err != nil {
			return err
		}
	}

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if err := c.dispatch(ctx, conn, raw); err != nil {
			return err
		}
	}
}

// dispatch routes one inbound frame by its type discriminator.
func (c *Client) dispatch(ctx context.Context, conn *websocket.Conn, raw []byte) error {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.log.Warn().Err(err).Msg("unparseable frame from server")
		return nil
	}

	switch envelope.Type {
	case proto.OutboundTypeServerConnection:
		var frame proto.ServerConnection
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil
		}
		return c.onServerConnection(ctx, conn, frame)

	case proto.OutboundTypeRooms:
		var frame proto.Rooms
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil
		}
		if c.opts.OnRooms != nil {
			c.opts.OnRooms(frame.Rooms)
		}

	case proto.OutboundTypeAuthorization:
		var frame proto.AuthorizationFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil
		}
		if c.opts.OnAuthorization != nil {
			c.opts.OnAuthorization(frame.Level)
		}

	case proto.OutboundTypeInvalidate:
		var frame proto.Invalidate
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil
		}
		if c.opts.OnInvalidate != nil {
			c.opts.OnInvalidate(frame.Rooms)
		}

	case proto.OutboundTypeError:
		var frame proto.Error
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil
		}
		c.log.Warn().Str("message", frame.Message).Bool("can_retry", frame.CanRetry).Msg("server error frame")
		if c.opts.OnError != nil {
			c.opts.OnError(frame.Message, frame.CanRetry)
		}
		if !frame.CanRetry && frame.Message == core.MsgIdentityRejected {
			return errors.New("identification rejected by server")
		}

	case proto.OutboundTypeResponse:
		// Acks carry no state the client tracks.

	default:
		c.log.Debug().Str("type", envelope.Type).Msg("unhandled frame type")
	}
	return nil
}

// onServerConnection completes the handshake: the connection is READY
// and tracked rooms are re-joined, since the previous client record
// (if any) died with the old connection.
func (c *Client) onServerConnection(ctx context.Context, conn *websocket.Conn, frame proto.ServerConnection) error {
	c.mu.Lock()
	c.state = StateReady
	c.identifier = frame.Identifier
	endpoints := make([]string, 0, len(c.endpoints))
	for e := range c.endpoints {
		endpoints = append(endpoints, e)
	}
	c.mu.Unlock()

	if c.opts.OnReady != nil {
		c.opts.OnReady(frame.Identifier)
	}

	for _, endpoint := range endpoints {
		if err := writeRoomRoute(ctx, conn, core.RouteInvalidateJoin, endpoint); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe tracks an endpoint and, when connected, joins it right
// away. Tracked endpoints survive reconnects.
func (c *Client) Subscribe(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	c.endpoints[endpoint] = struct{}{}
	conn := c.conn
	ready := c.state == StateReady
	c.mu.Unlock()

	if !ready || conn == nil {
		return nil
	}
	return writeRoomRoute(ctx, conn, core.RouteInvalidateJoin, endpoint)
}

// Unsubscribe stops tracking an endpoint and leaves it when connected.
func (c *Client) Unsubscribe(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	delete(c.endpoints, endpoint)
	conn := c.conn
	ready := c.state == StateReady
	c.mu.Unlock()

	if !ready || conn == nil {
		return nil
	}
	return writeRoomRoute(ctx, conn, core.RouteInvalidateLeave, endpoint)
}

func writeRoomRoute(ctx context.Context, conn *websocket.Conn, route, endpoint string) error {
	body, err := json.Marshal(map[string]string{
		"room":     route,
		"endpoint": endpoint,
	})
	if err != nil {
		return err
	}
	return wsjson.Write(ctx, conn, proto.Inbound{
		Type:  proto.InboundTypeRoute,
		Route: route,
		Body:  body,
	})
}
