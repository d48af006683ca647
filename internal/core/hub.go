package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pushgate/internal/metrics"
	"pushgate/internal/proto"
)

const defaultSweepInterval = 10 * time.Second

// Hub owns the client registry and the room index. A single goroutine
// (Run) executes every mutation, so no locking is needed: callers on
// other goroutines post closures onto the command channel and, for
// synchronous operations, wait on a reply channel.
type Hub struct {
	registry   *Registry
	routes     map[string]route
	endpoints  map[string]struct{}
	commands   chan func()
	done       chan struct{}
	sweepEvery time.Duration
	log        *zerolog.Logger
}

// NewHub constructs a hub. endpoints is the closed enumeration of
// invalidation topics clients may subscribe to; sweepEvery bounds how
// long a dead connection can linger in the registry (0 means 10s).
func NewHub(endpoints []string, sweepEvery time.Duration, logger *zerolog.Logger) *Hub {
	if sweepEvery <= 0 {
		sweepEvery = defaultSweepInterval
	}
	allowed := make(map[string]struct{}, len(endpoints))
	for _, e := range endpoints {
		allowed[e] = struct{}{}
	}
	h := &Hub{
		registry:   NewRegistry(),
		routes:     make(map[string]route),
		endpoints:  allowed,
		commands:   make(chan func(), 64),
		done:       make(chan struct{}),
		sweepEvery: sweepEvery,
		log:        logger,
	}
	h.registerRoutes()
	return h
}

// Run processes commands and the sweep ticker until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.sweepEvery)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case fn := <-h.commands:
			fn()
		case <-ticker.C:
			h.sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) sweep() {
	removed := h.registry.sweep()
	for _, id := range removed {
		h.log.Debug().Str("client_id", id).Msg("swept closed client")
	}
	metrics.ActiveClients.Set(float64(h.registry.size()))
}

// post queues fn for the hub loop. It is a no-op after shutdown.
func (h *Hub) post(fn func()) {
	select {
	case h.commands <- fn:
	case <-h.done:
	}
}

// call runs fn on the hub loop and waits for it to finish.
func (h *Hub) call(fn func()) {
	ran := make(chan struct{})
	h.post(func() {
		fn()
		close(ran)
	})
	select {
	case <-ran:
	case <-h.done:
	}
}

// Connect registers a new client with a server-assigned identifier and
// pushes the server-connection handshake frame.
func (h *Hub) Connect(t Transport) ClientInfo {
	return h.connect(uuid.NewString(), t)
}

// ConnectAs registers a new client under a client-supplied identifier,
// already verified by the transport layer. Identifier collisions are
// rejected so a stranger cannot shadow a live connection.
func (h *Hub) ConnectAs(id string, t Transport) (ClientInfo, error) {
	var err error
	var info ClientInfo
	h.call(func() {
		if _, exists := h.registry.read(id); exists {
			err = ErrIdentifierTaken
			return
		}
		info = h.register(id, t)
	})
	return info, err
}

func (h *Hub) connect(id string, t Transport) ClientInfo {
	var info ClientInfo
	h.call(func() {
		info = h.register(id, t)
	})
	return info
}

func (h *Hub) register(id string, t Transport) ClientInfo {
	c := h.registry.create(id, t)
	h.push(c, proto.OutboundTypeServerConnection, proto.NewServerConnection(c.ID, c.Rooms(), string(c.Level)))
	metrics.ConnectionsTotal.Inc()
	metrics.ActiveClients.Set(float64(h.registry.size()))
	h.log.Info().Str("client_id", id).Msg("client connected")
	return c.info()
}

// Dispatch parses one inbound frame and routes it. Envelope parsing
// happens on the caller's goroutine; the route handler itself runs on
// the hub loop, which re-fetches the client by identifier so handlers
// never act on a stale snapshot.
func (h *Hub) Dispatch(t Transport, clientID string, raw []byte) {
	var in proto.Inbound
	if err := json.Unmarshal(raw, &in); err != nil || in.Type != proto.InboundTypeRoute {
		t.Send(proto.NewError(MsgMalformedEnvelope, true))
		metrics.ProtocolErrors.WithLabelValues("malformed_envelope").Inc()
		return
	}
	h.post(func() { h.dispatchRoute(t, clientID, in) })
}

func (h *Hub) dispatchRoute(t Transport, clientID string, in proto.Inbound) {
	r, ok := h.routes[in.Route]
	if !ok {
		t.Send(proto.NewRequestError(MsgUnknownRoute, false, in.Route))
		metrics.ProtocolErrors.WithLabelValues("unknown_route").Inc()
		return
	}

	c, ok := h.registry.read(clientID)
	if !ok {
		// The client vanished between frame arrival and dispatch.
		t.Send(proto.NewRequestError(MsgClientNotFound, false, in.Route))
		metrics.ProtocolErrors.WithLabelValues("client_not_found").Inc()
		return
	}

	req, details := r.decode(in.Body)
	if details != nil {
		h.push(c, proto.OutboundTypeResponse, proto.NewValidationError(in.Route, details))
		metrics.ProtocolErrors.WithLabelValues("validation").Inc()
		return
	}
	r.handle(c, req)
}

// Elevate links a live client to an authenticated account: it raises
// the authorization level, records the user ID, and pushes exactly one
// authorization frame. A registry miss is reported to the caller so the
// HTTP side can compensate (drop the session it just created).
func (h *Hub) Elevate(clientID string, userID int64, level Level) error {
	if level != LevelAdmin {
		level = LevelUser
	}
	var err error
	h.call(func() {
		c, ok := h.registry.read(clientID)
		if !ok {
			err = ErrClientNotFound
			return
		}
		c.Level = level
		c.UserID = userID
		h.push(c, proto.OutboundTypeAuthorization, proto.NewAuthorization(string(level)))
		metrics.ElevationsTotal.WithLabelValues(string(level)).Inc()
		h.log.Info().Str("client_id", clientID).Int64("user_id", userID).Str("level", string(level)).Msg("client elevated")
	})
	return err
}

// DeElevate resets a client to guest and pushes the authorization frame.
func (h *Hub) DeElevate(clientID string) error {
	var err error
	h.call(func() {
		c, ok := h.registry.read(clientID)
		if !ok {
			err = ErrClientNotFound
			return
		}
		c.Level = LevelGuest
		c.UserID = 0
		h.push(c, proto.OutboundTypeAuthorization, proto.NewAuthorization(string(LevelGuest)))
		metrics.ElevationsTotal.WithLabelValues(string(LevelGuest)).Inc()
		h.log.Info().Str("client_id", clientID).Msg("client de-elevated")
	})
	return err
}

// Invalidate fans an invalidate frame out to every client subscribed
// to at least one of the named endpoints. Each targeted client gets a
// single frame listing only the endpoints from this call it follows.
// Returns the number of clients notified.
func (h *Hub) Invalidate(endpoints []string) int {
	var notified int
	h.call(func() {
		seen := make(map[string]struct{}, len(endpoints))
		targets := make(map[*Client][]string)
		for _, endpoint := range endpoints {
			if _, dup := seen[endpoint]; dup {
				continue
			}
			seen[endpoint] = struct{}{}
			for c := range h.registry.membersOf(roomName(endpoint)) {
				targets[c] = append(targets[c], endpoint)
			}
		}
		for c, rooms := range targets {
			h.push(c, proto.OutboundTypeInvalidate, proto.NewInvalidate(rooms))
			notified++
		}
		metrics.InvalidationsTotal.Inc()
	})
	return notified
}

// Snapshot returns a copy of the client record, or false on a miss.
func (h *Hub) Snapshot(clientID string) (ClientInfo, bool) {
	var info ClientInfo
	var ok bool
	h.call(func() {
		var c *Client
		c, ok = h.registry.read(clientID)
		if ok {
			info = c.info()
		}
	})
	return info, ok
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	var n int
	h.call(func() { n = h.registry.size() })
	return n
}

// push sends a frame and keeps the send metrics honest.
func (h *Hub) push(c *Client, frameType string, frame any) {
	if c.send(frame) {
		metrics.FramesSent.WithLabelValues(frameType).Inc()
		return
	}
	metrics.FramesDropped.Inc()
}
