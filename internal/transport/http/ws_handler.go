package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pushgate/internal/config"
	"pushgate/internal/core"
	"pushgate/internal/proto"
)

// IdentityVerifier decides whether a client-supplied identifier is
// acceptable. Only consulted in client-sourced identity mode.
type IdentityVerifier interface {
	VerifyID(id string) bool
}

// UUIDVerifier accepts any well-formed UUID.
type UUIDVerifier struct{}

// VerifyID reports whether id parses as a UUID.
func (UUIDVerifier) VerifyID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// WSHandler upgrades HTTP connections and bridges them to hub clients.
type WSHandler struct {
	hub      *core.Hub
	verifier IdentityVerifier
	identity string
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, verifier IdentityVerifier, identity string, logger *zerolog.Logger) stdhttp.Handler {
	if verifier == nil {
		verifier = UUIDVerifier{}
	}
	if identity == "" {
		identity = config.IdentityServer
	}
	return &WSHandler{hub: hub, verifier: verifier, identity: identity, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	transport := newWSTransport(16)
	defer transport.markClosed()

	var clientID string
	if h.identity == config.IdentityClient {
		clientID, err = h.awaitIdentification(ctx, conn, transport)
		if err != nil {
			// Terminal handshake rejection already closed the socket.
			return
		}
	} else {
		clientID = h.hub.Connect(transport).ID
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, transport, clientID)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, transport)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	transport.markClosed()

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", clientID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// awaitIdentification runs the client-sourced identity handshake: the
// first well-formed frame must carry the identifier. Verifier rejection
// is terminal; a malformed frame earns a retryable error and another
// chance on the same connection.
func (h *WSHandler) awaitIdentification(ctx context.Context, conn *websocket.Conn, transport *wsTransport) (string, error) {
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return "", err
		}

		var in proto.Inbound
		if err := json.Unmarshal(raw, &in); err != nil || in.Type != proto.InboundTypeIdentification {
			if writeErr := wsjson.Write(ctx, conn, proto.NewError(core.MsgIdentityRequired, true)); writeErr != nil {
				return "", writeErr
			}
			continue
		}

		if !h.verifier.VerifyID(in.Identifier) {
			_ = wsjson.Write(ctx, conn, proto.NewError(core.MsgIdentityRejected, false))
			conn.Close(websocket.StatusPolicyViolation, "identification rejected")
			return "", errors.New("identification rejected")
		}

		info, err := h.hub.ConnectAs(in.Identifier, transport)
		if err != nil {
			_ = wsjson.Write(ctx, conn, proto.NewError(core.MsgIdentityRejected, false))
			conn.Close(websocket.StatusPolicyViolation, "identifier already registered")
			return "", err
		}
		return info.ID, nil
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, transport *wsTransport, clientID string) error {
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		h.hub.Dispatch(transport, clientID, raw)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, transport *wsTransport) error {
	for {
		select {
		case frame := <-transport.frames:
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				h.log.Error().Err(err).Msg("write ws frame")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
