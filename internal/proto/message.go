package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
// Every frame carries a type discriminator; the remaining fields are
// populated depending on the type.
type Inbound struct {
	Type       string          `json:"type"`
	Identifier string          `json:"identifier,omitempty"`
	Route      string          `json:"route,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

const (
	InboundTypeIdentification = "identification"
	InboundTypeRoute          = "route"

	OutboundTypeServerConnection = "server-connection"
	OutboundTypeRooms            = "rooms"
	OutboundTypeAuthorization    = "authorization"
	OutboundTypeInvalidate       = "invalidate"
	OutboundTypeResponse         = "response"
	OutboundTypeError            = "error"
)

// Authorization describes a client's authorization level.
type Authorization struct {
	Level string `json:"level"`
}

// ServerConnection is the handshake frame sent once per accepted
// connection. It tells the browser its identifier before any HTTP call
// needs to reference it.
type ServerConnection struct {
	Type          string        `json:"type"`
	Identifier    string        `json:"identifier"`
	Rooms         []string      `json:"rooms"`
	Authorization Authorization `json:"authorization"`
}

// Rooms syncs the client's full room set after a join or leave.
type Rooms struct {
	Type  string   `json:"type"`
	Rooms []string `json:"rooms"`
}

// AuthorizationFrame is pushed when a client's level changes.
type AuthorizationFrame struct {
	Type  string `json:"type"`
	Level string `json:"level"`
}

// Invalidate tells the client that cached data for the listed rooms is
// stale and should be refetched.
type Invalidate struct {
	Type  string   `json:"type"`
	Rooms []string `json:"rooms"`
}

// Response acknowledges a routed request. Status is "success" or
// "error"; Error carries structured validation details on failure.
type Response struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Request string `json:"request,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// Error describes a protocol-level failure. CanRetry tells the client
// whether resending the same frame could succeed.
type Error struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	CanRetry bool   `json:"canRetry"`
	Request  string `json:"request,omitempty"`
}

// NewServerConnection builds the handshake frame for a fresh client.
func NewServerConnection(identifier string, rooms []string, level string) ServerConnection {
	if rooms == nil {
		rooms = []string{}
	}
	return ServerConnection{
		Type:          OutboundTypeServerConnection,
		Identifier:    identifier,
		Rooms:         rooms,
		Authorization: Authorization{Level: level},
	}
}

// NewRooms builds a room-sync frame.
func NewRooms(rooms []string) Rooms {
	if rooms == nil {
		rooms = []string{}
	}
	return Rooms{Type: OutboundTypeRooms, Rooms: rooms}
}

// NewAuthorization builds an authorization push frame.
func NewAuthorization(level string) AuthorizationFrame {
	return AuthorizationFrame{Type: OutboundTypeAuthorization, Level: level}
}

// NewInvalidate builds an invalidation push frame.
func NewInvalidate(rooms []string) Invalidate {
	if rooms == nil {
		rooms = []string{}
	}
	return Invalidate{Type: OutboundTypeInvalidate, Rooms: rooms}
}

// NewSuccess acknowledges a routed request.
func NewSuccess(request string) Response {
	return Response{Type: OutboundTypeResponse, Status: "success", Request: request}
}

// NewValidationError reports route-specific body validation failures.
func NewValidationError(request string, details any) Response {
	return Response{Type: OutboundTypeResponse, Status: "error", Request: request, Error: details}
}

// NewError builds a protocol error frame.
func NewError(message string, canRetry bool) Error {
	return Error{Type: OutboundTypeError, Message: message, CanRetry: canRetry}
}

// NewRequestError builds a protocol error frame tied to a request route.
func NewRequestError(message string, canRetry bool, request string) Error {
	return Error{Type: OutboundTypeError, Message: message, CanRetry: canRetry, Request: request}
}
