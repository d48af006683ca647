package core

import "errors"

// Protocol error messages sent in error frames.
const (
	MsgMalformedEnvelope = "malformed message envelope"
	MsgUnknownRoute      = "unknown route"
	MsgClientNotFound    = "client not found"
	MsgIdentityRejected  = "identifier rejected"
	MsgIdentityRequired  = "identification required"
)

var (
	// ErrClientNotFound is returned when an identifier has no live
	// client. Callers must treat it as a recoverable miss: a login
	// request can race a socket that has not connected yet.
	ErrClientNotFound = errors.New("client not found")

	// ErrIdentifierTaken is returned when a client-supplied identifier
	// collides with a registered connection.
	ErrIdentifierTaken = errors.New("identifier already registered")
)
