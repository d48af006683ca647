package http

import "sync/atomic"

// wsTransport adapts one WebSocket connection to core.Transport.
// The hub loop pushes frames into the buffered channel; the handler's
// write loop drains it. Send never blocks: when the buffer is full the
// frame is dropped (slow consumer) and when the connection has reached
// a terminal state the transport reports closed so the registry sweep
// can collect the client.
type wsTransport struct {
	frames chan any
	closed atomic.Bool
}

func newWSTransport(buffer int) *wsTransport {
	if buffer <= 0 {
		buffer = 16
	}
	return &wsTransport{frames: make(chan any, buffer)}
}

func (t *wsTransport) Send(frame any) bool {
	if t.closed.Load() {
		return false
	}
	select {
	case t.frames <- frame:
		return true
	default:
		return false
	}
}

func (t *wsTransport) Closed() bool {
	return t.closed.Load()
}

// markClosed flips the transport into its terminal state. The client
// record stays in the registry until the next sweep; broadcasts to it
// become no-ops in the meantime.
func (t *wsTransport) markClosed() {
	t.closed.Store(true)
}
