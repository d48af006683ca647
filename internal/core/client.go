package core

import "sort"

// Level is a client's authorization level.
type Level string

const (
	LevelGuest Level = "guest"
	LevelUser  Level = "user"
	LevelAdmin Level = "admin"
)

// Transport is the exclusively owned handle to one live connection.
// Send must never block: implementations report false when the frame
// was dropped because the connection is closed or the peer is slow.
type Transport interface {
	Send(frame any) bool
	Closed() bool
}

// Client is one live socket connection as seen by the hub.
// The rooms set and the transport are mutated only from the hub loop.
type Client struct {
	ID        string
	Level     Level
	UserID    int64
	rooms     map[string]struct{}
	transport Transport
}

func newClient(id string, t Transport) *Client {
	return &Client{
		ID:        id,
		Level:     LevelGuest,
		rooms:     make(map[string]struct{}),
		transport: t,
	}
}

// Rooms returns the client's room set as a sorted slice.
func (c *Client) Rooms() []string {
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// InRoom reports whether the client is subscribed to room.
func (c *Client) InRoom(room string) bool {
	_, ok := c.rooms[room]
	return ok
}

// send pushes a frame to the client's transport. A closed transport is
// a silent no-op: the sweep will collect the client shortly.
func (c *Client) send(frame any) bool {
	if c.transport == nil || c.transport.Closed() {
		return false
	}
	return c.transport.Send(frame)
}

// ClientInfo is an immutable snapshot of a client record.
type ClientInfo struct {
	ID     string
	Level  Level
	UserID int64
	Rooms  []string
}

func (c *Client) info() ClientInfo {
	return ClientInfo{
		ID:     c.ID,
		Level:  c.Level,
		UserID: c.UserID,
		Rooms:  c.Rooms(),
	}
}
