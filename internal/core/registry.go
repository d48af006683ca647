package core

// Registry is the in-memory client map plus an inverted room index
// (room name to subscribed clients) so that broadcast targeting is an
// index lookup instead of a full client scan.
//
// Registry methods are unexported on purpose: all access goes through
// the hub loop, which is the single writer.
type Registry struct {
	clients map[string]*Client
	rooms   map[string]map[*Client]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

func (r *Registry) create(id string, t Transport) *Client {
	c := newClient(id, t)
	r.clients[id] = c
	return c
}

func (r *Registry) read(id string) (*Client, bool) {
	c, ok := r.clients[id]
	return c, ok
}

func (r *Registry) remove(id string) {
	c, ok := r.clients[id]
	if !ok {
		return
	}
	for room := range c.rooms {
		r.dropFromIndex(room, c)
	}
	delete(r.clients, id)
}

// join subscribes the client to each room. Already-joined rooms are
// no-ops. Returns true if the set changed.
func (r *Registry) join(c *Client, rooms ...string) bool {
	changed := false
	for _, room := range rooms {
		if _, ok := c.rooms[room]; ok {
			continue
		}
		c.rooms[room] = struct{}{}
		members, ok := r.rooms[room]
		if !ok {
			members = make(map[*Client]struct{})
			r.rooms[room] = members
		}
		members[c] = struct{}{}
		changed = true
	}
	return changed
}

// leave unsubscribes the client from each room. Not-joined rooms are
// no-ops. Returns true if the set changed.
func (r *Registry) leave(c *Client, rooms ...string) bool {
	changed := false
	for _, room := range rooms {
		if _, ok := c.rooms[room]; !ok {
			continue
		}
		delete(c.rooms, room)
		r.dropFromIndex(room, c)
		changed = true
	}
	return changed
}

func (r *Registry) dropFromIndex(room string, c *Client) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// membersOf returns the clients subscribed to room. The returned map
// is the live index entry; callers must not mutate or retain it.
func (r *Registry) membersOf(room string) map[*Client]struct{} {
	return r.rooms[room]
}

// sweep removes every client whose transport reached a terminal state
// and returns their identifiers. Registry staleness is bounded by the
// sweep interval; an unswept dead client is a harmless no-op broadcast
// target in the meantime.
func (r *Registry) sweep() []string {
	var removed []string
	for id, c := range r.clients {
		if c.transport != nil && c.transport.Closed() {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		r.remove(id)
	}
	return removed
}

func (r *Registry) size() int {
	return len(r.clients)
}
