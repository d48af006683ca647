package core

import (
	"encoding/json"

	"pushgate/internal/proto"
)

// Routes understood by the gateway. The route path doubles as the
// request name echoed back in responses and error frames.
const (
	RouteInvalidateJoin  = "/invalidate/join"
	RouteInvalidateLeave = "/invalidate/leave"
)

const roomNamespace = "invalidate/"

// roomName maps an endpoint to its namespaced room key.
func roomName(endpoint string) string {
	return roomNamespace + endpoint
}

// roomRequest is the body shape shared by the join and leave routes.
// Room echoes the route path; Endpoint selects the invalidation topic.
type roomRequest struct {
	Room     string `json:"room"`
	Endpoint string `json:"endpoint"`
}

// route pairs a body decoder with its handler, so dispatch can tell a
// validation failure apart from an unknown route before invoking.
type route struct {
	decode func(raw json.RawMessage) (roomRequest, map[string]string)
	handle func(c *Client, req roomRequest)
}

func (h *Hub) registerRoutes() {
	h.routes[RouteInvalidateJoin] = route{
		decode: h.decodeRoomRequest(RouteInvalidateJoin),
		handle: h.handleJoin,
	}
	h.routes[RouteInvalidateLeave] = route{
		decode: h.decodeRoomRequest(RouteInvalidateLeave),
		handle: h.handleLeave,
	}
}

// decodeRoomRequest validates the body against the route's schema and
// returns field-level errors on failure. Endpoint names outside the
// configured enumeration are rejected rather than silently accepted,
// so attacker-chosen room names cannot grow the index without bound.
func (h *Hub) decodeRoomRequest(routeName string) func(json.RawMessage) (roomRequest, map[string]string) {
	return func(raw json.RawMessage) (roomRequest, map[string]string) {
		var req roomRequest
		if len(raw) == 0 {
			return req, map[string]string{"body": "required"}
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return req, map[string]string{"body": "must be a JSON object"}
		}

		errs := make(map[string]string)
		if req.Room != routeName {
			errs["room"] = "must match the request route"
		}
		switch {
		case req.Endpoint == "":
			errs["endpoint"] = "required"
		default:
			if _, ok := h.endpoints[req.Endpoint]; !ok {
				errs["endpoint"] = "unknown endpoint"
			}
		}
		if len(errs) > 0 {
			return req, errs
		}
		return req, nil
	}
}

// handleJoin subscribes the client and syncs its full room set back.
// Joining an already-joined room is a no-op, not an error; the client
// still receives the rooms frame so it can reconcile local state.
func (h *Hub) handleJoin(c *Client, req roomRequest) {
	h.registry.join(c, roomName(req.Endpoint))
	h.push(c, proto.OutboundTypeRooms, proto.NewRooms(c.Rooms()))
}

// handleLeave unsubscribes the client and syncs its full room set back.
func (h *Hub) handleLeave(c *Client, req roomRequest) {
	h.registry.leave(c, roomName(req.Endpoint))
	h.push(c, proto.OutboundTypeRooms, proto.NewRooms(c.Rooms()))
}
