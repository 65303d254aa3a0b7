package signaling

import (
	"sort"
	"strings"

	"github.com/posearena/lobby-signaling-relay/internal/metrics"
)

// NormalizeCode maps a client-supplied room code onto its registry key.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type member struct {
	conn Conn
	name string
}

// Room is one lobby: at most one streamer and any number of players keyed by
// display name. Rooms hold references to connection handles, not ownership.
type Room struct {
	code     string
	streamer *member
	players  map[string]member
}

func newRoom(code string) *Room {
	return &Room{
		code:    code,
		players: make(map[string]member),
	}
}

func (r *Room) Code() string { return r.code }

// Streamer returns the bound streamer handle and its display name.
func (r *Room) Streamer() (Conn, string, bool) {
	if r.streamer == nil {
		return nil, "", false
	}
	return r.streamer.conn, r.streamer.name, true
}

func (r *Room) Player(name string) (Conn, bool) {
	m, ok := r.players[name]
	if !ok {
		return nil, false
	}
	return m.conn, true
}

// PlayerNames returns the bound player names in sorted order.
func (r *Room) PlayerNames() []string {
	names := make([]string, 0, len(r.players))
	for name := range r.players {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Room) IsEmpty() bool {
	return r.streamer == nil && len(r.players) == 0
}

func (r *Room) bindStreamer(conn Conn, name string) {
	r.streamer = &member{conn: conn, name: name}
}

// clearStreamer unbinds the streamer if conn is the bound handle.
func (r *Room) clearStreamer(conn Conn) bool {
	if r.streamer == nil || r.streamer.conn != conn {
		return false
	}
	r.streamer = nil
	return true
}

// bindPlayer binds name to conn and returns the handle it displaced, if any.
func (r *Room) bindPlayer(conn Conn, name string) (Conn, bool) {
	prev, had := r.players[name]
	r.players[name] = member{conn: conn, name: name}
	if !had || prev.conn == conn {
		return nil, false
	}
	return prev.conn, true
}

// removePlayer deletes the entry for name only while it still refers to conn.
func (r *Room) removePlayer(name string, conn Conn) bool {
	m, ok := r.players[name]
	if !ok || m.conn != conn {
		return false
	}
	delete(r.players, name)
	return true
}

// RegistryStats summarizes the registry for the status endpoint.
type RegistryStats struct {
	Rooms     int `json:"rooms"`
	Streamers int `json:"streamers"`
	Players   int `json:"players"`
}

// Registry maps room codes to rooms. A room is present iff it has a streamer
// or at least one player.
//
// Registry does no locking of its own; the Router serializes every access.
type Registry struct {
	rooms   map[string]*Room
	metrics *metrics.Metrics
}

// NewRegistry returns an empty registry. m may be nil.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		metrics: m,
	}
}

// GetOrCreate returns the room for code, creating it if needed. code must
// already be normalized.
func (g *Registry) GetOrCreate(code string) *Room {
	if room, ok := g.rooms[code]; ok {
		return room
	}
	room := newRoom(code)
	g.rooms[code] = room
	g.metrics.Inc(metrics.RoomsCreated)
	return room
}

func (g *Registry) Lookup(code string) (*Room, bool) {
	room, ok := g.rooms[code]
	return room, ok
}

// DeleteIfEmpty removes the room for code when nothing is bound to it. It is
// safe to call for unknown codes and more than once.
func (g *Registry) DeleteIfEmpty(code string) {
	room, ok := g.rooms[code]
	if !ok || !room.IsEmpty() {
		return
	}
	delete(g.rooms, code)
	g.metrics.Inc(metrics.RoomsDeleted)
}

func (g *Registry) Len() int { return len(g.rooms) }

func (g *Registry) Stats() RegistryStats {
	st := RegistryStats{Rooms: len(g.rooms)}
	for _, room := range g.rooms {
		if room.streamer != nil {
			st.Streamers++
		}
		st.Players += len(room.players)
	}
	return st
}
