package signaling

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/posearena/lobby-signaling-relay/internal/metrics"
)

// Router applies inbound messages to the room registry.
//
// Every handler runs to completion under a single mutex, so the registry and
// client states are never observed half-updated. Handlers only enqueue
// outbound frames and never block while holding the lock. Negotiation
// payloads are forwarded with their JSON structure intact; the relay never
// interprets them.
type Router struct {
	mu      sync.Mutex
	rooms   *Registry
	clients map[*Client]struct{}

	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewRouter returns a router over rooms. A nil rooms gets a fresh registry.
func NewRouter(rooms *Registry, logger *slog.Logger, m *metrics.Metrics) *Router {
	if rooms == nil {
		rooms = NewRegistry(m)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		rooms:   rooms,
		clients: make(map[*Client]struct{}),
		log:     logger,
		metrics: m,
	}
}

// Connect attaches a fresh Unregistered state to conn.
func (rt *Router) Connect(conn Conn) *Client {
	c := &Client{conn: conn, state: Unregistered{}}
	rt.mu.Lock()
	rt.clients[c] = struct{}{}
	rt.mu.Unlock()
	return c
}

// Disconnect runs cleanup for c and forgets it. It is safe to call after a
// leave and more than once.
func (rt *Router) Disconnect(c *Client) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.cleanupLocked(c)
	delete(rt.clients, c)
}

// Handle decodes one inbound frame from c and applies it. Frames from a
// handle that has already been closed (rejected, displaced, shutting down)
// are discarded.
func (rt *Router) Handle(c *Client, data []byte) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if !c.conn.IsOpen() {
		rt.metrics.Inc(metrics.ClosedSenderFrames)
		return
	}

	msg, err := parseInboundMessage(data)
	if err != nil {
		rt.metrics.Inc(metrics.DecodeErrors)
		rt.log.Debug("signaling_decode_error", "conn_id", c.conn.ID(), "err", err)
		rt.sendError(c.conn, errMsgInvalidJSON)
		return
	}

	if msg.Type == messageTypeRegister {
		rt.register(c, msg)
		return
	}

	switch st := c.state.(type) {
	case Unregistered:
		rt.metrics.Inc(metrics.UnregisteredErrors)
		rt.sendError(c.conn, errMsgNotRegistered)
	case PlayerBound:
		rt.handlePlayer(c, st, msg)
	case StreamerBound:
		rt.handleStreamer(c, st, msg)
	}
}

// Stats reports registry counts plus the number of live connections.
func (rt *Router) Stats() Stats {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return Stats{RegistryStats: rt.rooms.Stats(), Connections: len(rt.clients)}
}

type Stats struct {
	RegistryStats
	Connections int `json:"connections"`
}

// CloseAll closes every connected handle with code. Cleanup happens as each
// read loop observes the close.
func (rt *Router) CloseAll(code int, reason string) {
	rt.mu.Lock()
	conns := make([]Conn, 0, len(rt.clients))
	for c := range rt.clients {
		conns = append(conns, c.conn)
	}
	rt.mu.Unlock()

	for _, conn := range conns {
		conn.Close(code, reason)
	}
}

func (rt *Router) register(c *Client, msg inboundMessage) {
	if _, ok := c.state.(Unregistered); !ok {
		return
	}

	code := NormalizeCode(msg.Code)
	if code == "" || strings.TrimSpace(msg.Name) == "" {
		rt.rejectRegistration(c, msg)
		return
	}

	switch msg.Role {
	case RoleStreamer:
		rt.registerStreamer(c, code, msg.Name)
	case RolePlayer:
		rt.registerPlayer(c, code, msg.Name)
	default:
		rt.rejectRegistration(c, msg)
	}
}

func (rt *Router) rejectRegistration(c *Client, msg inboundMessage) {
	rt.metrics.Inc(metrics.RegistrationsInvalid)
	rt.log.Debug("signaling_register_invalid", "conn_id", c.conn.ID(), "role", msg.Role, "room", msg.Code)
	rt.sendError(c.conn, errMsgInvalidRegister)
}

func (rt *Router) registerStreamer(c *Client, code, name string) {
	room := rt.rooms.GetOrCreate(code)

	if cur, _, ok := room.Streamer(); ok && cur != c.conn {
		if cur.IsOpen() {
			rt.metrics.Inc(metrics.StreamerRejected)
			rt.log.Info("signaling_streamer_rejected", "conn_id", c.conn.ID(), "room", code, "incumbent_conn_id", cur.ID())
			rt.sendError(c.conn, errMsgStreamerTaken)
			c.conn.Close(websocket.ClosePolicyViolation, "streamer already connected")
			return
		}
		rt.metrics.Inc(metrics.StreamerReplacedStale)
	}

	room.bindStreamer(c.conn, name)
	c.state = StreamerBound{Code: code, Name: name}
	rt.metrics.Inc(metrics.RegistrationsStreamer)
	rt.log.Info("signaling_registered", "conn_id", c.conn.ID(), "room", code, "role", RoleStreamer, "name", name)

	rt.send(c.conn, registeredStreamerMessage{
		Type:    messageTypeRegistered,
		Role:    RoleStreamer,
		Players: room.PlayerNames(),
	})
	for _, p := range room.players {
		rt.send(p.conn, eventMessage{Type: messageTypeStreamerReady})
	}
}

func (rt *Router) registerPlayer(c *Client, code, name string) {
	room := rt.rooms.GetOrCreate(code)

	if prev, displaced := room.bindPlayer(c.conn, name); displaced && prev.IsOpen() {
		rt.metrics.Inc(metrics.PlayerNameTakenOver)
		rt.log.Info("signaling_player_name_taken_over", "conn_id", prev.ID(), "room", code, "name", name, "new_conn_id", c.conn.ID())
		rt.sendError(prev, errMsgNameTakenOver)
		prev.Close(websocket.ClosePolicyViolation, "display name taken over")
	}
	c.state = PlayerBound{Code: code, Name: name}
	rt.metrics.Inc(metrics.RegistrationsPlayer)
	rt.log.Info("signaling_registered", "conn_id", c.conn.ID(), "room", code, "role", RolePlayer, "name", name)

	streamer, _, hasStreamer := room.Streamer()
	rt.send(c.conn, registeredPlayerMessage{
		Type:          messageTypeRegistered,
		Role:          RolePlayer,
		StreamerReady: hasStreamer,
	})
	if hasStreamer {
		rt.send(streamer, nameEventMessage{Type: messageTypePlayerJoined, Name: name})
		rt.send(c.conn, eventMessage{Type: messageTypeStreamerReady})
	}
}

func (rt *Router) handlePlayer(c *Client, st PlayerBound, msg inboundMessage) {
	switch msg.Type {
	case messageTypeOffer:
		if len(msg.Offer) == 0 {
			rt.drop(c, msg, metrics.DropReasonMissingPayload)
			return
		}
		rt.forwardToStreamer(c, st, msg, offerMessage{Type: messageTypeOffer, Name: st.Name, Offer: msg.Offer}, metrics.RelayedOffer)
	case messageTypeCandidate:
		rt.forwardToStreamer(c, st, msg, candidateMessage{Type: messageTypeCandidate, Name: st.Name, Candidate: msg.Candidate}, metrics.RelayedCandidate)
	case messageTypeAnswer:
		rt.drop(c, msg, metrics.DropReasonWrongRole)
	case messageTypeLeave:
		rt.leave(c)
	default:
		rt.unknown(c, msg)
	}
}

func (rt *Router) handleStreamer(c *Client, st StreamerBound, msg inboundMessage) {
	switch msg.Type {
	case messageTypeAnswer:
		if len(msg.Answer) == 0 {
			rt.drop(c, msg, metrics.DropReasonMissingPayload)
			return
		}
		rt.forwardToPlayer(c, st, msg, answerMessage{Type: messageTypeAnswer, Name: msg.Name, Answer: msg.Answer}, metrics.RelayedAnswer)
	case messageTypeCandidate:
		rt.forwardToPlayer(c, st, msg, candidateMessage{Type: messageTypeCandidate, Name: msg.Name, Candidate: msg.Candidate}, metrics.RelayedCandidate)
	case messageTypeOffer:
		rt.drop(c, msg, metrics.DropReasonWrongRole)
	case messageTypeLeave:
		rt.leave(c)
	default:
		rt.unknown(c, msg)
	}
}

func (rt *Router) forwardToStreamer(c *Client, st PlayerBound, msg inboundMessage, out any, event string) {
	room, ok := rt.rooms.Lookup(st.Code)
	if !ok {
		rt.drop(c, msg, metrics.DropReasonNoTarget)
		return
	}
	streamer, _, ok := room.Streamer()
	if !ok {
		rt.drop(c, msg, metrics.DropReasonNoTarget)
		return
	}
	if rt.send(streamer, out) {
		rt.metrics.Inc(event)
	}
}

func (rt *Router) forwardToPlayer(c *Client, st StreamerBound, msg inboundMessage, out any, event string) {
	room, ok := rt.rooms.Lookup(st.Code)
	if !ok {
		rt.drop(c, msg, metrics.DropReasonNoTarget)
		return
	}
	player, ok := room.Player(msg.Name)
	if !ok {
		rt.drop(c, msg, metrics.DropReasonNoTarget)
		return
	}
	if rt.send(player, out) {
		rt.metrics.Inc(event)
	}
}

func (rt *Router) leave(c *Client) {
	rt.log.Info("signaling_leave", "conn_id", c.conn.ID())
	rt.cleanupLocked(c)
}

// cleanupLocked unbinds c from its room. The identity checks in Room make it
// a no-op when c has already been cleaned up or displaced.
func (rt *Router) cleanupLocked(c *Client) {
	switch st := c.state.(type) {
	case PlayerBound:
		room, ok := rt.rooms.Lookup(st.Code)
		if !ok {
			return
		}
		if room.removePlayer(st.Name, c.conn) {
			if streamer, _, ok := room.Streamer(); ok {
				rt.send(streamer, nameEventMessage{Type: messageTypePlayerLeft, Name: st.Name})
			}
		}
		rt.rooms.DeleteIfEmpty(st.Code)
	case StreamerBound:
		room, ok := rt.rooms.Lookup(st.Code)
		if !ok {
			return
		}
		if room.clearStreamer(c.conn) {
			for _, p := range room.players {
				rt.send(p.conn, eventMessage{Type: messageTypeStreamerDisconnected})
			}
		}
		rt.rooms.DeleteIfEmpty(st.Code)
	}
}

func (rt *Router) unknown(c *Client, msg inboundMessage) {
	rt.metrics.Inc(metrics.UnknownMessages)
	rt.log.Debug("signaling_unknown_message", "conn_id", c.conn.ID(), "type", msg.Type)
}

func (rt *Router) drop(c *Client, msg inboundMessage, reason string) {
	rt.metrics.Inc(reason)
	rt.log.Debug("signaling_message_dropped", "conn_id", c.conn.ID(), "type", msg.Type, "name", msg.Name, "reason", reason)
}

// send encodes v and enqueues it on conn. It reports whether the frame was
// handed to an open connection.
func (rt *Router) send(conn Conn, v any) bool {
	if !conn.IsOpen() {
		rt.metrics.Inc(metrics.DropReasonTargetClosed)
		return false
	}
	data, err := encodeMessage(v)
	if err != nil {
		rt.log.Error("signaling_encode_failed", "conn_id", conn.ID(), "err", err)
		return false
	}
	conn.Send(data)
	return true
}

func (rt *Router) sendError(conn Conn, message string) {
	rt.send(conn, errorMessage{Type: messageTypeError, Message: message})
}
