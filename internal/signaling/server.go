package signaling

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/posearena/lobby-signaling-relay/internal/httpserver"
	"github.com/posearena/lobby-signaling-relay/internal/metrics"
	"github.com/posearena/lobby-signaling-relay/internal/ratelimit"
)

const (
	DefaultPath                 = "/signaling"
	DefaultMaxMessageBytes      = 64 * 1024
	DefaultMaxMessagesPerSecond = 50
	DefaultIdleTimeout          = 60 * time.Second
	DefaultPingInterval         = 20 * time.Second
	DefaultSendQueueBytes       = 1 << 20
)

// Config wires together the runtime dependencies for the signaling endpoint.
type Config struct {
	Router  *Router
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Path is the only path that accepts WebSocket upgrades.
	Path string

	// CheckOrigin is passed to the upgrader. nil accepts every origin.
	CheckOrigin func(r *http.Request) bool

	MaxMessageBytes      int64
	MaxMessagesPerSecond int

	// IdleTimeout closes a connection that has sent neither a message nor a
	// pong for this long. PingInterval should be well below it.
	IdleTimeout  time.Duration
	PingInterval time.Duration

	// SendQueueBytes bounds the outbound backlog per connection.
	SendQueueBytes int

	// Clock drives the per-connection rate limiter. nil uses the wall clock.
	Clock ratelimit.Clock
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Router == nil {
		c.Router = NewRouter(nil, c.Logger, c.Metrics)
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.MaxMessagesPerSecond == 0 {
		c.MaxMessagesPerSecond = DefaultMaxMessagesPerSecond
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.SendQueueBytes <= 0 {
		c.SendQueueBytes = DefaultSendQueueBytes
	}
	if c.Clock == nil {
		c.Clock = ratelimit.RealClock{}
	}
	return c
}

// Server accepts signaling WebSockets and feeds their messages to a Router.
type Server struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	router   *Router
	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		router:  cfg.Router,
		upgrader: websocket.Upgrader{
			CheckOrigin: cfg.CheckOrigin,
		},
	}
}

func (s *Server) Path() string { return s.cfg.Path }

func (s *Server) Router() *Router { return s.router }

// RegisterRoutes mounts the signaling endpoint and the status endpoint.
// wrapStatus, if non-nil, wraps the status handler (e.g. with an origin
// policy).
func (s *Server) RegisterRoutes(mux *http.ServeMux, wrapStatus func(http.Handler) http.Handler) {
	mux.Handle("GET "+s.cfg.Path, s)

	var status http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpserver.WriteJSON(w, http.StatusOK, s.router.Stats())
	})
	if wrapStatus != nil {
		status = wrapStatus(status)
		// CORS preflight.
		mux.Handle("OPTIONS /status", status)
	}
	mux.Handle("GET /status", status)
}

// Close closes every signaling connection with 1001 (going away).
func (s *Server) Close() {
	s.router.CloseAll(websocket.CloseGoingAway, "server shutting down")
}

// ServeHTTP upgrades the request and runs the connection until it closes. A
// plain GET is answered as a warm-up request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		httpserver.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		s.log.Debug("signaling_upgrade_failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}
	s.serveConn(ws, r.RemoteAddr)
}

func (s *Server) serveConn(ws *websocket.Conn, remoteAddr string) {
	conn := newWSConn(uuid.NewString(), ws, s.cfg.SendQueueBytes, func() {
		s.metrics.Inc(metrics.DropReasonSendQueueFull)
	})
	logger := s.log.With("conn_id", conn.ID())

	go conn.writeLoop()
	go conn.pingLoop(s.cfg.PingInterval)

	client := s.router.Connect(conn)
	s.metrics.Inc(metrics.ConnectionsOpened)
	logger.Info("signaling_connected", "remote_addr", remoteAddr)

	defer func() {
		s.router.Disconnect(client)
		conn.shutdown()
		s.metrics.Inc(metrics.ConnectionsClosed)
		logger.Info("signaling_disconnected")
	}()

	idle := s.cfg.IdleTimeout
	_ = ws.SetReadDeadline(time.Now().Add(idle))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(idle))
	})

	limiter := ratelimit.NewLimiter(s.cfg.Clock, s.cfg.MaxMessagesPerSecond, 0)

	for {
		_, r, err := ws.NextReader()
		if err != nil {
			if isTimeout(err) {
				s.metrics.Inc(metrics.IdleTimeouts)
				logger.Info("signaling_idle_timeout")
				conn.Close(websocket.CloseNormalClosure, "idle timeout")
			}
			return
		}

		data, err := readLimited(r, s.cfg.MaxMessageBytes)
		if err != nil {
			if errors.Is(err, errMessageTooLarge) {
				s.metrics.Inc(metrics.MessageTooLarge)
				logger.Info("signaling_message_too_large", "limit_bytes", s.cfg.MaxMessageBytes)
				conn.Close(websocket.CloseMessageTooBig, "message too large")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(idle))

		// Limit after reading so the offending frame is consumed and the
		// client reliably sees the close frame.
		if !limiter.Allow() {
			s.metrics.Inc(metrics.DropReasonRateLimited)
			logger.Info("signaling_rate_limited")
			s.router.sendError(conn, errMsgRateLimited)
			conn.Close(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		if !s.handle(logger, client, data) {
			return
		}
	}
}

// handle runs one message through the router. A panic closes only this
// connection with 1011.
func (s *Server) handle(logger *slog.Logger, client *Client, data []byte) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			s.metrics.Inc(metrics.HandlerPanics)
			logger.Error("panic in signaling handler", "recover", rec, "stack", string(debug.Stack()))
			s.router.sendError(client.conn, errMsgInternal)
			client.conn.Close(websocket.CloseInternalServerErr, "internal error")
			ok = false
		}
	}()
	s.router.Handle(client, data)
	return true
}

var errMessageTooLarge = errors.New("message too large")

func readLimited(r io.Reader, max int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > max {
		return nil, errMessageTooLarge
	}
	return b, nil
}
