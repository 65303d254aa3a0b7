package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/posearena/lobby-signaling-relay/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		ListenAddr:      "127.0.0.1:0",
		LogFormat:       config.LogFormatText,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: 2 * time.Second,
		Mode:            config.ModeDev,
		SignalingPath:   "/signaling",
	}
}

func startTestServer(t *testing.T, cfg config.Config, register func(*Server)) (baseURL string) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	build := BuildInfo{Commit: "abc", BuildTime: "time"}
	srv := New(cfg, log, build)
	if register != nil {
		register(srv)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-errCh
	})

	return "http://" + ln.Addr().String()
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status=%d, want %d", url, resp.StatusCode, wantStatus)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("GET %s content-type=%q, want application/json", url, ct)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
}

func TestHealthzReadyzVersion(t *testing.T) {
	baseURL := startTestServer(t, testConfig(), nil)

	t.Run("healthz", func(t *testing.T) {
		var body map[string]any
		getJSON(t, baseURL+"/healthz", http.StatusOK, &body)
		if body["ok"] != true {
			t.Fatalf("body=%v, want ok=true", body)
		}
	})

	t.Run("readyz", func(t *testing.T) {
		var body map[string]any
		getJSON(t, baseURL+"/readyz", http.StatusOK, &body)
		if body["ready"] != true {
			t.Fatalf("body=%v, want ready=true", body)
		}
	})

	t.Run("version", func(t *testing.T) {
		var got BuildInfo
		getJSON(t, baseURL+"/version", http.StatusOK, &got)
		want := BuildInfo{Commit: "abc", BuildTime: "time"}
		if got != want {
			t.Fatalf("got=%+v, want=%+v", got, want)
		}
	})
}

func TestRequestIDIsEchoed(t *testing.T) {
	baseURL := startTestServer(t, testConfig(), nil)

	req, err := http.NewRequest(http.MethodGet, baseURL+"/healthz", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("X-Request-ID=%q, want %q", got, "req-123")
	}

	resp, err = http.Get(baseURL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); len(got) != 32 {
		t.Fatalf("generated X-Request-ID=%q, want 32 hex chars", got)
	}
}

func TestICEEndpointSchema(t *testing.T) {
	cfg := testConfig()
	cfg.ICEServers = []webrtc.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"turn:turn.example.com:3478?transport=udp"}, Username: "user", Credential: "pass"},
	}
	baseURL := startTestServer(t, cfg, nil)

	var payload struct {
		ICEServers []map[string]any `json:"iceServers"`
	}
	getJSON(t, baseURL+"/webrtc/ice", http.StatusOK, &payload)
	if len(payload.ICEServers) != 2 {
		t.Fatalf("expected 2 iceServers, got %d", len(payload.ICEServers))
	}
	if _, ok := payload.ICEServers[0]["urls"]; !ok {
		t.Fatalf("expected urls field on first server: %#v", payload.ICEServers[0])
	}
	if payload.ICEServers[1]["username"] != "user" {
		t.Fatalf("expected username on TURN server: %#v", payload.ICEServers[1])
	}
}

func TestICEEndpoint_EmptyListIsArray(t *testing.T) {
	baseURL := startTestServer(t, testConfig(), nil)

	var payload map[string]json.RawMessage
	getJSON(t, baseURL+"/webrtc/ice", http.StatusOK, &payload)
	if got := string(payload["iceServers"]); got != "[]" {
		t.Fatalf("iceServers=%s, want []", got)
	}
}

func TestICEEndpoint_OriginPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.ICEServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}}
	baseURL := startTestServer(t, cfg, nil)

	t.Run("cross origin rejected", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, baseURL+"/webrtc/ice", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("status=%d, want %d", resp.StatusCode, http.StatusForbidden)
		}
	})

	t.Run("same host allowed with cors headers", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, baseURL+"/webrtc/ice", nil)
		req.Header.Set("Origin", baseURL)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status=%d, want %d", resp.StatusCode, http.StatusOK)
		}
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != baseURL {
			t.Fatalf("Access-Control-Allow-Origin=%q, want %q", got, baseURL)
		}
	})
}

func TestReadyzFailsOnInvalidICEConfig(t *testing.T) {
	t.Setenv("LOBBY_RELAY_ICE_SERVERS_JSON", "[")
	t.Setenv("LOBBY_RELAY_ENV_FILE", "")

	cfg, err := config.Load([]string{"--listen-addr", "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("config.Load returned fatal error: %v", err)
	}
	if cfg.ICEConfigError() == nil {
		t.Fatalf("expected ICE config error to be captured for readiness")
	}

	baseURL := startTestServer(t, cfg, nil)
	getJSON(t, baseURL+"/readyz", http.StatusServiceUnavailable, nil)
	getJSON(t, baseURL+"/webrtc/ice", http.StatusServiceUnavailable, nil)
}

func TestOriginPolicyMiddleware_Preflight(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"http://localhost:5173"}
	baseURL := startTestServer(t, cfg, func(s *Server) {
		s.Mux().Handle("/status", s.OriginPolicy()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			WriteJSON(w, http.StatusOK, map[string]any{"rooms": 0})
		})))
	})

	req, _ := http.NewRequest(http.MethodOptions, baseURL+"/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status=%d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got != "GET,OPTIONS" {
		t.Fatalf("Access-Control-Allow-Methods=%q", got)
	}
}

func TestCheckOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"https://lobby.example.com"}
	s := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), BuildInfo{})

	cases := []struct {
		origins []string
		want    bool
	}{
		{origins: nil, want: true},
		{origins: []string{"https://lobby.example.com"}, want: true},
		{origins: []string{"https://other.example.com"}, want: false},
		{origins: []string{"not an origin"}, want: false},
		{origins: []string{"https://lobby.example.com", "https://lobby.example.com"}, want: false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "http://relay.internal/signaling", nil)
		for _, o := range tc.origins {
			r.Header.Add("Origin", o)
		}
		if got := s.CheckOrigin(r); got != tc.want {
			t.Fatalf("CheckOrigin(%v)=%v, want %v", tc.origins, got, tc.want)
		}
	}
}

func TestUpgradeGate_ClosesUpgradesOnOtherPaths(t *testing.T) {
	baseURL := startTestServer(t, testConfig(), nil)
	addr := strings.TrimPrefix(baseURL, "http://")

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req := "GET /healthz HTTP/1.1\r\n" +
		"Host: " + addr + "\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"
	if _, err := io.WriteString(conn, req); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := bufio.NewReader(conn).Read(make([]byte, 1))
	if n != 0 || err == nil {
		t.Fatalf("expected connection closed without a response, got n=%d err=%v", n, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		t.Fatalf("expected the server to close the connection, timed out instead")
	}
}

func TestUpgradeGate_AllowsSignalingPath(t *testing.T) {
	upgrader := websocket.Upgrader{}
	baseURL := startTestServer(t, testConfig(), func(s *Server) {
		s.Mux().HandleFunc("GET /signaling", func(w http.ResponseWriter, r *http.Request) {
			c, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer c.Close()
			_ = c.WriteMessage(websocket.TextMessage, []byte("hello"))
		})
	})

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/signaling"
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != "hello" {
		t.Fatalf("msg=%q, want %q", msg, "hello")
	}
}

func TestRecoverMiddleware(t *testing.T) {
	baseURL := startTestServer(t, testConfig(), func(s *Server) {
		s.Mux().HandleFunc("GET /boom", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
	})

	resp, err := http.Get(baseURL + "/boom")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status=%d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
}
