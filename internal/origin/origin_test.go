package origin

import "testing"

func TestNormalizeHeader(t *testing.T) {
	cases := []struct {
		in             string
		wantNormalized string
		wantHost       string
		wantOK         bool
	}{
		{in: "HTTPS://Example.COM", wantNormalized: "https://example.com", wantHost: "example.com", wantOK: true},
		{in: "https://example.com:443", wantNormalized: "https://example.com", wantHost: "example.com", wantOK: true},
		{in: "http://example.com:80", wantNormalized: "http://example.com", wantHost: "example.com", wantOK: true},
		{in: "http://localhost:5173/", wantNormalized: "http://localhost:5173", wantHost: "localhost:5173", wantOK: true},
		{in: "http://[::1]:8080", wantNormalized: "http://[::1]:8080", wantHost: "[::1]:8080", wantOK: true},
		{in: "http://[::1]", wantNormalized: "http://[::1]", wantHost: "[::1]", wantOK: true},
		{in: "null", wantNormalized: "null", wantHost: "", wantOK: true},
		{in: ""},
		{in: "ftp://example.com"},
		{in: "https://example.com/path"},
		{in: "https://example.com?x=1"},
		{in: "https://user:pw@example.com"},
		{in: "https://example.com:0"},
		{in: "https://example.com:99999"},
		{in: "https://example.com:"},
		{in: "example.com"},
	}

	for _, tc := range cases {
		normalized, host, ok := NormalizeHeader(tc.in)
		if ok != tc.wantOK {
			t.Fatalf("NormalizeHeader(%q) ok=%v, want %v", tc.in, ok, tc.wantOK)
		}
		if !ok {
			continue
		}
		if normalized != tc.wantNormalized || host != tc.wantHost {
			t.Fatalf("NormalizeHeader(%q)=(%q, %q), want (%q, %q)", tc.in, normalized, host, tc.wantNormalized, tc.wantHost)
		}
	}
}

func TestIsAllowed_SameHostDefault(t *testing.T) {
	normalized, host, ok := NormalizeHeader("https://lobby.example.com")
	if !ok {
		t.Fatalf("expected valid origin")
	}

	if !IsAllowed(normalized, host, "lobby.example.com", nil) {
		t.Fatalf("expected same host to be allowed")
	}
	if !IsAllowed(normalized, host, "LOBBY.example.com:443", nil) {
		t.Fatalf("expected default port to be treated as equivalent")
	}
	if IsAllowed(normalized, host, "other.example.com", nil) {
		t.Fatalf("expected other host to be rejected")
	}
	if IsAllowed("null", "", "lobby.example.com", nil) {
		t.Fatalf("expected null origin to be rejected by same-host policy")
	}
}

func TestIsAllowed_Allowlist(t *testing.T) {
	allow := []string{"http://localhost:5173"}

	if !IsAllowed("http://localhost:5173", "localhost:5173", "relay.internal:8080", allow) {
		t.Fatalf("expected allowlisted origin")
	}
	if IsAllowed("http://localhost:3000", "localhost:3000", "localhost:3000", allow) {
		t.Fatalf("allowlist must replace the same-host default")
	}
	if !IsAllowed("https://anything.example", "anything.example", "relay", []string{"*"}) {
		t.Fatalf("expected wildcard to allow everything")
	}
}
