package config

import (
	"errors"
	"testing"
)

func TestParseICEServersJSON(t *testing.T) {
	t.Parallel()

	raw := `[
	  {"urls": ["stun:stun.example.com:3478"]},
	  {"urls": "turn:turn.example.com:3478?transport=udp", "username": "user", "credential": "pass"}
	]`

	servers, err := ParseICEServersJSON(raw)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	if got := servers[0].URLs; len(got) != 1 || got[0] != "stun:stun.example.com:3478" {
		t.Fatalf("unexpected stun urls: %#v", got)
	}
	if servers[0].Credential != nil {
		t.Fatalf("stun server should not carry a credential: %#v", servers[0])
	}
	if got := servers[1].URLs; len(got) != 1 || got[0] != "turn:turn.example.com:3478?transport=udp" {
		t.Fatalf("unexpected turn urls: %#v", got)
	}
	if cred, ok := servers[1].Credential.(string); !ok || cred != "pass" || servers[1].Username != "user" {
		t.Fatalf("unexpected turn credentials: %#v", servers[1])
	}
}

func TestParseICEServersJSON_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		raw  string
		want error
	}{
		"turn without username":   {raw: `[{"urls":["turn:t.example.com"],"credential":"x"}]`, want: errTURNNeedsUsername},
		"turn without credential": {raw: `[{"urls":["turns:t.example.com"],"username":"u"}]`, want: errTURNNeedsSecret},
		"empty urls":              {raw: `[{"urls":[" "]}]`, want: errMissingURLs},
		"http scheme":             {raw: `[{"urls":["http://example.com"]}]`},
		"not json":                {raw: `[`},
	}
	for name, tc := range cases {
		_, err := ParseICEServersJSON(tc.raw)
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v, want %v", name, err, tc.want)
		}
	}
}

func TestParseICEServersFromConvenienceEnv(t *testing.T) {
	t.Parallel()

	servers, err := ParseICEServersFromConvenienceEnv(
		"stun:a.example.com:3478, stun:b.example.com:3478",
		"turn:turn.example.com:3478?transport=udp",
		"user",
		"pass",
	)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	if len(servers[0].URLs) != 2 || servers[0].URLs[1] != "stun:b.example.com:3478" {
		t.Fatalf("unexpected stun urls: %#v", servers[0].URLs)
	}
	if servers[1].Username != "user" || servers[1].Credential.(string) != "pass" {
		t.Fatalf("unexpected turn server: %#v", servers[1])
	}
}

func TestParseICEServersFromConvenienceEnv_TURNNeedsCredentials(t *testing.T) {
	t.Parallel()

	_, err := ParseICEServersFromConvenienceEnv("", "turn:turn.example.com:3478", "user", "")
	if !errors.Is(err, errTURNNeedsSecret) {
		t.Fatalf("err=%v, want %v", err, errTURNNeedsSecret)
	}
}

func TestParseICEServersFromConvenienceEnv_Empty(t *testing.T) {
	t.Parallel()

	servers, err := ParseICEServersFromConvenienceEnv("", "", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("expected no servers, got %#v", servers)
	}
}
