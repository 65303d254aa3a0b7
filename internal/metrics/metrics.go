package metrics

import "sync"

// Event names counted by the signaling relay.
const (
	ConnectionsOpened = "connections_opened"
	ConnectionsClosed = "connections_closed"

	RegistrationsPlayer   = "registrations_player"
	RegistrationsStreamer = "registrations_streamer"
	RegistrationsInvalid  = "registrations_invalid"
	StreamerRejected      = "streamer_rejected"
	StreamerReplacedStale = "streamer_replaced_stale"
	PlayerNameTakenOver   = "player_name_taken_over"

	RoomsCreated = "rooms_created"
	RoomsDeleted = "rooms_deleted"

	RelayedOffer     = "relayed_offer"
	RelayedAnswer    = "relayed_answer"
	RelayedCandidate = "relayed_candidate"

	DecodeErrors       = "decode_errors"
	UnregisteredErrors = "unregistered_errors"
	UnknownMessages    = "unknown_messages"
	MessageTooLarge    = "message_too_large"
	IdleTimeouts       = "idle_timeouts"
	HandlerPanics      = "handler_panics"
	ClosedSenderFrames = "closed_sender_frames"
)

// Drop reasons. Each is counted under its own event name.
const (
	DropReasonNoTarget       = "drop_no_target"
	DropReasonWrongRole      = "drop_wrong_role"
	DropReasonMissingPayload = "drop_missing_payload"
	DropReasonTargetClosed   = "drop_target_closed"
	DropReasonSendQueueFull  = "drop_send_queue_full"
	DropReasonRateLimited    = "drop_rate_limited"
)

// Metrics is a concurrency-safe in-process counter registry. A nil *Metrics
// is valid and counts nothing.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of every counter.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
