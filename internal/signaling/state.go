package signaling

// State is the registration state attached to a connection. It is one of
// Unregistered, PlayerBound or StreamerBound and changes at most once, on the
// first successful register.
type State interface {
	isState()
}

type Unregistered struct{}

// PlayerBound records the room and display name a player registered with.
type PlayerBound struct {
	Code string
	Name string
}

// StreamerBound records the room a streamer controls.
type StreamerBound struct {
	Code string
	Name string
}

func (Unregistered) isState()  {}
func (PlayerBound) isState()   {}
func (StreamerBound) isState() {}

// Client is the router's view of one connection: the handle it writes to and
// the state registration attached to it.
type Client struct {
	conn  Conn
	state State
}

func (c *Client) Conn() Conn { return c.conn }

// State returns the client's current registration state. Callers outside the
// router must only read it while no messages for the client are in flight.
func (c *Client) State() State { return c.state }
