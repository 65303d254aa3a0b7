package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
)

type messageType string

const (
	messageTypeRegister  messageType = "register"
	messageTypeOffer     messageType = "offer"
	messageTypeAnswer    messageType = "answer"
	messageTypeCandidate messageType = "candidate"
	messageTypeLeave     messageType = "leave"

	messageTypeRegistered           messageType = "registered"
	messageTypeStreamerReady        messageType = "streamer-ready"
	messageTypeStreamerDisconnected messageType = "streamer-disconnected"
	messageTypePlayerJoined         messageType = "player-joined"
	messageTypePlayerLeft           messageType = "player-left"
	messageTypeError                messageType = "error"
)

// Role is the part a connection plays in its room.
type Role string

const (
	RolePlayer   Role = "player"
	RoleStreamer Role = "streamer"
)

// Error messages sent to clients. Browser clients match on these strings, so
// they are part of the wire protocol.
const (
	errMsgInvalidJSON     = "Invalid JSON payload"
	errMsgNotRegistered   = "Register before sending signaling messages."
	errMsgInvalidRegister = "Invalid registration payload."
	errMsgStreamerTaken   = "A streamer is already connected for this room."
	errMsgNameTakenOver   = "Display name is now in use by another connection."
	errMsgRateLimited     = "Too many signaling messages."
	errMsgInternal        = "Internal relay error."
)

// inboundMessage is the union of every client -> relay shape. Fields a given
// type does not use are ignored, as are unknown fields.
//
// Offer/Answer/Candidate stay raw: the relay never looks inside them.
// Re-encoding keeps their structure but not insignificant whitespace.
type inboundMessage struct {
	Type messageType `json:"type"`
	Role Role        `json:"role,omitempty"`
	Code string      `json:"code,omitempty"`
	Name string      `json:"name,omitempty"`

	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

var errInvalidJSON = errors.New("invalid JSON")

// parseInboundMessage fails only for data that is not JSON at all. Valid JSON
// of an unexpected shape (a non-object, a non-string type, a known field of
// the wrong kind) still yields a message: the type is kept when it is a
// string and everything else is left empty, so the router treats it as an
// unknown kind or a malformed message of that type.
func parseInboundMessage(data []byte) (inboundMessage, error) {
	if !json.Valid(data) {
		return inboundMessage{}, errInvalidJSON
	}

	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err == nil {
		return msg, nil
	}

	var typeOnly struct {
		Type messageType `json:"type"`
	}
	if err := json.Unmarshal(data, &typeOnly); err != nil {
		return inboundMessage{}, nil
	}
	return inboundMessage{Type: typeOnly.Type}, nil
}

type registeredStreamerMessage struct {
	Type    messageType `json:"type"`
	Role    Role        `json:"role"`
	Players []string    `json:"players"`
}

type registeredPlayerMessage struct {
	Type          messageType `json:"type"`
	Role          Role        `json:"role"`
	StreamerReady bool        `json:"streamerReady"`
}

type eventMessage struct {
	Type messageType `json:"type"`
}

type nameEventMessage struct {
	Type messageType `json:"type"`
	Name string      `json:"name"`
}

type offerMessage struct {
	Type  messageType     `json:"type"`
	Name  string          `json:"name"`
	Offer json.RawMessage `json:"offer"`
}

type answerMessage struct {
	Type   messageType     `json:"type"`
	Name   string          `json:"name"`
	Answer json.RawMessage `json:"answer"`
}

type candidateMessage struct {
	Type      messageType     `json:"type"`
	Name      string          `json:"name"`
	Candidate json.RawMessage `json:"candidate"`
}

type errorMessage struct {
	Type    messageType `json:"type"`
	Message string      `json:"message"`
}

// encodeMessage marshals an outbound message without HTML escaping so relayed
// payloads keep their original characters. encoding/json compacts raw
// payloads, so whitespace between tokens is not preserved.
func encodeMessage(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
