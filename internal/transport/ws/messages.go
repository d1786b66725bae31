package ws

import "time"

// MessageType represents the type of WebSocket message
type MessageType string

// Client → Server message types
const (
	MsgPing MessageType = "ping"
)

// Server → Client message types
const (
	MsgConnected    MessageType = "connected"
	MsgNotification MessageType = "notification"
	MsgError        MessageType = "error"
	MsgPong         MessageType = "pong"
)

// ClientMessage represents a message from client to server
type ClientMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ServerMessage represents a message from server to client
type ServerMessage struct {
	Type      MessageType `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// NewServerMessage creates a new server message with current timestamp
func NewServerMessage(msgType MessageType, payload interface{}) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Server message payloads

// ConnectedPayload is the payload for connected message
type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
	LedgerID     string `json:"ledgerId"`
	LastSeq      uint64 `json:"lastSeq"`
}

// ErrorPayload is the payload for error message
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeInvalidAction  = "INVALID_ACTION"
)
