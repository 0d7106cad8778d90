package udp

import (
	"encoding/json"
	"time"
)

// RequestType is what an observer asks of the relay.
type RequestType string

const (
	RequestSubscribe   RequestType = "SUBSCRIBE"
	RequestUnsubscribe RequestType = "UNSUBSCRIBE"
	RequestPing        RequestType = "PING"
)

// ReplyType tags the relay's own datagrams. Telemetry frames are relayed
// untouched and carry msg_type instead.
type ReplyType string

const (
	ReplySubscribed   ReplyType = "SUBSCRIBED"
	ReplyUnsubscribed ReplyType = "UNSUBSCRIBED"
	ReplyPong         ReplyType = "PONG"
	ReplyError        ReplyType = "ERROR"
)

// Request is a datagram from an observer. An empty SessionID subscribes to
// every session.
type Request struct {
	Type      RequestType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
}

// Reply acknowledges a Request.
type Reply struct {
	Type      ReplyType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReply(t ReplyType, sessionID, message string) *Reply {
	return &Reply{Type: t, SessionID: sessionID, Message: message, Timestamp: time.Now()}
}

// ToJSON converts the reply to JSON bytes
func (r *Reply) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// ParseRequest parses an incoming observer datagram
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	err := json.Unmarshal(data, &req)
	return &req, err
}
