package websocket

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Message types sent to observers besides raw telemetry frames.
type MessageType string

const (
	TypeSubscribed MessageType = "subscribed" // sent once after the upgrade
	TypeSystem     MessageType = "system"     // server notices, e.g. shutdown
)

// Message is the envelope for non-telemetry frames.
type Message struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"` // empty = all sessions
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewMessage(msgType MessageType, sessionID, content string) *Message {
	return &Message{
		Type:      msgType,
		SessionID: sessionID,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

func NewSystemMessage(content string) *Message {
	return NewMessage(TypeSystem, "", content)
}

// ToJSON: marshal Message struct to JSON
func (m *Message) ToJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		slog.Error("failed_to_marshal_ws_message", "error", err)
		return nil, err
	}
	return data, nil
}

// MessageFromJSON: unmarshal JSON data to Message struct
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
