package tcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"sdsim/internal/shared"
)

// Message is one decoded frame: a type tag plus flat, loosely typed fields.
// Field values are string, float64 or bool.
type Message struct {
	Type   string         `json:"msg_type"` // routing key
	Fields map[string]any `json:"-"`        // everything else in the frame
}

// NewMessage builds an outbound message with an empty field set.
func NewMessage(msgType string) Message {
	return Message{Type: msgType, Fields: make(map[string]any)}
}

// Set adds a field and returns the message so telemetry can be built fluently.
func (m Message) Set(key string, value any) Message {
	if m.Fields == nil {
		m.Fields = make(map[string]any)
	}
	m.Fields[key] = value
	return m
}

// Encode writes the message as a single flat JSON object. The type is always
// written under "msg_type"; fields never override it.
func Encode(m Message) ([]byte, error) {
	out := make(map[string]any, len(m.Fields)+1)
	for k, v := range m.Fields {
		out[k] = v
	}
	out["msg_type"] = m.Type
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q message: %w", m.Type, err)
	}
	return data, nil
}

// Decode parses one frame. Structural problems fail here with MalformedFrame;
// missing fields are only reported when a handler asks for them.
func Decode(frame []byte) (Message, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return Message{}, &DecodeError{Kind: MalformedFrame, Reason: "empty frame"}
	}

	dec := json.NewDecoder(bytes.NewReader(frame))
	dec.UseNumber() // keep numbers textual until a handler parses them
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Message{}, &DecodeError{Kind: MalformedFrame, Reason: err.Error()}
	}
	if dec.More() {
		return Message{}, &DecodeError{Kind: MalformedFrame, Reason: "trailing data after object"}
	}
	if raw == nil {
		return Message{}, &DecodeError{Kind: MalformedFrame, Reason: "frame is not an object"}
	}

	msgType, err := typeTag(raw)
	if err != nil {
		return Message{}, err
	}

	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "msg_type" || k == "type" {
			continue
		}
		switch val := v.(type) {
		case string, bool:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		case nil:
			// null is treated as absent
		default:
			return Message{}, &DecodeError{Kind: MalformedFrame, Field: k, Reason: "nested values are not supported"}
		}
	}
	return Message{Type: msgType, Fields: fields}, nil
}

func typeTag(raw map[string]any) (string, error) {
	for _, key := range []string{"msg_type", "type"} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return "", &DecodeError{Kind: MalformedFrame, Field: key, Reason: "message type must be a non-empty string"}
		}
		return s, nil
	}
	return "", &DecodeError{Kind: MalformedFrame, Reason: "missing msg_type"}
}

// Has reports whether the field is present.
func (m Message) Has(key string) bool {
	_, ok := m.Fields[key]
	return ok
}

// String returns a field as text. Numbers and bools are formatted back into
// their invariant representation.
func (m Message) String(key string) (string, error) {
	v, ok := m.Fields[key]
	if !ok {
		return "", &DecodeError{Kind: MissingField, Field: key}
	}
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	default:
		return fmt.Sprint(val), nil
	}
}

// ParseInvariantFloat parses a decimal string independent of any locale.
func ParseInvariantFloat(s string) (float64, error) {
	f, err := shared.ParseDecimal(s)
	if err != nil {
		return 0, &ParseError{Value: s, Reason: err.Error()}
	}
	return f, nil
}

// Float returns a numeric field.
func (m Message) Float(key string) (float64, error) {
	v, ok := m.Fields[key]
	if !ok {
		return 0, &DecodeError{Kind: MissingField, Field: key}
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case string:
		f, err := ParseInvariantFloat(val)
		if err != nil {
			return 0, fieldParseError(key, err)
		}
		return f, nil
	default:
		return 0, &ParseError{Field: key, Value: fmt.Sprint(val), Reason: "not a number"}
	}
}

// Int returns an integer field. Fractional values are rejected.
func (m Message) Int(key string) (int, error) {
	v, ok := m.Fields[key]
	if !ok {
		return 0, &DecodeError{Kind: MissingField, Field: key}
	}
	switch val := v.(type) {
	case int:
		return val, nil
	case float64:
		if val != math.Trunc(val) {
			return 0, &ParseError{Field: key, Value: strconv.FormatFloat(val, 'f', -1, 64), Reason: "not an integer"}
		}
		return int(val), nil
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, &ParseError{Field: key, Value: val, Reason: "not an integer"}
		}
		return n, nil
	default:
		return 0, &ParseError{Field: key, Value: fmt.Sprint(val), Reason: "not an integer"}
	}
}

// Bool returns a boolean field; "true"/"false" strings are accepted too.
func (m Message) Bool(key string) (bool, error) {
	v, ok := m.Fields[key]
	if !ok {
		return false, &DecodeError{Kind: MissingField, Field: key}
	}
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return false, &ParseError{Field: key, Value: val, Reason: "not a boolean"}
		}
		return b, nil
	default:
		return false, &ParseError{Field: key, Value: fmt.Sprint(val), Reason: "not a boolean"}
	}
}

// OptionalString returns def when the field is absent.
func (m Message) OptionalString(key, def string) (string, error) {
	if !m.Has(key) {
		return def, nil
	}
	return m.String(key)
}

// OptionalFloat returns def when the field is absent.
func (m Message) OptionalFloat(key string, def float64) (float64, error) {
	if !m.Has(key) {
		return def, nil
	}
	return m.Float(key)
}

// OptionalInt returns def when the field is absent.
func (m Message) OptionalInt(key string, def int) (int, error) {
	if !m.Has(key) {
		return def, nil
	}
	return m.Int(key)
}

func fieldParseError(key string, err error) error {
	if pe, ok := err.(*ParseError); ok {
		pe.Field = key
		return pe
	}
	return err
}
