// Package protocol defines the JSON message envelope exchanged over a
// room socket: a closed set of type tags, each with its own payload
// shape. Unknown tags and malformed payloads are decode errors; the
// caller drops the frame and keeps the socket open.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message type tags.
const (
	TypePing     = "ping"
	TypePong     = "pong"
	TypePosition = "update-position"
	TypeStats    = "statistics"
	TypeGame     = "game"
)

var ErrUnknownType = errors.New("unknown message type")

// Envelope is the wire frame: a tag plus tag-specific payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PingData is a client liveness probe carrying the previously measured
// round trip in milliseconds.
type PingData struct {
	ID         string `json:"id"`
	LastPingMs int    `json:"lastPingMs"`
}

// PongData echoes the probe id and carries server wall clock in
// milliseconds.
type PongData struct {
	ID   string `json:"id"`
	Time int64  `json:"time"`
}

// Message is one decoded inbound client frame. The payload field
// matching Type is set; the rest are zero.
type Message struct {
	Type     string
	Ping     *PingData
	Position int
	Stats    json.RawMessage
}

// Decode parses one client frame. Server-push tags (pong, game) are not
// valid from a client and decode as unknown.
func Decode(raw []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("malformed envelope: %w", err)
	}

	msg := Message{Type: env.Type}
	switch env.Type {
	case TypePing:
		var data PingData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Message{}, fmt.Errorf("malformed ping payload: %w", err)
		}
		msg.Ping = &data
	case TypePosition:
		// The client reports its cursor as a bare integer.
		if err := json.Unmarshal(env.Data, &msg.Position); err != nil {
			return Message{}, fmt.Errorf("malformed position payload: %w", err)
		}
	case TypeStats:
		if len(env.Data) == 0 {
			return Message{}, errors.New("empty statistics payload")
		}
		// Kept verbatim; the server never interprets it.
		msg.Stats = append(json.RawMessage(nil), env.Data...)
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	return msg, nil
}

// Encode marshals a payload into an envelope frame.
func Encode(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Data: raw})
}

// Pong builds the reply frame for a ping probe.
func Pong(id string, now time.Time) ([]byte, error) {
	return Encode(TypePong, PongData{ID: id, Time: now.UnixMilli()})
}
