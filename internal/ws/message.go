// Package ws carries push-channel frames between browsers and the engine
// over gorilla/websocket.
package ws

import (
	"encoding/json"
	"fmt"
)

// Frame is the envelope used in both directions. Clients send a command name
// in Event with its arguments in Data; the server sends event payloads.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes payload into a frame.
func NewFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// ParseFrame decodes an inbound frame.
func ParseFrame(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("decode frame: missing event")
	}
	return f, nil
}
