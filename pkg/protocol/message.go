// Package protocol defines the WebSocket messages exchanged with tracker
// bridges and live monitors.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Bridge → recorder messages
	TypeGaze MessageType = "gaze" // Raw dual-eye frame
	TypeHead MessageType = "head" // Head transform

	// Recorder → monitor messages
	TypeTick    MessageType = "tick"    // Per-tick snapshot
	TypeSession MessageType = "session" // Session started/ended

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Time returns the message timestamp, or the zero time if unset.
func (m *Message) Time() time.Time {
	if m.Timestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.Timestamp)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Bridge → Recorder Message Types
// =============================================================================

// Vec3Data is a 3D vector on the wire
type Vec3Data struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// EyeData is one eye's reading in tracker coordinates
type EyeData struct {
	Origin        Vec3Data `json:"origin"`         // Tracker units (mm)
	Direction     Vec3Data `json:"direction"`      // Tracker handedness
	Openness      float64  `json:"openness"`       // 0 closed, 1 open
	PupilDiameter float64  `json:"pupil_diameter"` // mm
}

// GazeData is a raw tracker frame
type GazeData struct {
	Right       EyeData  `json:"right"`
	Left        EyeData  `json:"left"`
	Combined    *EyeData `json:"combined,omitempty"` // Omitted by trackers without a cyclopean eye
	UserPresent bool     `json:"user_present"`
	DeviceTS    int64    `json:"device_ts,omitempty"` // Tracker clock, microseconds
}

// HeadData is a head transform in scene space
type HeadData struct {
	Position Vec3Data `json:"position"`
	Forward  Vec3Data `json:"forward"`
	Up       Vec3Data `json:"up"`
}

// =============================================================================
// Recorder → Monitor Message Types
// =============================================================================

// SessionEvent announces a session boundary
type SessionEvent struct {
	Event     string `json:"event"` // "started", "ended"
	Path      string `json:"path"`
	Serial    int    `json:"serial"`
	SessionID string `json:"session_id"`
	Rows      int    `json:"rows,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
