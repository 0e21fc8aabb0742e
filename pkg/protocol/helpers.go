package protocol

import (
	"time"

	"github.com/teslashibe/gazelog/pkg/gaze"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewGazeMessage creates a gaze message from a raw frame
func NewGazeMessage(frame gaze.RawFrame) (*Message, error) {
	combined := FromEye(frame.Combined)
	return NewMessage(TypeGaze, GazeData{
		Right:       FromEye(frame.Right),
		Left:        FromEye(frame.Left),
		Combined:    &combined,
		UserPresent: frame.UserPresent,
	})
}

// NewHeadMessage creates a head transform message
func NewHeadMessage(head gaze.HeadTransform) (*Message, error) {
	return NewMessage(TypeHead, HeadData{
		Position: FromVec(head.Position),
		Forward:  FromVec(head.Forward),
		Up:       FromVec(head.Up),
	})
}

// NewSessionMessage creates a session boundary message
func NewSessionMessage(event SessionEvent) (*Message, error) {
	return NewMessage(TypeSession, event)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetGazeData extracts gaze data from a message
func (m *Message) GetGazeData() (*GazeData, error) {
	var data GazeData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetHeadData extracts head data from a message
func (m *Message) GetHeadData() (*HeadData, error) {
	var data HeadData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSessionEvent extracts a session event from a message
func (m *Message) GetSessionEvent() (*SessionEvent, error) {
	var data SessionEvent
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// =============================================================================
// Conversions
// =============================================================================

// FromVec converts a gaze vector to its wire form
func FromVec(v gaze.Vec3) Vec3Data {
	return Vec3Data{X: v.X, Y: v.Y, Z: v.Z}
}

// Vec converts a wire vector to a gaze vector
func (v Vec3Data) Vec() gaze.Vec3 {
	return gaze.Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

// FromEye converts a raw eye to its wire form
func FromEye(e gaze.RawEye) EyeData {
	return EyeData{
		Origin:        FromVec(e.Origin),
		Direction:     FromVec(e.Direction),
		Openness:      e.Openness,
		PupilDiameter: e.PupilDiameter,
	}
}

// Eye converts wire eye data to a raw eye
func (e EyeData) Eye() gaze.RawEye {
	return gaze.RawEye{
		Origin:        e.Origin.Vec(),
		Direction:     e.Direction.Vec(),
		Openness:      e.Openness,
		PupilDiameter: e.PupilDiameter,
	}
}

// Frame converts gaze data to a raw frame stamped with received. Trackers
// without a combined eye get the mean of both eyes.
func (g *GazeData) Frame(received time.Time) gaze.RawFrame {
	frame := gaze.RawFrame{
		Timestamp:   received,
		Right:       g.Right.Eye(),
		Left:        g.Left.Eye(),
		UserPresent: g.UserPresent,
	}
	if g.Combined != nil {
		frame.Combined = g.Combined.Eye()
	} else {
		frame.Combined = gaze.RawEye{
			Origin:        frame.Right.Origin.Midpoint(frame.Left.Origin),
			Direction:     frame.Right.Direction.Add(frame.Left.Direction).Normalize(),
			Openness:      (frame.Right.Openness + frame.Left.Openness) / 2,
			PupilDiameter: (frame.Right.PupilDiameter + frame.Left.PupilDiameter) / 2,
		}
	}
	return frame
}

// Transform converts head data to a head transform
func (h *HeadData) Transform() gaze.HeadTransform {
	return gaze.HeadTransform{
		Position: h.Position.Vec(),
		Forward:  h.Forward.Vec(),
		Up:       h.Up.Vec(),
	}
}
