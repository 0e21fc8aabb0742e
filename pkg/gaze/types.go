// Package gaze turns raw dual-eye tracker frames into gaze features.
//
// A Processor ingests one frame per tick from a FrameSource, keeps a short
// time-bounded history of eye openness, and derives gaze rays, a fused focus
// point, openness, pupil diameter and a debounced wink classification with a
// certainty score.
package gaze

import (
	"fmt"
	"time"
)

// Source selects which eye stream a query refers to.
type Source int

const (
	// SourceRight is the subject's right eye.
	SourceRight Source = iota

	// SourceLeft is the subject's left eye.
	SourceLeft

	// SourceCombined is the tracker's cyclopean estimate or the mean of both eyes.
	SourceCombined
)

// String returns a human-readable source name.
func (s Source) String() string {
	switch s {
	case SourceRight:
		return "right"
	case SourceLeft:
		return "left"
	case SourceCombined:
		return "combined"
	default:
		return "unknown"
	}
}

// WinkState is the transient wink classification.
type WinkState int

const (
	// WinkNone means both eyes are similarly open.
	WinkNone WinkState = iota

	// WinkRight means the right eye is the closed one.
	WinkRight

	// WinkLeft means the left eye is the closed one.
	WinkLeft
)

// String returns the name written to session logs.
func (w WinkState) String() string {
	switch w {
	case WinkRight:
		return "Right"
	case WinkLeft:
		return "Left"
	default:
		return "None"
	}
}

// ParseWinkState is the inverse of WinkState.String.
func ParseWinkState(s string) (WinkState, bool) {
	switch s {
	case "None":
		return WinkNone, true
	case "Right":
		return WinkRight, true
	case "Left":
		return WinkLeft, true
	default:
		return WinkNone, false
	}
}

// MarshalText encodes the state by name.
func (w WinkState) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText decodes a state name.
func (w *WinkState) UnmarshalText(b []byte) error {
	v, ok := ParseWinkState(string(b))
	if !ok {
		return fmt.Errorf("unknown wink state %q", b)
	}
	*w = v
	return nil
}

// RawEye is one eye's reading in tracker coordinates.
type RawEye struct {
	// Origin of the gaze ray in tracker units (millimetres for most SDKs).
	Origin Vec3 `json:"origin"`

	// Direction of the gaze ray in tracker handedness.
	Direction Vec3 `json:"direction"`

	// Openness in [0,1]; 0 is closed.
	Openness float64 `json:"openness"`

	// PupilDiameter in millimetres.
	PupilDiameter float64 `json:"pupil_diameter"`
}

// RawFrame is everything the tracker reports for one poll.
type RawFrame struct {
	Timestamp   time.Time `json:"timestamp"`
	Right       RawEye    `json:"right"`
	Left        RawEye    `json:"left"`
	Combined    RawEye    `json:"combined"`
	UserPresent bool      `json:"user_present"`
}

// FrameSource abstracts the vendor polling/callback API.
type FrameSource interface {
	Ingest() (RawFrame, error)
}

// FrameSourceFunc adapts a function to FrameSource.
type FrameSourceFunc func() (RawFrame, error)

// Ingest calls f().
func (f FrameSourceFunc) Ingest() (RawFrame, error) {
	return f()
}

// EyeSample is one entry in the openness history window.
type EyeSample struct {
	Timestamp     time.Time
	RightOpenness float64
	LeftOpenness  float64
}

// Snapshot is a consistent read of every derived feature for one tick.
type Snapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	FocusPoint    Vec3      `json:"focus_point"`
	Degenerate    bool      `json:"degenerate"`
	CombinedRay   Ray       `json:"combined_ray"`
	Wink          WinkState `json:"wink"`
	Certainty     float64   `json:"certainty"`
	RightOpenness float64   `json:"right_openness"`
	LeftOpenness  float64   `json:"left_openness"`
	RightPupil    float64   `json:"right_pupil"`
	LeftPupil     float64   `json:"left_pupil"`
	UserPresent   bool      `json:"user_present"`
	WindowSize    int       `json:"window_size"`
}
