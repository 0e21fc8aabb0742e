// Package replay reconstructs a recorded session from its log file.
//
// Rows are applied in file order and never before their timestamp has
// elapsed in wall-clock terms (scaled by the playback speed). "NA" cells
// leave state unchanged, cue triggers fire only when the cue column changes,
// and malformed rows are skipped with a warning instead of ending playback.
package replay

import (
	"time"

	"github.com/teslashibe/gazelog/pkg/gaze"
)

// NoCue is the cue column value when no cue is playing.
const NoCue = -1

// State is the reconstructed subject state after the rows applied so far.
type State struct {
	Elapsed time.Duration `json:"elapsed"`

	HeadPosition gaze.Vec3 `json:"head_position"`
	HeadForward  gaze.Vec3 `json:"head_forward"`
	HeadUp       gaze.Vec3 `json:"head_up"`

	// FocusPoint is the recorded fused focus point in scene space.
	FocusPoint gaze.Vec3 `json:"focus_point"`

	// GazeHit and GazeTarget are what the recorder's ray cast hit.
	GazeHit    gaze.Vec3 `json:"gaze_hit"`
	GazeTarget string    `json:"gaze_target,omitempty"`

	// Marker is where the gaze marker is drawn during replay.
	Marker       gaze.Vec3 `json:"marker"`
	MarkerTarget string    `json:"marker_target,omitempty"`
	HasMarker    bool      `json:"has_marker"`

	Wink      gaze.WinkState `json:"wink"`
	Certainty float64        `json:"certainty"`

	RightOpenness float64 `json:"right_openness"`
	LeftOpenness  float64 `json:"left_openness"`
	RightPupil    float64 `json:"right_pupil"`
	LeftPupil     float64 `json:"left_pupil"`

	UserPresent bool `json:"user_present"`
	Cue         int  `json:"cue"`
}

// Frame describes the row that produced a State.
type Frame struct {
	// Index is the row's position among data rows.
	Index int

	Line    int
	Elapsed time.Duration

	// Values holds the non-NA cells applied from this row, by column.
	Values map[string]string
}

// Callback receives each applied row. Return false to stop playback.
type Callback func(state State, frame Frame) bool

// CueHandle plays a cue once.
type CueHandle interface {
	PlayOnce()
}

// CueSource is the audio cue bank.
type CueSource interface {
	Cue(index int) CueHandle
}

// Report summarises a replay.
type Report struct {
	RowsApplied int              `json:"rows_applied"`
	RowsSkipped int              `json:"rows_skipped"`
	Cues        int              `json:"cues"`
	Warnings    []*RowParseError `json:"-"`
	Incomplete  bool             `json:"incomplete"`
	Reason      string           `json:"reason,omitempty"`
	Duration    time.Duration    `json:"duration"`
}

// PlaybackState is the player's run state.
type PlaybackState int

const (
	// StateStopped means no replay is running.
	StateStopped PlaybackState = iota

	// StatePlaying means rows are being applied.
	StatePlaying

	// StatePaused means the replay clock is frozen.
	StatePaused

	// StateStopping means Stop was called and the play loop has not yet
	// returned. A new replay cannot start until it has.
	StateStopping
)

// String returns a human-readable state name.
func (s PlaybackState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Options configures playback.
type Options struct {
	// TickRate is how often the player wakes to apply due rows (default: 90 Hz).
	TickRate float64

	// Speed multiplier (1.0 = real time, 2.0 = 2x speed).
	Speed float64

	// RayCaster, when set, recomputes the marker from head and focus.
	RayCaster gaze.RayCaster

	// Cues is the cue bank triggered on cue changes.
	Cues CueSource

	// OnCue is called after a cue is triggered.
	OnCue func(index int, elapsed time.Duration)

	// OnWarning is called for every row fault.
	OnWarning func(err *RowParseError)
}

// DefaultOptions returns real-time playback at 90 Hz.
func DefaultOptions() Options {
	return Options{
		TickRate: 90.0,
		Speed:    1.0,
	}
}
