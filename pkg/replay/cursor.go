package replay

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/teslashibe/gazelog/internal/log"
	"github.com/teslashibe/gazelog/pkg/gaze"
	"github.com/teslashibe/gazelog/pkg/schema"
	"github.com/teslashibe/gazelog/pkg/sessionlog"
)

// Cursor walks a Log's rows in order, applying each one to a State. It has
// no clock of its own; the Player drives it from a ticker, and tests can
// drive it directly.
type Cursor struct {
	log    *Log
	opts   Options
	logger *slog.Logger

	next   int
	state  State
	report Report
}

// NewCursor positions a cursor before the first row.
func NewCursor(l *Log, opts Options) *Cursor {
	return &Cursor{
		log:    l,
		opts:   opts,
		logger: log.For("replay"),
		state:  State{Cue: NoCue},
		report: Report{Incomplete: l.Incomplete(), Reason: l.Reason},
	}
}

// Done reports whether every row has been consumed.
func (c *Cursor) Done() bool {
	return c.next >= len(c.log.Rows)
}

// State returns the state after the rows applied so far.
func (c *Cursor) State() State {
	return c.state
}

// Report returns the running summary.
func (c *Cursor) Report() Report {
	r := c.report
	r.Duration = c.state.Elapsed
	return r
}

// AdvanceTo applies every remaining row with Elapsed <= t, in order, calling
// fn after each applied row. It returns false if fn asked to stop.
func (c *Cursor) AdvanceTo(t time.Duration, fn Callback) bool {
	for !c.Done() {
		row := c.log.Rows[c.next]
		if row.Elapsed > t {
			return true
		}
		c.next++

		frame, ok := c.apply(row)
		if !ok {
			continue
		}
		if fn != nil && !fn(c.state, frame) {
			return false
		}
	}
	return true
}

// apply updates state from one row. It returns ok=false when the row
// faulted; values parsed before the fault are kept.
func (c *Cursor) apply(row Row) (Frame, bool) {
	if row.Err != nil {
		c.warn(row.Err)
		return Frame{}, false
	}

	frame := Frame{
		Index:   c.next - 1,
		Line:    row.Line,
		Elapsed: row.Elapsed,
		Values:  make(map[string]string),
	}

	prevCue := c.state.Cue
	c.state.Elapsed = row.Elapsed

	var fault *RowParseError
	for i := 1; i < len(row.Cells); i++ {
		name := c.log.Header[i]
		if !c.log.Binding.Has(name) {
			continue
		}
		cell := row.Cells[i]
		if cell == sessionlog.Undefined {
			continue
		}
		col, _ := c.log.Binding.Schema.Column(name)
		if err := applyCell(&c.state, col, cell); err != nil {
			fault = &RowParseError{Line: row.Line, Column: name, Value: cell, Err: err}
			break
		}
		frame.Values[name] = cell
	}

	c.updateMarker()

	if c.state.Cue != prevCue && c.state.Cue != NoCue {
		c.triggerCue(c.state.Cue)
	}

	if fault != nil {
		c.warn(fault)
		return Frame{}, false
	}
	c.report.RowsApplied++
	return frame, true
}

func (c *Cursor) warn(err *RowParseError) {
	c.report.RowsSkipped++
	c.report.Warnings = append(c.report.Warnings, err)
	c.logger.Warn("skipping malformed row", "line", err.Line, "error", err)
	if c.opts.OnWarning != nil {
		c.opts.OnWarning(err)
	}
}

func (c *Cursor) triggerCue(index int) {
	c.report.Cues++
	if c.opts.Cues != nil {
		if h := c.opts.Cues.Cue(index); h != nil {
			h.PlayOnce()
		}
	}
	if c.opts.OnCue != nil {
		c.opts.OnCue(index, c.state.Elapsed)
	}
}

// updateMarker places the marker at the first scene hit along the ray from
// the head toward the recorded focus point, or at the recorded hit when no
// ray caster is attached.
func (c *Cursor) updateMarker() {
	s := &c.state
	if c.opts.RayCaster == nil {
		if c.log.Binding.Has(schema.HitX) {
			s.Marker = s.GazeHit
			s.MarkerTarget = s.GazeTarget
			s.HasMarker = true
		} else {
			s.Marker = s.FocusPoint
			s.MarkerTarget = ""
			s.HasMarker = true
		}
		return
	}

	dir := s.FocusPoint.Sub(s.HeadPosition).Normalize()
	if dir == (gaze.Vec3{}) {
		s.HasMarker = false
		return
	}
	hit, ok := c.opts.RayCaster.RayCast(gaze.Ray{Origin: s.HeadPosition, Direction: dir})
	s.HasMarker = ok
	if ok {
		s.Marker = hit.Point
		s.MarkerTarget = hit.Collider
	}
}

// applyCell parses one non-NA cell into state.
func applyCell(s *State, col schema.Column, cell string) error {
	switch col.Kind {
	case schema.KindFloat:
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return ErrInvalidValue
		}
		setFloat(s, col.Name, v)
	case schema.KindInt:
		v, err := strconv.Atoi(cell)
		if err != nil {
			return ErrInvalidValue
		}
		if col.Name == schema.Cue {
			s.Cue = v
		}
	case schema.KindBool:
		v, err := strconv.ParseBool(cell)
		if err != nil {
			return ErrInvalidValue
		}
		if col.Name == schema.Present {
			s.UserPresent = v
		}
	case schema.KindWink:
		v, ok := gaze.ParseWinkState(cell)
		if !ok {
			return ErrInvalidValue
		}
		s.Wink = v
	case schema.KindString:
		if col.Name == schema.HitTarget {
			s.GazeTarget = cell
		}
	}
	return nil
}

func setFloat(s *State, name string, v float64) {
	switch name {
	case schema.HeadX:
		s.HeadPosition.X = v
	case schema.HeadY:
		s.HeadPosition.Y = v
	case schema.HeadZ:
		s.HeadPosition.Z = v
	case schema.ForwardX:
		s.HeadForward.X = v
	case schema.ForwardY:
		s.HeadForward.Y = v
	case schema.ForwardZ:
		s.HeadForward.Z = v
	case schema.UpX:
		s.HeadUp.X = v
	case schema.UpY:
		s.HeadUp.Y = v
	case schema.UpZ:
		s.HeadUp.Z = v
	case schema.FocusX:
		s.FocusPoint.X = v
	case schema.FocusY:
		s.FocusPoint.Y = v
	case schema.FocusZ:
		s.FocusPoint.Z = v
	case schema.HitX:
		s.GazeHit.X = v
	case schema.HitY:
		s.GazeHit.Y = v
	case schema.HitZ:
		s.GazeHit.Z = v
	case schema.Certainty:
		s.Certainty = v
	case schema.OpenRight:
		s.RightOpenness = v
	case schema.OpenLeft:
		s.LeftOpenness = v
	case schema.PupilRight:
		s.RightPupil = v
	case schema.PupilLeft:
		s.LeftPupil = v
	}
}
