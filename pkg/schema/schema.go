// Package schema defines the versioned column layouts of session logs and
// binds a log header to one of them.
package schema

import (
	"fmt"

	"github.com/teslashibe/gazelog/pkg/sessionlog"
)

// TimeColumn is always the first header cell.
const TimeColumn = "time"

// Column names shared by all versions.
const (
	HeadX = "head_x"
	HeadY = "head_y"
	HeadZ = "head_z"

	ForwardX = "fwd_x"
	ForwardY = "fwd_y"
	ForwardZ = "fwd_z"

	UpX = "up_x"
	UpY = "up_y"
	UpZ = "up_z"

	FocusX = "focus_x"
	FocusY = "focus_y"
	FocusZ = "focus_z"

	HitX      = "hit_x"
	HitY      = "hit_y"
	HitZ      = "hit_z"
	HitTarget = "hit_target"

	Wink      = "wink"
	Certainty = "certainty"

	OpenRight  = "open_r"
	OpenLeft   = "open_l"
	PupilRight = "pupil_r"
	PupilLeft  = "pupil_l"

	Present = "present"
	Cue     = "cue"
)

// Kind is how a column's cells are parsed.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindBool
	KindWink
	KindString
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindWink:
		return "wink"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Column describes one logged field.
type Column struct {
	Name        string
	Kind        Kind
	AlwaysFresh bool

	// Initial is the value held before the first update; nil means "NA".
	Initial any

	// Required columns must be present for name-based binding to succeed.
	Required bool
}

// Schema is an ordered column layout.
type Schema struct {
	Version int
	Name    string
	Columns []Column
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Header returns the exact header line cells a logger writes for s.
func (s Schema) Header() []string {
	return append([]string{TimeColumn}, s.Names()...)
}

// Column looks up a column by name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// FieldRegistrar is satisfied by *sessionlog.Logger.
type FieldRegistrar interface {
	RegisterField(name string, opts ...sessionlog.FieldOption) error
}

// Register adds every column of s to r in order.
func (s Schema) Register(r FieldRegistrar) error {
	for _, c := range s.Columns {
		var opts []sessionlog.FieldOption
		if c.AlwaysFresh {
			opts = append(opts, sessionlog.AlwaysFresh())
		}
		if c.Initial != nil {
			opts = append(opts, sessionlog.Initial(c.Initial))
		}
		if err := r.RegisterField(c.Name, opts...); err != nil {
			return fmt.Errorf("failed to register %s column %s: %w", s.Name, c.Name, err)
		}
	}
	return nil
}

func vec(prefix string, required bool) []Column {
	return []Column{
		{Name: prefix + "_x", Kind: KindFloat, Required: required},
		{Name: prefix + "_y", Kind: KindFloat, Required: required},
		{Name: prefix + "_z", Kind: KindFloat, Required: required},
	}
}

func concat(groups ...[]Column) []Column {
	var out []Column
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// V1 is the legacy layout: head pose, focus point, wink and cue.
var V1 = Schema{
	Version: 1,
	Name:    "v1",
	Columns: concat(
		vec("head", true),
		vec("fwd", false),
		vec("focus", true),
		[]Column{
			{Name: Wink, Kind: KindWink},
			{Name: Cue, Kind: KindInt},
		},
	),
}

// V2 is the current layout written by the recorder.
var V2 = Schema{
	Version: 2,
	Name:    "v2",
	Columns: concat(
		vec("head", true),
		vec("fwd", false),
		vec("up", false),
		vec("focus", true),
		vec("hit", false),
		[]Column{
			{Name: HitTarget, Kind: KindString},
			{Name: Wink, Kind: KindWink},
			{Name: Certainty, Kind: KindFloat},
			{Name: OpenRight, Kind: KindFloat},
			{Name: OpenLeft, Kind: KindFloat},
			{Name: PupilRight, Kind: KindFloat},
			{Name: PupilLeft, Kind: KindFloat},
			{Name: Present, Kind: KindBool, AlwaysFresh: true, Initial: false},
			{Name: Cue, Kind: KindInt, AlwaysFresh: true, Initial: -1},
		},
	),
}

// Current is the layout new sessions are recorded with.
func Current() Schema {
	return V2
}

// Known returns every supported layout, newest first.
func Known() []Schema {
	return []Schema{V2, V1}
}

// ByVersion returns the known layout with the given version.
func ByVersion(version int) (Schema, error) {
	for _, s := range Known() {
		if s.Version == version {
			return s, nil
		}
	}
	return Schema{}, fmt.Errorf("%w: version %d", ErrUnknownSchema, version)
}
