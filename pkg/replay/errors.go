package replay

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyPlaying is returned when Play is called during playback.
	ErrAlreadyPlaying = errors.New("replay already playing")

	// ErrEmptyLog is returned for files without a header line.
	ErrEmptyLog = errors.New("session log is empty")

	// ErrColumnCount marks a row whose width differs from the header.
	ErrColumnCount = errors.New("wrong number of columns")

	// ErrInvalidValue marks a cell that does not parse as its column kind.
	ErrInvalidValue = errors.New("invalid value")
)

// RowParseError is a recoverable fault in one row. The rest of that row is
// skipped and replay continues with the next one.
type RowParseError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *RowParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d, column %s: %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *RowParseError) Unwrap() error {
	return e.Err
}
