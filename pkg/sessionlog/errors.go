package sessionlog

import "errors"

var (
	// ErrSessionActive is returned when the field set is changed during a session.
	ErrSessionActive = errors.New("session is active")

	// ErrInactiveSession is returned when updating a field with no session running.
	ErrInactiveSession = errors.New("no active session")

	// ErrDuplicateField is returned when registering a name twice.
	ErrDuplicateField = errors.New("field already registered")

	// ErrUnknownField is returned for names that were never registered.
	ErrUnknownField = errors.New("unknown field")

	// ErrInvalidFieldName is returned for empty or reserved names and names
	// containing tabs or line breaks.
	ErrInvalidFieldName = errors.New("invalid field name")

	// ErrAlreadyActive is returned by Begin while a session is running.
	ErrAlreadyActive = errors.New("session already active")
)
