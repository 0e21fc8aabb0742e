package bridge

import "errors"

var (
	// ErrStaleFrame is returned by Ingest when the newest frame is older
	// than the buffer's max age.
	ErrStaleFrame = errors.New("tracker frame is stale")

	// ErrUnexpectedMessage is returned for message types a bridge must not send.
	ErrUnexpectedMessage = errors.New("unexpected message type")
)
