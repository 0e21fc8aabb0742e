// Package bridge connects external eye-tracker feeds to the recorder.
//
// A tracker bridge (a small process next to the vendor SDK) streams
// protocol "gaze" and "head" messages over a websocket. Either side may dial:
// Receiver accepts bridges on a fiber route, Client dials out to one. Both
// feed a Buffer, which holds only the latest frame and head transform and
// serves them as a gaze.FrameSource and a recorder.HeadSource.
package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/gazelog/pkg/gaze"
	"github.com/teslashibe/gazelog/pkg/protocol"
)

// DefaultMaxFrameAge is how old a frame may get before Ingest reports it stale.
const DefaultMaxFrameAge = 100 * time.Millisecond

// Stats contains buffer counters.
type Stats struct {
	FramesReceived uint64    `json:"frames_received"`
	HeadsReceived  uint64    `json:"heads_received"`
	Rejected       uint64    `json:"rejected"`
	StaleReads     uint64    `json:"stale_reads"`
	LastFrame      time.Time `json:"last_frame"`
}

// Buffer keeps the latest tracker frame and head transform.
type Buffer struct {
	mu sync.RWMutex

	maxAge time.Duration
	now    func() time.Time

	frame    gaze.RawFrame
	hasFrame bool
	head     gaze.HeadTransform
	stats    Stats
}

// NewBuffer creates a buffer. A non-positive maxAge uses DefaultMaxFrameAge.
// Until a bridge sends a head message, HeadTransform returns a head at the
// origin looking down +Z, which is what desktop trackers without head
// tracking expect.
func NewBuffer(maxAge time.Duration) *Buffer {
	if maxAge <= 0 {
		maxAge = DefaultMaxFrameAge
	}
	return &Buffer{
		maxAge: maxAge,
		now:    time.Now,
		head: gaze.HeadTransform{
			Forward: gaze.Vec3{Z: 1},
			Up:      gaze.Vec3{Y: 1},
		},
	}
}

// MaxAge returns the staleness limit.
func (b *Buffer) MaxAge() time.Duration {
	return b.maxAge
}

// PutFrame stores a frame stamped with the receive time.
func (b *Buffer) PutFrame(frame gaze.RawFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if frame.Timestamp.IsZero() {
		frame.Timestamp = b.now()
	}
	b.frame = frame
	b.hasFrame = true
	b.stats.FramesReceived++
	b.stats.LastFrame = frame.Timestamp
}

// PutHead stores a head transform.
func (b *Buffer) PutHead(head gaze.HeadTransform) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = head
	b.stats.HeadsReceived++
}

// Ingest returns the latest frame. It fails with gaze.ErrNoFrame before the
// first frame and with ErrStaleFrame once the feed has gone quiet.
func (b *Buffer) Ingest() (gaze.RawFrame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasFrame {
		return gaze.RawFrame{}, gaze.ErrNoFrame
	}
	if age := b.now().Sub(b.frame.Timestamp); age > b.maxAge {
		b.stats.StaleReads++
		return gaze.RawFrame{}, fmt.Errorf("%w: %v old", ErrStaleFrame, age.Round(time.Millisecond))
	}
	return b.frame, nil
}

// HeadTransform returns the latest head transform.
func (b *Buffer) HeadTransform() (gaze.HeadTransform, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.head, nil
}

// Stats returns a copy of the counters.
func (b *Buffer) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// Handle applies one raw websocket message from a bridge. Pings produce a
// pong reply; gaze and head messages update the buffer.
func (b *Buffer) Handle(data []byte) (*protocol.Message, error) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		b.reject()
		return nil, err
	}

	switch msg.Type {
	case protocol.TypeGaze:
		g, err := msg.GetGazeData()
		if err != nil {
			b.reject()
			return nil, fmt.Errorf("invalid gaze data: %w", err)
		}
		b.PutFrame(g.Frame(b.now()))
		return nil, nil

	case protocol.TypeHead:
		h, err := msg.GetHeadData()
		if err != nil {
			b.reject()
			return nil, fmt.Errorf("invalid head data: %w", err)
		}
		b.PutHead(h.Transform())
		return nil, nil

	case protocol.TypePing:
		p, err := msg.GetPingData()
		if err != nil {
			b.reject()
			return nil, fmt.Errorf("invalid ping data: %w", err)
		}
		return protocol.NewPongMessage(p.ID, p.Timestamp, b.now().UnixMilli())

	case protocol.TypePong:
		return nil, nil

	default:
		b.reject()
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedMessage, msg.Type)
	}
}

func (b *Buffer) reject() {
	b.mu.Lock()
	b.stats.Rejected++
	b.mu.Unlock()
}
