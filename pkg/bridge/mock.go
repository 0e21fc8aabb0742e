package bridge

import (
	"math"
	"sync"
	"time"

	"github.com/teslashibe/gazelog/pkg/gaze"
)

// MockSource replays a fixed list of frames, one per Ingest. It implements
// gaze.FrameSource and recorder.HeadSource.
type MockSource struct {
	mu     sync.Mutex
	frames []gaze.RawFrame
	errs   map[int]error
	head   gaze.HeadTransform
	pos    int
	loop   bool
	calls  int
}

// NewMockSource creates a source that returns frames in order and then
// gaze.ErrNoFrame.
func NewMockSource(frames ...gaze.RawFrame) *MockSource {
	return &MockSource{
		frames: frames,
		errs:   make(map[int]error),
		head:   gaze.HeadTransform{Forward: gaze.Vec3{Z: 1}, Up: gaze.Vec3{Y: 1}},
	}
}

// Loop makes the source restart from the first frame when exhausted.
func (m *MockSource) Loop(loop bool) *MockSource {
	m.mu.Lock()
	m.loop = loop
	m.mu.Unlock()
	return m
}

// FailAt makes the call-th Ingest (zero based) return err instead of a frame.
func (m *MockSource) FailAt(call int, err error) *MockSource {
	m.mu.Lock()
	m.errs[call] = err
	m.mu.Unlock()
	return m
}

// SetHead sets the transform returned by HeadTransform.
func (m *MockSource) SetHead(head gaze.HeadTransform) {
	m.mu.Lock()
	m.head = head
	m.mu.Unlock()
}

// Ingest returns the next scripted frame.
func (m *MockSource) Ingest() (gaze.RawFrame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls
	m.calls++
	if err, ok := m.errs[call]; ok {
		return gaze.RawFrame{}, err
	}
	if m.pos >= len(m.frames) {
		if !m.loop || len(m.frames) == 0 {
			return gaze.RawFrame{}, gaze.ErrNoFrame
		}
		m.pos = 0
	}
	f := m.frames[m.pos]
	m.pos++
	return f, nil
}

// HeadTransform returns the scripted head.
func (m *MockSource) HeadTransform() (gaze.HeadTransform, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.head, nil
}

// Calls returns how many times Ingest was called.
func (m *MockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// SyntheticConfig shapes the demo signal.
type SyntheticConfig struct {
	// IPD is the inter-pupillary distance in millimetres.
	IPD float64

	// Distance to the gaze target in millimetres.
	Distance float64

	// Radius of the circle the target sweeps, in millimetres.
	Radius float64

	// Period of one sweep.
	Period time.Duration

	// WinkEvery is the spacing between winks; they alternate left and right.
	WinkEvery time.Duration

	// WinkFor is how long each wink lasts.
	WinkFor time.Duration
}

// DefaultSyntheticConfig returns a gentle sweep with a wink every 3s.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		IPD:       64,
		Distance:  600,
		Radius:    120,
		Period:    4 * time.Second,
		WinkEvery: 3 * time.Second,
		WinkFor:   400 * time.Millisecond,
	}
}

// Synthetic generates frames from a clock: both eyes converge on a target
// moving in a circle, with periodic winks. It is used by `record --mock`.
type Synthetic struct {
	config SyntheticConfig
	start  time.Time
	now    func() time.Time
}

// NewSynthetic creates a generator starting at now().
func NewSynthetic(config SyntheticConfig, now func() time.Time) *Synthetic {
	d := DefaultSyntheticConfig()
	if config.IPD <= 0 {
		config.IPD = d.IPD
	}
	if config.Distance <= 0 {
		config.Distance = d.Distance
	}
	if config.Period <= 0 {
		config.Period = d.Period
	}
	if config.WinkEvery <= 0 {
		config.WinkEvery = d.WinkEvery
	}
	if config.WinkFor <= 0 {
		config.WinkFor = d.WinkFor
	}
	if now == nil {
		now = time.Now
	}
	return &Synthetic{config: config, start: now(), now: now}
}

// Ingest returns the frame for the current clock.
func (s *Synthetic) Ingest() (gaze.RawFrame, error) {
	return s.FrameAt(s.now().Sub(s.start)), nil
}

// FrameAt returns the frame elapsed after start.
func (s *Synthetic) FrameAt(elapsed time.Duration) gaze.RawFrame {
	c := s.config
	phase := 2 * math.Pi * float64(elapsed%c.Period) / float64(c.Period)
	target := gaze.Vec3{
		X: c.Radius * math.Cos(phase),
		Y: c.Radius * math.Sin(phase) / 2,
		Z: c.Distance,
	}

	right := gaze.RawEye{Origin: gaze.Vec3{X: -c.IPD / 2}, Openness: 0.95, PupilDiameter: 3.5}
	left := gaze.RawEye{Origin: gaze.Vec3{X: c.IPD / 2}, Openness: 0.95, PupilDiameter: 3.5}
	right.Direction = target.Sub(right.Origin).Normalize()
	left.Direction = target.Sub(left.Origin).Normalize()

	n := elapsed / c.WinkEvery
	if n > 0 && elapsed-n*c.WinkEvery < c.WinkFor {
		if n%2 == 1 {
			left.Openness = 0.05
		} else {
			right.Openness = 0.05
		}
	}

	combined := gaze.RawEye{
		Origin:        right.Origin.Midpoint(left.Origin),
		Openness:      (right.Openness + left.Openness) / 2,
		PupilDiameter: 3.5,
	}
	combined.Direction = target.Sub(combined.Origin).Normalize()

	return gaze.RawFrame{
		Timestamp:   s.start.Add(elapsed),
		Right:       right,
		Left:        left,
		Combined:    combined,
		UserPresent: true,
	}
}
