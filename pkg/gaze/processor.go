package gaze

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/gazelog/internal/log"
)

// Processor derives gaze features from a FrameSource, one Ingest per tick.
// All methods are safe for concurrent use.
type Processor struct {
	config Config
	source FrameSource
	logger *slog.Logger

	mu       sync.RWMutex
	latest   RawFrame
	hasFrame bool
	window   *window

	// Diagnostics
	ingested      uint64
	readErrors    uint64
	lastErrorTime time.Time
}

// NewProcessor creates a processor reading from source.
func NewProcessor(config Config, source FrameSource) *Processor {
	config = config.withDefaults()
	return &Processor{
		config: config,
		source: source,
		logger: log.For("gaze"),
		window: newWindow(config.Retention),
	}
}

// Config returns the effective configuration.
func (p *Processor) Config() Config {
	return p.config
}

// Ingest polls the source once. On failure the previous frame is kept and a
// *HardwareReadError is returned; the caller should carry on with the tick.
// Samples older than the retention are evicted either way.
func (p *Processor) Ingest() error {
	frame, err := p.source.Ingest()
	now := p.config.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.readErrors++
		p.window.evict(now)
		// Don't spam: at most one warning per second
		if p.lastErrorTime.IsZero() || now.Sub(p.lastErrorTime) > time.Second {
			p.logger.Warn("tracker read failed, keeping previous frame",
				"error", err, "total_errors", p.readErrors)
			p.lastErrorTime = now
		}
		return &HardwareReadError{Err: err}
	}

	if frame.Timestamp.IsZero() {
		frame.Timestamp = now
	}
	p.latest = frame
	p.hasFrame = true
	p.ingested++

	p.window.push(EyeSample{
		Timestamp:     now,
		RightOpenness: frame.Right.Openness,
		LeftOpenness:  frame.Left.Openness,
	})
	p.window.evict(now)
	return nil
}

// HasFrame reports whether at least one frame has been ingested.
func (p *Processor) HasFrame() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hasFrame
}

// Latest returns the most recent raw frame.
func (p *Processor) Latest() RawFrame {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// WindowSize returns the number of samples currently retained.
func (p *Processor) WindowSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.window.len()
}

// GazeRay returns the ray for source in head-local scene coordinates.
func (p *Processor) GazeRay(source Source) Ray {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gazeRay(source)
}

func (p *Processor) gazeRay(source Source) Ray {
	eye := p.eye(source)
	return Ray{
		Origin:    p.config.Handedness(eye.Origin.Scale(p.config.OriginScale)),
		Direction: p.config.Handedness(eye.Direction).Normalize(),
	}
}

func (p *Processor) eye(source Source) RawEye {
	switch source {
	case SourceRight:
		return p.latest.Right
	case SourceLeft:
		return p.latest.Left
	default:
		return p.latest.Combined
	}
}

// FocusPoint fuses the right and left rays into a single 3D estimate: the
// midpoint of their closest points. When the rays are parallel the configured
// fallback is returned with degenerate=true.
func (p *Processor) FocusPoint() (point Vec3, degenerate bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.focusPoint()
}

func (p *Processor) focusPoint() (Vec3, bool) {
	right := p.gazeRay(SourceRight)
	left := p.gazeRay(SourceLeft)

	p1, p2, parallel := ClosestPointsOnTwoRays(right, left)
	if parallel {
		return p.config.Fallback(right, left), true
	}
	return p1.Midpoint(p2), false
}

// Wink classifies the latest frame.
func (p *Processor) Wink() WinkState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ClassifyWink(p.latest.Right.Openness, p.latest.Left.Openness, p.config.WinkThreshold)
}

// WinkWithCertainty classifies the latest frame and scores the result
// against the window. Certainty is 0 until the window holds more than two
// samples.
func (p *Processor) WinkWithCertainty() (WinkState, float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.winkWithCertainty()
}

func (p *Processor) winkWithCertainty() (WinkState, float64) {
	state := ClassifyWink(p.latest.Right.Openness, p.latest.Left.Openness, p.config.WinkThreshold)
	if p.window.len() < MinCertaintySamples {
		return state, 0
	}

	similarity, center := p.window.stats(state, p.config.WinkThreshold, p.config.Now())
	return state, clamp01(p.config.Certainty(state, similarity, center))
}

// EyeOpenness returns openness for source; combined is the mean of both eyes.
func (p *Processor) EyeOpenness(source Source) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return pick(source, p.latest.Right.Openness, p.latest.Left.Openness)
}

// PupilDiameter returns pupil diameter for source; combined is the mean of both eyes.
func (p *Processor) PupilDiameter(source Source) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return pick(source, p.latest.Right.PupilDiameter, p.latest.Left.PupilDiameter)
}

// UserPresent passes through the tracker's presence flag.
func (p *Processor) UserPresent() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest.UserPresent
}

// Snapshot returns every derived feature under a single lock.
func (p *Processor) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	focus, degenerate := p.focusPoint()
	wink, certainty := p.winkWithCertainty()

	return Snapshot{
		Timestamp:     p.latest.Timestamp,
		FocusPoint:    focus,
		Degenerate:    degenerate,
		CombinedRay:   p.gazeRay(SourceCombined),
		Wink:          wink,
		Certainty:     certainty,
		RightOpenness: p.latest.Right.Openness,
		LeftOpenness:  p.latest.Left.Openness,
		RightPupil:    p.latest.Right.PupilDiameter,
		LeftPupil:     p.latest.Left.PupilDiameter,
		UserPresent:   p.latest.UserPresent,
		WindowSize:    p.window.len(),
	}
}

// Stats returns ingest and error counters.
func (p *Processor) Stats() (ingested, readErrors uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ingested, p.readErrors
}

func pick(source Source, right, left float64) float64 {
	switch source {
	case SourceRight:
		return right
	case SourceLeft:
		return left
	default:
		return (right + left) / 2
	}
}
