// Package recorder drives one recording session: every tick it ingests a
// tracker frame, snapshots the head, updates the logger's fields and flushes
// one row.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/gazelog/internal/log"
	"github.com/teslashibe/gazelog/pkg/gaze"
	"github.com/teslashibe/gazelog/pkg/schema"
	"github.com/teslashibe/gazelog/pkg/sessionlog"
)

// HeadSource provides the per-tick head transform in scene space.
type HeadSource interface {
	HeadTransform() (gaze.HeadTransform, error)
}

// HeadSourceFunc adapts a function to HeadSource.
type HeadSourceFunc func() (gaze.HeadTransform, error)

// HeadTransform calls f().
func (f HeadSourceFunc) HeadTransform() (gaze.HeadTransform, error) {
	return f()
}

// FixedHead is a HeadSource that never moves.
type FixedHead gaze.HeadTransform

// HeadTransform returns h.
func (h FixedHead) HeadTransform() (gaze.HeadTransform, error) {
	return gaze.HeadTransform(h), nil
}

// DefaultHead is seated at the origin looking down +Z.
var DefaultHead = FixedHead{
	Forward: gaze.Vec3{Z: 1},
	Up:      gaze.Vec3{Y: 1},
}

// Config configures a Recorder.
type Config struct {
	// TickInterval is the period of Run's loop.
	TickInterval time.Duration

	// RayCaster finds what the gaze hits. Optional.
	RayCaster gaze.RayCaster
}

// DefaultConfig returns a 90 Hz recorder with no scene attached.
func DefaultConfig() Config {
	return Config{TickInterval: time.Second / 90}
}

// Tick is everything the recorder observed in one step.
type Tick struct {
	Seq       uint64             `json:"seq"`
	Time      time.Time          `json:"time"`
	Recording bool               `json:"recording"`
	Gaze      gaze.Snapshot      `json:"gaze"`
	Head      gaze.HeadTransform `json:"head"`

	// WorldFocus is the fused focus point in scene space.
	WorldFocus gaze.Vec3 `json:"world_focus"`

	Hit    gaze.Hit `json:"hit"`
	HasHit bool     `json:"has_hit"`
	Cue    int      `json:"cue"`

	// HardwareError is set when this tick's frame could not be read.
	HardwareError bool `json:"hardware_error"`
}

// Recorder ties a gaze processor and head source to a session logger.
type Recorder struct {
	config    Config
	processor *gaze.Processor
	head      HeadSource
	session   *sessionlog.Logger
	logger    *slog.Logger

	mu        sync.RWMutex
	schema    schema.Schema
	cue       int
	last      Tick
	listeners []func(Tick)

	stop     chan struct{}
	stopOnce sync.Once

	// Diagnostics
	seq           uint64
	headErrors    atomic.Uint64
	writeErrors   atomic.Uint64
	lastErrorTime time.Time
}

// New creates a recorder. A nil head source uses DefaultHead.
func New(config Config, processor *gaze.Processor, head HeadSource, session *sessionlog.Logger) *Recorder {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultConfig().TickInterval
	}
	if head == nil {
		head = DefaultHead
	}
	return &Recorder{
		config:    config,
		processor: processor,
		head:      head,
		session:   session,
		logger:    log.For("recorder"),
		cue:       -1,
		stop:      make(chan struct{}),
	}
}

// Register adds s's columns to the session logger and records with them.
func (r *Recorder) Register(s schema.Schema) error {
	if err := s.Register(r.session); err != nil {
		return err
	}
	r.mu.Lock()
	r.schema = s
	r.mu.Unlock()
	return nil
}

// Start begins a new session file.
func (r *Recorder) Start() (int, error) {
	r.mu.Lock()
	r.cue = -1
	r.mu.Unlock()
	return r.session.Begin()
}

// SetCue records the cue index currently playing; -1 means none.
func (r *Recorder) SetCue(index int) {
	r.mu.Lock()
	r.cue = index
	r.mu.Unlock()
}

// Mark writes an experiment-defined field on the next flushed row.
func (r *Recorder) Mark(name string, value any) error {
	return r.session.UpdateField(name, value)
}

// OnTick registers a listener called after every step.
func (r *Recorder) OnTick(fn func(Tick)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Last returns the most recent tick.
func (r *Recorder) Last() Tick {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Session returns the underlying logger.
func (r *Recorder) Session() *sessionlog.Logger {
	return r.session
}

// Step runs one ingest, update and flush cycle. Hardware faults are absorbed:
// the affected fields are left stale and show as NA. The returned error is
// only for failures writing the session file.
func (r *Recorder) Step() error {
	ingestErr := r.processor.Ingest()

	head, headErr := r.head.HeadTransform()
	if headErr != nil {
		r.headErrors.Add(1)
		r.warn("head transform unavailable", headErr)
	}

	snap := r.processor.Snapshot()
	worldFocus := head.ToWorld(snap.FocusPoint)
	worldRay := head.WorldRay(snap.CombinedRay)

	var hit gaze.Hit
	hasHit := false
	if headErr == nil && r.config.RayCaster != nil && worldRay.Direction != (gaze.Vec3{}) {
		hit, hasHit = r.config.RayCaster.RayCast(worldRay)
	}

	r.mu.RLock()
	cols := r.schema
	cue := r.cue
	r.mu.RUnlock()

	recording := r.session.Active()
	gazeOK := ingestErr == nil && r.processor.HasFrame()

	var errs []error
	if recording {
		u := updater{session: r.session, schema: cols}
		if headErr == nil {
			u.vec(schema.HeadX, schema.HeadY, schema.HeadZ, head.Position)
			u.vec(schema.ForwardX, schema.ForwardY, schema.ForwardZ, head.Forward)
			u.vec(schema.UpX, schema.UpY, schema.UpZ, head.Up)
		}
		// World-space focus needs both a gaze frame and the head pose.
		if gazeOK && headErr == nil {
			u.vec(schema.FocusX, schema.FocusY, schema.FocusZ, worldFocus)
			if hasHit {
				u.vec(schema.HitX, schema.HitY, schema.HitZ, hit.Point)
				u.set(schema.HitTarget, hit.Collider)
			}
		}
		if gazeOK {
			u.set(schema.Wink, snap.Wink)
			u.set(schema.Certainty, snap.Certainty)
			u.set(schema.OpenRight, snap.RightOpenness)
			u.set(schema.OpenLeft, snap.LeftOpenness)
			u.set(schema.PupilRight, snap.RightPupil)
			u.set(schema.PupilLeft, snap.LeftPupil)
			u.set(schema.Present, snap.UserPresent)
		}
		u.set(schema.Cue, cue)
		errs = append(errs, u.errs...)

		if err := r.session.Tick(); err != nil {
			errs = append(errs, err)
		}
	}

	r.mu.Lock()
	r.seq++
	tick := Tick{
		Seq:           r.seq,
		Time:          time.Now(),
		Recording:     recording,
		Gaze:          snap,
		Head:          head,
		WorldFocus:    worldFocus,
		Hit:           hit,
		HasHit:        hasHit,
		Cue:           cue,
		HardwareError: ingestErr != nil,
	}
	r.last = tick
	listeners := make([]func(Tick), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(tick)
	}

	return errors.Join(errs...)
}

// Run steps at the configured interval until ctx is done or Stop is called.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.TickInterval)
	defer ticker.Stop()

	r.logger.Info("recorder running", "interval", r.config.TickInterval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case <-ticker.C:
			if err := r.Step(); err != nil {
				r.writeErrors.Add(1)
				r.warn("session write failed", err)
			}
		}
	}
}

// Stop halts Run and ends the session. A non-empty reason marks the log
// incomplete. Safe to call more than once.
func (r *Recorder) Stop(reason string) error {
	r.stopOnce.Do(func() { close(r.stop) })
	if err := r.session.End(reason); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// Stats returns diagnostic counters.
func (r *Recorder) Stats() (ticks, headErrors, writeErrors uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq, r.headErrors.Load(), r.writeErrors.Load()
}

// warn logs at most once per second.
func (r *Recorder) warn(msg string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lastErrorTime.IsZero() && time.Since(r.lastErrorTime) < time.Second {
		return
	}
	r.lastErrorTime = time.Now()
	r.logger.Warn(msg, "error", err, "head_errors", r.headErrors.Load(), "write_errors", r.writeErrors.Load())
}

// updater writes only the columns present in the active schema.
type updater struct {
	session *sessionlog.Logger
	schema  schema.Schema
	errs    []error
}

func (u *updater) set(name string, v any) {
	if _, ok := u.schema.Column(name); !ok {
		return
	}
	if err := u.session.UpdateField(name, v); err != nil {
		// Session ended between the check and the update
		if errors.Is(err, sessionlog.ErrInactiveSession) {
			return
		}
		u.errs = append(u.errs, err)
	}
}

func (u *updater) vec(x, y, z string, v gaze.Vec3) {
	u.set(x, v.X)
	u.set(y, v.Y)
	u.set(z, v.Z)
}
