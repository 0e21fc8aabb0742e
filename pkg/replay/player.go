package replay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/gazelog/internal/log"
)

// Player replays a Log against the wall clock.
type Player struct {
	mu       sync.RWMutex
	state    PlaybackState
	startAt  time.Time
	pausedAt time.Duration
	stopCh   chan struct{}
	current  State
	logger   *slog.Logger
}

// NewPlayer creates a stopped player.
func NewPlayer() *Player {
	return &Player{
		state:   StateStopped,
		stopCh:  make(chan struct{}),
		current: State{Cue: NoCue},
		logger:  log.For("replay"),
	}
}

// Play replays l with default options.
func (p *Player) Play(ctx context.Context, l *Log, callback Callback) (Report, error) {
	return p.PlayWithOptions(ctx, l, callback, DefaultOptions())
}

// PlayWithOptions replays l. On every tick, all rows whose time has been
// reached are applied in order, so pacing survives late or skipped ticks.
// Blocks until the log is exhausted, the callback returns false, Stop is
// called or ctx is done; only the last returns an error.
func (p *Player) PlayWithOptions(ctx context.Context, l *Log, callback Callback, opts Options) (Report, error) {
	d := DefaultOptions()
	if opts.TickRate <= 0 {
		opts.TickRate = d.TickRate
	}
	if opts.Speed <= 0 {
		opts.Speed = d.Speed
	}

	p.mu.Lock()
	if p.state != StateStopped {
		p.mu.Unlock()
		return Report{}, ErrAlreadyPlaying
	}
	p.state = StatePlaying
	p.startAt = time.Now()
	p.pausedAt = 0
	p.stopCh = make(chan struct{})
	p.current = State{Cue: NoCue}
	stopCh := p.stopCh
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.state = StateStopped
		p.mu.Unlock()
	}()

	cursor := NewCursor(l, opts)
	apply := func(state State, frame Frame) bool {
		p.mu.Lock()
		p.current = state
		p.mu.Unlock()
		if callback == nil {
			return true
		}
		return callback(state, frame)
	}

	p.logger.Info("replay started",
		"path", l.Path,
		"schema", l.Binding.Schema.Name,
		"rows", len(l.Rows),
		"speed", opts.Speed)

	tickDuration := time.Duration(float64(time.Second) / opts.TickRate)
	ticker := time.NewTicker(tickDuration)
	defer ticker.Stop()

	for {
		// Rows at t=0 are due immediately
		if !cursor.AdvanceTo(p.scaledElapsed(opts.Speed), apply) || cursor.Done() {
			return p.finish(cursor), nil
		}

		select {
		case <-ctx.Done():
			return p.finish(cursor), ctx.Err()

		case <-stopCh:
			return p.finish(cursor), nil

		case <-ticker.C:
		}
	}
}

func (p *Player) finish(c *Cursor) Report {
	r := c.Report()
	p.logger.Info("replay finished",
		"applied", r.RowsApplied,
		"skipped", r.RowsSkipped,
		"cues", r.Cues,
		"incomplete", r.Incomplete)
	return r
}

// scaledElapsed is the replay clock: wall time since start, excluding
// pauses, times speed.
func (p *Player) scaledElapsed(speed float64) time.Duration {
	return time.Duration(float64(p.Elapsed()) * speed)
}

// Stop halts playback. The player reports StateStopping until the play
// loop has returned.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StatePlaying || p.state == StatePaused {
		p.pausedAt = p.elapsedLocked()
		close(p.stopCh)
		p.state = StateStopping
	}
}

// Pause freezes the replay clock.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StatePlaying {
		p.pausedAt = time.Since(p.startAt)
		p.state = StatePaused
	}
}

// Resume continues a paused replay from where it froze.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StatePaused {
		p.startAt = time.Now().Add(-p.pausedAt)
		p.state = StatePlaying
	}
}

// PlaybackState returns whether the player is stopped, playing or paused.
func (p *Player) PlaybackState() PlaybackState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// State returns the most recently applied state.
func (p *Player) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Elapsed returns unscaled replay time, excluding pauses.
func (p *Player) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.elapsedLocked()
}

func (p *Player) elapsedLocked() time.Duration {
	switch p.state {
	case StatePaused, StateStopping:
		return p.pausedAt
	case StatePlaying:
		return time.Since(p.startAt)
	default:
		return 0
	}
}
