// Package sessionlog writes wide-table, tab-separated session logs.
//
// Each registered field is one column. Values are flushed once per tick, and
// a field that was not updated since the previous flush is written as "NA"
// unless it is marked always-fresh. Column order is the registration order
// and is frozen while a session is active.
package sessionlog

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/gazelog/internal/log"
)

// Config configures a Logger.
type Config struct {
	// Dir is where session files are created.
	Dir string

	// TickInterval is added to every field's age after each flush.
	TickInterval time.Duration

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// DefaultConfig returns a 90 Hz logger writing to ./sessions.
func DefaultConfig() Config {
	return Config{
		Dir:          "sessions",
		TickInterval: time.Second / 90,
		Now:          time.Now,
	}
}

// Result describes a finished session.
type Result struct {
	Path      string        `json:"path"`
	Serial    int           `json:"serial"`
	SessionID string        `json:"session_id"`
	Header    []string      `json:"header"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Rows      int           `json:"rows"`
	Reason    string        `json:"reason,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Incomplete reports whether the session ended with a reason line.
func (r Result) Incomplete() bool {
	return r.Reason != ""
}

// Logger owns the field set and the current session file.
type Logger struct {
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	fields map[string]*Field
	order  []*Field

	active    bool
	dirty     bool
	serial    int
	sessionID string
	path      string
	startedAt time.Time
	rows      int
	file      *os.File
	w         *bufio.Writer

	onEnd []func(Result)
}

// New creates a logger with no fields registered.
func New(config Config) *Logger {
	d := DefaultConfig()
	if config.Dir == "" {
		config.Dir = d.Dir
	}
	if config.TickInterval <= 0 {
		config.TickInterval = d.TickInterval
	}
	if config.Now == nil {
		config.Now = d.Now
	}
	return &Logger{
		config: config,
		logger: log.For("sessionlog"),
		fields: make(map[string]*Field),
	}
}

// Config returns the effective configuration.
func (l *Logger) Config() Config {
	return l.config
}

// timeColumn is the first header cell; fields cannot use it.
const timeColumn = "time"

// RegisterField appends a column. It fails while a session is active.
func (l *Logger) RegisterField(name string, opts ...FieldOption) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active {
		return fmt.Errorf("%w: cannot register %s", ErrSessionActive, name)
	}
	if name == "" || name == timeColumn || strings.ContainsAny(name, "\t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidFieldName, name)
	}
	if _, exists := l.fields[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateField, name)
	}

	f := &Field{Name: name, initial: Undefined}
	for _, opt := range opts {
		opt(f)
	}
	f.Value = f.initial

	l.fields[name] = f
	l.order = append(l.order, f)
	return nil
}

// UnregisterField removes a column. It fails while a session is active.
func (l *Logger) UnregisterField(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active {
		return fmt.Errorf("%w: cannot unregister %s", ErrSessionActive, name)
	}
	f, ok := l.fields[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}

	delete(l.fields, name)
	for i, o := range l.order {
		if o == f {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return nil
}

// UpdateField sets a field's value for the current tick.
func (l *Logger) UpdateField(name string, value any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.active {
		return fmt.Errorf("%w: update %s", ErrInactiveSession, name)
	}
	f, ok := l.fields[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}

	f.Value = FormatValue(value)
	f.Age = 0
	l.dirty = true
	return nil
}

// Begin opens a new session file and writes the header.
func (l *Logger) Begin() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active {
		return 0, ErrAlreadyActive
	}

	if err := os.MkdirAll(l.config.Dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create session dir: %w", err)
	}

	serial, err := NextSerial(l.config.Dir)
	if err != nil {
		return 0, err
	}

	now := l.config.Now()
	path := filepath.Join(l.config.Dir, FileName(serial, now))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create session file: %w", err)
	}

	w := bufio.NewWriter(file)
	if _, err := w.WriteString(strings.Join(l.headerLocked(), "\t") + "\n"); err != nil {
		file.Close()
		return 0, fmt.Errorf("failed to write header: %w", err)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	// Everything starts stale; only always-fresh fields show their initial value.
	for _, f := range l.order {
		f.Value = f.initial
		f.Age = l.config.TickInterval
	}

	l.active = true
	l.dirty = false
	l.serial = serial
	l.sessionID = uuid.New().String()
	l.path = path
	l.startedAt = now
	l.rows = 0
	l.file = file
	l.w = w

	l.logger.Info("session started",
		"serial", serial,
		"session_id", l.sessionID,
		"path", path,
		"fields", len(l.order))

	return serial, nil
}

// Tick flushes one row if any field was updated, then ages every field by
// one tick. It is a no-op with no active session.
func (l *Logger) Tick() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.active {
		return nil
	}

	err := l.flushLocked()
	for _, f := range l.order {
		f.Age += l.config.TickInterval
	}
	return err
}

func (l *Logger) flushLocked() error {
	if !l.dirty {
		return nil
	}
	l.dirty = false

	elapsed := l.config.Now().Sub(l.startedAt).Seconds()

	var b strings.Builder
	fmt.Fprintf(&b, "%.3f", elapsed)
	for _, f := range l.order {
		b.WriteByte('\t')
		b.WriteString(f.cell())
	}
	b.WriteByte('\n')

	if _, err := l.w.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	l.rows++
	return nil
}

// End finishes the session. A non-empty reason is appended as a trailing
// free-text line marking the file incomplete. Calling End with no active
// session does nothing.
func (l *Logger) End(reason string) error {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return nil
	}
	l.active = false

	var errs []error
	if err := l.flushLocked(); err != nil {
		errs = append(errs, err)
	}

	reason = strings.TrimSpace(sanitize(reason))
	if reason != "" {
		if _, err := l.w.WriteString(reason + "\n"); err != nil {
			errs = append(errs, fmt.Errorf("failed to write reason: %w", err))
		}
	}
	if err := l.w.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush session file: %w", err))
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close session file: %w", err))
	}
	l.file = nil
	l.w = nil

	ended := l.config.Now()
	result := Result{
		Path:      l.path,
		Serial:    l.serial,
		SessionID: l.sessionID,
		Header:    l.headerLocked(),
		StartedAt: l.startedAt,
		EndedAt:   ended,
		Rows:      l.rows,
		Reason:    reason,
		Duration:  ended.Sub(l.startedAt),
	}
	hooks := make([]func(Result), len(l.onEnd))
	copy(hooks, l.onEnd)
	l.mu.Unlock()

	if reason != "" {
		l.logger.Warn("session ended early", "path", result.Path, "rows", result.Rows, "reason", reason)
	} else {
		l.logger.Info("session ended", "path", result.Path, "rows", result.Rows, "duration", result.Duration)
	}

	for _, hook := range hooks {
		hook(result)
	}

	return errors.Join(errs...)
}

// OnEnd registers a hook called after each session's file is closed.
func (l *Logger) OnEnd(hook func(Result)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onEnd = append(l.onEnd, hook)
}

// Active reports whether a session is running.
func (l *Logger) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// FilePath returns the current or most recent session file.
func (l *Logger) FilePath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Serial returns the current or most recent session serial.
func (l *Logger) Serial() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.serial
}

// SessionID returns the current or most recent session UUID.
func (l *Logger) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

// Header returns the column names, starting with "time".
func (l *Logger) Header() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.headerLocked()
}

func (l *Logger) headerLocked() []string {
	header := make([]string, 0, len(l.order)+1)
	header = append(header, timeColumn)
	for _, f := range l.order {
		header = append(header, f.Name)
	}
	return header
}

// Fields returns copies of the registered fields in column order.
func (l *Logger) Fields() []Field {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Field, len(l.order))
	for i, f := range l.order {
		out[i] = *f
	}
	return out
}
