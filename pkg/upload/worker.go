// Package upload delivers finished session logs to remote storage on a
// background worker so recording never waits on the network.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/teslashibe/gazelog/internal/httpc"
	"github.com/teslashibe/gazelog/internal/log"
)

// Destination stores one file and returns where it ended up.
type Destination interface {
	Name() string
	Upload(ctx context.Context, path string) (location string, err error)
}

// Result is the outcome of one submitted upload.
type Result struct {
	Path        string        `json:"path"`
	Destination string        `json:"destination"`
	Location    string        `json:"location,omitempty"`
	Attempts    int           `json:"attempts"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
}

// OK reports whether the upload succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Config configures a Worker.
type Config struct {
	// QueueSize bounds pending jobs; Submit fails fast beyond it.
	QueueSize int

	// Attempts is the maximum number of tries per file.
	Attempts int

	// RetryDelay is the wait before the second attempt; it doubles after that.
	RetryDelay time.Duration

	// Timeout bounds a single attempt.
	Timeout time.Duration
}

// DefaultConfig returns defaults suited to a lab network.
func DefaultConfig() Config {
	return Config{
		QueueSize:  16,
		Attempts:   3,
		RetryDelay: 2 * time.Second,
		Timeout:    2 * time.Minute,
	}
}

// Stats contains worker counters.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Pending   int    `json:"pending"`
}

type job struct {
	path   string
	dest   Destination
	result chan Result
}

// Worker uploads files one at a time from a bounded queue.
type Worker struct {
	config Config
	logger *slog.Logger
	queue  chan job

	mu     sync.RWMutex
	onDone []func(Result)

	submitted atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
}

// NewWorker creates a worker. Call Run to start processing.
func NewWorker(config Config) *Worker {
	d := DefaultConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = d.QueueSize
	}
	if config.Attempts <= 0 {
		config.Attempts = d.Attempts
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = d.RetryDelay
	}
	if config.Timeout <= 0 {
		config.Timeout = d.Timeout
	}
	return &Worker{
		config: config,
		logger: log.For("upload"),
		queue:  make(chan job, config.QueueSize),
	}
}

// OnDone registers a callback run on the worker goroutine after each job.
func (w *Worker) OnDone(fn func(Result)) {
	w.mu.Lock()
	w.onDone = append(w.onDone, fn)
	w.mu.Unlock()
}

// Submit queues path for upload to dest. The returned channel receives
// exactly one Result.
func (w *Worker) Submit(path string, dest Destination) <-chan Result {
	ch := make(chan Result, 1)
	w.submitted.Add(1)

	select {
	case w.queue <- job{path: path, dest: dest, result: ch}:
		w.logger.Debug("upload queued", "path", path, "destination", dest.Name())
	default:
		res := Result{Path: path, Destination: dest.Name(), Err: ErrQueueFull}
		w.failed.Add(1)
		w.notify(res)
		ch <- res
	}
	return ch
}

// Run processes jobs until ctx is done. Jobs left in the queue are
// completed with ErrWorkerStopped.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case j := <-w.queue:
			res := w.process(ctx, j)
			if res.OK() {
				w.succeeded.Add(1)
				w.logger.Info("upload complete",
					"path", res.Path, "destination", res.Destination,
					"location", res.Location, "attempts", res.Attempts,
					"duration", res.Duration)
			} else {
				w.failed.Add(1)
				w.logger.Error("upload failed",
					"path", res.Path, "destination", res.Destination,
					"attempts", res.Attempts, "error", res.Err)
			}
			w.notify(res)
			j.result <- res
		}
	}
}

// Stats returns a snapshot of the counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Submitted: w.submitted.Load(),
		Succeeded: w.succeeded.Load(),
		Failed:    w.failed.Load(),
		Pending:   len(w.queue),
	}
}

func (w *Worker) process(ctx context.Context, j job) Result {
	start := time.Now()
	res := Result{Path: j.path, Destination: j.dest.Name()}

	if _, err := os.Stat(j.path); err != nil {
		res.Err = fmt.Errorf("session file unavailable: %w", err)
		return res
	}

	delay := w.config.RetryDelay
	for attempt := 1; attempt <= w.config.Attempts; attempt++ {
		res.Attempts = attempt

		attemptCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
		location, err := j.dest.Upload(attemptCtx, j.path)
		cancel()

		if err == nil {
			res.Location = location
			res.Err = nil
			break
		}
		res.Err = err

		if !retryable(err) || attempt == w.config.Attempts {
			break
		}
		w.logger.Warn("upload attempt failed, retrying",
			"path", j.path, "attempt", attempt, "retry_in", delay, "error", err)

		select {
		case <-ctx.Done():
			res.Err = errors.Join(err, ctx.Err())
			res.Duration = time.Since(start)
			return res
		case <-time.After(delay):
		}
		delay *= 2
	}

	res.Duration = time.Since(start)
	return res
}

func (w *Worker) drain() {
	for {
		select {
		case j := <-w.queue:
			res := Result{Path: j.path, Destination: j.dest.Name(), Err: ErrWorkerStopped}
			w.failed.Add(1)
			w.notify(res)
			j.result <- res
		default:
			return
		}
	}
}

func (w *Worker) notify(res Result) {
	w.mu.RLock()
	hooks := make([]func(Result), len(w.onDone))
	copy(hooks, w.onDone)
	w.mu.RUnlock()
	for _, fn := range hooks {
		fn(res)
	}
}

// retryable reports whether another attempt could succeed. Client errors
// other than timeouts and rate limits are permanent.
func retryable(err error) bool {
	var se *httpc.StatusError
	if errors.As(err, &se) {
		return retryableStatus(se.StatusCode)
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return retryableStatus(ge.Code)
	}
	return !errors.Is(err, ErrNotAuthenticated)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}
