package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/gazelog/pkg/schema"
	"github.com/teslashibe/gazelog/pkg/sessionlog"
)

func openTest(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "db", "catalog.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// recordSession writes a short V1 session into dir and returns its result.
func recordSession(t *testing.T, dir string, start time.Time, ticks int, reason string) sessionlog.Result {
	t.Helper()
	now := start
	logger := sessionlog.New(sessionlog.Config{
		Dir:          dir,
		TickInterval: 10 * time.Millisecond,
		Now:          func() time.Time { return now },
	})
	if err := schema.V1.Register(logger); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	var result sessionlog.Result
	logger.OnEnd(func(r sessionlog.Result) { result = r })

	if _, err := logger.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	for i := 0; i < ticks; i++ {
		logger.UpdateField(schema.HeadX, float64(i))
		logger.Tick()
		now = now.Add(10 * time.Millisecond)
	}
	if err := logger.End(reason); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	return result
}

func TestRecordAndGet(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.Local)
	res := recordSession(t, t.TempDir(), start, 5, "")

	if err := c.RecordResult(ctx, res); err != nil {
		t.Fatalf("RecordResult() error = %v", err)
	}

	got, err := c.Get(ctx, res.Path)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Serial != 1 || got.Rows != 5 || got.SessionID != res.SessionID {
		t.Errorf("Unexpected entry %+v", got)
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, start)
	}
	if len(got.Header) != len(schema.V1.Header()) || got.Header[0] != schema.TimeColumn {
		t.Errorf("Unexpected header %v", got.Header)
	}
	if got.Duration != 50*time.Millisecond {
		t.Errorf("Duration = %v, want 50ms", got.Duration)
	}
	if got.Incomplete() || got.Uploaded() {
		t.Error("Fresh complete session should not be incomplete or uploaded")
	}
}

func TestGetNotFound(t *testing.T) {
	c := openTest(t)
	if _, err := c.Get(context.Background(), "/nope.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := c.MarkUploaded(context.Background(), "/nope.txt", "x", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound from MarkUploaded, got %v", err)
	}
	if err := c.Record(context.Background(), Entry{}); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestUpsertKeepsUploadState(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	e := Entry{Path: "/logs/001-a.txt", Serial: 1, Rows: 3, StartedAt: time.Unix(100, 0)}

	if err := c.Record(ctx, e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	at := time.Unix(200, 0)
	if err := c.MarkUploaded(ctx, e.Path, "drive://abc", at); err != nil {
		t.Fatalf("MarkUploaded() error = %v", err)
	}

	e.Rows = 9
	e.Reason = "tracker lost"
	if err := c.Record(ctx, e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, _ := c.Get(ctx, e.Path)
	if got.Rows != 9 || got.Reason != "tracker lost" {
		t.Errorf("Expected updated row, got %+v", got)
	}
	if got.UploadedTo != "drive://abc" || !got.UploadedAt.Equal(at) {
		t.Errorf("Upload state lost: %+v", got)
	}
	if n, _ := c.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestListAndPending(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		c.Record(ctx, Entry{Path: filepath.Join("/logs", string(rune('a'+i))), Serial: i, StartedAt: time.Unix(int64(i*100), 0)})
	}
	c.MarkUploaded(ctx, "/logs/b", "https://x", time.Now())

	all, err := c.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[0].Serial != 3 || all[2].Serial != 1 {
		t.Errorf("Expected newest first, got %+v", all)
	}

	limited, _ := c.List(ctx, 2)
	if len(limited) != 2 {
		t.Errorf("List(2) returned %d entries", len(limited))
	}

	pending, err := c.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 2 || pending[0].Serial != 2 || pending[1].Serial != 3 {
		t.Errorf("Expected serials 2,3 pending oldest first, got %+v", pending)
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.Local)
	recordSession(t, dir, start, 4, "")
	aborted := recordSession(t, dir, start.Add(time.Minute), 2, "headset removed")

	c := openTest(t)
	ctx := context.Background()
	n, err := c.Scan(ctx, dir)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("Scan() = %d, want 2", n)
	}

	got, err := c.Get(ctx, aborted.Path)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Serial != 2 || got.Rows != 2 || got.Reason != "headset removed" {
		t.Errorf("Unexpected scanned entry %+v", got)
	}
	if !got.StartedAt.Equal(start.Add(time.Minute)) {
		t.Errorf("StartedAt = %v, want time from filename", got.StartedAt)
	}
	if got.Duration != 10*time.Millisecond {
		t.Errorf("Duration = %v, want last row time 10ms", got.Duration)
	}
}
