package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/gazelog/pkg/gaze"
	"github.com/teslashibe/gazelog/pkg/schema"
)

var v1Header = strings.Join(schema.V1.Header(), "\t")

// v1Row builds a V1 row: time, head xyz, fwd xyz, focus xyz, wink, cue.
func v1Row(cells ...string) string {
	return strings.Join(cells, "\t")
}

func parseLog(t *testing.T, lines ...string) *Log {
	t.Helper()
	l, err := Parse(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return l
}

// recordingCues is a mock cue bank.
type recordingCues struct {
	mu     sync.Mutex
	played []int
}

type cueHandle struct {
	bank  *recordingCues
	index int
}

func (h cueHandle) PlayOnce() {
	h.bank.mu.Lock()
	defer h.bank.mu.Unlock()
	h.bank.played = append(h.bank.played, h.index)
}

func (r *recordingCues) Cue(index int) CueHandle {
	return cueHandle{bank: r, index: index}
}

func TestParse_HeaderAndReason(t *testing.T) {
	l := parseLog(t,
		v1Header,
		v1Row("0.000", "0", "1.6", "0", "0", "0", "1", "0", "1.6", "2", "None", "-1"),
		v1Row("0.011", "NA", "NA", "NA", "NA", "NA", "NA", "0.1", "1.6", "2", "Left", "-1"),
		"tracker disconnected",
	)

	if !l.Binding.Exact || l.Binding.Schema.Version != 1 {
		t.Errorf("Expected exact v1 binding, got %+v", l.Binding.Schema.Name)
	}
	if len(l.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(l.Rows))
	}
	if l.Rows[1].Elapsed != 11*time.Millisecond {
		t.Errorf("Expected 11ms, got %v", l.Rows[1].Elapsed)
	}
	if l.Rows[1].Line != 3 {
		t.Errorf("Expected line 3, got %d", l.Rows[1].Line)
	}
	if !l.Incomplete() || l.Reason != "tracker disconnected" {
		t.Errorf("Expected reason line, got %q", l.Reason)
	}
	if l.Duration() != 11*time.Millisecond {
		t.Errorf("Expected duration 11ms, got %v", l.Duration())
	}
}

func TestParse_UnknownSchema(t *testing.T) {
	_, err := Parse(strings.NewReader("time\tfoo\tbar\n0.000\t1\t2\n"))
	if !errors.Is(err, schema.ErrUnknownSchema) {
		t.Errorf("Expected ErrUnknownSchema, got %v", err)
	}

	if _, err := Parse(strings.NewReader("")); !errors.Is(err, ErrEmptyLog) {
		t.Errorf("Expected ErrEmptyLog, got %v", err)
	}
}

func TestLoad_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "001-2024-01-01_00-00-00.txt")
	content := v1Header + "\n" + v1Row("0.000", "1", "2", "3", "0", "0", "1", "0", "0", "5", "None", "-1") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if l.Path != path || len(l.Rows) != 1 || l.Incomplete() {
		t.Errorf("Unexpected log: path=%s rows=%d reason=%q", l.Path, len(l.Rows), l.Reason)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestCursor_NALeavesStateUnchanged(t *testing.T) {
	l := parseLog(t,
		v1Header,
		v1Row("0.000", "1", "2", "3", "0", "0", "1", "4", "5", "6", "Left", "-1"),
		v1Row("0.010", "NA", "NA", "NA", "NA", "NA", "NA", "7", "NA", "NA", "NA", "NA"),
	)

	c := NewCursor(l, DefaultOptions())
	var frames []Frame
	c.AdvanceTo(time.Second, func(s State, f Frame) bool {
		frames = append(frames, f)
		return true
	})

	s := c.State()
	if s.HeadPosition != (gaze.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("Expected head unchanged by NA, got %v", s.HeadPosition)
	}
	if s.FocusPoint != (gaze.Vec3{X: 7, Y: 5, Z: 6}) {
		t.Errorf("Expected only focus_x updated, got %v", s.FocusPoint)
	}
	if s.Wink != gaze.WinkLeft {
		t.Errorf("Expected wink kept at Left, got %v", s.Wink)
	}
	if len(frames) != 2 || len(frames[1].Values) != 1 || frames[1].Values["focus_x"] != "7" {
		t.Errorf("Expected second frame to carry only focus_x, got %+v", frames)
	}
}

func TestCursor_AppliesInOrderAndNotEarly(t *testing.T) {
	l := parseLog(t,
		v1Header,
		v1Row("0.000", "0", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
		v1Row("0.100", "1", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
		v1Row("0.200", "2", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
	)

	c := NewCursor(l, DefaultOptions())
	var seen []int
	record := func(s State, f Frame) bool {
		seen = append(seen, f.Index)
		return true
	}

	c.AdvanceTo(50*time.Millisecond, record)
	if len(seen) != 1 {
		t.Fatalf("Expected only the t=0 row by 50ms, got %v", seen)
	}

	// A late tick catches up on everything due, in order
	c.AdvanceTo(250*time.Millisecond, record)
	if len(seen) != 3 || seen[1] != 1 || seen[2] != 2 {
		t.Errorf("Expected rows 0,1,2 in order, got %v", seen)
	}
	if !c.Done() {
		t.Error("Expected cursor done")
	}
	if c.State().HeadPosition.X != 2 {
		t.Errorf("Expected last row applied, got %v", c.State().HeadPosition)
	}
}

func TestCursor_RowFaultSkipsRemainder(t *testing.T) {
	var warnings []*RowParseError
	opts := DefaultOptions()
	opts.OnWarning = func(err *RowParseError) { warnings = append(warnings, err) }

	l := parseLog(t,
		v1Header,
		v1Row("0.000", "1", "1", "1", "0", "0", "1", "0", "0", "1", "None", "-1"),
		v1Row("0.010", "9", "oops", "9", "0", "0", "1", "0", "0", "1", "None", "-1"),
		v1Row("0.020", "2", "2"),
		v1Row("0.030", "3", "3", "3", "0", "0", "1", "0", "0", "1", "None", "-1"),
	)

	c := NewCursor(l, opts)
	calls := 0
	c.AdvanceTo(time.Second, func(s State, f Frame) bool {
		calls++
		return true
	})

	if calls != 2 {
		t.Errorf("Expected callback for 2 good rows, got %d", calls)
	}

	r := c.Report()
	if r.RowsApplied != 2 || r.RowsSkipped != 2 {
		t.Errorf("Expected 2 applied / 2 skipped, got %d / %d", r.RowsApplied, r.RowsSkipped)
	}
	if len(warnings) != 2 || len(r.Warnings) != 2 {
		t.Fatalf("Expected 2 warnings, got %d", len(warnings))
	}
	if warnings[0].Line != 3 || warnings[0].Column != "head_y" || !errors.Is(warnings[0], ErrInvalidValue) {
		t.Errorf("Unexpected first warning: %v", warnings[0])
	}
	if !errors.Is(warnings[1], ErrColumnCount) {
		t.Errorf("Expected column count warning, got %v", warnings[1])
	}
	if c.State().HeadPosition != (gaze.Vec3{X: 3, Y: 3, Z: 3}) {
		t.Errorf("Expected replay to continue past faults, got %v", c.State().HeadPosition)
	}
}

func TestCursor_CueFiresOnlyOnChange(t *testing.T) {
	cueValues := []string{"-1", "2", "2", "NA", "2", "3", "-1", "3"}
	lines := []string{v1Header}
	for i, cue := range cueValues {
		sec := time.Duration(i) * 10 * time.Millisecond
		lines = append(lines, v1Row(formatSec(sec), "0", "0", "0", "0", "0", "1", "0", "0", "1", "None", cue))
	}
	l := parseLog(t, lines...)

	bank := &recordingCues{}
	var onCue []int
	opts := DefaultOptions()
	opts.Cues = bank
	opts.OnCue = func(index int, _ time.Duration) { onCue = append(onCue, index) }

	c := NewCursor(l, opts)
	c.AdvanceTo(time.Second, nil)

	want := []int{2, 3, 3}
	if len(bank.played) != len(want) {
		t.Fatalf("Expected cues %v, got %v", want, bank.played)
	}
	for i := range want {
		if bank.played[i] != want[i] || onCue[i] != want[i] {
			t.Errorf("Cue %d: expected %d, got %d / %d", i, want[i], bank.played[i], onCue[i])
		}
	}
	if c.Report().Cues != 3 {
		t.Errorf("Expected report to count 3 cues, got %d", c.Report().Cues)
	}
}

func TestCursor_MarkerFromRayCaster(t *testing.T) {
	l := parseLog(t,
		v1Header,
		v1Row("0.000", "0", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
	)

	opts := DefaultOptions()
	opts.RayCaster = gaze.PlaneCaster{Point: gaze.Vec3{Z: 5}, Normal: gaze.Vec3{Z: -1}, Name: "screen"}

	c := NewCursor(l, opts)
	c.AdvanceTo(0, nil)

	s := c.State()
	if !s.HasMarker || s.Marker != (gaze.Vec3{Z: 5}) || s.MarkerTarget != "screen" {
		t.Errorf("Expected marker on screen at z=5, got %+v", s)
	}
}

func TestCursor_MarkerWithoutRayCaster(t *testing.T) {
	l := parseLog(t,
		v1Header,
		v1Row("0.000", "0", "0", "0", "0", "0", "1", "1", "2", "3", "None", "-1"),
	)

	c := NewCursor(l, DefaultOptions())
	c.AdvanceTo(0, nil)

	// v1 logs carry no hit columns: the focus point stands in
	if c.State().Marker != (gaze.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("Expected marker at focus point, got %v", c.State().Marker)
	}
}

func TestPlayer_PacingFollowsWallClock(t *testing.T) {
	l := parseLog(t,
		v1Header,
		v1Row("0.000", "0", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
		v1Row("0.030", "1", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
		v1Row("0.060", "2", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
		v1Row("0.090", "3", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
	)

	p := NewPlayer()
	start := time.Now()
	lastIndex := -1

	report, err := p.PlayWithOptions(context.Background(), l, func(s State, f Frame) bool {
		wall := time.Since(start)
		if wall < f.Elapsed {
			t.Errorf("Row %d applied at %v, before its time %v", f.Index, wall, f.Elapsed)
		}
		if f.Index != lastIndex+1 {
			t.Errorf("Expected row %d, got %d", lastIndex+1, f.Index)
		}
		lastIndex = f.Index
		return true
	}, Options{TickRate: 500, Speed: 1})

	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if report.RowsApplied != 4 {
		t.Errorf("Expected 4 rows applied, got %d", report.RowsApplied)
	}
	if time.Since(start) < 90*time.Millisecond {
		t.Errorf("Replay finished faster than the recording")
	}
	if p.State().HeadPosition.X != 3 {
		t.Errorf("Expected final state from last row, got %v", p.State().HeadPosition)
	}
	if p.PlaybackState() != StateStopped {
		t.Errorf("Expected stopped after play, got %v", p.PlaybackState())
	}
}

func TestPlayer_CallbackStops(t *testing.T) {
	l := parseLog(t,
		v1Header,
		v1Row("0.000", "0", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
		v1Row("0.000", "1", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
	)

	p := NewPlayer()
	report, err := p.Play(context.Background(), l, func(s State, f Frame) bool {
		return false
	})
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}
	if report.RowsApplied != 1 {
		t.Errorf("Expected stop after first row, got %d", report.RowsApplied)
	}
}

func TestPlayer_ContextCancel(t *testing.T) {
	l := parseLog(t,
		v1Header,
		v1Row("0.000", "0", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
		v1Row("10.000", "1", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	report, err := NewPlayer().Play(ctx, l, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if report.RowsApplied != 1 {
		t.Errorf("Expected only first row applied, got %d", report.RowsApplied)
	}
}

func TestPlayer_PauseResumeStop(t *testing.T) {
	l := parseLog(t,
		v1Header,
		v1Row("0.000", "0", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
		v1Row("10.000", "1", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
	)

	p := NewPlayer()
	done := make(chan error, 1)
	go func() {
		_, err := p.PlayWithOptions(context.Background(), l, nil, Options{TickRate: 200, Speed: 1})
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for p.PlaybackState() != StatePlaying {
		if time.Now().After(deadline) {
			t.Fatal("Player never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := p.Play(context.Background(), l, nil); !errors.Is(err, ErrAlreadyPlaying) {
		t.Errorf("Expected ErrAlreadyPlaying, got %v", err)
	}

	p.Pause()
	if p.PlaybackState() != StatePaused {
		t.Fatalf("Expected paused, got %v", p.PlaybackState())
	}
	frozen := p.Elapsed()
	time.Sleep(20 * time.Millisecond)
	if p.Elapsed() != frozen {
		t.Error("Expected replay clock frozen while paused")
	}

	p.Resume()
	if p.PlaybackState() != StatePlaying {
		t.Errorf("Expected playing after resume, got %v", p.PlaybackState())
	}
	if p.Elapsed() < frozen {
		t.Error("Expected resume to continue from the paused time")
	}

	p.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error on stop, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Play did not return after Stop")
	}
}

func TestPlayer_NoRestartUntilLoopExits(t *testing.T) {
	l := parseLog(t,
		v1Header,
		v1Row("0.000", "0", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
		v1Row("10.000", "1", "0", "0", "0", "0", "1", "0", "0", "1", "None", "-1"),
	)

	p := NewPlayer()
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := p.Play(context.Background(), l, func(s State, f Frame) bool {
			close(entered)
			<-release
			return true
		})
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("Callback never ran")
	}

	// The loop is still inside the callback.
	p.Stop()
	if p.PlaybackState() != StateStopping {
		t.Errorf("Expected stopping, got %v", p.PlaybackState())
	}
	if _, err := p.Play(context.Background(), l, nil); !errors.Is(err, ErrAlreadyPlaying) {
		t.Errorf("Expected ErrAlreadyPlaying while stopping, got %v", err)
	}
	p.Stop()

	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error on stop, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Play did not return after Stop")
	}
	if p.PlaybackState() != StateStopped {
		t.Errorf("Expected stopped after loop exit, got %v", p.PlaybackState())
	}

	report, err := p.Play(context.Background(), l, func(State, Frame) bool { return false })
	if err != nil || report.RowsApplied != 1 {
		t.Errorf("Expected a fresh replay to run, got %+v, %v", report, err)
	}
}

func formatSec(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
