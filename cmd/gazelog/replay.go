package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/gazelog/pkg/gaze"
	"github.com/teslashibe/gazelog/pkg/replay"
)

type replayFlags struct {
	speed   float64
	hz      float64
	instant bool
	frames  bool
	planeZ  float64
	asJSON  bool
}

func replayCmd(_ *globals) *cobra.Command {
	f := &replayFlags{}
	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Replay a session log in real time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.OutOrStdout(), args[0], f)
		},
	}
	cmd.Flags().Float64Var(&f.speed, "speed", 1, "playback speed multiplier")
	cmd.Flags().Float64Var(&f.hz, "hz", 90, "player tick rate")
	cmd.Flags().BoolVar(&f.instant, "instant", false, "apply every row immediately instead of pacing")
	cmd.Flags().BoolVar(&f.frames, "frames", false, "print the marker for every applied row")
	cmd.Flags().Float64Var(&f.planeZ, "plane-z", 0, "recompute the marker against a plane this far in front of the origin")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the report as JSON")
	return cmd
}

func runReplay(out io.Writer, path string, f *replayFlags) error {
	l, err := replay.Load(path)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := replay.DefaultOptions()
	opts.Speed = f.speed
	opts.TickRate = f.hz
	if f.planeZ > 0 {
		opts.RayCaster = gaze.PlaneCaster{
			Point:  gaze.Vec3{Z: f.planeZ},
			Normal: gaze.Vec3{Z: -1},
			Name:   "plane",
		}
	}
	opts.OnCue = func(index int, elapsed time.Duration) {
		fmt.Fprintf(out, "%8.3f  cue %d\n", elapsed.Seconds(), index)
	}
	opts.OnWarning = func(err *replay.RowParseError) {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	var callback replay.Callback
	if f.frames {
		callback = func(s replay.State, fr replay.Frame) bool {
			target := s.MarkerTarget
			if !s.HasMarker {
				target = "-"
			}
			fmt.Fprintf(out, "%8.3f  marker (%.3f, %.3f, %.3f) %s  wink %s %.2f\n",
				fr.Elapsed.Seconds(), s.Marker.X, s.Marker.Y, s.Marker.Z, target, s.Wink, s.Certainty)
			return true
		}
	}

	fmt.Fprintf(os.Stderr, "Replaying %s (%s, %d rows, %.1fs)\n",
		path, l.Binding.Schema.Name, len(l.Rows), l.Duration().Seconds())

	var report replay.Report
	if f.instant {
		cursor := replay.NewCursor(l, opts)
		cursor.AdvanceTo(time.Duration(math.MaxInt64), callback)
		report = cursor.Report()
	} else {
		report, err = replay.NewPlayer().PlayWithOptions(ctx, l, callback, opts)
		if err != nil && ctx.Err() == nil {
			return err
		}
	}

	if f.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(out, report)
	return nil
}

func printReport(w io.Writer, r replay.Report) {
	fmt.Fprintf(w, "Applied %d rows, skipped %d, %d cues, %.3fs\n",
		r.RowsApplied, r.RowsSkipped, r.Cues, r.Duration.Seconds())
	if r.Incomplete {
		fmt.Fprintf(w, "Session incomplete: %s\n", r.Reason)
	}
}
