package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/gazelog/internal/log"
	"github.com/teslashibe/gazelog/pkg/bridge"
	"github.com/teslashibe/gazelog/pkg/catalog"
	"github.com/teslashibe/gazelog/pkg/gaze"
	"github.com/teslashibe/gazelog/pkg/monitor"
	"github.com/teslashibe/gazelog/pkg/recorder"
	"github.com/teslashibe/gazelog/pkg/schema"
	"github.com/teslashibe/gazelog/pkg/sessionlog"
	"github.com/teslashibe/gazelog/pkg/upload"
)

type recordFlags struct {
	mock          bool
	bridgeURL     string
	monitor       bool
	port          string
	dir           string
	hz            float64
	duration      time.Duration
	schemaVersion int
	planeZ        float64
	uploadTo      string
	noUpload      bool
}

func recordCmd(g *globals) *cobra.Command {
	f := &recordFlags{}
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one session from a tracker bridge",
		Long: `Record one session.

Frames come from a tracker bridge: either dialed with --bridge-url, or
accepted on the monitor's /ws/tracker route when no URL is given. --mock
records a synthetic signal instead. Recording stops on Ctrl-C (the log is
marked incomplete) or after --duration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, g, f)
		},
	}

	cmd.Flags().BoolVar(&f.mock, "mock", false, "record a synthetic gaze signal")
	cmd.Flags().StringVar(&f.bridgeURL, "bridge-url", "", "dial a tracker bridge at this websocket URL")
	cmd.Flags().BoolVar(&f.monitor, "monitor", false, "serve the live monitor")
	cmd.Flags().StringVar(&f.port, "port", "", "monitor port")
	cmd.Flags().StringVar(&f.dir, "dir", "", "session directory")
	cmd.Flags().Float64Var(&f.hz, "hz", 0, "tick rate")
	cmd.Flags().DurationVar(&f.duration, "duration", 0, "stop after this long (0 = until interrupted)")
	cmd.Flags().IntVar(&f.schemaVersion, "schema", schema.Current().Version, "log schema version")
	cmd.Flags().Float64Var(&f.planeZ, "plane-z", 0, "ray-cast gaze against a plane this far in front of the origin")
	cmd.Flags().StringVar(&f.uploadTo, "upload", "", "upload destination: http or drive (default: whichever is configured)")
	cmd.Flags().BoolVar(&f.noUpload, "no-upload", false, "do not upload the finished log")
	return cmd
}

func runRecord(cmd *cobra.Command, g *globals, f *recordFlags) error {
	cfg := g.cfg
	if cmd.Flags().Changed("dir") {
		cfg.Session.Dir = f.dir
	}
	if cmd.Flags().Changed("hz") {
		cfg.Session.TickHz = f.hz
	}
	if cmd.Flags().Changed("port") {
		cfg.Monitor.Port = f.port
	}
	if cmd.Flags().Changed("bridge-url") {
		cfg.Tracker.URL = f.bridgeURL
	}
	if f.monitor {
		cfg.Monitor.Enabled = true
	}

	cols, err := schema.ByVersion(f.schemaVersion)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Frame source
	var (
		source   gaze.FrameSource
		head     recorder.HeadSource
		receiver *bridge.Receiver
		buffer   *bridge.Buffer
	)
	switch {
	case f.mock:
		source = bridge.NewSynthetic(bridge.DefaultSyntheticConfig(), nil)
		head = recorder.DefaultHead
	default:
		buffer = bridge.NewBuffer(cfg.Tracker.MaxFrameAge())
		source, head = buffer, buffer
		if cfg.Tracker.URL != "" {
			client := bridge.NewClient(bridge.DefaultClientConfig(cfg.Tracker.URL), buffer)
			go client.Run(ctx)
		} else {
			receiver = bridge.NewReceiver(buffer)
			cfg.Monitor.Enabled = true
		}
	}

	gazeCfg := gaze.DefaultConfig()
	if w := cfg.Gaze.Window(); w > 0 {
		gazeCfg.Retention = w
	}
	if cfg.Gaze.WinkThreshold > 0 {
		gazeCfg.WinkThreshold = cfg.Gaze.WinkThreshold
	}
	processor := gaze.NewProcessor(gazeCfg, source)

	session := sessionlog.New(sessionlog.Config{
		Dir:          cfg.Session.Dir,
		TickInterval: cfg.Session.TickInterval(),
	})

	recCfg := recorder.Config{TickInterval: cfg.Session.TickInterval()}
	if f.planeZ > 0 {
		recCfg.RayCaster = gaze.PlaneCaster{
			Point:  gaze.Vec3{Z: f.planeZ},
			Normal: gaze.Vec3{Z: -1},
			Name:   "plane",
		}
	}
	rec := recorder.New(recCfg, processor, head, session)
	if err := rec.Register(cols); err != nil {
		return err
	}

	// Catalog
	cat := openCatalog(cfg)
	if cat != nil {
		defer cat.Close()
		session.OnEnd(func(r sessionlog.Result) {
			if err := cat.RecordResult(context.Background(), r); err != nil {
				log.Warn("failed to catalog session", "path", r.Path, "error", err)
			}
		})
	}

	// Upload
	var uploaded <-chan upload.Result
	if !f.noUpload {
		dest, err := destination(ctx, cfg.Upload, f.uploadTo)
		if err != nil {
			return err
		}
		if dest != nil {
			pipeline := startUploads(dest, cat)
			defer pipeline.close()
			session.OnEnd(func(r sessionlog.Result) {
				uploaded = pipeline.worker.Submit(r.Path, dest)
			})
		}
	}

	// Monitor
	var srv *monitor.Server
	if cfg.Monitor.Enabled {
		var lister monitor.SessionLister
		if cat != nil {
			lister = cat
		}
		mcfg := monitor.DefaultConfig()
		mcfg.Port = cfg.Monitor.Port
		srv = monitor.NewServer(mcfg, lister)
		if receiver != nil {
			srv.Mount(receiver)
		}
		if buffer != nil {
			srv.AddComponent("bridge", func() interface{} { return buffer.Stats() })
		}
		srv.AddComponent("processor", func() interface{} {
			ingested, readErrors := processor.Stats()
			return map[string]uint64{"ingested": ingested, "read_errors": readErrors}
		})
		rec.OnTick(srv.HandleTick)
		session.OnEnd(srv.SessionEnded)

		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Error("monitor stopped", "error", err)
			}
		}()
	}

	serial, err := rec.Start()
	if err != nil {
		return err
	}
	if srv != nil {
		srv.SessionStarted(serial, session.SessionID(), session.FilePath())
	}
	fmt.Fprintf(os.Stderr, "Recording session %03d to %s\n", serial, session.FilePath())
	if receiver != nil {
		fmt.Fprintf(os.Stderr, "Waiting for a tracker bridge on ws://localhost:%s%s\n", cfg.Monitor.Port, bridge.TrackerPath)
	}

	runCtx := ctx
	if f.duration > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeout(ctx, f.duration)
		defer stop()
	}

	runErr := rec.Run(runCtx)
	reason := ""
	switch {
	case ctx.Err() != nil:
		reason = "recording interrupted"
	case runErr != nil && !errors.Is(runErr, context.DeadlineExceeded):
		reason = fmt.Sprintf("recording failed: %v", runErr)
	}
	if err := rec.Stop(reason); err != nil {
		return err
	}

	ticks, headErrs, writeErrs := rec.Stats()
	fmt.Fprintf(os.Stderr, "Stopped after %d ticks (head errors %d, write errors %d)\n", ticks, headErrs, writeErrs)

	if uploaded != nil {
		waitForUpload(uploaded)
	}
	if cat != nil {
		printEntryFor(cat, session.FilePath())
	}
	return nil
}

// waitForUpload gives a just-finished upload a bounded time to complete.
func waitForUpload(ch <-chan upload.Result) {
	fmt.Fprintln(os.Stderr, "Uploading...")
	select {
	case r := <-ch:
		if r.OK() {
			fmt.Fprintf(os.Stderr, "Uploaded to %s\n", r.Location)
		} else {
			fmt.Fprintf(os.Stderr, "Upload failed: %v\n", r.Err)
		}
	case <-time.After(5 * time.Minute):
		fmt.Fprintln(os.Stderr, "Upload still running; retry later with `gazelog upload --pending`")
	}
}

func printEntryFor(cat *catalog.Catalog, path string) {
	e, err := cat.Get(context.Background(), path)
	if err != nil {
		return
	}
	printEntries(os.Stdout, []catalog.Entry{e})
}
