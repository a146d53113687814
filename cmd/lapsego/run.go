package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cjeanneret/LapseGo/internal/clock"
	"github.com/cjeanneret/LapseGo/internal/config"
	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/hw/camera"
	"github.com/cjeanneret/LapseGo/internal/hw/gpio"
	"github.com/cjeanneret/LapseGo/internal/logic/capture"
	"github.com/cjeanneret/LapseGo/internal/logic/timelapse"
	"github.com/cjeanneret/LapseGo/internal/logic/window"
	"github.com/cjeanneret/LapseGo/internal/metrics"
	"github.com/cjeanneret/LapseGo/internal/replicate"
	"github.com/cjeanneret/LapseGo/internal/sun"
	"github.com/cjeanneret/LapseGo/internal/web"
)

// incomingDir receives raw camera files before they are numbered.
const incomingDir = ".incoming"

// run wires the hardware, transports and the multi-day driver for cfg and
// blocks until the last day is done or ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	debug.Init(cfg.LogLevel())
	runID := uuid.NewString()

	debug.Section("Initialization")
	debug.Value("Run", runID)
	debug.Value("Debug level", cfg.LogLevel())
	debug.PrintStruct("Config", redacted(cfg))

	plan, err := buildPlan(cfg)
	if err != nil {
		return err
	}
	zone, err := plan.Location.Zone()
	if err != nil {
		return err
	}
	clk := clock.Real{Location: zone}

	debug.Step(1, "Creating project directory")
	rawDir := filepath.Join(plan.OutputDir, incomingDir)
	if err := os.MkdirAll(rawDir, 0o775); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}
	debug.Value("Output", plan.OutputDir)

	debug.Step(2, "Opening camera")
	var gpioDriver gpio.Driver
	if cfg.CameraKind() == camera.KindGPIO {
		debug.Value("Mock GPIO", cfg.MockGPIO)
		gpioDriver, err = gpio.NewDriver(cfg.MockGPIO)
		if err != nil {
			return fmt.Errorf("init GPIO: %w", err)
		}
		defer func() {
			if err := gpioDriver.Close(); err != nil {
				debug.Warn("Closing GPIO driver failed: %v", err)
			}
		}()
	}
	cam, err := camera.Open(ctx, cfg.CameraKind(), camera.Options{
		Dir:     rawDir,
		GPIO:    gpioDriver,
		Trigger: cfg.Trigger(),
		Clock:   clk,
	})
	if err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	debug.Value("Camera", cfg.Camera.Type)

	debug.Step(3, "Setting up replication")
	stationOpts := []capture.Option{capture.WithClock(clk)}
	if plan.Replicate {
		tr, err := replicate.New(cfg.Backup.Target, replicate.Options{
			KnownHostsFile: cfg.Backup.KnownHostsFile,
			KeyPath:        cfg.Backup.SSHKey,
			Timeout:        cfg.BackupTimeout(),
		})
		if err != nil {
			return fmt.Errorf("backup target: %w", err)
		}
		defer tr.Close()
		stationOpts = append(stationOpts, capture.WithTransport(tr))
		debug.Value("Backup", replicate.Redact(cfg.Backup.Target))
	}
	station := capture.NewStation(cam, stationOpts...)

	reg := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)
	tracker := timelapse.NewTracker(runID, cfg.Project)

	if cfg.WebPort > 0 {
		debug.Step(4, "Starting status server")
		stop, err := startWeb(ctx, fmt.Sprintf(":%d", cfg.WebPort), tracker, reg)
		if err != nil {
			return err
		}
		defer stop()
	}

	planner := timelapse.NewPlanner(window.NewCalculator(sun.NewCivilTwilight()))
	controller := timelapse.NewController(clk, station,
		timelapse.WithMetrics(recorder),
		timelapse.WithTracker(tracker),
	)
	rollover := timelapse.NewRollover(clk, planner, tracker)
	driver := timelapse.NewDriver(clk, planner, controller, rollover)

	debug.Section("Capture")
	return driver.Run(ctx, plan)
}

// buildPlan turns a validated configuration into the run plan.
func buildPlan(cfg *config.Config) (*timelapse.Plan, error) {
	explicit, err := cfg.Window()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &timelapse.Plan{
		Project:     cfg.Project,
		OutputDir:   cfg.ProjectDir(),
		Interval:    cfg.IntervalDuration(),
		TotalDays:   cfg.Days,
		OffsetHours: cfg.Offset,
		Explicit:    explicit,
		Location:    loc,
		Replicate:   cfg.Backup.Target != "",
	}, nil
}

// startWeb serves the status page until the returned stop is called or ctx
// ends. The debug log is teed into the page's stream.
func startWeb(ctx context.Context, addr string, tracker *timelapse.Tracker, reg *prometheus.Registry) (func(), error) {
	broadcaster := web.NewStatusBroadcaster()
	srv, err := web.NewServer(addr, broadcaster, tracker, metrics.HTTPHandler(reg))
	if err != nil {
		return nil, err
	}
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

	webCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Run(webCtx); err != nil {
			debug.Error(fmt.Errorf("web server: %w", err))
		}
	}()
	return func() {
		cancel()
		<-done
		debug.SetOutput(os.Stdout)
	}, nil
}

// redacted returns a copy of cfg safe to log.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	c.Backup.Target = replicate.Redact(c.Backup.Target)
	return c
}
