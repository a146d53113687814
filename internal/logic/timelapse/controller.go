package timelapse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/LapseGo/internal/clock"
	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/domain"
	"github.com/cjeanneret/LapseGo/internal/logic/capture"
	"github.com/cjeanneret/LapseGo/internal/logic/window"
	"github.com/cjeanneret/LapseGo/internal/metrics"
)

// StartGuard is added when sleeping up to the start minute so the first
// poll lands inside the window.
const StartGuard = 5 * time.Second

// Station is the part of capture.Station the controller drives.
type Station interface {
	Capture(ctx context.Context, sess *capture.Session) (string, error)
	Replicate(ctx context.Context, sess *capture.Session, path string) (time.Duration, error)
	ReplicationEnabled() bool
}

// Controller runs the wait, capture, done cycle of a single day.
type Controller struct {
	clock   clock.Clock
	station Station
	metrics metrics.Recorder
	status  *Tracker
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

func WithMetrics(r metrics.Recorder) ControllerOption {
	return func(c *Controller) { c.metrics = r }
}

func WithTracker(t *Tracker) ControllerOption {
	return func(c *Controller) { c.status = t }
}

func NewController(clk clock.Clock, st Station, opts ...ControllerOption) *Controller {
	c := &Controller{
		clock:   clk,
		station: st,
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunDay waits for the window of day to open, captures every plan.Interval
// until it closes and returns. Only cancellation and unexpected errors are
// returned; capture and transfer failures are recovered.
func (c *Controller) RunDay(ctx context.Context, plan *Plan, day *Day) error {
	if plan.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %v", domain.ErrInvalidConfiguration, plan.Interval)
	}

	debug.Summary(fmt.Sprintf("Day %d/%d: %s", day.Number, plan.Days(), day.Window))
	c.metrics.SetDay(day.Number, plan.Days())
	c.metrics.SetSequence(day.Session.Sequence)
	c.status.update(c.clock.Now(), func(s *Status) {
		s.Day = day.Number
		s.TotalDays = plan.Days()
		s.Window = day.Window
		s.Sequence = day.Session.Sequence
	})

	c.setState(StateWaitingForStart)
	if err := c.WaitForStart(ctx, day.Window.Start); err != nil {
		return err
	}

	c.setState(StateCapturing)
	err := c.CaptureUntilStop(ctx, plan, day)
	if errors.Is(err, domain.ErrClockAnomaly) {
		debug.Warn("%v", err)
		c.recordError(err)
		err = nil
	}
	if err != nil {
		return err
	}
	c.setState(StateDone)
	debug.Info("Day %d done, %d pictures", day.Number, day.Session.Sequence)
	return nil
}

// WaitForStart sleeps until start is reached. Before the start hour it
// sleeps to the top of the next hour; within the start hour it sleeps the
// remaining minutes plus StartGuard.
func (c *Controller) WaitForStart(ctx context.Context, start window.TimeOfDay) error {
	for {
		now := c.clock.Now()
		if start.Reached(window.Of(now)) {
			debug.Verbose("Window open at %s", now.Format("15:04:05"))
			return nil
		}

		var d time.Duration
		if now.Hour() < start.Hour {
			d = UntilNextHour(now)
		} else {
			d = time.Duration(start.Minute-now.Minute())*time.Minute + StartGuard
		}
		debug.Verbose("Waiting for %s: sleeping %v", start, d)
		if err := c.clock.Sleep(ctx, d); err != nil {
			return err
		}
	}
}

// CaptureUntilStop captures until stop is reached. A clock found past the
// stop hour ends the day with ErrClockAnomaly.
func (c *Controller) CaptureUntilStop(ctx context.Context, plan *Plan, day *Day) error {
	stop := day.Window.Stop
	replicate := plan.Replicate && c.station.ReplicationEnabled()

	for {
		now := c.clock.Now()
		if now.Hour() > stop.Hour {
			return fmt.Errorf("%w: %s is past stop hour %02d", domain.ErrClockAnomaly, now.Format("15:04"), stop.Hour)
		}
		if stop.Reached(window.Of(now)) {
			debug.Verbose("Window closed at %s", now.Format("15:04:05"))
			return nil
		}

		var elapsed time.Duration
		path, err := c.station.Capture(ctx, day.Session)
		switch {
		case ctx.Err() != nil:
			c.metrics.IncCapture(metrics.ResultCanceled)
			return ctx.Err()
		case err != nil:
			debug.Warn("Capture %04d failed: %v", day.Session.Sequence, err)
			c.metrics.IncCapture(metrics.ResultFailed)
			c.status.update(c.clock.Now(), func(s *Status) {
				s.Failures++
				s.LastError = err.Error()
			})
		default:
			c.metrics.IncCapture(metrics.ResultSuccess)
			c.metrics.SetSequence(day.Session.Sequence)
			c.status.update(c.clock.Now(), func(s *Status) {
				s.Captures++
				s.Sequence = day.Session.Sequence
				s.LastFile = path
			})
			if replicate {
				elapsed = c.replicate(ctx, day.Session, path)
			}
		}

		if err := c.clock.Sleep(ctx, NextSleep(plan.Interval, elapsed)); err != nil {
			return err
		}
	}
}

func (c *Controller) replicate(ctx context.Context, sess *capture.Session, path string) time.Duration {
	elapsed, err := c.station.Replicate(ctx, sess, path)
	if err != nil {
		if ctx.Err() == nil {
			debug.Warn("Replication of %s failed after %v: %v", path, elapsed, err)
			c.recordError(err)
		}
		c.metrics.ObserveReplication(elapsed, metrics.ResultFailed)
		return 0
	}
	c.metrics.ObserveReplication(elapsed, metrics.ResultSuccess)
	return elapsed
}

func (c *Controller) setState(s State) {
	c.metrics.SetState(string(s))
	c.status.update(c.clock.Now(), func(st *Status) { st.State = s })
}

func (c *Controller) recordError(err error) {
	c.status.update(c.clock.Now(), func(s *Status) { s.LastError = err.Error() })
}

// NextSleep is the pause before the next capture: the interval minus the
// time already spent replicating, never negative.
func NextSleep(interval, replicationElapsed time.Duration) time.Duration {
	if d := interval - replicationElapsed; d > 0 {
		return d
	}
	return 0
}

// UntilNextHour is the duration from now to the top of the next hour on the
// wall clock.
func UntilNextHour(now time.Time) time.Duration {
	return time.Duration(60-now.Minute())*time.Minute -
		time.Duration(now.Second())*time.Second -
		time.Duration(now.Nanosecond())
}
