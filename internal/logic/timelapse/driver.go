package timelapse

import (
	"context"

	"github.com/cjeanneret/LapseGo/internal/clock"
	"github.com/cjeanneret/LapseGo/internal/debug"
)

// DayRunner runs one day.
type DayRunner interface {
	RunDay(ctx context.Context, plan *Plan, day *Day) error
}

// DayAdvancer produces the day after finished.
type DayAdvancer interface {
	Advance(ctx context.Context, plan *Plan, finished *Day) (*Day, error)
}

// Driver sequences the days of a Plan.
type Driver struct {
	clock    clock.Clock
	planner  *Planner
	runner   DayRunner
	rollover DayAdvancer
}

func NewDriver(clk clock.Clock, planner *Planner, runner DayRunner, rollover DayAdvancer) *Driver {
	return &Driver{clock: clk, planner: planner, runner: runner, rollover: rollover}
}

// Run executes day 1 on today's date, then rolls over and runs again until
// plan.CurrentDay reaches the number of days.
func (d *Driver) Run(ctx context.Context, plan *Plan) error {
	plan.CurrentDay = 1
	day, err := d.planner.Plan(plan, 1, d.clock.Now())
	if err != nil {
		return err
	}
	debug.Info("Starting %d-day run, first window %s", plan.Days(), day.Window)

	for {
		if err := d.runner.RunDay(ctx, plan, day); err != nil {
			return err
		}
		if plan.Finished() {
			debug.Info("Run complete after %d day(s)", plan.CurrentDay)
			return nil
		}
		if day, err = d.rollover.Advance(ctx, plan, day); err != nil {
			return err
		}
	}
}
