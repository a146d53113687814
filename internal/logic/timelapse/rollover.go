package timelapse

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/LapseGo/internal/clock"
	"github.com/cjeanneret/LapseGo/internal/debug"
)

// MidnightGuard is slept once the date has changed, before the new day is
// planned.
const MidnightGuard = 60 * time.Second

// Rollover moves a run from one calendar day to the next.
type Rollover struct {
	clock   clock.Clock
	planner *Planner
	status  *Tracker
	guard   time.Duration
}

func NewRollover(clk clock.Clock, planner *Planner, status *Tracker) *Rollover {
	return &Rollover{clock: clk, planner: planner, status: status, guard: MidnightGuard}
}

// Crossed reports whether now falls on a calendar date after the one of
// finished, in now's location.
func Crossed(now, finished time.Time) bool {
	y1, m1, d1 := now.Date()
	y2, m2, d2 := finished.In(now.Location()).Date()
	if y1 != y2 {
		return y1 > y2
	}
	if m1 != m2 {
		return m1 > m2
	}
	return d1 > d2
}

// Advance waits for midnight after the finished day and returns the next
// one: sleep to the top of the next hour, then whole hours until the date
// has changed, then MidnightGuard. plan.CurrentDay is incremented.
func (r *Rollover) Advance(ctx context.Context, plan *Plan, finished *Day) (*Day, error) {
	r.status.update(r.clock.Now(), func(s *Status) { s.State = StateRollover })

	now := r.clock.Now()
	d := UntilNextHour(now)
	debug.Verbose("Rollover: sleeping %v to the top of the hour", d)
	if err := r.clock.Sleep(ctx, d); err != nil {
		return nil, err
	}
	for !Crossed(r.clock.Now(), finished.Date) {
		debug.Verbose("Rollover: %s, waiting another hour", r.clock.Now().Format("15:04"))
		if err := r.clock.Sleep(ctx, time.Hour); err != nil {
			return nil, err
		}
	}
	if err := r.clock.Sleep(ctx, r.guard); err != nil {
		return nil, err
	}

	date := r.clock.Now()
	next, err := r.planner.Plan(plan, plan.CurrentDay+1, date)
	if err != nil {
		return nil, fmt.Errorf("rollover to %s: %w", date.Format("2006-01-02"), err)
	}
	plan.CurrentDay = next.Number
	debug.Info("New day %d/%d (%s), window %s", next.Number, plan.Days(), date.Format("2006-01-02"), next.Window)
	return next, nil
}
