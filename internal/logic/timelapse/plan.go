// Package timelapse runs the multi-day capture schedule: wait for the day's
// window, capture at a fixed cadence until it closes, roll over to the next
// day and repeat.
package timelapse

import (
	"fmt"
	"time"

	"github.com/cjeanneret/LapseGo/internal/logic/capture"
	"github.com/cjeanneret/LapseGo/internal/logic/window"
	"github.com/cjeanneret/LapseGo/internal/sun"
)

// Plan describes the whole run. Only CurrentDay changes once running.
type Plan struct {
	Project     string
	OutputDir   string
	Interval    time.Duration
	TotalDays   int
	CurrentDay  int
	OffsetHours int
	Explicit    *window.DayWindow
	Location    sun.Location
	Replicate   bool
}

// Days returns the effective number of days; anything below one runs one day.
func (p *Plan) Days() int {
	if p.TotalDays <= 0 {
		return 1
	}
	return p.TotalDays
}

// Finished reports whether the current day is the last one.
func (p *Plan) Finished() bool {
	return p.CurrentDay >= p.Days()
}

// Day is what the controller needs to run one calendar day.
type Day struct {
	Number  int
	Date    time.Time
	Window  window.DayWindow
	Session *capture.Session
}

// WindowSource computes a day's window.
type WindowSource interface {
	Compute(explicit *window.DayWindow, offsetHours int, date time.Time, loc sun.Location) (window.DayWindow, error)
}

// Planner builds Day values from a Plan.
type Planner struct {
	windows WindowSource
}

func NewPlanner(ws WindowSource) *Planner {
	return &Planner{windows: ws}
}

// Plan builds day number for the calendar date of date: a freshly computed
// window and a new session starting at sequence 0.
func (pl *Planner) Plan(p *Plan, number int, date time.Time) (*Day, error) {
	w, err := pl.windows.Compute(p.Explicit, p.OffsetHours, date, p.Location)
	if err != nil {
		return nil, fmt.Errorf("day %d window: %w", number, err)
	}
	return &Day{
		Number:  number,
		Date:    date,
		Window:  w,
		Session: capture.NewSession(p.OutputDir, p.Project, date),
	}, nil
}
