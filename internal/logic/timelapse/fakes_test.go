package timelapse

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cjeanneret/LapseGo/internal/clock"
	"github.com/cjeanneret/LapseGo/internal/domain"
	"github.com/cjeanneret/LapseGo/internal/logic/capture"
	"github.com/cjeanneret/LapseGo/internal/logic/window"
	"github.com/cjeanneret/LapseGo/internal/sun"
)

// fakeStation numbers files like capture.Station without touching disk.
type fakeStation struct {
	clk       *clock.Mock
	attempts  int
	failOn    map[int]bool
	onCapture func(attempt int)
	files     []string

	replicate     bool
	replicateCost time.Duration
	replicateErr  error
	replicated    int
}

func (f *fakeStation) Capture(_ context.Context, sess *capture.Session) (string, error) {
	f.attempts++
	if f.onCapture != nil {
		f.onCapture(f.attempts)
	}
	if f.failOn[f.attempts] {
		return "", fmt.Errorf("%w: camera busy", domain.ErrCaptureFailed)
	}
	path := sess.NextPath()
	f.files = append(f.files, filepath.Base(path))
	sess.Sequence++
	return path, nil
}

func (f *fakeStation) Replicate(_ context.Context, _ *capture.Session, _ string) (time.Duration, error) {
	f.clk.Advance(f.replicateCost)
	f.replicated++
	return f.replicateCost, f.replicateErr
}

func (f *fakeStation) ReplicationEnabled() bool { return f.replicate }

// fixedWindows returns the same window, or err, for every date.
type fixedWindows struct {
	w     window.DayWindow
	err   error
	dates []time.Time
}

func (f *fixedWindows) Compute(explicit *window.DayWindow, _ int, date time.Time, _ sun.Location) (window.DayWindow, error) {
	f.dates = append(f.dates, date)
	if f.err != nil {
		return window.DayWindow{}, f.err
	}
	if explicit != nil {
		return *explicit, nil
	}
	return f.w, nil
}

func at(day, hour, minute, sec int) time.Time {
	return time.Date(2024, time.June, day, hour, minute, sec, 0, time.UTC)
}

func mustWindow(start, stop string) window.DayWindow {
	w, err := window.ParseWindow(start, stop)
	if err != nil {
		panic(err)
	}
	return w
}

func newDay(number int, date time.Time, w window.DayWindow) *Day {
	return &Day{
		Number:  number,
		Date:    date,
		Window:  w,
		Session: capture.NewSession("/data/garden", "garden", date),
	}
}
