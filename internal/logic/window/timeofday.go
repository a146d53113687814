package window

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock hour and minute.
// Values handed to the cadence loop are always normalized (0-23, 0-59).
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Of returns the time of day of t in t's own zone.
func Of(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

// Parse reads a 24 hour "HH:MM" string.
func Parse(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("time %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("time %q: hour: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("time %q: minute: %w", s, err)
	}
	t := TimeOfDay{Hour: h, Minute: m}
	if !t.Valid() {
		return TimeOfDay{}, fmt.Errorf("time %q: out of range 00:00-23:59", s)
	}
	return t, nil
}

// Valid reports whether t lies in 00:00-23:59.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

// Reached reports whether the clock reading now is at or past t, using the
// hour-then-minute comparison of the cadence loop.
func (t TimeOfDay) Reached(now TimeOfDay) bool {
	if now.Hour > t.Hour {
		return true
	}
	return now.Hour == t.Hour && now.Minute >= t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for "HH:MM" values.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// DayWindow is the active capture interval of one calendar day.
// It is a value: the cadence loop gets a copy and never mutates it.
type DayWindow struct {
	Start TimeOfDay `json:"start"`
	Stop  TimeOfDay `json:"stop"`
}

// ParseWindow reads a start/stop pair of "HH:MM" strings.
func ParseWindow(start, stop string) (DayWindow, error) {
	s, err := Parse(start)
	if err != nil {
		return DayWindow{}, fmt.Errorf("start: %w", err)
	}
	e, err := Parse(stop)
	if err != nil {
		return DayWindow{}, fmt.Errorf("stop: %w", err)
	}
	return DayWindow{Start: s, Stop: e}, nil
}

// CrossesMidnight reports a stop hour earlier than the start hour. Such
// windows are not supported: the loop assumes a single calendar day.
func (w DayWindow) CrossesMidnight() bool {
	return w.Stop.Hour < w.Start.Hour
}

func (w DayWindow) String() string {
	return w.Start.String() + "-" + w.Stop.String()
}
