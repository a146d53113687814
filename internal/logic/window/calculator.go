package window

import (
	"fmt"
	"time"

	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/sun"
)

// Calculator produces the window of a given day.
type Calculator struct {
	sun sun.Provider
}

// NewCalculator creates a calculator using p for sun-based windows.
func NewCalculator(p sun.Provider) *Calculator {
	return &Calculator{sun: p}
}

// Compute returns the window for date.
//
// An explicit window wins and is returned unchanged. Otherwise dawn and dusk
// come from the sun provider: offsetHours is subtracted from the dawn hour
// and added to the dusk hour, then the result is normalized.
//
// Explicit windows and offsets are never combined; the configuration layer
// rejects that before a Calculator is used.
func (c *Calculator) Compute(explicit *DayWindow, offsetHours int, date time.Time, loc sun.Location) (DayWindow, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if c.sun == nil {
		return DayWindow{}, fmt.Errorf("no sun provider configured")
	}

	dawn, dusk, err := c.sun.DawnDusk(date, loc)
	if err != nil {
		return DayWindow{}, fmt.Errorf("dawn/dusk for %s: %w", date.Format("2006-01-02"), err)
	}
	debug.Verbose("Dawn %s, dusk %s at %s", dawn.Format("15:04"), dusk.Format("15:04"), loc)

	start := TimeOfDay{Hour: dawn.Hour() - offsetHours, Minute: dawn.Minute()}
	stop := TimeOfDay{Hour: dusk.Hour() + offsetHours, Minute: dusk.Minute()}
	return Normalize(start, stop), nil
}

// Normalize brings offset arithmetic back onto the clock face.
//
// The first four steps run in this order: start minute overflow, stop minute
// overflow, start hour underflow, stop hour overflow. A start hour wrapped
// below zero is still read as "today", so a large offset can make the
// window start very early on the same day instead of the previous evening.
//
// Negative or oversized offsets can still leave an hour outside 0-23; a
// final modulo wrap keeps the result on the clock face.
func Normalize(start, stop TimeOfDay) DayWindow {
	if start.Minute > 59 {
		start.Minute -= 60
		start.Hour++
	}
	if stop.Minute > 59 {
		stop.Minute -= 60
		stop.Hour++
	}
	if start.Hour < 0 {
		start.Hour += 24
	}
	if stop.Hour > 23 {
		stop.Hour -= 24
	}

	start.Hour = wrapHour(start.Hour)
	stop.Hour = wrapHour(stop.Hour)
	return DayWindow{Start: start, Stop: stop}
}

func wrapHour(h int) int {
	return ((h % 24) + 24) % 24
}
