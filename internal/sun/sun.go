// Package sun computes the dawn and dusk bounds used for sun-based capture
// windows.
package sun

import (
	"fmt"
	"math"
	"time"

	"github.com/nathan-osman/go-sunrise"

	"github.com/cjeanneret/LapseGo/internal/domain"
)

// CivilTwilightElevation is the solar elevation (degrees) of civil dawn
// and civil dusk.
const CivilTwilightElevation = -6.0

// Location is a point on Earth plus the time zone the window is expressed in.
type Location struct {
	Name      string
	Latitude  float64
	Longitude float64
	// Timezone is an IANA name. Empty means the process local zone.
	Timezone string
}

// DefaultLocation is used when no coordinates are configured.
var DefaultLocation = Location{
	Name:      "Raleigh",
	Latitude:  35.78,
	Longitude: -78.64,
	Timezone:  "America/New_York",
}

// Validate checks the coordinates and time zone.
func (l Location) Validate() error {
	if math.IsNaN(l.Latitude) || l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("%w: latitude %g out of range [-90, 90]", domain.ErrLocationUnresolvable, l.Latitude)
	}
	if math.IsNaN(l.Longitude) || l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: longitude %g out of range [-180, 180]", domain.ErrLocationUnresolvable, l.Longitude)
	}
	if _, err := l.Zone(); err != nil {
		return err
	}
	return nil
}

// Zone resolves the configured time zone.
func (l Location) Zone() (*time.Location, error) {
	if l.Timezone == "" {
		return time.Local, nil
	}
	z, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", domain.ErrLocationUnresolvable, l.Timezone, err)
	}
	return z, nil
}

func (l Location) String() string {
	if l.Name != "" {
		return fmt.Sprintf("%s (%.4f, %.4f)", l.Name, l.Latitude, l.Longitude)
	}
	return fmt.Sprintf("(%.4f, %.4f)", l.Latitude, l.Longitude)
}

// Provider returns the dawn and dusk instants of a calendar date.
type Provider interface {
	DawnDusk(date time.Time, loc Location) (dawn, dusk time.Time, err error)
}

// Twilight is a Provider returning the instants at which the sun crosses
// a given elevation (civil twilight by default).
type Twilight struct {
	Elevation float64
}

// NewCivilTwilight returns a Provider for civil dawn and dusk.
func NewCivilTwilight() *Twilight {
	return &Twilight{Elevation: CivilTwilightElevation}
}

// DawnDusk computes dawn and dusk for the calendar date of date (read in the
// location's zone). Both results are expressed in the location's zone.
func (t *Twilight) DawnDusk(date time.Time, loc Location) (time.Time, time.Time, error) {
	if err := loc.Validate(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	zone, _ := loc.Zone()
	local := date.In(zone)

	dawn, dusk := sunrise.TimeOfElevation(
		loc.Latitude, loc.Longitude, t.Elevation,
		local.Year(), local.Month(), local.Day(),
	)
	if dawn.IsZero() || dusk.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: sun does not cross %.1f° at %s on %s",
			domain.ErrLocationUnresolvable, t.Elevation, loc, local.Format("2006-01-02"))
	}
	return dawn.In(zone), dusk.In(zone), nil
}
