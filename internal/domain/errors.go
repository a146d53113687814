// Package domain holds the error conditions shared by the capture run.
package domain

import "errors"

// Errors are wrapped with fmt.Errorf("...: %w") by the packages that detect
// them and checked by callers with errors.Is.
var (
	// ErrConfigurationConflict is returned when mutually exclusive options are
	// both set (start/stop with an offset, latitude without longitude...).
	// Fatal at startup.
	ErrConfigurationConflict = errors.New("lapsego: configuration conflict")

	// ErrInvalidConfiguration is returned for a missing or out of range
	// option. Fatal at startup.
	ErrInvalidConfiguration = errors.New("lapsego: invalid configuration")

	// ErrLocationUnresolvable is returned when no dawn/dusk can be computed
	// for the configured coordinates. Fatal at startup.
	ErrLocationUnresolvable = errors.New("lapsego: location unresolvable")

	// ErrCaptureFailed is returned by capture devices. The cadence loop logs
	// it and keeps going; the sequence number is not advanced.
	ErrCaptureFailed = errors.New("lapsego: capture failed")

	// ErrTransferFailed is returned by replication transports. The cadence
	// loop logs it and counts the transfer as zero elapsed time.
	ErrTransferFailed = errors.New("lapsego: transfer failed")

	// ErrClockAnomaly reports a clock observed past the stop hour without
	// having matched the stop minute. The day is stopped at once.
	ErrClockAnomaly = errors.New("lapsego: clock anomaly")
)
