// Package camera implements the capture devices: a USB camera driven by
// gphoto2, a GPIO remote release, and a faux device for dry runs.
package camera

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/cjeanneret/LapseGo/internal/clock"
	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/hw/gpio"
)

// Device takes one picture per call and returns the path of the raw file
// it produced. Failures wrap domain.ErrCaptureFailed.
type Device interface {
	Capture(ctx context.Context) (string, error)
}

// Kind selects a Device implementation.
type Kind string

const (
	KindAuto    Kind = "auto"
	KindGPhoto2 Kind = "gphoto2"
	KindFaux    Kind = "faux"
	KindGPIO    Kind = "gpio"
)

// ParseKind accepts the names above, case-insensitively; empty means auto.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindAuto, nil
	case KindAuto, KindGPhoto2, KindFaux, KindGPIO:
		return k, nil
	default:
		return "", fmt.Errorf("unknown camera %q (want auto, gphoto2, faux or gpio)", s)
	}
}

// Options carries what the devices need. Dir is where raw files land for
// gphoto2 and faux captures.
type Options struct {
	Dir     string
	Fs      afero.Fs
	Runner  Runner
	GPIO    gpio.Driver
	Trigger TriggerConfig
	Clock   clock.Clock
}

// Open builds the device for kind. KindAuto probes for a gphoto2 camera
// and falls back to faux captures when none answers.
func Open(ctx context.Context, kind Kind, opts Options) (Device, error) {
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	switch kind {
	case KindAuto, "":
		found, err := Detect(ctx, opts.Runner)
		if err != nil {
			debug.Warn("Camera detection failed: %v", err)
		}
		if !found {
			debug.Info("No camera detected, using faux captures")
			return NewFaux(opts.Fs, opts.Dir), nil
		}
		debug.Info("Camera detected, using gphoto2")
		return NewGPhoto2(opts.Fs, opts.Runner, opts.Dir), nil
	case KindGPhoto2:
		return NewGPhoto2(opts.Fs, opts.Runner, opts.Dir), nil
	case KindFaux:
		return NewFaux(opts.Fs, opts.Dir), nil
	case KindGPIO:
		if opts.GPIO == nil {
			return nil, fmt.Errorf("gpio camera needs a GPIO driver")
		}
		trig, err := NewGPIOTrigger(opts.GPIO, opts.Trigger, opts.Clock)
		if err != nil {
			return nil, err
		}
		return trig, nil
	default:
		return nil, fmt.Errorf("unknown camera kind %q", kind)
	}
}
