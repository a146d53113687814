package camera

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cjeanneret/LapseGo/internal/clock"
	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/domain"
	"github.com/cjeanneret/LapseGo/internal/hw/gpio"
)

// TriggerConfig wires a camera's 3-pin remote connector (Nikon D90 MC-DC1
// style) to the GPIO header:
//   - GND: Raspberry Pi ground
//   - FOCUS: autofocus, active LOW
//   - SHUTTER: release, active LOW
//
// The camera itself stores the picture; IngestDir is where it shows up
// (an Eye-Fi/FlashAir upload folder, a gphoto2 --wait-event-and-download
// target, a mounted card).
type TriggerConfig struct {
	FocusPin     int
	ShutterPin   int
	FocusDelay   time.Duration // time for autofocus
	ShutterDelay time.Duration // shutter hold time
	IngestDir    string
	Timeout      time.Duration // how long to wait for the image
	Settle       time.Duration // quiet period before a file is considered complete
}

// DefaultTriggerConfig matches the D90 wiring used so far.
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		FocusPin:     24,
		ShutterPin:   25,
		FocusDelay:   500 * time.Millisecond,
		ShutterDelay: 200 * time.Millisecond,
		Timeout:      30 * time.Second,
		Settle:       time.Second,
	}
}

// GPIOTrigger releases the shutter through GPIO lines, then waits for the
// new image to land in the ingest directory.
//
// Release sequence:
//  1. FOCUS to LOW (activates autofocus)
//  2. Wait for autofocus to complete
//  3. SHUTTER to LOW (triggers the shot)
//  4. Hold for a moment
//  5. Set SHUTTER and FOCUS back to HIGH
type GPIOTrigger struct {
	gpio  gpio.Driver
	cfg   TriggerConfig
	clock clock.Clock
}

// NewGPIOTrigger configures both lines as outputs, idle HIGH.
func NewGPIOTrigger(g gpio.Driver, cfg TriggerConfig, clk clock.Clock) (*GPIOTrigger, error) {
	if cfg.IngestDir == "" {
		return nil, fmt.Errorf("gpio camera needs an ingest directory")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTriggerConfig().Timeout
	}
	if clk == nil {
		clk = clock.Real{}
	}
	for _, pin := range []int{cfg.FocusPin, cfg.ShutterPin} {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup pin %d: %w", pin, err)
		}
		if err := g.WritePin(pin, gpio.High); err != nil {
			return nil, fmt.Errorf("idle pin %d: %w", pin, err)
		}
	}
	return &GPIOTrigger{gpio: g, cfg: cfg, clock: clk}, nil
}

// Capture releases the shutter and returns the path of the new image.
func (t *GPIOTrigger) Capture(ctx context.Context) (string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("%w: watcher: %v", domain.ErrCaptureFailed, err)
	}
	defer watcher.Close()
	if err := watcher.Add(t.cfg.IngestDir); err != nil {
		return "", fmt.Errorf("%w: watch %s: %v", domain.ErrCaptureFailed, t.cfg.IngestDir, err)
	}

	if err := t.Release(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: release: %v", domain.ErrCaptureFailed, err)
	}
	return t.waitForImage(ctx, watcher)
}

// Release runs the focus/shutter sequence once.
func (t *GPIOTrigger) Release(ctx context.Context) error {
	debug.Verbose("Camera: activating FOCUS (pin %d -> LOW)", t.cfg.FocusPin)
	if err := t.gpio.WritePin(t.cfg.FocusPin, gpio.Low); err != nil {
		return err
	}
	if err := t.clock.Sleep(ctx, t.cfg.FocusDelay); err != nil {
		_ = t.gpio.WritePin(t.cfg.FocusPin, gpio.High)
		return err
	}

	debug.Verbose("Camera: activating SHUTTER (pin %d -> LOW)", t.cfg.ShutterPin)
	if err := t.gpio.WritePin(t.cfg.ShutterPin, gpio.Low); err != nil {
		_ = t.gpio.WritePin(t.cfg.FocusPin, gpio.High)
		return err
	}
	// The shot is already under way; the lines are released even when
	// ctx is cancelled during the hold.
	holdErr := t.clock.Sleep(ctx, t.cfg.ShutterDelay)

	if err := t.gpio.WritePin(t.cfg.ShutterPin, gpio.High); err != nil {
		return err
	}
	if err := t.gpio.WritePin(t.cfg.FocusPin, gpio.High); err != nil {
		return err
	}
	return holdErr
}

func (t *GPIOTrigger) waitForImage(ctx context.Context, watcher *fsnotify.Watcher) (string, error) {
	timeout := time.NewTimer(t.cfg.Timeout)
	defer timeout.Stop()

	var candidate string
	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case <-timeout.C:
			if candidate != "" {
				return candidate, nil
			}
			return "", fmt.Errorf("%w: no image in %s after %v", domain.ErrCaptureFailed, t.cfg.IngestDir, t.cfg.Timeout)

		case event, ok := <-watcher.Events:
			if !ok {
				return "", fmt.Errorf("%w: watcher closed", domain.ErrCaptureFailed)
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isImage(event.Name) {
				continue
			}
			debug.Trace("Ingest %s %s", event.Op, event.Name)
			candidate = event.Name
			settle = time.After(t.cfg.Settle)

		case <-settle:
			return candidate, nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return "", fmt.Errorf("%w: watcher closed", domain.ErrCaptureFailed)
			}
			debug.Warn("Ingest watcher: %v", err)
		}
	}
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".nef", ".cr2", ".arw", ".png":
		return true
	}
	return false
}
