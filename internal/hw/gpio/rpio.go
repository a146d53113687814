package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/cjeanneret/LapseGo/internal/debug"
)

// line is the part of rpio.Pin the driver uses.
type line interface {
	Input()
	Output()
	High()
	Low()
	Read() rpio.State
}

// RPiDriver drives the header through go-rpio's memory-mapped registers.
// Pins are configured lazily: a write makes the pin an output, a read an
// input, so the release sequence only has to call WritePin.
type RPiDriver struct {
	mu    sync.Mutex
	line  func(pin int) line
	modes map[int]PinMode
	close func() error
}

// NewRPiDriver maps the GPIO registers. It needs /dev/gpiomem or root.
func NewRPiDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	return newRPiDriver(func(pin int) line { return rpio.Pin(pin) }, rpio.Close), nil
}

func newRPiDriver(lineFn func(int) line, closeFn func() error) *RPiDriver {
	return &RPiDriver{line: lineFn, modes: make(map[int]PinMode), close: closeFn}
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.configure(pin, mode)
	return err
}

// configure switches pin to mode when it is not already in it.
func (r *RPiDriver) configure(pin int, mode PinMode) (line, error) {
	l := r.line(pin)
	if cur, ok := r.modes[pin]; ok && cur == mode {
		return l, nil
	}
	switch mode {
	case Input:
		l.Input()
	case Output:
		l.Output()
	default:
		return nil, fmt.Errorf("unknown pin mode: %d", mode)
	}
	r.modes[pin] = mode
	return l, nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	r.mu.Lock()
	defer r.mu.Unlock()
	l, err := r.configure(pin, Output)
	if err != nil {
		return err
	}
	if level == High {
		l.High()
	} else {
		l.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	r.mu.Lock()
	defer r.mu.Unlock()
	l, err := r.configure(pin, Input)
	if err != nil {
		return Low, err
	}
	return Level(l.Read() == rpio.High), nil
}

// Close releases the camera lines: outputs are driven low, then every
// used pin is left floating as an input before the registers are unmapped.
func (r *RPiDriver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for pin, mode := range r.modes {
		l := r.line(pin)
		if mode == Output {
			l.Low()
		}
		l.Input()
		debug.Verbose("Released pin %d", pin)
	}
	clear(r.modes)
	return r.close()
}
