package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (window of the day, day changes, faults)
	LevelLive    = 2 // Live info (each shot, each transfer)
	LevelVerbose = 3 // Verbose (sleep decisions, clock readings)
	LevelTrace   = 4 // Trace (GPIO, subprocess output)
)

var (
	mu     sync.RWMutex
	level  int
	logger = zerolog.Nop()
)

// Init initializes the debug system with a level (0-4) writing to stdout.
// 0 = no output
// 1 = important info (window of the day, rollover, faults)
// 2 = live info (photos taken, transfers)
// 3 = verbose (sleep durations, state transitions)
// 4 = trace (GPIO, raw gphoto2 output)
func Init(debugLevel int) {
	mu.Lock()
	level = debugLevel
	mu.Unlock()
	SetOutput(os.Stdout)
}

// SetOutput redirects log lines to w, keeping the current level.
// The web server uses it to tee the log into its status stream.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if level <= LevelOff {
		logger = zerolog.Nop()
		return
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	logger = zerolog.New(out).Level(zerolog.TraceLevel).With().Timestamp().Str("app", "LapseGo").Logger()
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// Logger returns the underlying zerolog logger for structured fields.
// It discards everything when the level is off.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func emit(minLevel int, ev func(zerolog.Logger) *zerolog.Event, msg string) {
	mu.RLock()
	enabled := level >= minLevel
	l := logger
	mu.RUnlock()
	if !enabled {
		return
	}
	ev(l).Msg(msg)
}

func info(l zerolog.Logger) *zerolog.Event  { return l.Info() }
func dbg(l zerolog.Logger) *zerolog.Event   { return l.Debug() }
func trace(l zerolog.Logger) *zerolog.Event { return l.Trace() }

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	emit(LevelInfo, info, fmt.Sprintf(format, args...))
}

// Warn prints a recovered fault (level 1).
func Warn(format string, args ...interface{}) {
	emit(LevelInfo, func(l zerolog.Logger) *zerolog.Event { return l.Warn() }, fmt.Sprintf(format, args...))
}

// Summary prints a framed title (level 1).
func Summary(title string) {
	emit(LevelInfo, info, "═══ "+title+" ═══")
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	mu.RLock()
	enabled := level >= LevelInfo
	l := logger
	mu.RUnlock()
	if !enabled {
		return
	}
	l.Info().Interface("value", value).Msg(name)
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	emit(LevelLive, info, fmt.Sprintf(format, args...))
}

// Shot prints a photo capture (level 2).
func Shot(seq int, path string) {
	emit(LevelLive, info, fmt.Sprintf("*click* %04d -> %s", seq, path))
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	emit(LevelVerbose, dbg, fmt.Sprintf(format, args...))
}

// Printf is an alias for Verbose.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	emit(LevelVerbose, dbg, fmt.Sprintf("%s: %+v", name, v))
}

// Section prints a section separator (level 3).
func Section(name string) {
	emit(LevelVerbose, dbg, "━━━ "+name+" ━━━")
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	emit(LevelVerbose, dbg, fmt.Sprintf("Step %d: %s", num, description))
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace).
func Trace(format string, args ...interface{}) {
	emit(LevelTrace, trace, fmt.Sprintf(format, args...))
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	emit(LevelTrace, trace, fmt.Sprintf("[GPIO] %s pin=%d value=%v", operation, pin, value))
}

// --- General functions ---

// Error prints an error (level 1+).
func Error(err error) {
	if err == nil {
		return
	}
	mu.RLock()
	enabled := level >= LevelInfo
	l := logger
	mu.RUnlock()
	if enabled {
		l.Error().Err(err).Msg("error")
	}
}
