// Package config holds the run configuration: defaults, the optional
// YAML/TOML file, LAPSEGO_* environment overrides and command line flags.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/LapseGo/internal/domain"
	"github.com/cjeanneret/LapseGo/internal/hw/camera"
	"github.com/cjeanneret/LapseGo/internal/logic/window"
	"github.com/cjeanneret/LapseGo/internal/sun"
)

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 64 << 10

// DefaultDir is where project directories are created.
const DefaultDir = "/data"

// DefaultWebPort is used when --web is given without a value.
const DefaultWebPort = 8080

// CameraConfig selects and tunes the capture device.
type CameraConfig struct {
	Type           string `yaml:"type" toml:"type"`                         // auto, gphoto2, faux or gpio
	FocusPin       int    `yaml:"focus_pin" toml:"focus_pin"`               // BCM pin of the FOCUS line (gpio)
	ShutterPin     int    `yaml:"shutter_pin" toml:"shutter_pin"`           // BCM pin of the SHUTTER line (gpio)
	FocusDelayMs   int    `yaml:"focus_delay_ms" toml:"focus_delay_ms"`     // autofocus delay (ms)
	ShutterDelayMs int    `yaml:"shutter_delay_ms" toml:"shutter_delay_ms"` // shutter hold time (ms)
	IngestDir      string `yaml:"ingest_dir" toml:"ingest_dir"`             // where a gpio-released camera drops its files
	IngestTimeoutS int    `yaml:"ingest_timeout_s" toml:"ingest_timeout_s"` // how long to wait for that file (s)
}

// BackupConfig describes the replication target.
type BackupConfig struct {
	Target         string `yaml:"target" toml:"target"` // path, file://, sftp:// or ftp:// URL; empty disables
	KnownHostsFile string `yaml:"known_hosts" toml:"known_hosts"`
	SSHKey         string `yaml:"ssh_key" toml:"ssh_key"`
	TimeoutS       int    `yaml:"timeout_s" toml:"timeout_s"`
}

// Config aggregates all application configuration.
type Config struct {
	Interval   int          `yaml:"interval" toml:"interval"` // seconds between captures
	Start      string       `yaml:"start" toml:"start"`       // HH:MM, set together with Stop
	Stop       string       `yaml:"stop" toml:"stop"`
	Offset     int          `yaml:"offset" toml:"offset"` // hours before dawn and after dusk
	Days       int          `yaml:"days" toml:"days"`
	Dir        string       `yaml:"dir" toml:"dir"`
	Project    string       `yaml:"project" toml:"project"`
	Latitude   *float64     `yaml:"latitude,omitempty" toml:"latitude,omitempty"`
	Longitude  *float64     `yaml:"longitude,omitempty" toml:"longitude,omitempty"`
	Timezone   string       `yaml:"timezone" toml:"timezone"` // IANA name, empty for local time
	Camera     CameraConfig `yaml:"camera" toml:"camera"`
	Backup     BackupConfig `yaml:"backup" toml:"backup"`
	WebPort    int          `yaml:"web_port" toml:"web_port"`       // 0 disables the status server
	DebugLevel int          `yaml:"debug_level" toml:"debug_level"` // 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	Verbose    bool         `yaml:"verbose" toml:"verbose"`
	MockGPIO   bool         `yaml:"mock_gpio" toml:"mock_gpio"`
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	trig := camera.DefaultTriggerConfig()
	return &Config{
		Days:       1,
		Dir:        DefaultDir,
		DebugLevel: 1,
		Camera: CameraConfig{
			Type:           string(camera.KindAuto),
			FocusPin:       trig.FocusPin,
			ShutterPin:     trig.ShutterPin,
			FocusDelayMs:   int(trig.FocusDelay / time.Millisecond),
			ShutterDelayMs: int(trig.ShutterDelay / time.Millisecond),
			IngestTimeoutS: int(trig.Timeout / time.Second),
		},
		Backup: BackupConfig{TimeoutS: 30},
	}
}

// ValidateConfigPath rejects paths that are not a .yaml or .toml file
// directly inside a directory named "configs".
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q: traversal not allowed", path)
		}
	}
	switch filepath.Ext(path) {
	case ".yaml", ".toml":
	default:
		return fmt.Errorf("config path %q: want a .yaml or .toml file", path)
	}
	clean := filepath.Clean(path)
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q: file must live in a configs directory", path)
	}
	return nil
}

// Load reads a YAML or TOML file, picked by extension, over the defaults.
// Unknown keys are ignored.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, MaxConfigFileBytes)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("config file %s is empty", path)
	}

	cfg := Default()
	switch filepath.Ext(path) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}
	return cfg, nil
}

// Validate checks the merged configuration and fills derived defaults.
// Mutually exclusive options wrap domain.ErrConfigurationConflict, the rest
// domain.ErrInvalidConfiguration.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be > 0 seconds, got %d", domain.ErrInvalidConfiguration, c.Interval)
	}
	if strings.TrimSpace(c.Project) == "" {
		return fmt.Errorf("%w: project is required", domain.ErrInvalidConfiguration)
	}
	if strings.ContainsAny(c.Project, `/\`) || c.Project == "." || c.Project == ".." {
		return fmt.Errorf("%w: project %q must be a plain directory name", domain.ErrInvalidConfiguration, c.Project)
	}
	if c.Dir == "" {
		c.Dir = DefaultDir
	}
	if c.Days <= 0 {
		c.Days = 1
	}

	if (c.Start == "") != (c.Stop == "") {
		return fmt.Errorf("%w: start and stop must be given together", domain.ErrInvalidConfiguration)
	}
	if c.Start != "" {
		if c.Offset != 0 {
			return fmt.Errorf("%w: offset cannot be used with start/stop", domain.ErrConfigurationConflict)
		}
		if _, err := window.ParseWindow(c.Start, c.Stop); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
		}
	}
	if c.Offset < -23 || c.Offset > 23 {
		return fmt.Errorf("%w: offset must be within [-23, 23] hours, got %d", domain.ErrInvalidConfiguration, c.Offset)
	}

	if c.Latitude != nil && c.Longitude == nil {
		return fmt.Errorf("%w: latitude requires longitude", domain.ErrConfigurationConflict)
	}
	if c.Longitude != nil && c.Latitude == nil {
		return fmt.Errorf("%w: longitude requires latitude", domain.ErrConfigurationConflict)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	kind, err := camera.ParseKind(c.Camera.Type)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if kind == camera.KindGPIO && c.Camera.IngestDir == "" {
		return fmt.Errorf("%w: gpio camera needs an ingest directory", domain.ErrInvalidConfiguration)
	}
	if c.DebugLevel < 0 || c.DebugLevel > 4 {
		return fmt.Errorf("%w: debug level must be 0-4, got %d", domain.ErrInvalidConfiguration, c.DebugLevel)
	}
	if c.WebPort < 0 || c.WebPort > 65535 {
		return fmt.Errorf("%w: web port must be 0-65535, got %d", domain.ErrInvalidConfiguration, c.WebPort)
	}
	return nil
}

// IntervalDuration returns the target spacing between capture starts.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// Window returns the explicit start/stop window, or nil for a sun-based one.
func (c *Config) Window() (*window.DayWindow, error) {
	if c.Start == "" && c.Stop == "" {
		return nil, nil
	}
	w, err := window.ParseWindow(c.Start, c.Stop)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Location returns the configured place, Raleigh NC when no coordinates are
// set. Timezone overrides the default place's zone too.
func (c *Config) Location() (sun.Location, error) {
	loc := sun.DefaultLocation
	if c.Latitude != nil && c.Longitude != nil {
		loc = sun.Location{Name: "custom", Latitude: *c.Latitude, Longitude: *c.Longitude}
	}
	if c.Timezone != "" {
		loc.Timezone = c.Timezone
	}
	if err := loc.Validate(); err != nil {
		return sun.Location{}, err
	}
	return loc, nil
}

// ProjectDir is the directory the numbered captures are written to.
func (c *Config) ProjectDir() string {
	return filepath.Join(c.Dir, c.Project)
}

// LogLevel is the effective debug level; Verbose raises it to 3.
func (c *Config) LogLevel() int {
	if c.Verbose && c.DebugLevel < 3 {
		return 3
	}
	return c.DebugLevel
}

// CameraKind returns the parsed camera selection.
func (c *Config) CameraKind() camera.Kind {
	k, err := camera.ParseKind(c.Camera.Type)
	if err != nil {
		return camera.KindAuto
	}
	return k
}

// Trigger returns the GPIO release settings.
func (c *Config) Trigger() camera.TriggerConfig {
	t := camera.DefaultTriggerConfig()
	if c.Camera.FocusPin > 0 {
		t.FocusPin = c.Camera.FocusPin
	}
	if c.Camera.ShutterPin > 0 {
		t.ShutterPin = c.Camera.ShutterPin
	}
	if c.Camera.FocusDelayMs > 0 {
		t.FocusDelay = time.Duration(c.Camera.FocusDelayMs) * time.Millisecond
	}
	if c.Camera.ShutterDelayMs > 0 {
		t.ShutterDelay = time.Duration(c.Camera.ShutterDelayMs) * time.Millisecond
	}
	if c.Camera.IngestTimeoutS > 0 {
		t.Timeout = time.Duration(c.Camera.IngestTimeoutS) * time.Second
	}
	t.IngestDir = c.Camera.IngestDir
	return t
}

// BackupTimeout bounds connection setup to the replication target.
func (c *Config) BackupTimeout() time.Duration {
	if c.Backup.TimeoutS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Backup.TimeoutS) * time.Second
}
