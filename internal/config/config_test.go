package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/cjeanneret/LapseGo/internal/domain"
	"github.com/cjeanneret/LapseGo/internal/hw/camera"
	"github.com/cjeanneret/LapseGo/internal/logic/window"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"default.yaml", "default.toml", "con fig.yaml", "café.toml"} {
		if err := ValidateConfigPath(filepath.Join(cfgDir, name)); err != nil {
			t.Errorf("%s: expected valid path, got error: %v", name, err)
		}
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
		"configs/../configs/ok.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.toml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir holding name with content and returns the path.
func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	cfgDir := filepath.Join(t.TempDir(), "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
interval: 60
start: "07:00"
stop: "19:30"
days: 3
dir: /srv/lapse
project: garden
latitude: 48.85
longitude: 2.35
timezone: Europe/Paris
camera:
  type: gpio
  focus_pin: 5
  shutter_pin: 6
  ingest_dir: /var/spool/camera
backup:
  target: sftp://pi@nas.local/backups
debug_level: 2
web_port: 9090
mock_gpio: true
`

const validTOML = `
interval = 120
offset = 1
project = "harbour"

[camera]
type = "faux"

[backup]
target = "/mnt/usb"
timeout_s = 10
`

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "run.yaml", validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Interval != 60 || cfg.Start != "07:00" || cfg.Stop != "19:30" {
		t.Errorf("interval/start/stop = %d %q %q", cfg.Interval, cfg.Start, cfg.Stop)
	}
	if cfg.Days != 3 || cfg.Dir != "/srv/lapse" || cfg.Project != "garden" {
		t.Errorf("days/dir/project = %d %q %q", cfg.Days, cfg.Dir, cfg.Project)
	}
	if cfg.Latitude == nil || *cfg.Latitude != 48.85 {
		t.Errorf("latitude = %v, want 48.85", cfg.Latitude)
	}
	if cfg.Longitude == nil || *cfg.Longitude != 2.35 {
		t.Errorf("longitude = %v, want 2.35", cfg.Longitude)
	}
	if cfg.Camera.Type != "gpio" || cfg.Camera.FocusPin != 5 || cfg.Camera.ShutterPin != 6 {
		t.Errorf("camera = %+v", cfg.Camera)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Camera.FocusDelayMs != 500 || cfg.Camera.ShutterDelayMs != 200 {
		t.Errorf("camera delays = %d/%d, want defaults 500/200", cfg.Camera.FocusDelayMs, cfg.Camera.ShutterDelayMs)
	}
	if cfg.Backup.Target != "sftp://pi@nas.local/backups" || cfg.Backup.TimeoutS != 30 {
		t.Errorf("backup = %+v", cfg.Backup)
	}
	if cfg.DebugLevel != 2 || cfg.WebPort != 9090 || !cfg.MockGPIO {
		t.Errorf("debug/web/mock = %d %d %v", cfg.DebugLevel, cfg.WebPort, cfg.MockGPIO)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoad_TOML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "run.toml", validTOML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Interval != 120 || cfg.Offset != 1 || cfg.Project != "harbour" {
		t.Errorf("interval/offset/project = %d %d %q", cfg.Interval, cfg.Offset, cfg.Project)
	}
	if cfg.Camera.Type != "faux" {
		t.Errorf("camera.type = %q, want faux", cfg.Camera.Type)
	}
	if cfg.Backup.Target != "/mnt/usb" || cfg.Backup.TimeoutS != 10 {
		t.Errorf("backup = %+v", cfg.Backup)
	}
	if cfg.Dir != DefaultDir || cfg.Days != 1 {
		t.Errorf("dir/days = %q %d, want defaults", cfg.Dir, cfg.Days)
	}
}

func TestLoad_UnknownFieldsIgnored(t *testing.T) {
	cfg, err := Load(writeConfig(t, "run.yaml", "interval: 10\nproject: p\npan_stepper:\n  step_pin: 17\n"))
	if err != nil {
		t.Fatalf("unknown fields should be ignored: %v", err)
	}
	if cfg.Interval != 10 {
		t.Errorf("interval = %d, want 10", cfg.Interval)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	if _, err := Load(writeConfig(t, "run.yaml", "  \n")); err == nil {
		t.Error("expected error for empty file")
	}
}

func TestLoad_TooLarge(t *testing.T) {
	big := "project: p\n# " + strings.Repeat("x", MaxConfigFileBytes) + "\n"
	if _, err := Load(writeConfig(t, "run.yaml", big)); err == nil {
		t.Error("expected error for oversized file")
	}
}

func TestLoad_Malformed(t *testing.T) {
	if _, err := Load(writeConfig(t, "run.yaml", "interval: [1, 2\n")); err == nil {
		t.Error("expected error for malformed yaml")
	}
	if _, err := Load(writeConfig(t, "run.toml", "interval = \n")); err == nil {
		t.Error("expected error for malformed toml")
	}
}

func TestLoad_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "absent.yaml")
	if _, err := Load(path); err == nil {
		t.Error("expected error for missing file")
	}
}

// ---------- Validate ----------

func ptr(f float64) *float64 { return &f }

func validConfig() *Config {
	c := Default()
	c.Interval = 60
	c.Project = "garden"
	return c
}

func TestValidate_Accepts(t *testing.T) {
	c := validConfig()
	c.Days = 0
	c.Dir = ""
	c.Start, c.Stop = "07:00", "19:30"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Days != 1 {
		t.Errorf("days = %d, want 1", c.Days)
	}
	if c.Dir != DefaultDir {
		t.Errorf("dir = %q, want %q", c.Dir, DefaultDir)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"zero interval", func(c *Config) { c.Interval = 0 }, domain.ErrInvalidConfiguration},
		{"missing project", func(c *Config) { c.Project = " " }, domain.ErrInvalidConfiguration},
		{"project with slash", func(c *Config) { c.Project = "a/b" }, domain.ErrInvalidConfiguration},
		{"start without stop", func(c *Config) { c.Start = "07:00" }, domain.ErrInvalidConfiguration},
		{"bad time", func(c *Config) { c.Start, c.Stop = "07:00", "25:00" }, domain.ErrInvalidConfiguration},
		{"startstop with offset", func(c *Config) { c.Start, c.Stop, c.Offset = "07:00", "19:00", 1 }, domain.ErrConfigurationConflict},
		{"offset too large", func(c *Config) { c.Offset = 30 }, domain.ErrInvalidConfiguration},
		{"latitude alone", func(c *Config) { c.Latitude = ptr(45) }, domain.ErrConfigurationConflict},
		{"longitude alone", func(c *Config) { c.Longitude = ptr(2) }, domain.ErrConfigurationConflict},
		{"latitude out of range", func(c *Config) { c.Latitude, c.Longitude = ptr(100), ptr(2) }, domain.ErrLocationUnresolvable},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, domain.ErrLocationUnresolvable},
		{"unknown camera", func(c *Config) { c.Camera.Type = "polaroid" }, domain.ErrInvalidConfiguration},
		{"gpio without ingest dir", func(c *Config) { c.Camera.Type = "gpio" }, domain.ErrInvalidConfiguration},
		{"debug level", func(c *Config) { c.DebugLevel = 7 }, domain.ErrInvalidConfiguration},
		{"web port", func(c *Config) { c.WebPort = 70000 }, domain.ErrInvalidConfiguration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.modify(c)
			err := c.Validate()
			if !errors.Is(err, tc.want) {
				t.Errorf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

// ---------- Accessors ----------

func TestLocation(t *testing.T) {
	c := validConfig()
	loc, err := c.Location()
	if err != nil {
		t.Fatal(err)
	}
	if loc.Latitude != 35.78 || loc.Longitude != -78.64 || loc.Timezone != "America/New_York" {
		t.Errorf("default location = %+v", loc)
	}

	c.Timezone = "UTC"
	loc, _ = c.Location()
	if loc.Timezone != "UTC" || loc.Latitude != 35.78 {
		t.Errorf("timezone override = %+v", loc)
	}

	c.Latitude, c.Longitude = ptr(48.85), ptr(2.35)
	c.Timezone = ""
	loc, _ = c.Location()
	if loc.Latitude != 48.85 || loc.Longitude != 2.35 || loc.Timezone != "" {
		t.Errorf("custom location = %+v", loc)
	}
}

func TestWindow(t *testing.T) {
	c := validConfig()
	w, err := c.Window()
	if err != nil || w != nil {
		t.Errorf("sun-based window = %v, %v; want nil, nil", w, err)
	}

	c.Start, c.Stop = "07:05", "19:30"
	w, err = c.Window()
	if err != nil {
		t.Fatal(err)
	}
	want := window.DayWindow{Start: window.TimeOfDay{Hour: 7, Minute: 5}, Stop: window.TimeOfDay{Hour: 19, Minute: 30}}
	if *w != want {
		t.Errorf("window = %v, want %v", *w, want)
	}
}

func TestDerivedValues(t *testing.T) {
	c := validConfig()
	c.Dir = "/data"
	if got := c.ProjectDir(); got != filepath.Join("/data", "garden") {
		t.Errorf("ProjectDir() = %q", got)
	}
	if got := c.IntervalDuration(); got != time.Minute {
		t.Errorf("IntervalDuration() = %v", got)
	}
	if got := c.BackupTimeout(); got != 30*time.Second {
		t.Errorf("BackupTimeout() = %v", got)
	}

	c.DebugLevel = 1
	c.Verbose = true
	if got := c.LogLevel(); got != 3 {
		t.Errorf("LogLevel() with verbose = %d, want 3", got)
	}
	c.DebugLevel = 4
	if got := c.LogLevel(); got != 4 {
		t.Errorf("LogLevel() = %d, want 4", got)
	}
}

func TestTrigger(t *testing.T) {
	c := validConfig()
	c.Camera.FocusPin = 5
	c.Camera.ShutterDelayMs = 350
	c.Camera.IngestDir = "/var/spool/camera"
	c.Camera.IngestTimeoutS = 0

	tr := c.Trigger()
	def := camera.DefaultTriggerConfig()
	if tr.FocusPin != 5 || tr.ShutterPin != def.ShutterPin {
		t.Errorf("pins = %d/%d", tr.FocusPin, tr.ShutterPin)
	}
	if tr.ShutterDelay != 350*time.Millisecond || tr.FocusDelay != def.FocusDelay {
		t.Errorf("delays = %v/%v", tr.FocusDelay, tr.ShutterDelay)
	}
	if tr.Timeout != def.Timeout || tr.IngestDir != "/var/spool/camera" {
		t.Errorf("ingest = %q %v", tr.IngestDir, tr.Timeout)
	}
	if c.CameraKind() != camera.KindAuto {
		t.Errorf("CameraKind() = %q", c.CameraKind())
	}
}

// ---------- Flags and environment ----------

func parse(t *testing.T, args ...string) (*Flags, map[string]bool) {
	t.Helper()
	fs := pflag.NewFlagSet("lapsego", pflag.ContinueOnError)
	f := BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return f, Changed(fs)
}

func lookupMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestFlags_Resolve(t *testing.T) {
	f, changed := parse(t, "-i", "60", "-s", "07:00,19:30", "-p", "garden", "-f",
		"-t", "48.85", "-g", "2.35", "-m", "2", "--web", "-v")
	cfg, err := f.Resolve(changed, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Interval != 60 || cfg.Start != "07:00" || cfg.Stop != "19:30" || cfg.Days != 2 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Camera.Type != string(camera.KindFaux) {
		t.Errorf("camera.type = %q, want faux", cfg.Camera.Type)
	}
	if *cfg.Latitude != 48.85 || *cfg.Longitude != 2.35 {
		t.Errorf("coordinates = %v/%v", *cfg.Latitude, *cfg.Longitude)
	}
	if cfg.WebPort != DefaultWebPort {
		t.Errorf("web port = %d, want %d", cfg.WebPort, DefaultWebPort)
	}
	if cfg.Dir != DefaultDir || !cfg.Verbose {
		t.Errorf("dir/verbose = %q %v", cfg.Dir, cfg.Verbose)
	}
}

func TestFlags_StartStopNeedsTwoTimes(t *testing.T) {
	f, changed := parse(t, "-i", "60", "-p", "garden", "-s", "07:00")
	if _, err := f.Resolve(changed, nil); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Errorf("err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestFlags_OffsetWithStartStop(t *testing.T) {
	f, changed := parse(t, "-i", "60", "-p", "garden", "-s", "07:00,19:00", "-o", "2")
	if _, err := f.Resolve(changed, nil); !errors.Is(err, domain.ErrConfigurationConflict) {
		t.Errorf("err = %v, want ErrConfigurationConflict", err)
	}
}

func TestFlags_LongitudeWithoutLatitude(t *testing.T) {
	f, changed := parse(t, "-i", "60", "-p", "garden", "-g", "2.35")
	if _, err := f.Resolve(changed, nil); !errors.Is(err, domain.ErrConfigurationConflict) {
		t.Errorf("err = %v, want ErrConfigurationConflict", err)
	}
}

func TestResolve_Precedence(t *testing.T) {
	path := writeConfig(t, "run.yaml", "interval: 30\nproject: fromfile\ndays: 4\ndir: /srv/file\n")
	f, changed := parse(t, "--config", path, "-p", "fromflag")
	env := lookupMap(map[string]string{
		"LAPSEGO_INTERVAL": "45",
		"LAPSEGO_PROJECT":  "fromenv",
		"LAPSEGO_DIR":      "/srv/env",
	})

	cfg, err := f.Resolve(changed, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Project != "fromflag" {
		t.Errorf("project = %q, flag should win", cfg.Project)
	}
	if cfg.Interval != 45 || cfg.Dir != "/srv/env" {
		t.Errorf("interval/dir = %d %q, env should beat the file", cfg.Interval, cfg.Dir)
	}
	if cfg.Days != 4 {
		t.Errorf("days = %d, file should beat the default", cfg.Days)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := validConfig()
	env := lookupMap(map[string]string{
		"LAPSEGO_OFFSET":    "-2",
		"LAPSEGO_LATITUDE":  "51.5",
		"LAPSEGO_LONGITUDE": "-0.12",
		"LAPSEGO_MOCK_GPIO": "1",
		"LAPSEGO_START":     "06:00",
		"LAPSEGO_INTERVAL":  "5",
	})
	if err := ApplyEnv(cfg, map[string]bool{FlagInterval: true, FlagStartStop: true}, env); err != nil {
		t.Fatal(err)
	}
	if cfg.Offset != -2 || !cfg.MockGPIO {
		t.Errorf("offset/mock = %d %v", cfg.Offset, cfg.MockGPIO)
	}
	if *cfg.Latitude != 51.5 || *cfg.Longitude != -0.12 {
		t.Errorf("coordinates = %v/%v", *cfg.Latitude, *cfg.Longitude)
	}
	if cfg.Interval != 60 || cfg.Start != "" {
		t.Errorf("interval/start = %d %q, changed flags must not be overridden", cfg.Interval, cfg.Start)
	}

	bad := lookupMap(map[string]string{"LAPSEGO_OFFSET": "two"})
	if err := ApplyEnv(validConfig(), nil, bad); err == nil {
		t.Error("expected parse error")
	}
}

func TestReadDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("LAPSEGO_PROJECT=dotenv\nLAPSEGO_INTERVAL=15\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	vals, err := ReadDotenv(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if vals["LAPSEGO_PROJECT"] != "dotenv" || vals["LAPSEGO_INTERVAL"] != "15" {
		t.Errorf("vals = %v", vals)
	}

	missing := filepath.Join(t.TempDir(), ".env")
	if vals, err := ReadDotenv(missing, false); err != nil || vals != nil {
		t.Errorf("optional missing file = %v, %v", vals, err)
	}
	if _, err := ReadDotenv(missing, true); err == nil {
		t.Error("expected error for required missing file")
	}
}

func TestEnvLookup_ProcessEnvWins(t *testing.T) {
	t.Setenv("LAPSEGO_PROJECT", "real")
	lookup := EnvLookup(map[string]string{"LAPSEGO_PROJECT": "dotenv", "LAPSEGO_DIR": "/srv/dotenv"})
	if v, _ := lookup("LAPSEGO_PROJECT"); v != "real" {
		t.Errorf("project = %q, want real", v)
	}
	if v, _ := lookup("LAPSEGO_DIR"); v != "/srv/dotenv" {
		t.Errorf("dir = %q, want /srv/dotenv", v)
	}
}
