package config

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/cjeanneret/LapseGo/internal/domain"
	"github.com/cjeanneret/LapseGo/internal/hw/camera"
)

// Flag names, also used as keys of the changed-flag map.
const (
	FlagConfig     = "config"
	FlagEnvFile    = "env-file"
	FlagInterval   = "interval"
	FlagStartStop  = "startstop"
	FlagOffset     = "offset"
	FlagDays       = "multiday"
	FlagDir        = "dir"
	FlagProject    = "project"
	FlagFaux       = "faux"
	FlagLatitude   = "latitude"
	FlagLongitude  = "longitude"
	FlagTimezone   = "timezone"
	FlagBackup     = "backup"
	FlagVerbose    = "verbose"
	FlagCamera     = "camera"
	FlagIngestDir  = "ingest-dir"
	FlagKnownHosts = "known-hosts"
	FlagSSHKey     = "ssh-key"
	FlagDebugLevel = "debug-level"
	FlagWeb        = "web"
	FlagMockGPIO   = "mock-gpio"
)

// Flags holds the raw command line values until they are merged.
type Flags struct {
	ConfigPath string
	EnvFile    string

	cfg       Config
	startStop []string
	latitude  float64
	longitude float64
	faux      bool
}

// BindFlags registers every option on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{}
	d := Default()

	fs.StringVar(&f.ConfigPath, FlagConfig, "", "YAML or TOML config file inside a configs/ directory")
	fs.StringVar(&f.EnvFile, FlagEnvFile, ".env", "dotenv file with LAPSEGO_* overrides")

	fs.IntVarP(&f.cfg.Interval, FlagInterval, "i", 0, "seconds between captures (required)")
	fs.StringSliceVarP(&f.startStop, FlagStartStop, "s", nil, "start and stop times, HH:MM,HH:MM")
	fs.IntVarP(&f.cfg.Offset, FlagOffset, "o", 0, "hours to start before dawn and stop after dusk")
	fs.IntVarP(&f.cfg.Days, FlagDays, "m", d.Days, "number of days to run")
	fs.StringVarP(&f.cfg.Dir, FlagDir, "d", d.Dir, "output directory")
	fs.StringVarP(&f.cfg.Project, FlagProject, "p", "", "project name, used as subdirectory and file prefix (required)")
	fs.BoolVarP(&f.faux, FlagFaux, "f", false, "create empty files instead of using a camera")
	fs.Float64VarP(&f.latitude, FlagLatitude, "t", 0, "latitude for dawn/dusk")
	fs.Float64VarP(&f.longitude, FlagLongitude, "g", 0, "longitude for dawn/dusk")
	fs.StringVar(&f.cfg.Timezone, FlagTimezone, "", "IANA time zone of the window (default local)")
	fs.StringVarP(&f.cfg.Backup.Target, FlagBackup, "b", "", "replication target: path, file://, sftp:// or ftp:// URL")
	fs.StringVar(&f.cfg.Backup.KnownHostsFile, FlagKnownHosts, "", "known_hosts file for sftp targets")
	fs.StringVar(&f.cfg.Backup.SSHKey, FlagSSHKey, "", "private key for sftp targets")
	fs.BoolVarP(&f.cfg.Verbose, FlagVerbose, "v", false, "verbose output")
	fs.StringVar(&f.cfg.Camera.Type, FlagCamera, d.Camera.Type, "camera: auto, gphoto2, faux or gpio")
	fs.StringVar(&f.cfg.Camera.IngestDir, FlagIngestDir, "", "directory a gpio-released camera writes to")
	fs.IntVar(&f.cfg.DebugLevel, FlagDebugLevel, d.DebugLevel, "debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)")
	fs.IntVar(&f.cfg.WebPort, FlagWeb, 0, "serve the status page on this port (bare --web uses 8080)")
	fs.Lookup(FlagWeb).NoOptDefVal = strconv.Itoa(DefaultWebPort)
	fs.BoolVar(&f.cfg.MockGPIO, FlagMockGPIO, false, "use the mock GPIO driver")

	return f
}

// Changed returns the names of the flags set on the command line.
func Changed(fs *pflag.FlagSet) map[string]bool {
	changed := make(map[string]bool)
	fs.Visit(func(f *pflag.Flag) {
		changed[f.Name] = true
	})
	return changed
}

// Apply copies the flags present in changed onto dst.
func (f *Flags) Apply(dst *Config, changed map[string]bool) error {
	if changed[FlagStartStop] {
		if len(f.startStop) != 2 {
			return fmt.Errorf("%w: --startstop takes two times, got %d", domain.ErrInvalidConfiguration, len(f.startStop))
		}
		dst.Start, dst.Stop = f.startStop[0], f.startStop[1]
	}
	if changed[FlagLatitude] {
		lat := f.latitude
		dst.Latitude = &lat
	}
	if changed[FlagLongitude] {
		lon := f.longitude
		dst.Longitude = &lon
	}

	copyIf := func(flag string, apply func()) {
		if changed[flag] {
			apply()
		}
	}
	copyIf(FlagInterval, func() { dst.Interval = f.cfg.Interval })
	copyIf(FlagOffset, func() { dst.Offset = f.cfg.Offset })
	copyIf(FlagDays, func() { dst.Days = f.cfg.Days })
	copyIf(FlagDir, func() { dst.Dir = f.cfg.Dir })
	copyIf(FlagProject, func() { dst.Project = f.cfg.Project })
	copyIf(FlagTimezone, func() { dst.Timezone = f.cfg.Timezone })
	copyIf(FlagBackup, func() { dst.Backup.Target = f.cfg.Backup.Target })
	copyIf(FlagKnownHosts, func() { dst.Backup.KnownHostsFile = f.cfg.Backup.KnownHostsFile })
	copyIf(FlagSSHKey, func() { dst.Backup.SSHKey = f.cfg.Backup.SSHKey })
	copyIf(FlagVerbose, func() { dst.Verbose = f.cfg.Verbose })
	copyIf(FlagCamera, func() { dst.Camera.Type = f.cfg.Camera.Type })
	copyIf(FlagIngestDir, func() { dst.Camera.IngestDir = f.cfg.Camera.IngestDir })
	copyIf(FlagDebugLevel, func() { dst.DebugLevel = f.cfg.DebugLevel })
	copyIf(FlagWeb, func() { dst.WebPort = f.cfg.WebPort })
	copyIf(FlagMockGPIO, func() { dst.MockGPIO = f.cfg.MockGPIO })

	// --faux wins over --camera.
	if changed[FlagFaux] && f.faux {
		dst.Camera.Type = string(camera.KindFaux)
	}
	return nil
}

// Resolve merges defaults, the config file, the environment and the flags,
// in increasing precedence, and validates the result.
func (f *Flags) Resolve(changed map[string]bool, lookup LookupFunc) (*Config, error) {
	cfg := Default()
	if f.ConfigPath != "" {
		loaded, err := Load(f.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if lookup != nil {
		if err := ApplyEnv(cfg, changed, lookup); err != nil {
			return nil, err
		}
	}
	if err := f.Apply(cfg, changed); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
