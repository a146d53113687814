package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LAPSEGO_"

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// ReadDotenv parses a .env file. A missing file is not an error unless
// required is set.
func ReadDotenv(path string, required bool) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return vals, nil
}

// EnvLookup resolves keys from the process environment first, then from
// dotenv.
func EnvLookup(dotenv map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

// ApplyEnv overlays LAPSEGO_* variables on cfg, skipping every option whose
// flag was set on the command line.
func ApplyEnv(cfg *Config, changed map[string]bool, lookup LookupFunc) error {
	s := newConfigSetter(changed)
	get := func(name string) string {
		v, _ := lookup(EnvPrefix + name)
		return strings.TrimSpace(v)
	}

	s.setString(FlagStartStop, get("START"), &cfg.Start)
	s.setString(FlagStartStop, get("STOP"), &cfg.Stop)
	s.setString(FlagDir, get("DIR"), &cfg.Dir)
	s.setString(FlagProject, get("PROJECT"), &cfg.Project)
	s.setString(FlagTimezone, get("TIMEZONE"), &cfg.Timezone)
	s.setString(FlagBackup, get("BACKUP"), &cfg.Backup.Target)
	s.setString(FlagKnownHosts, get("KNOWN_HOSTS"), &cfg.Backup.KnownHostsFile)
	s.setString(FlagSSHKey, get("SSH_KEY"), &cfg.Backup.SSHKey)
	s.setString(FlagCamera, get("CAMERA"), &cfg.Camera.Type)
	s.setString(FlagIngestDir, get("INGEST_DIR"), &cfg.Camera.IngestDir)
	s.setBoolFromString(FlagVerbose, get("VERBOSE"), &cfg.Verbose)
	s.setBoolFromString(FlagMockGPIO, get("MOCK_GPIO"), &cfg.MockGPIO)

	ints := []struct {
		flag, name string
		dst        *int
	}{
		{FlagInterval, "INTERVAL", &cfg.Interval},
		{FlagOffset, "OFFSET", &cfg.Offset},
		{FlagDays, "DAYS", &cfg.Days},
		{FlagDebugLevel, "DEBUG_LEVEL", &cfg.DebugLevel},
		{FlagWeb, "WEB_PORT", &cfg.WebPort},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, get(i.name), i.dst); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, i.name, err)
		}
	}
	if err := s.setFloatFromString(FlagLatitude, get("LATITUDE"), &cfg.Latitude); err != nil {
		return fmt.Errorf("%sLATITUDE: %w", EnvPrefix, err)
	}
	if err := s.setFloatFromString(FlagLongitude, get("LONGITUDE"), &cfg.Longitude); err != nil {
		return fmt.Errorf("%sLONGITUDE: %w", EnvPrefix, err)
	}
	return nil
}

// configSetter applies a value only when the matching flag was not
// explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntFromString accepts zero and negative values; offsets can be negative.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

func (s *configSetter) setFloatFromString(flag, value string, dst **float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = &f
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
