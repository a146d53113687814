package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	rdebug "runtime/debug"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/LapseGo/internal/config"
	"github.com/cjeanneret/LapseGo/internal/debug"
)

const longHelp = `Take a picture every --interval seconds between a start and a stop time,
every day, for --multiday days.

The window is either given with --startstop or derived from civil dawn and
dusk at --latitude/--longitude (Raleigh NC when omitted), widened by
--offset hours. Files are written to <dir>/<project>/ as
<project>-YYYY-MM-DD-NNNN.jpg, NNNN restarting at 0000 every day.

Options can also come from a YAML or TOML file (--config), from LAPSEGO_*
environment variables or from a .env file. Flags win over the environment,
which wins over the file.`

var exampleUsage = strings.TrimSpace(`
  lapsego -i 60 -s 07:00,19:30 -p garden
  lapsego -i 30 -o 1 -t 48.85 -g 2.35 --timezone Europe/Paris -m 7 -p paris --web
  lapsego -i 10 -p test -f -d /tmp/lapse -b sftp://pi@nas.local/backups
  lapsego --config configs/garden.yaml`)

func getVersion() string {
	if info, ok := rdebug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var flags *config.Flags

	root := &cobra.Command{
		Use:           "lapsego",
		Short:         "Time-windowed timelapse capture",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, flags)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			err = run(ctx, cfg)
			if errors.Is(err, context.Canceled) {
				debug.Info("Interrupted, exiting")
				return nil
			}
			if err != nil {
				debug.Error(err)
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
			}
			return err
		},
	}
	flags = config.BindFlags(root.Flags())
	return root
}

// resolveConfig merges the config file, the .env file, the environment and
// the flags set on cmd.
func resolveConfig(cmd *cobra.Command, flags *config.Flags) (*config.Config, error) {
	changed := config.Changed(cmd.Flags())
	dotenv, err := config.ReadDotenv(flags.EnvFile, changed[config.FlagEnvFile])
	if err != nil {
		return nil, err
	}
	return flags.Resolve(changed, config.EnvLookup(dotenv))
}
