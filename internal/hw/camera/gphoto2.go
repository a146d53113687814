package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/domain"
)

// Runner executes an external command in dir and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

const gphoto2Bin = "gphoto2"

// GPhoto2 captures with a USB tethered camera through the gphoto2 CLI.
// The image is downloaded into dir under the camera's own file name. When
// the camera saves several files per shot (RAW+JPEG) only the one returned
// by SavedFile is kept.
type GPhoto2 struct {
	fs     afero.Fs
	runner Runner
	dir    string
}

func NewGPhoto2(fs afero.Fs, r Runner, dir string) *GPhoto2 {
	return &GPhoto2{fs: fs, runner: r, dir: dir}
}

func (g *GPhoto2) Capture(ctx context.Context) (string, error) {
	out, err := g.runner.Run(ctx, g.dir, gphoto2Bin, "--capture-image-and-download", "--force-overwrite")
	debug.Trace("gphoto2: %s", bytes.TrimSpace(out))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: gphoto2: %v: %s", domain.ErrCaptureFailed, err, lastLine(out))
	}

	saved := SavedFiles(out)
	name := pickSaved(saved)
	if name == "" {
		return "", fmt.Errorf("%w: gphoto2 reported no saved file: %s", domain.ErrCaptureFailed, lastLine(out))
	}
	for _, other := range saved {
		if other == name {
			continue
		}
		if err := g.fs.Remove(g.abs(other)); err != nil {
			debug.Warn("Could not remove extra capture %s: %v", other, err)
		}
	}
	return g.abs(name), nil
}

func (g *GPhoto2) abs(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(g.dir, name)
}

// SavedFiles lists the file names of gphoto2's "Saving file as <name>" lines.
func SavedFiles(out []byte) []string {
	const marker = "Saving file as "
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		i := strings.Index(line, marker)
		if i < 0 {
			continue
		}
		if name := strings.TrimSpace(line[i+len(marker):]); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// SavedFile returns the file kept from a capture. With RAW+JPEG the JPEG is
// preferred; otherwise the first file wins.
func SavedFile(out []byte) string {
	return pickSaved(SavedFiles(out))
}

func pickSaved(names []string) string {
	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		if ext == ".jpg" || ext == ".jpeg" {
			return name
		}
	}
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// Detect asks gphoto2 for attached cameras. Its listing always carries a
// two-line header, so more than two lines means a camera is present.
func Detect(ctx context.Context, r Runner) (bool, error) {
	out, err := r.Run(ctx, "", gphoto2Bin, "--auto-detect")
	if err != nil {
		return false, fmt.Errorf("gphoto2 --auto-detect: %w", err)
	}
	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			lines++
		}
	}
	debug.Verbose("gphoto2 --auto-detect: %d line(s)", lines)
	return lines > 2, nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
