package camera

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/domain"
)

// Faux stands in for a camera: each capture creates an empty placeholder
// file, which exercises naming, cadence and replication without hardware.
type Faux struct {
	fs  afero.Fs
	dir string
}

func NewFaux(fs afero.Fs, dir string) *Faux {
	return &Faux{fs: fs, dir: dir}
}

func (f *Faux) Capture(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(f.dir, "faux-"+uuid.NewString()+".jpg")
	if err := afero.WriteFile(f.fs, path, nil, 0o664); err != nil {
		return "", fmt.Errorf("%w: faux capture: %v", domain.ErrCaptureFailed, err)
	}
	debug.Trace("Faux capture %s", path)
	return path, nil
}
