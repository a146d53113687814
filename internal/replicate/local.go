package replicate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/domain"
)

// Local copies files into a directory, typically a mounted USB disk or
// network share.
type Local struct {
	fs  afero.Fs
	dir string
}

func NewLocal(fs afero.Fs, dir string) *Local {
	return &Local{fs: fs, dir: dir}
}

func (l *Local) Send(ctx context.Context, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.fs.MkdirAll(l.dir, 0o775); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", domain.ErrTransferFailed, l.dir, err)
	}

	name := filepath.Base(localPath)
	tmp := filepath.Join(l.dir, tempName(name))
	if err := l.copy(localPath, tmp); err != nil {
		_ = l.fs.Remove(tmp)
		return fmt.Errorf("%w: copy %s: %v", domain.ErrTransferFailed, name, err)
	}
	if err := l.fs.Rename(tmp, filepath.Join(l.dir, name)); err != nil {
		_ = l.fs.Remove(tmp)
		return fmt.Errorf("%w: rename %s: %v", domain.ErrTransferFailed, name, err)
	}
	debug.Trace("Copied %s to %s", name, l.dir)
	return nil
}

func (l *Local) copy(from, to string) error {
	src, err := l.fs.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := l.fs.OpenFile(to, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o664)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (l *Local) Close() error { return nil }
