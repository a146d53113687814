package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/cjeanneret/LapseGo/internal/clock"
	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/domain"
)

// Device produces one raw image file per call and returns its path.
type Device interface {
	Capture(ctx context.Context) (string, error)
}

// Transport copies a finished file to the replication target.
type Transport interface {
	Send(ctx context.Context, localPath string) error
}

// Station turns raw device output into numbered files of a Session and
// optionally replicates them.
type Station struct {
	device    Device
	transport Transport
	fs        afero.Fs
	clock     clock.Clock
}

// Option configures a Station.
type Option func(*Station)

// WithTransport enables replication of every captured file.
func WithTransport(t Transport) Option {
	return func(s *Station) { s.transport = t }
}

// WithFs replaces the filesystem used for moving files (afero.NewOsFs by default).
func WithFs(fs afero.Fs) Option {
	return func(s *Station) { s.fs = fs }
}

// WithClock replaces the clock used to time replication.
func WithClock(c clock.Clock) Option {
	return func(s *Station) { s.clock = c }
}

func NewStation(d Device, opts ...Option) *Station {
	s := &Station{
		device: d,
		fs:     afero.NewOsFs(),
		clock:  clock.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReplicationEnabled reports whether a transport is configured.
func (s *Station) ReplicationEnabled() bool {
	return s.transport != nil
}

// Capture takes one picture and stores it as the session's next file.
// On success the sequence number is incremented by one; on failure it is
// left unchanged and no file with that number exists.
func (s *Station) Capture(ctx context.Context, sess *Session) (string, error) {
	raw, err := s.device.Capture(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrCaptureFailed) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", domain.ErrCaptureFailed, err)
		}
		return "", err
	}

	final := sess.NextPath()
	if err := s.place(raw, final); err != nil {
		_ = s.fs.Remove(raw)
		return "", fmt.Errorf("%w: store %s: %w", domain.ErrCaptureFailed, filepath.Base(final), err)
	}

	debug.Shot(sess.Sequence, final)
	sess.Sequence++
	return final, nil
}

// Replicate sends path through the transport and returns how long it took.
// The duration is returned even when the transfer fails.
func (s *Station) Replicate(ctx context.Context, sess *Session, path string) (time.Duration, error) {
	if s.transport == nil {
		return 0, nil
	}
	start := s.clock.Now()
	err := s.transport.Send(ctx, path)
	elapsed := s.clock.Now().Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	if err != nil {
		if !errors.Is(err, domain.ErrTransferFailed) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
		}
		return elapsed, err
	}
	debug.Live("Replicated %s (%s) in %v", filepath.Base(path), sess.BaseName, elapsed)
	return elapsed, nil
}

// place moves raw to final atomically. A rename is tried first; only when
// it fails with EXDEV is the data copied to a temporary file next to final
// which is then renamed, so final either exists complete or not at all.
func (s *Station) place(raw, final string) error {
	if raw == final {
		return nil
	}
	err := s.fs.Rename(raw, final)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	debug.Verbose("Rename %s across filesystems, copying", filepath.Base(raw))

	tmp := final + ".part"
	if err := s.copyFile(raw, tmp); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Remove(raw); err != nil {
		debug.Warn("Could not remove raw capture %s: %v", raw, err)
	}
	return nil
}

func (s *Station) copyFile(from, to string) error {
	src, err := s.fs.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := s.fs.OpenFile(to, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o664)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
