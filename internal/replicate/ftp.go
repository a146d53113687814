package replicate

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"path"
	"path/filepath"
	"strings"

	"github.com/jlaffaye/ftp"

	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/domain"
)

// FTP uploads with one control connection per file; idle FTP sessions are
// dropped by most servers long before the next capture.
type FTP struct {
	target Target
	opts   Options
}

func NewFTP(t Target, opts Options) *FTP {
	return &FTP{target: t, opts: opts.withDefaults()}
}

func (f *FTP) Send(ctx context.Context, localPath string) error {
	if err := f.send(ctx, localPath); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: ftp %s: %v", domain.ErrTransferFailed, filepath.Base(localPath), err)
	}
	return nil
}

func (f *FTP) send(ctx context.Context, localPath string) error {
	conn, err := f.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()
	stop := context.AfterFunc(ctx, func() { conn.Quit() })
	defer stop()

	if err := conn.Type(ftp.TransferTypeBinary); err != nil {
		return err
	}
	if err := mkdirAll(conn, f.target.Dir); err != nil {
		return fmt.Errorf("mkdir %s: %w", f.target.Dir, err)
	}

	src, err := f.opts.Fs.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	name := filepath.Base(localPath)
	final := path.Join(f.target.Dir, name)
	tmp := path.Join(f.target.Dir, tempName(name))
	if err := conn.Stor(tmp, src); err != nil {
		_ = conn.Delete(tmp)
		return fmt.Errorf("store %s: %w", tmp, err)
	}
	if err := conn.Rename(tmp, final); err != nil {
		_ = conn.Delete(final)
		if err := conn.Rename(tmp, final); err != nil {
			_ = conn.Delete(tmp)
			return fmt.Errorf("rename %s: %w", final, err)
		}
	}
	debug.Trace("ftp: %s -> %s:%s", name, f.target.Host, final)
	return nil
}

func (f *FTP) connect(ctx context.Context) (*ftp.ServerConn, error) {
	dialOpts := []ftp.DialOption{
		ftp.DialWithTimeout(f.opts.Timeout),
		ftp.DialWithContext(ctx),
	}
	if f.target.Scheme == "ftps" {
		hostname := f.target.Host
		if h, _, err := net.SplitHostPort(hostname); err == nil {
			hostname = h
		}
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: hostname,
			MinVersion: tls.VersionTLS12,
		}))
	}

	conn, err := ftp.Dial(f.target.Host, dialOpts...)
	if err != nil {
		return nil, err
	}
	if err := conn.Login(f.target.User, f.target.Password); err != nil {
		conn.Quit()
		return nil, err
	}
	return conn, nil
}

// mkdirAll creates each missing component of dir. Errors from MakeDir are
// ignored for existing directories, which servers report inconsistently.
func mkdirAll(conn *ftp.ServerConn, dir string) error {
	if dir == "" || dir == "/" || dir == "." {
		return nil
	}
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		cur = path.Join(cur, part)
		if err := conn.ChangeDir(cur); err == nil {
			continue
		}
		if err := conn.MakeDir(cur); err != nil {
			return err
		}
	}
	return nil
}

func (f *FTP) Close() error { return nil }
