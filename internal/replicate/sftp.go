package replicate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/domain"
)

// SFTP uploads over SSH. The connection is opened on first use, kept for
// the following files and re-established after a failure.
type SFTP struct {
	target Target
	opts   Options

	mu     sync.Mutex
	conn   *ssh.Client
	client *sftp.Client
}

func NewSFTP(t Target, opts Options) *SFTP {
	opts = opts.withDefaults()
	if opts.KnownHostsFile == "" {
		opts.KnownHostsFile = DefaultKnownHostsFile()
	}
	return &SFTP{target: t, opts: opts}
}

func (s *SFTP) Send(ctx context.Context, localPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConnected(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: sftp connect %s: %v", domain.ErrTransferFailed, s.target.Host, err)
	}

	// Closing the connection is the only way to abort a transfer in flight.
	conn := s.conn
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	err := s.upload(localPath)
	interrupted := !stop()

	if err != nil || interrupted {
		s.reset()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: sftp upload %s: %v", domain.ErrTransferFailed, filepath.Base(localPath), err)
	}
	return nil
}

func (s *SFTP) upload(localPath string) error {
	src, err := s.opts.Fs.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := s.client.MkdirAll(s.target.Dir); err != nil {
		return fmt.Errorf("mkdir %s: %w", s.target.Dir, err)
	}

	name := filepath.Base(localPath)
	final := path.Join(s.target.Dir, name)
	tmp := path.Join(s.target.Dir, tempName(name))

	dst, err := s.client.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.client.Remove(tmp)
		return err
	}

	if err := s.client.PosixRename(tmp, final); err != nil {
		// Servers without the posix-rename extension refuse to overwrite.
		_ = s.client.Remove(final)
		if err := s.client.Rename(tmp, final); err != nil {
			_ = s.client.Remove(tmp)
			return fmt.Errorf("rename %s: %w", final, err)
		}
	}
	debug.Trace("sftp: %s -> %s:%s (%d bytes)", name, s.target.Host, final, n)
	return nil
}

func (s *SFTP) ensureConnected(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	auth, err := authMethods(s.target.Password, s.opts.KeyPath)
	if err != nil {
		return err
	}
	config := &ssh.ClientConfig{
		User:            s.target.User,
		Auth:            auth,
		HostKeyCallback: TOFUHostKeyCallback(s.opts.KnownHostsFile),
		Timeout:         s.opts.Timeout,
	}

	dialer := net.Dialer{Timeout: s.opts.Timeout}
	raw, err := dialer.DialContext(ctx, "tcp", s.target.Host)
	if err != nil {
		return err
	}
	c, chans, reqs, err := ssh.NewClientConn(raw, s.target.Host, config)
	if err != nil {
		raw.Close()
		return err
	}
	conn := ssh.NewClient(c, chans, reqs)

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return err
	}
	debug.Verbose("sftp: connected to %s as %s", s.target.Host, s.target.User)
	s.conn, s.client = conn, client
	return nil
}

func (s *SFTP) reset() {
	if s.client != nil {
		s.client.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
	s.client, s.conn = nil, nil
}

func (s *SFTP) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

// authMethods prefers the password from the target URL, then keyPath, then
// the usual keys in ~/.ssh.
func authMethods(password, keyPath string) ([]ssh.AuthMethod, error) {
	if password != "" {
		return []ssh.AuthMethod{ssh.Password(password)}, nil
	}

	paths := []string{keyPath}
	if keyPath == "" {
		paths = nil
		if home, err := os.UserHomeDir(); err == nil {
			paths = []string{
				filepath.Join(home, ".ssh", "id_ed25519"),
				filepath.Join(home, ".ssh", "id_ecdsa"),
				filepath.Join(home, ".ssh", "id_rsa"),
			}
		}
	}
	for _, p := range paths {
		pemBytes, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(pemBytes)
		if err != nil {
			var ppErr *ssh.PassphraseMissingError
			if errors.As(err, &ppErr) {
				return nil, fmt.Errorf("SSH key %q is passphrase-protected, which is not supported", p)
			}
			continue
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return nil, fmt.Errorf("no SSH credentials: put a password in the target URL or provide a key (tried %s)", strings.Join(paths, ", "))
}
