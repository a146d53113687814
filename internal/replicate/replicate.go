// Package replicate copies finished captures to a backup location: a
// remote host over SFTP or FTP, or another local directory.
package replicate

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Transport sends one local file to the backup location, keeping its base
// name. A file is visible at the destination only once complete.
type Transport interface {
	Send(ctx context.Context, localPath string) error
	Close() error
}

// Options tunes the transports. Zero values pick the defaults.
type Options struct {
	// KnownHostsFile holds trusted SSH host keys (trust on first use).
	KnownHostsFile string
	// KeyPath is an SSH private key used when the target has no password.
	KeyPath string
	// Timeout bounds connection setup.
	Timeout time.Duration
	// Fs is used to read local files and for file targets.
	Fs afero.Fs
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	return o
}

// Target is a parsed backup destination.
type Target struct {
	Scheme   string
	Host     string // host:port, empty for file targets
	User     string
	Password string
	Dir      string
}

// ParseTarget accepts sftp://, ftp://, ftps:// and file:// URLs, or a bare
// directory path. For sftp a path starting with /~/ is relative to the
// login directory.
func ParseTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("empty backup target")
	}
	if !strings.Contains(raw, "://") {
		return Target{Scheme: "file", Dir: path.Clean(raw)}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("parse backup target: %w", err)
	}
	t := Target{Scheme: strings.ToLower(u.Scheme), Dir: u.Path}
	if u.User != nil {
		t.User = u.User.Username()
		t.Password, _ = u.User.Password()
	}

	switch t.Scheme {
	case "file":
		if t.Dir == "" {
			return Target{}, fmt.Errorf("file target %q has no path", Redact(raw))
		}
		t.Dir = path.Clean(t.Dir)
		return t, nil
	case "sftp":
		t.Host = withPort(u.Host, "22")
		if t.User == "" {
			return Target{}, fmt.Errorf("sftp target %q has no user", Redact(raw))
		}
		switch {
		case t.Dir == "" || t.Dir == "/~" || t.Dir == "/~/":
			t.Dir = "."
		case strings.HasPrefix(t.Dir, "/~/"):
			t.Dir = path.Clean(t.Dir[3:])
		default:
			t.Dir = path.Clean(t.Dir)
		}
	case "ftp", "ftps":
		t.Host = withPort(u.Host, "21")
		if t.User == "" {
			t.User, t.Password = "anonymous", "anonymous"
		}
		if t.Dir == "" {
			t.Dir = "/"
		}
		t.Dir = path.Clean(t.Dir)
	default:
		return Target{}, fmt.Errorf("unsupported backup scheme %q (want sftp, ftp, ftps or file)", t.Scheme)
	}
	if u.Hostname() == "" {
		return Target{}, fmt.Errorf("%s target %q has no host", t.Scheme, Redact(raw))
	}
	return t, nil
}

func (t Target) String() string {
	switch t.Scheme {
	case "file":
		return t.Dir
	default:
		return fmt.Sprintf("%s://%s@%s/%s", t.Scheme, t.User, t.Host, strings.TrimPrefix(t.Dir, "/"))
	}
}

// New opens a transport for target. Network transports connect lazily on
// the first Send.
func New(target string, opts Options) (Transport, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	switch t.Scheme {
	case "sftp":
		return NewSFTP(t, opts), nil
	case "ftp", "ftps":
		return NewFTP(t, opts), nil
	default:
		return NewLocal(opts.Fs, t.Dir), nil
	}
}

// Redact removes credentials from a target URL for logging.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User(u.User.Username())
	return u.String()
}

func withPort(host, port string) string {
	if host == "" {
		return host
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), port)
}

func tempName(name string) string {
	return "." + name + ".part"
}
