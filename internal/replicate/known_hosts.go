package replicate

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/cjeanneret/LapseGo/internal/debug"
)

var knownHostsMu sync.Mutex

// DefaultKnownHostsFile is LapseGo's own known_hosts, kept apart from
// ~/.ssh/known_hosts.
func DefaultKnownHostsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "lapsego", "known_hosts")
}

// TOFUHostKeyCallback trusts a host the first time it is seen and pins its
// key in file:
//   - known host, same key: accepted
//   - known host, different key: rejected
//   - unknown host: accepted and appended to file
//
// The file is re-read on every call.
func TOFUHostKeyCallback(file string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
			return fmt.Errorf("known_hosts directory: %w", err)
		}

		if _, err := os.Stat(file); err == nil {
			cb, err := knownhosts.New(file)
			if err != nil {
				return fmt.Errorf("load known_hosts: %w", err)
			}
			err = cb(hostname, remote, key)
			if err == nil {
				return nil
			}
			var keyErr *knownhosts.KeyError
			if !errors.As(err, &keyErr) {
				return err
			}
			if len(keyErr.Want) > 0 {
				return fmt.Errorf("host key changed for %s (got %s); remove the old entry from %s if this is expected",
					hostname, ssh.FingerprintSHA256(key), file)
			}
		}

		debug.Info("Trusting new SSH host %s (%s)", hostname, ssh.FingerprintSHA256(key))
		return appendKnownHost(file, hostname, key)
	}
}

func appendKnownHost(file, hostname string, key ssh.PublicKey) error {
	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()

	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("write known_hosts: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key))
	return err
}
