package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// hostKeyCallback builds the host key check for a policy. Files are
// prepared here, before any network I/O.
func hostKeyCallback(kh KnownHosts, log logrus.FieldLogger) (ssh.HostKeyCallback, error) {
	switch kh.Policy {
	case KnownHostsAllow, "":
		return ssh.InsecureIgnoreHostKey(), nil

	case KnownHostsStrict:
		if _, err := os.Stat(kh.Path); err != nil {
			return nil, fmt.Errorf("known_hosts file not found at %s and the strict policy is enabled: %w", kh.Path, err)
		}
		cb, err := knownhosts.New(kh.Path)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts %s: %w", kh.Path, err)
		}
		return cb, nil

	case KnownHostsAdd:
		if !filepath.IsAbs(kh.Path) {
			return nil, fmt.Errorf("the known_hosts file path should be absolute, got %q", kh.Path)
		}
		if err := ensureKnownHostsFile(kh.Path); err != nil {
			return nil, err
		}
		return recordingCallback(kh.Path, log), nil
	}
	return nil, fmt.Errorf("unknown known_hosts file policy %q", kh.Policy)
}

func ensureKnownHostsFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create known_hosts directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("create known_hosts file: %w", err)
	}
	return f.Close()
}

var knownHostsMu sync.Mutex

// recordingCallback appends unknown hosts to path and accepts every key,
// including keys that differ from the recorded ones.
func recordingCallback(path string, log logrus.FieldLogger) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		knownHostsMu.Lock()
		defer knownHostsMu.Unlock()

		check, err := knownhosts.New(path)
		if err != nil {
			return fmt.Errorf("load known_hosts %s: %w", path, err)
		}

		err = check(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err
		}
		if len(keyErr.Want) > 0 {
			log.WithFields(logrus.Fields{
				"host":        hostname,
				"fingerprint": ssh.FingerprintSHA256(key),
			}).Warn("host key does not match known_hosts entry, accepting it")
			return nil
		}

		if err := appendKnownHost(path, hostname, remote, key); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"host":        hostname,
			"fingerprint": ssh.FingerprintSHA256(key),
		}).Info("added host to known_hosts")
		return nil
	}
}

func appendKnownHost(path, hostname string, remote net.Addr, key ssh.PublicKey) error {
	addresses := []string{knownhosts.Normalize(hostname)}
	if remote != nil {
		if ra := knownhosts.Normalize(remote.String()); ra != addresses[0] {
			addresses = append(addresses, ra)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open known_hosts: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, knownhosts.Line(addresses, key)); err != nil {
		return fmt.Errorf("write known_hosts: %w", err)
	}
	return nil
}
