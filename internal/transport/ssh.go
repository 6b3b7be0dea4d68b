// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package transport provides SSH/SFTP access to the remote hosts holding
// log files: listing a directory, fetching a file's bytes and deleting the
// remote original. Authentication uses private keys from the configured key
// directory first, with a running SSH agent as an opt-in fallback.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/toeirei/archiver/internal/logging"
	"github.com/toeirei/archiver/internal/model"
)

// passphraseEnv names private key passphrases for unattended runs.
const passphraseEnv = "ARCHIVER_KEY_PASSPHRASE"

// Config carries everything the transport needs to open connections.
// Built once at startup from the configuration document and CLI flags.
type Config struct {
	Credentials model.Credentials
	// HostKeyChecking is "strict", "accept-new" or "off".
	HostKeyChecking string
	// ConnectTimeout bounds the TCP dial; zero means no timeout.
	ConnectTimeout time.Duration
}

// Factory opens authenticated SSH/SFTP connections to remote hosts.
type Factory struct {
	cfg      Config
	hostKeys ssh.HostKeyCallback

	mu       sync.Mutex
	accepted map[string]bool
}

// NewFactory validates the host key policy and prepares a connection
// factory. With the "strict" policy the known_hosts file in the key
// directory must already exist.
func NewFactory(cfg Config) (*Factory, error) {
	f := &Factory{cfg: cfg, accepted: make(map[string]bool)}

	knownHostsPath := filepath.Join(cfg.Credentials.KeyDir, "known_hosts")
	switch cfg.HostKeyChecking {
	case "off":
		f.hostKeys = ssh.InsecureIgnoreHostKey() //nolint:gosec // explicit operator opt-in
	case "strict":
		cb, err := knownhosts.New(knownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("host key checking is strict but %s is unusable: %w", knownHostsPath, err)
		}
		f.hostKeys = cb
	case "accept-new":
		cb, err := f.acceptNewCallback(knownHostsPath)
		if err != nil {
			return nil, err
		}
		f.hostKeys = cb
	default:
		return nil, fmt.Errorf("unknown host key policy %q", cfg.HostKeyChecking)
	}

	return f, nil
}

// acceptNewCallback trusts and records keys of hosts not yet in known_hosts,
// while still rejecting changed keys for hosts that are.
func (f *Factory) acceptNewCallback(path string) (ssh.HostKeyCallback, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			return nil, err
		}
	}
	check, err := knownhosts.New(path)
	if err != nil {
		return nil, err
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := check(hostname, remote, key)
		if err == nil {
			return nil
		}
		var kerr *knownhosts.KeyError
		if !errors.As(err, &kerr) || len(kerr.Want) > 0 {
			// Known host presenting a different key. Never accept.
			return err
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		normalized := knownhosts.Normalize(hostname)
		if f.accepted[normalized] {
			return nil
		}
		out, ferr := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
		if ferr != nil {
			return ferr
		}
		defer out.Close()
		if _, ferr := fmt.Fprintln(out, knownhosts.Line([]string{normalized}, key)); ferr != nil {
			return ferr
		}
		f.accepted[normalized] = true
		logging.Warnf("permanently added %s to %s", normalized, path)
		return nil
	}, nil
}

// Dial opens an authenticated SFTP session to host as account. Key files
// from the key directory are tried first; when that fails with an
// authentication error and the agent is enabled, agent keys are tried as a
// fallback. Any failure is reported as a *ConnectionError.
func (f *Factory) Dial(ctx context.Context, host, account string) (*Client, error) {
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, "22")
	}

	signers := loadSigners(f.cfg.Credentials.KeyDir)

	var finalErr error
	if len(signers) > 0 {
		cfg := &ssh.ClientConfig{
			User:            account,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signers...)},
			HostKeyCallback: f.hostKeys,
			Timeout:         f.cfg.ConnectTimeout,
		}
		client, err := dialSSH(ctx, addr, cfg)
		if err == nil {
			return newClient(host, client)
		}
		if !IsAuthFailure(err) {
			return nil, &ConnectionError{Host: host, Err: err}
		}
		// Auth failure with the file keys; remember it and try the agent.
		finalErr = err
	}

	if f.cfg.Credentials.UseAgent {
		if agentClient := getSSHAgent(); agentClient != nil {
			cfg := &ssh.ClientConfig{
				User:            account,
				Auth:            []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)},
				HostKeyCallback: f.hostKeys,
				Timeout:         f.cfg.ConnectTimeout,
			}
			client, err := dialSSH(ctx, addr, cfg)
			if err != nil {
				return nil, &ConnectionError{Host: host, Err: err}
			}
			return newClient(host, client)
		}
		if finalErr == nil {
			finalErr = errors.New("no ssh agent found")
		}
	}

	if finalErr == nil {
		finalErr = fmt.Errorf("no usable private keys in %s", f.cfg.Credentials.KeyDir)
	}
	return nil, &ConnectionError{Host: host, Err: finalErr}
}

// dialSSH dials through a net.Dialer so the context can abort a hanging
// TCP connect; ssh.Dial itself has no context support.
func dialSSH(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// loadSigners parses the private keys in keyDir (id_* files, .pub excluded).
// Unreadable or unparseable files are skipped with a debug log so one stale
// key does not block the whole roster.
func loadSigners(keyDir string) []ssh.Signer {
	entries, err := os.ReadDir(keyDir)
	if err != nil {
		logging.Debugf("cannot read key directory %s: %v", keyDir, err)
		return nil
	}

	var signers []ssh.Signer
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "id_") || strings.HasSuffix(name, ".pub") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(keyDir, name))
		if err != nil {
			logging.Debugf("cannot read key %s: %v", name, err)
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				if pass := os.Getenv(passphraseEnv); pass != "" {
					signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(pass))
				}
			}
			if err != nil {
				logging.Debugf("skipping key %s: %v", name, err)
				continue
			}
		}
		signers = append(signers, signer)
	}
	return signers
}

// Client is one authenticated SFTP session to a single host.
type Client struct {
	host string
	ssh  *ssh.Client
	sftp *sftp.Client
}

func newClient(host string, sshClient *ssh.Client) (*Client, error) {
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, &ConnectionError{Host: host, Err: fmt.Errorf("sftp subsystem: %w", err)}
	}
	return &Client{host: host, ssh: sshClient, sftp: sftpClient}, nil
}

// Host returns the host this client is connected to.
func (c *Client) Host() string { return c.host }

// List returns the names of the regular files in dir, sorted.
func (c *Client) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := c.sftp.ReadDir(dir)
	if err != nil {
		return nil, &TransferError{Op: "list", Host: c.host, Path: dir, Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.Mode().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Fetch copies the bytes of remotePath into dst. When progress is non-nil
// it is called with the running byte count and the total size (or -1 when
// the size is unknown).
func (c *Client) Fetch(ctx context.Context, remotePath string, dst io.Writer, progress func(written, total int64)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := c.sftp.Open(remotePath)
	if err != nil {
		return &TransferError{Op: "fetch", Host: c.host, Path: remotePath, Err: err}
	}
	defer f.Close()

	var total int64 = -1
	if fi, err := f.Stat(); err == nil {
		total = fi.Size()
	}
	w := dst
	if progress != nil {
		w = &progressWriter{dst: dst, total: total, report: progress}
	}
	if _, err := io.Copy(w, f); err != nil {
		return &TransferError{Op: "fetch", Host: c.host, Path: remotePath, Err: err}
	}
	return nil
}

// Remove deletes remotePath on the remote host.
func (c *Client) Remove(ctx context.Context, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.sftp.Remove(remotePath); err != nil {
		return &TransferError{Op: "delete", Host: c.host, Path: remotePath, Err: err}
	}
	return nil
}

// Close tears down the SFTP session and the underlying SSH connection.
func (c *Client) Close() error {
	if c.sftp != nil {
		c.sftp.Close()
	}
	if c.ssh != nil {
		return c.ssh.Close()
	}
	return nil
}

// progressWriter reports the running byte count to a callback as it passes
// writes through.
type progressWriter struct {
	dst     io.Writer
	written int64
	total   int64
	report  func(written, total int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.dst.Write(b)
	p.written += int64(n)
	p.report(p.written, p.total)
	return n, err
}
