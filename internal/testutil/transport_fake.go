// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package testutil holds in-memory test doubles for the remote transport so
// planner and executor tests never touch the network.
package testutil

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/toeirei/archiver/internal/archive"
)

// FakeConn is an in-memory remote host. Dirs maps a directory to the
// filenames in it; Contents maps a full remote path to file bytes.
type FakeConn struct {
	HostName string
	Dirs     map[string][]string
	Contents map[string][]byte

	// ListErr fails every List call; FetchErrs fails fetches per path.
	ListErr   error
	FetchErrs map[string]error

	Listed  []string
	Fetched []string
	Removed []string
	Closed  bool
}

// List returns the directory's filenames, sorted, like the SFTP lister.
func (c *FakeConn) List(ctx context.Context, dir string) ([]string, error) {
	c.Listed = append(c.Listed, dir)
	if c.ListErr != nil {
		return nil, c.ListErr
	}
	names := append([]string(nil), c.Dirs[dir]...)
	sort.Strings(names)
	return names, nil
}

// Fetch writes the remote file's bytes into dst and reports progress once.
func (c *FakeConn) Fetch(ctx context.Context, remotePath string, dst io.Writer, progress func(written, total int64)) error {
	c.Fetched = append(c.Fetched, remotePath)
	if err := c.FetchErrs[remotePath]; err != nil {
		return err
	}
	data, ok := c.Contents[remotePath]
	if !ok {
		return fmt.Errorf("fake: no such file %s", remotePath)
	}
	if _, err := dst.Write(data); err != nil {
		return err
	}
	if progress != nil {
		progress(int64(len(data)), int64(len(data)))
	}
	return nil
}

// Remove records the deletion and drops the file from Contents.
func (c *FakeConn) Remove(ctx context.Context, remotePath string) error {
	c.Removed = append(c.Removed, remotePath)
	delete(c.Contents, remotePath)
	return nil
}

// Close marks the connection closed.
func (c *FakeConn) Close() error {
	c.Closed = true
	return nil
}

// FakeDialer hands out FakeConns by host name and records every dial.
type FakeDialer struct {
	Conns    map[string]*FakeConn
	DialErrs map[string]error
	Dialed   []string
}

// Dial implements archive.Dialer.
func (d *FakeDialer) Dial(ctx context.Context, host, account string) (archive.Conn, error) {
	d.Dialed = append(d.Dialed, host)
	if err := d.DialErrs[host]; err != nil {
		return nil, err
	}
	conn, ok := d.Conns[host]
	if !ok {
		return nil, fmt.Errorf("fake: unknown host %s", host)
	}
	return conn, nil
}
