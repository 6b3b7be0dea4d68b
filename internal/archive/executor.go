// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/toeirei/archiver/internal/i18n"
	"github.com/toeirei/archiver/internal/logging"
	"github.com/toeirei/archiver/internal/model"
)

// ProgressFunc receives transfer progress for one file. total is -1 when
// the remote size is unknown.
type ProgressFunc func(name string, written, total int64)

// Options controls how a plan is executed.
type Options struct {
	// DryRun logs every action without performing any I/O at all; not even
	// connections are opened.
	DryRun bool
	// Remove deletes the remote original after a confirmed fetch, for
	// actions whose removal flag is set.
	Remove bool
	// Progress, when non-nil, receives per-file transfer progress.
	Progress ProgressFunc
}

// Summary counts what a run did. Pruned is filled in by Prune.
type Summary struct {
	Planned        int
	Fetched        int
	AlreadyPresent int
	Removed        int
	Pruned         int
	Failed         int
}

// Executor carries out a plan in order, one action at a time.
type Executor struct {
	Dialer Dialer
}

type hostKey struct{ host, account string }

// Execute walks the plan in order. For each action it fetches the remote
// file into place and then, when removal is enabled and requested, deletes
// the remote original. The central safety invariant: the remote file is
// never deleted unless the fetch in this run confirmed success. A local
// copy that already exists skips the fetch and the removal both; the two
// copies were never compared, so the remote original stays.
//
// Fetch failures are logged and skip only their own action. A host that
// cannot be dialed fails all of its remaining actions. The returned error
// is non-nil only when the context was cancelled.
func (e *Executor) Execute(ctx context.Context, plan []model.PlannedAction, opts Options) (*Summary, error) {
	sum := &Summary{}

	var conn Conn
	var connKey hostKey
	failed := make(map[hostKey]bool)
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for _, a := range plan {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		if opts.DryRun {
			logging.Infof("%s", i18n.T("run.archiving", a.Host, a.RemotePath, a.LocalPath))
			if opts.Remove && a.Remove {
				logging.Infof("%s", i18n.T("run.would_remove", a.Host, a.RemotePath))
			}
			sum.Planned++
			continue
		}

		key := hostKey{a.Host, a.Account}
		if failed[key] {
			sum.Failed++
			continue
		}
		if conn == nil || connKey != key {
			if conn != nil {
				conn.Close()
				conn = nil
			}
			c, err := e.Dialer.Dial(ctx, a.Host, a.Account)
			if err != nil {
				if ctx.Err() != nil {
					return sum, ctx.Err()
				}
				logging.Errorf("%s", i18n.T("run.connect_failed", a.Host, err))
				failed[key] = true
				sum.Failed++
				continue
			}
			conn, connKey = c, key
		}

		e.executeAction(ctx, conn, a, opts, sum)
	}

	return sum, ctx.Err()
}

func (e *Executor) executeAction(ctx context.Context, conn Conn, a model.PlannedAction, opts Options, sum *Summary) {
	logging.Infof("%s", i18n.T("run.archiving", a.Host, a.RemotePath, a.LocalPath))

	fetched, err := e.fetch(ctx, conn, a, opts.Progress)
	if err != nil {
		logging.Errorf("%s", i18n.T("run.fetch_failed", a.Host, a.RemotePath, err))
		sum.Failed++
		// No confirmed fetch, so removal is off the table for this action.
		return
	}
	if !fetched {
		// Pre-existing local copy; nothing confirmed this run, so the
		// remote original is left alone.
		sum.AlreadyPresent++
		return
	}
	sum.Fetched++

	if opts.Remove && a.Remove {
		logging.Debugf("%s", i18n.T("run.removing", a.Host, a.RemotePath))
		if err := conn.Remove(ctx, a.RemotePath); err != nil {
			logging.Errorf("%s", i18n.T("run.remove_failed", a.Host, a.RemotePath, err))
			return
		}
		sum.Removed++
	}
}

// fetch downloads the remote file to a pending name and renames it into
// place once complete, so an interrupted run never leaves a truncated file
// under the final name. Returns false when the destination already existed
// from an earlier run and nothing was transferred.
func (e *Executor) fetch(ctx context.Context, conn Conn, a model.PlannedAction, progress ProgressFunc) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(a.LocalPath), 0o755); err != nil {
		return false, err
	}

	pending := a.LocalPath + ".download"
	if _, err := os.Stat(pending); err == nil {
		// Leftover from an interrupted run.
		if err := os.Remove(pending); err != nil {
			return false, err
		}
	}

	if _, err := os.Stat(a.LocalPath); err == nil {
		logging.Warnf("%s", i18n.T("run.already_exists", a.LocalPath))
		return false, nil
	}

	f, err := os.OpenFile(pending, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return false, err
	}

	var dst io.Writer = f
	var gz *gzip.Writer
	if a.Compress {
		gz, err = gzip.NewWriterLevel(f, gzip.BestCompression)
		if err != nil {
			f.Close()
			os.Remove(pending)
			return false, err
		}
		dst = gz
	}

	var report func(written, total int64)
	if progress != nil {
		name := filepath.Base(a.RemotePath)
		report = func(written, total int64) { progress(name, written, total) }
	}

	fetchErr := conn.Fetch(ctx, a.RemotePath, dst, report)
	if gz != nil {
		if err := gz.Close(); err != nil && fetchErr == nil {
			fetchErr = err
		}
	}
	if err := f.Close(); err != nil && fetchErr == nil {
		fetchErr = err
	}
	if fetchErr != nil {
		os.Remove(pending)
		return false, fetchErr
	}

	if err := os.Rename(pending, a.LocalPath); err != nil {
		os.Remove(pending)
		return false, err
	}
	return true, nil
}
