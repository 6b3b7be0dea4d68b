// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/toeirei/archiver/internal/archive"
	"github.com/toeirei/archiver/internal/config"
	"github.com/toeirei/archiver/internal/i18n"
	"github.com/toeirei/archiver/internal/logging"
	"github.com/toeirei/archiver/internal/metrics"
	"github.com/toeirei/archiver/internal/model"
	"github.com/toeirei/archiver/internal/progress"
	"github.com/toeirei/archiver/internal/transport"
)

type runOptions struct {
	dryRun   bool
	remove   bool
	useAgent bool
	verbose  bool
	// lang is an explicit override from the --lang flag or ARCHIVER_LANG;
	// empty means the configuration document's language applies.
	lang string
}

// newDialer builds the production SSH dialer. Tests replace it with an
// in-memory fake.
var newDialer = func(cfg *model.ArchiveConfig, useAgent bool) (archive.Dialer, error) {
	factory, err := transport.NewFactory(transport.Config{
		Credentials: model.Credentials{
			KeyDir:   cfg.KeyDir,
			UseAgent: useAgent,
		},
		HostKeyChecking: cfg.HostKeyChecking,
		ConnectTimeout:  cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}
	return archive.DialerFunc(func(ctx context.Context, host, account string) (archive.Conn, error) {
		return factory.Dial(ctx, host, account)
	}), nil
}

// runArchive is one full archive run: load config, plan, execute, prune,
// report. It returns an error only for conditions that warrant a non-zero
// exit: a bad configuration, a cancelled context, or every configured host
// being unreachable. Per-host trouble is logged and skipped.
func runArchive(ctx context.Context, cfgPath string, opts runOptions, out io.Writer) error {
	started := time.Now()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	// An explicit --lang flag or ARCHIVER_LANG wins over the document.
	if opts.lang != "" {
		i18n.SetLang(opts.lang)
	} else {
		i18n.SetLang(cfg.Language)
	}

	dialer, err := newDialer(cfg, opts.useAgent)
	if err != nil {
		return err
	}

	today := time.Now()
	planner := &archive.Planner{Dialer: dialer, Today: today}
	plan, stats, err := planner.Plan(ctx, cfg, opts.remove)
	if err != nil {
		return err
	}

	if opts.dryRun {
		renderPlanTable(out, plan, today)
	}

	exOpts := archive.Options{DryRun: opts.dryRun, Remove: opts.remove}
	var meter *meterAdapter
	if opts.verbose && !opts.dryRun && progress.Stdout() {
		meter = &meterAdapter{meter: progress.New(os.Stdout)}
		exOpts.Progress = meter.report
	}

	executor := &archive.Executor{Dialer: dialer}
	sum, err := executor.Execute(ctx, plan, exOpts)
	if meter != nil {
		meter.close()
	}
	if err != nil {
		return err
	}

	for _, svc := range cfg.Services {
		if svc.RetentionPeriodDays <= 0 {
			continue
		}
		pruned, err := archive.Prune(ctx, cfg.ArchiveDir, svc, today, opts.dryRun)
		sum.Pruned += pruned
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logging.Errorf("%s", i18n.T("prune.walk_failed", svc.Name, err))
		}
	}

	printSummary(out, sum, opts.dryRun)

	var runErr error
	if stats.AllHostsFailed() {
		runErr = errors.New(i18n.T("run.all_hosts_failed"))
	}
	metrics.RecordRun(sum, time.Since(started), runErr)
	return runErr
}

// meterAdapter bridges the executor's per-file progress callback onto one
// reusable meter line, finishing the previous file's line when a new file
// starts.
type meterAdapter struct {
	meter   *progress.Meter
	current string
}

func (m *meterAdapter) report(name string, written, total int64) {
	if name != m.current {
		if m.current != "" {
			m.meter.Finish()
		}
		m.current = name
		m.meter.Start(name)
	}
	m.meter.Update(written, total)
}

func (m *meterAdapter) close() {
	if m.current != "" {
		m.meter.Finish()
		m.current = ""
	}
}
