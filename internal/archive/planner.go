// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package archive contains the decision core of the archiver: the planner,
// which turns the configuration and the remote directory listings into an
// ordered list of actions, and the executor, which carries the plan out.
// The whole plan is computed before any mutation happens.
package archive

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/toeirei/archiver/internal/i18n"
	"github.com/toeirei/archiver/internal/logging"
	"github.com/toeirei/archiver/internal/model"
	"github.com/toeirei/archiver/internal/pattern"
)

// Conn is one open remote session. The production implementation is
// *transport.Client; tests substitute an in-memory fake.
type Conn interface {
	List(ctx context.Context, dir string) ([]string, error)
	Fetch(ctx context.Context, remotePath string, dst io.Writer, progress func(written, total int64)) error
	Remove(ctx context.Context, remotePath string) error
	Close() error
}

// Dialer opens a Conn to a host as a given account.
type Dialer interface {
	Dial(ctx context.Context, host, account string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, host, account string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, host, account string) (Conn, error) {
	return f(ctx, host, account)
}

// PlanStats summarizes how host listing went, so the caller can tell a run
// with a few skipped hosts from one where nothing was reachable.
type PlanStats struct {
	HostsTried  int
	HostsFailed int
}

// AllHostsFailed reports whether every attempted host was unreachable.
func (s PlanStats) AllHostsFailed() bool {
	return s.HostsTried > 0 && s.HostsFailed == s.HostsTried
}

// Planner computes the ordered action plan for one run.
type Planner struct {
	Dialer Dialer
	// Today is the reference date for the retention decision.
	Today time.Time
}

// Plan lists the remote directories of every configured service/host pair
// and emits one PlannedAction per archivable file. Order is deterministic:
// services and hosts in configuration order, files oldest first (ties broken
// by name). A service with an invalid pattern and a host that cannot be
// listed are logged and skipped; neither aborts the run.
func (p *Planner) Plan(ctx context.Context, cfg *model.ArchiveConfig, remove bool) ([]model.PlannedAction, PlanStats, error) {
	var plan []model.PlannedAction
	var stats PlanStats

	for _, svc := range cfg.Services {
		m, err := pattern.Compile(svc.Pattern)
		if err != nil {
			logging.Errorf("%s", i18n.T("plan.pattern_invalid", svc.Name, err))
			continue
		}

		for _, host := range svc.Hosts {
			if err := ctx.Err(); err != nil {
				return plan, stats, err
			}
			logging.Debugf("%s", i18n.T("plan.handling", svc.Name, host))

			stats.HostsTried++
			actions, err := p.planHost(ctx, cfg, svc, m, host, remove)
			if err != nil {
				if ctx.Err() != nil {
					return plan, stats, ctx.Err()
				}
				stats.HostsFailed++
				logging.Warnf("%s", i18n.T("plan.host_skipped", host, err))
				continue
			}
			plan = append(plan, actions...)
		}
	}
	return plan, stats, nil
}

func (p *Planner) planHost(ctx context.Context, cfg *model.ArchiveConfig, svc model.ServiceConfig, m *pattern.Matcher, host string, remove bool) ([]model.PlannedAction, error) {
	conn, err := p.Dialer.Dial(ctx, host, svc.Account)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	names, err := conn.List(ctx, svc.Directory)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		name string
		date time.Time
	}
	var candidates []candidate
	for _, name := range names {
		date, ok := m.Match(name)
		if !ok {
			logging.Debugf("%s", i18n.T("plan.no_match", name, m.Glob()))
			continue
		}
		if !pattern.IsArchivable(date, p.Today, svc.DaysToKeepOnRemote) {
			logging.Debugf("%s", i18n.T("plan.too_young", name, svc.DaysToKeepOnRemote))
			continue
		}
		candidates = append(candidates, candidate{name: name, date: date})
	}

	// Oldest first, names as tie-breaker. Matches transfer order of the
	// nightly runs this replaces and keeps tests deterministic.
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].date.Equal(candidates[j].date) {
			return candidates[i].date.Before(candidates[j].date)
		}
		return candidates[i].name < candidates[j].name
	})

	actions := make([]model.PlannedAction, 0, len(candidates))
	for _, c := range candidates {
		compress := svc.Compress && !strings.HasSuffix(c.name, ".gz")
		localName := c.name
		if compress {
			localName += ".gz"
		}
		actions = append(actions, model.PlannedAction{
			Service:    svc.Name,
			Host:       host,
			Account:    svc.Account,
			RemotePath: path.Join(svc.Directory, c.name),
			FileDate:   c.date,
			LocalPath:  filepath.Join(cfg.ArchiveDir, svc.Name, host, localName),
			Remove:     remove,
			Compress:   compress,
		})
	}
	return actions, nil
}
