// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package schedule runs the archiver unattended on a cron schedule. Ticks
// never overlap: a tick that fires while the previous run is still going is
// skipped with a warning rather than queued.
package schedule

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/toeirei/archiver/internal/i18n"
	"github.com/toeirei/archiver/internal/logging"
)

// Job is one archive run. The context is cancelled when the daemon stops.
type Job func(ctx context.Context)

// Scheduler fires a Job on a standard 5-field cron expression.
type Scheduler struct {
	spec string
	job  Job
	cron *cron.Cron

	mu      sync.Mutex
	running bool
	busy    bool
}

// New creates a scheduler for the given cron spec. The spec is validated
// again at Start; config loading already rejects malformed ones.
func New(spec string, job Job) *Scheduler {
	return &Scheduler{spec: spec, job: job, cron: cron.New()}
}

// Start validates the spec, begins firing ticks and returns. The scheduler
// stops itself when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := cron.ParseStandard(s.spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.spec, err)
	}

	_, err := s.cron.AddFunc(s.spec, func() { s.tick(ctx) })
	if err != nil {
		return fmt.Errorf("schedule job: %w", err)
	}

	s.cron.Start()
	s.running = true
	logging.Infof("%s", i18n.T("schedule.started", s.spec))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		logging.Warnf("%s", i18n.T("schedule.overlap"))
		return
	}
	s.busy = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	logging.Infof("%s", i18n.T("schedule.tick"))
	s.job(ctx)
}

// Stop halts the cron scheduler and waits for a running job to drain. The
// mutex is released before waiting so a draining tick can still finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cron == nil || !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	s.mu.Unlock()

	done := c.Stop()
	<-done.Done()
	logging.Infof("%s", i18n.T("schedule.stopped"))
}

// IsRunning reports whether the scheduler has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
