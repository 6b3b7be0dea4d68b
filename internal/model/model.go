// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model contains the core data structures for the archiver: the
// configuration document as loaded into memory, the per-file actions a run
// plans before touching anything, and the credential material handed to the
// SSH transport. Everything here is immutable for the duration of a run.
package model

import "time"

// ServiceConfig describes one log-producing service: where its logs live,
// which hosts produce them, and how long they stay on the remote side.
type ServiceConfig struct {
	// Name is the service key from the configuration document. It doubles as
	// the first path component under the archive directory.
	Name string `yaml:"-"`
	// Account is the remote login identity used for SSH connections.
	Account string `yaml:"account"`
	// Hosts lists the machines producing this service's logs, in document order.
	Hosts []string `yaml:"hosts"`
	// Directory is the remote directory the log files live in.
	Directory string `yaml:"directory"`
	// Pattern is the filename pattern containing exactly one <DATE-> token.
	Pattern string `yaml:"pattern"`
	// DaysToKeepOnRemote is the retention window: a file becomes archivable
	// only once its embedded date is strictly more than this many days old.
	DaysToKeepOnRemote int `yaml:"days_to_keep_on_remote"`
	// RetentionPeriodDays prunes local archive copies older than this many
	// days. Zero keeps local copies forever.
	RetentionPeriodDays int `yaml:"retention_period_days"`
	// Compress gzips files that are not already compressed while fetching.
	Compress bool `yaml:"compress"`
}

// ScheduleConfig configures unattended daemon mode.
type ScheduleConfig struct {
	// Cron is a standard 5-field cron expression, validated at load time.
	Cron string `yaml:"cron"`
	// MetricsListen, when set, is the listen address for the Prometheus
	// /metrics endpoint (e.g. ":9321").
	MetricsListen string `yaml:"metrics_listen"`
}

// ArchiveConfig is the whole configuration document, validated and with
// defaults applied. Loaded once per run and never mutated.
type ArchiveConfig struct {
	ArchiveDir      string          `yaml:"archive_dir"`
	KeyDir          string          `yaml:"key_dir"`
	HostKeyChecking string          `yaml:"host_key_checking"`
	ConnectTimeout  time.Duration   `yaml:"connect_timeout"`
	Language        string          `yaml:"language"`
	Schedule        *ScheduleConfig `yaml:"schedule"`
	// Services preserves the document order of the services mapping.
	Services []ServiceConfig `yaml:"services"`
}

// PlannedAction is one fetch (and optional remote delete) the planner decided
// on. Actions are consumed exactly once by the executor and then discarded.
type PlannedAction struct {
	Service    string
	Host       string
	Account    string
	RemotePath string
	// FileDate is the calendar date extracted from the filename.
	FileDate time.Time
	// LocalPath is archive_dir/service/host/filename, with a .gz suffix
	// appended when the fetch will compress.
	LocalPath string
	// Remove requests deletion of the remote original after a confirmed fetch.
	Remove bool
	// Compress gzips the byte stream while fetching.
	Compress bool
}

// Credentials carries the key material configuration for the SSH transport.
// Read once at startup and passed explicitly; never ambient global state.
type Credentials struct {
	// KeyDir is the directory holding private keys and known_hosts
	// (defaults to ~/.ssh).
	KeyDir string
	// UseAgent allows keys from a running SSH agent to supplement the
	// key-directory keys.
	UseAgent bool
}
