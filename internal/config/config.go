// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads and validates the archiver's YAML configuration
// document. Validation is eager: every missing or malformed field is
// rejected at load time with a *ConfigError, before any I/O happens.
//
// The services mapping is decoded through yaml.v3 nodes rather than a Go
// map so the document order of services is preserved; the run processes
// services in exactly the order the operator wrote them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	goccyyaml "github.com/goccy/go-yaml"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/toeirei/archiver/internal/model"
)

// Host key checking policies accepted by `host_key_checking`.
const (
	HostKeyStrict    = "strict"
	HostKeyAcceptNew = "accept-new"
	HostKeyOff       = "off"
)

// ConfigError reports a malformed or missing configuration field. It is
// fatal: the run aborts before any remote connection is opened.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

type rawSchedule struct {
	Cron          string `yaml:"cron"`
	MetricsListen string `yaml:"metrics_listen"`
}

type rawService struct {
	Account             string   `yaml:"account"`
	Hosts               []string `yaml:"hosts"`
	Directory           string   `yaml:"directory"`
	Pattern             string   `yaml:"pattern"`
	DaysToKeepOnRemote  *int     `yaml:"days_to_keep_on_remote"`
	RetentionPeriodDays *int     `yaml:"retention_period_days"`
	Compress            *bool    `yaml:"compress"`
}

type rawConfig struct {
	ArchiveDir      string       `yaml:"archive_dir"`
	KeyDir          string       `yaml:"key_dir"`
	HostKeyChecking string       `yaml:"host_key_checking"`
	ConnectTimeout  string       `yaml:"connect_timeout"`
	Language        string       `yaml:"language"`
	Schedule        *rawSchedule `yaml:"schedule"`
	Services        yaml.Node    `yaml:"services"`
}

// Load reads and validates the configuration document at path.
func Load(path string) (*model.ArchiveConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "config", Message: err.Error()}
	}
	return Parse(data)
}

// Parse validates a configuration document and applies defaults.
func Parse(data []byte) (*model.ArchiveConfig, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Field: "config", Message: "not valid YAML: " + err.Error()}
	}

	if raw.ArchiveDir == "" {
		return nil, &ConfigError{Field: "archive_dir", Message: "required"}
	}

	cfg := &model.ArchiveConfig{
		ArchiveDir:      raw.ArchiveDir,
		KeyDir:          raw.KeyDir,
		HostKeyChecking: raw.HostKeyChecking,
		Language:        raw.Language,
	}

	if cfg.KeyDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, &ConfigError{Field: "key_dir", Message: "not set and home directory unknown: " + err.Error()}
		}
		cfg.KeyDir = filepath.Join(home, ".ssh")
	}

	switch cfg.HostKeyChecking {
	case "":
		cfg.HostKeyChecking = HostKeyAcceptNew
	case HostKeyStrict, HostKeyAcceptNew, HostKeyOff:
	default:
		return nil, &ConfigError{
			Field:   "host_key_checking",
			Message: fmt.Sprintf("unknown policy %q (want strict, accept-new or off)", cfg.HostKeyChecking),
		}
	}

	if raw.ConnectTimeout != "" {
		d, err := time.ParseDuration(raw.ConnectTimeout)
		if err != nil || d < 0 {
			return nil, &ConfigError{Field: "connect_timeout", Message: fmt.Sprintf("invalid duration %q", raw.ConnectTimeout)}
		}
		cfg.ConnectTimeout = d
	}

	if cfg.Language == "" {
		cfg.Language = "en"
	}

	if raw.Schedule != nil {
		if raw.Schedule.Cron == "" {
			return nil, &ConfigError{Field: "schedule.cron", Message: "required when schedule is set"}
		}
		if _, err := cron.ParseStandard(raw.Schedule.Cron); err != nil {
			return nil, &ConfigError{Field: "schedule.cron", Message: err.Error()}
		}
		cfg.Schedule = &model.ScheduleConfig{
			Cron:          raw.Schedule.Cron,
			MetricsListen: raw.Schedule.MetricsListen,
		}
	}

	services, err := parseServices(&raw.Services)
	if err != nil {
		return nil, err
	}
	cfg.Services = services

	return cfg, nil
}

// parseServices walks the services mapping node pairwise so the document
// order survives into the resulting slice.
func parseServices(node *yaml.Node) ([]model.ServiceConfig, error) {
	if node.Kind == 0 || node.IsZero() {
		return nil, &ConfigError{Field: "services", Message: "required"}
	}
	if node.Kind != yaml.MappingNode {
		return nil, &ConfigError{Field: "services", Message: "must be a mapping of service name to settings"}
	}
	if len(node.Content) == 0 {
		return nil, &ConfigError{Field: "services", Message: "must not be empty"}
	}

	var services []model.ServiceConfig
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		svc, err := parseService(name, node.Content[i+1])
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, nil
}

func parseService(name string, node *yaml.Node) (model.ServiceConfig, error) {
	field := func(f string) string { return "services." + name + "." + f }

	var raw rawService
	if err := node.Decode(&raw); err != nil {
		return model.ServiceConfig{}, &ConfigError{Field: "services." + name, Message: err.Error()}
	}

	if raw.Account == "" {
		return model.ServiceConfig{}, &ConfigError{Field: field("account"), Message: "required"}
	}
	if len(raw.Hosts) == 0 {
		return model.ServiceConfig{}, &ConfigError{Field: field("hosts"), Message: "required"}
	}
	for _, h := range raw.Hosts {
		if h == "" {
			return model.ServiceConfig{}, &ConfigError{Field: field("hosts"), Message: "must not contain empty entries"}
		}
	}
	if raw.Directory == "" {
		return model.ServiceConfig{}, &ConfigError{Field: field("directory"), Message: "required"}
	}
	if raw.Pattern == "" {
		return model.ServiceConfig{}, &ConfigError{Field: field("pattern"), Message: "required"}
	}
	if raw.DaysToKeepOnRemote == nil {
		return model.ServiceConfig{}, &ConfigError{Field: field("days_to_keep_on_remote"), Message: "required"}
	}
	if *raw.DaysToKeepOnRemote < 0 {
		return model.ServiceConfig{}, &ConfigError{Field: field("days_to_keep_on_remote"), Message: "must not be negative"}
	}

	svc := model.ServiceConfig{
		Name:               name,
		Account:            raw.Account,
		Hosts:              raw.Hosts,
		Directory:          raw.Directory,
		Pattern:            raw.Pattern,
		DaysToKeepOnRemote: *raw.DaysToKeepOnRemote,
		Compress:           true,
	}
	if raw.RetentionPeriodDays != nil {
		if *raw.RetentionPeriodDays < 0 {
			return model.ServiceConfig{}, &ConfigError{Field: field("retention_period_days"), Message: "must not be negative"}
		}
		svc.RetentionPeriodDays = *raw.RetentionPeriodDays
	}
	if raw.Compress != nil {
		svc.Compress = *raw.Compress
	}
	return svc, nil
}

// dump mirrors model.ArchiveConfig with the duration rendered back into its
// human-readable form for `archiver validate` output.
type dumpConfig struct {
	ArchiveDir      string                 `yaml:"archive_dir"`
	KeyDir          string                 `yaml:"key_dir"`
	HostKeyChecking string                 `yaml:"host_key_checking"`
	ConnectTimeout  string                 `yaml:"connect_timeout,omitempty"`
	Language        string                 `yaml:"language"`
	Schedule        *model.ScheduleConfig  `yaml:"schedule,omitempty"`
	Services        []dumpService          `yaml:"services"`
}

type dumpService struct {
	Name                string   `yaml:"name"`
	Account             string   `yaml:"account"`
	Hosts               []string `yaml:"hosts"`
	Directory           string   `yaml:"directory"`
	Pattern             string   `yaml:"pattern"`
	DaysToKeepOnRemote  int      `yaml:"days_to_keep_on_remote"`
	RetentionPeriodDays int      `yaml:"retention_period_days,omitempty"`
	Compress            bool     `yaml:"compress"`
}

// Dump renders the normalized configuration, defaults included, as YAML.
func Dump(cfg *model.ArchiveConfig) ([]byte, error) {
	d := dumpConfig{
		ArchiveDir:      cfg.ArchiveDir,
		KeyDir:          cfg.KeyDir,
		HostKeyChecking: cfg.HostKeyChecking,
		Language:        cfg.Language,
		Schedule:        cfg.Schedule,
	}
	if cfg.ConnectTimeout > 0 {
		d.ConnectTimeout = cfg.ConnectTimeout.String()
	}
	for _, svc := range cfg.Services {
		d.Services = append(d.Services, dumpService{
			Name:                svc.Name,
			Account:             svc.Account,
			Hosts:               svc.Hosts,
			Directory:           svc.Directory,
			Pattern:             svc.Pattern,
			DaysToKeepOnRemote:  svc.DaysToKeepOnRemote,
			RetentionPeriodDays: svc.RetentionPeriodDays,
			Compress:            svc.Compress,
		})
	}
	return goccyyaml.Marshal(d)
}
