// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/toeirei/archiver/internal/archive"
	"github.com/toeirei/archiver/internal/i18n"
	"github.com/toeirei/archiver/internal/model"
	"github.com/toeirei/archiver/internal/testutil"
)

func writeConfig(t *testing.T, archiveDir string) string {
	t.Helper()
	doc := fmt.Sprintf(`
archive_dir: %s
key_dir: %s
host_key_checking: "off"
services:
  app:
    account: loguser
    hosts: [web1]
    directory: /var/log/app
    pattern: "*.log.<DATE->*"
    days_to_keep_on_remote: 2
`, archiveDir, t.TempDir())
	path := filepath.Join(t.TempDir(), "archiver.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// swapDialer installs a fake transport for the duration of one test.
func swapDialer(t *testing.T, dialer archive.Dialer) {
	t.Helper()
	prev := newDialer
	newDialer = func(cfg *model.ArchiveConfig, useAgent bool) (archive.Dialer, error) {
		return dialer, nil
	}
	t.Cleanup(func() { newDialer = prev })
}

func TestNewRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"verbose", "dry-run", "remove", "use-ssh-agent", "lang"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("flag --%s not registered", name)
		}
	}
	if cmd.PersistentFlags().ShorthandLookup("v") == nil {
		t.Error("shorthand -v not registered")
	}
	if cmd.PersistentFlags().ShorthandLookup("n") == nil {
		t.Error("shorthand -n not registered")
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "archiver") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestValidateCmd(t *testing.T) {
	path := writeConfig(t, t.TempDir())
	var out bytes.Buffer
	cmd := newValidateCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"name: app", "days_to_keep_on_remote: 2"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("validate output missing %q:\n%s", want, out.String())
		}
	}
}

func TestValidateCmd_BadPattern(t *testing.T) {
	doc := `
archive_dir: /srv/archive
key_dir: /tmp/keys
services:
  app:
    account: u
    hosts: [h]
    directory: /var/log/app
    pattern: "no-token.log"
    days_to_keep_on_remote: 2
`
	path := filepath.Join(t.TempDir(), "archiver.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd := newValidateCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{path})
	if err := cmd.Execute(); err == nil {
		t.Fatal("validate accepted a pattern without a date token")
	}
}

func TestRunArchive_ConfigErrorIsFatal(t *testing.T) {
	err := runArchive(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), runOptions{}, new(bytes.Buffer))
	if err == nil {
		t.Fatal("runArchive succeeded with a missing config")
	}
}

func TestRunArchive_DryRun(t *testing.T) {
	archiveDir := t.TempDir()
	cfgPath := writeConfig(t, archiveDir)

	conn := &testutil.FakeConn{
		Dirs: map[string][]string{"/var/log/app": {"app.log.2023-01-05.gz", "app.log.notadate.gz"}},
		Contents: map[string][]byte{
			"/var/log/app/app.log.2023-01-05.gz": []byte("payload"),
		},
	}
	swapDialer(t, &testutil.FakeDialer{Conns: map[string]*testutil.FakeConn{"web1": conn}})

	var out bytes.Buffer
	if err := runArchive(context.Background(), cfgPath, runOptions{dryRun: true, remove: true}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "app.log.2023-01-05.gz") {
		t.Errorf("plan table missing the file:\n%s", out.String())
	}
	if len(conn.Fetched) != 0 || len(conn.Removed) != 0 {
		t.Errorf("dry run touched the remote: fetched=%v removed=%v", conn.Fetched, conn.Removed)
	}
	entries, _ := os.ReadDir(archiveDir)
	if len(entries) != 0 {
		t.Errorf("dry run wrote to the archive dir: %v", entries)
	}
}

func TestRunArchive_FetchesToArchiveTree(t *testing.T) {
	archiveDir := t.TempDir()
	cfgPath := writeConfig(t, archiveDir)

	conn := &testutil.FakeConn{
		Dirs: map[string][]string{"/var/log/app": {"app.log.2023-01-05.gz"}},
		Contents: map[string][]byte{
			"/var/log/app/app.log.2023-01-05.gz": []byte("payload"),
		},
	}
	swapDialer(t, &testutil.FakeDialer{Conns: map[string]*testutil.FakeConn{"web1": conn}})

	var out bytes.Buffer
	if err := runArchive(context.Background(), cfgPath, runOptions{}, &out); err != nil {
		t.Fatal(err)
	}
	local := filepath.Join(archiveDir, "app", "web1", "app.log.2023-01-05.gz")
	data, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("archived file missing: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("archived content = %q", data)
	}
	// remove was not requested
	if len(conn.Removed) != 0 {
		t.Errorf("removed without --remove: %v", conn.Removed)
	}
}

func TestRunArchive_LangFlagOverridesConfig(t *testing.T) {
	defer i18n.SetLang("en")
	archiveDir := t.TempDir()
	doc := fmt.Sprintf(`
archive_dir: %s
key_dir: %s
language: de
services:
  app:
    account: loguser
    hosts: [web1]
    directory: /var/log/app
    pattern: "*.log.<DATE->*"
    days_to_keep_on_remote: 2
`, archiveDir, t.TempDir())
	cfgPath := filepath.Join(t.TempDir(), "archiver.yaml")
	if err := os.WriteFile(cfgPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	conn := &testutil.FakeConn{Dirs: map[string][]string{"/var/log/app": {}}}
	swapDialer(t, &testutil.FakeDialer{Conns: map[string]*testutil.FakeConn{"web1": conn}})

	// No override: the document's language wins.
	var out bytes.Buffer
	if err := runArchive(context.Background(), cfgPath, runOptions{dryRun: true}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Probelauf") {
		t.Errorf("config language ignored:\n%s", out.String())
	}

	// Explicit --lang / ARCHIVER_LANG beats the document.
	out.Reset()
	if err := runArchive(context.Background(), cfgPath, runOptions{dryRun: true, lang: "en"}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "dry run") {
		t.Errorf("explicit language override ignored:\n%s", out.String())
	}
}

func TestExplicitLang(t *testing.T) {
	cmd := newRootCmd()
	if got := explicitLang(cmd); got != "" {
		t.Errorf("explicitLang with nothing set = %q, want empty", got)
	}
	t.Setenv("ARCHIVER_LANG", "de")
	if got := explicitLang(cmd); got != "de" {
		t.Errorf("explicitLang from env = %q, want de", got)
	}
	if err := cmd.PersistentFlags().Set("lang", "en"); err != nil {
		t.Fatal(err)
	}
	if got := explicitLang(cmd); got != "en" {
		t.Errorf("explicitLang with flag set = %q, want en (flag beats env)", got)
	}
}

func TestRenderPlanTable_AgeByCalendarDate(t *testing.T) {
	// Just past midnight in a zone ahead of UTC: the UTC instant is still the
	// previous day, but the calendar says Jan 10 and the age column must agree
	// with the retention decision.
	today := time.Date(2023, 1, 10, 0, 30, 0, 0, time.FixedZone("AEDT", 11*3600))
	plan := []model.PlannedAction{{
		Service:    "app",
		Host:       "web1",
		RemotePath: "/var/log/app/app.log.2023-01-05.gz",
		FileDate:   time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC),
		LocalPath:  "/srv/archive/app/web1/app.log.2023-01-05.gz",
	}}
	var out bytes.Buffer
	renderPlanTable(&out, plan, today)
	if !strings.Contains(out.String(), "5d") {
		t.Errorf("age column wrong, want 5d:\n%s", out.String())
	}
}

func TestRunArchive_AllHostsFailed(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())
	swapDialer(t, &testutil.FakeDialer{DialErrs: map[string]error{
		"web1": fmt.Errorf("connection refused"),
	}})

	err := runArchive(context.Background(), cfgPath, runOptions{}, new(bytes.Buffer))
	if err == nil {
		t.Fatal("runArchive should fail when no host is reachable")
	}
}
