// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/toeirei/archiver/internal/archive"
	"github.com/toeirei/archiver/internal/i18n"
	"github.com/toeirei/archiver/internal/model"
	"github.com/toeirei/archiver/internal/pattern"
)

// renderPlanTable prints the dry-run plan as a table: what would be
// fetched, from where, how old it is and where it would land.
func renderPlanTable(w io.Writer, plan []model.PlannedAction, today time.Time) {
	if len(plan) == 0 {
		fmt.Fprintln(w, i18n.T("run.nothing_to_do"))
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("Service", "Host", "File", "Date", "Age", "Destination", "Remove")
	for _, a := range plan {
		age := pattern.Age(a.FileDate, today)
		remove := "-"
		if a.Remove {
			remove = "yes"
		}
		_ = table.Append(
			a.Service,
			a.Host,
			filepath.Base(a.RemotePath),
			a.FileDate.Format("2006-01-02"),
			strconv.Itoa(age)+"d",
			a.LocalPath,
			remove,
		)
	}
	_ = table.Render()
}

// printSummary ends the run with one colored line of counts.
func printSummary(w io.Writer, sum *archive.Summary, dryRun bool) {
	if dryRun {
		color.New(color.FgYellow).Fprintln(w, i18n.T("run.summary_dry", sum.Planned, sum.Pruned))
		return
	}
	c := color.New(color.FgGreen)
	if sum.Failed > 0 {
		c = color.New(color.FgRed)
	}
	c.Fprintln(w, i18n.T("run.summary", sum.Fetched, sum.AlreadyPresent, sum.Removed, sum.Pruned, sum.Failed))
}
