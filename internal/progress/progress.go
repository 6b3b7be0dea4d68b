// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package progress renders a per-file transfer meter for verbose
// interactive runs. The bar is drawn with the bubbles progress component,
// redrawn in place on a single line; non-TTY runs never construct a Meter
// and fall back to plain log lines.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var nameStyle = lipgloss.NewStyle().Bold(true)

// Stdout reports whether stdout is an interactive terminal.
func Stdout() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Meter draws one file's transfer progress, redrawing a single line.
type Meter struct {
	out  io.Writer
	bar  progress.Model
	name string
}

// New creates a meter writing to out (normally os.Stdout).
func New(out io.Writer) *Meter {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40
	return &Meter{out: out, bar: bar}
}

// Start begins a new file's line.
func (m *Meter) Start(name string) {
	m.name = name
	m.draw(0)
}

// Update redraws the line for the current byte counts. Unknown totals
// (total < 0) draw a byte counter instead of a percentage bar.
func (m *Meter) Update(written, total int64) {
	if total <= 0 {
		fmt.Fprintf(m.out, "\r%s %s", nameStyle.Render(m.name), humanBytes(written))
		return
	}
	m.draw(float64(written) / float64(total))
}

// Finish completes the line.
func (m *Meter) Finish() {
	m.draw(1)
	fmt.Fprintln(m.out)
}

func (m *Meter) draw(frac float64) {
	if frac > 1 {
		frac = 1
	}
	fmt.Fprintf(m.out, "\r%s %s", nameStyle.Render(m.name), m.bar.ViewAs(frac))
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
