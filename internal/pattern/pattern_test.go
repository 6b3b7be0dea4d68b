// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package pattern

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func date(s string) time.Time {
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
	}{
		{"missing token", "*.log.gz"},
		{"duplicate token", "<DATE->.<DATE->.log"},
		{"malformed glob", "[.log.<DATE->"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.pattern)
			if err == nil {
				t.Fatalf("Compile(%q) succeeded, want error", tt.pattern)
			}
			var perr *InvalidPatternError
			if !errors.As(err, &perr) {
				t.Fatalf("Compile(%q) error = %T, want *InvalidPatternError", tt.pattern, err)
			}
			if perr.Pattern != tt.pattern {
				t.Errorf("error carries pattern %q, want %q", perr.Pattern, tt.pattern)
			}
		})
	}
}

func TestMatcher_Glob(t *testing.T) {
	m, err := Compile("*.log.<DATE->*")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := m.Glob(), "*.log.????-??-??*"; got != want {
		t.Errorf("Glob() = %q, want %q", got, want)
	}
}

func TestMatcher_Match(t *testing.T) {
	tests := []struct {
		pattern  string
		filename string
		want     string // "" means no match
	}{
		{"*.log.<DATE->*", "app.log.2023-01-05.gz", "2023-01-05"},
		{"*.log.<DATE->*", "app.log.2023-01-05", "2023-01-05"},
		{"*.log.<DATE->*", "app.log.notadate.gz", ""},
		{"*.log.<DATE->*", "app.txt.2023-01-05.gz", ""},
		{"access.<DATE->.log", "access.2022-12-31.log", "2022-12-31"},
		{"access.<DATE->.log", "access.2022-12-31.log.gz", ""},
		// Date-shaped but not a real calendar date.
		{"*.log.<DATE->*", "app.log.2023-13-40.gz", ""},
		// Out of the supported century.
		{"*.log.<DATE->*", "app.log.1999-01-05.gz", ""},
		{"<DATE->.log", "2024-02-29.log", "2024-02-29"},
		{"<DATE->.log", "2023-02-29.log", ""},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			m, err := Compile(tt.pattern)
			if err != nil {
				t.Fatal(err)
			}
			got, ok := m.Match(tt.filename)
			if tt.want == "" {
				if ok {
					t.Fatalf("Match(%q) = %v, want no match", tt.filename, got)
				}
				return
			}
			if !ok {
				t.Fatalf("Match(%q) found no match, want %s", tt.filename, tt.want)
			}
			if !got.Equal(date(tt.want)) {
				t.Errorf("Match(%q) = %v, want %s", tt.filename, got, tt.want)
			}
		})
	}
}

// Ambiguous alignments resolve to the leftmost date-shaped region that is a
// valid calendar date.
func TestMatcher_Match_AmbiguousAlignment(t *testing.T) {
	m, err := Compile("*.<DATE->*")
	if err != nil {
		t.Fatal(err)
	}
	got, ok := m.Match("x.2023-99-99.2023-01-05.gz")
	if !ok {
		t.Fatal("expected a match via the second date region")
	}
	if !got.Equal(date("2023-01-05")) {
		t.Errorf("got %v, want 2023-01-05", got)
	}
}

// Round-trip: rendering any valid date into a pattern and matching the result
// recovers exactly that date.
func TestMatcher_Match_RoundTrip(t *testing.T) {
	m, err := Compile("app.log.<DATE->.gz")
	if err != nil {
		t.Fatal(err)
	}
	d := date("2020-01-01")
	for i := 0; i < 400; i++ {
		name := strings.Replace("app.log.<DATE->.gz", DateToken, d.Format("2006-01-02"), 1)
		got, ok := m.Match(name)
		if !ok {
			t.Fatalf("no match for %q", name)
		}
		if !got.Equal(d) {
			t.Fatalf("round-trip for %q = %v, want %v", name, got, d)
		}
		d = d.AddDate(0, 0, 1)
	}
}

func TestExtractDate(t *testing.T) {
	if _, ok := ExtractDate("app.log.notadate.gz"); ok {
		t.Error("ExtractDate matched a dateless name")
	}
	d, ok := ExtractDate("/srv/archive/app/web1/app.log.2023-01-05.gz")
	if !ok || !d.Equal(date("2023-01-05")) {
		t.Errorf("ExtractDate = %v, %v; want 2023-01-05, true", d, ok)
	}
}

// IsArchivable(today-k, today, N) holds exactly when k > N.
func TestIsArchivable_Window(t *testing.T) {
	today := date("2023-01-10")
	for k := 0; k <= 8; k++ {
		for n := 0; n <= 8; n++ {
			fileDate := today.AddDate(0, 0, -k)
			got := IsArchivable(fileDate, today, n)
			if want := k > n; got != want {
				t.Errorf("IsArchivable(today-%d, today, %d) = %v, want %v", k, n, got, want)
			}
		}
	}
}

func TestIsArchivable_RetentionWindow(t *testing.T) {
	today := date("2023-01-10")
	fileDate := date("2023-01-05")
	if !IsArchivable(fileDate, today, 2) {
		t.Error("5-day-old file with a 2-day window should be archivable")
	}
	if IsArchivable(fileDate, today, 10) {
		t.Error("5-day-old file with a 10-day window should be kept")
	}
}

func TestAge_WholeDaysByCalendarDate(t *testing.T) {
	if got := Age(date("2023-01-05"), date("2023-01-10")); got != 5 {
		t.Errorf("Age = %d, want 5", got)
	}
	// Shortly after midnight in a zone ahead of UTC: the instant is still
	// Jan 9 in UTC, but the calendar date says Jan 10.
	today := time.Date(2023, 1, 10, 0, 30, 0, 0, time.FixedZone("AEDT", 11*3600))
	if got := Age(date("2023-01-05"), today); got != 5 {
		t.Errorf("Age across zones = %d, want 5", got)
	}
	if got := Age(date("2023-01-10"), date("2023-01-10")); got != 0 {
		t.Errorf("Age same day = %d, want 0", got)
	}
}

// Time-of-day and zone never shift the whole-day difference.
func TestIsArchivable_NormalizesToMidnight(t *testing.T) {
	today := time.Date(2023, 1, 10, 23, 59, 0, 0, time.FixedZone("X", 3600))
	fileDate := date("2023-01-07")
	if !IsArchivable(fileDate, today, 2) {
		t.Error("3 whole days > 2, expected archivable")
	}
	if IsArchivable(fileDate, today, 3) {
		t.Error("3 whole days is not > 3, expected kept")
	}
}

func ExampleMatcher_Match() {
	m, _ := Compile("*.log.<DATE->*")
	d, ok := m.Match("app.log.2023-01-05.gz")
	fmt.Println(d.Format("2006-01-02"), ok)
	// Output: 2023-01-05 true
}
