// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package pattern compiles service filename patterns into matchers that
// recover the calendar date embedded in a log file's name, and holds the
// retention decision that makes a file archivable.
//
// A pattern is an ordinary glob (`*` matches zero or more characters,
// `?` matches one) with exactly one <DATE-> token standing in for a date in
// YYYY-MM-DD form, e.g. "*.log.<DATE->*".
package pattern

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

// DateToken is the placeholder in service patterns that stands for an
// embedded YYYY-MM-DD date.
const DateToken = "<DATE->"

// dateGlob is the token rendered as a shell glob, kept identical to the
// glob handed to `find -name` on the remote side.
const dateGlob = "????-??-??"

const dateLayout = "2006-01-02"

// dateRegexp finds date-shaped substrings. Syntactic candidates only; each
// one still has to survive a real calendar parse.
var dateRegexp = regexp.MustCompile(`20[0-9][0-9]-[0-9][0-9]-[0-9][0-9]`)

// InvalidPatternError reports a service pattern that cannot be compiled.
// The service's plan is abandoned; other services are unaffected.
type InvalidPatternError struct {
	Pattern string
	Reason  string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", e.Pattern, e.Reason)
}

// Matcher matches filenames against a compiled pattern and extracts the
// embedded date. Matchers are immutable and safe for reuse.
type Matcher struct {
	pattern string
	prefix  string
	suffix  string
}

// Compile turns a service pattern into a Matcher. It fails with an
// *InvalidPatternError when the <DATE-> token is missing or duplicated, or
// when the glob portions around it are malformed.
func Compile(p string) (*Matcher, error) {
	switch strings.Count(p, DateToken) {
	case 0:
		return nil, &InvalidPatternError{Pattern: p, Reason: "missing " + DateToken + " token"}
	case 1:
	default:
		return nil, &InvalidPatternError{Pattern: p, Reason: "more than one " + DateToken + " token"}
	}

	i := strings.Index(p, DateToken)
	prefix, suffix := p[:i], p[i+len(DateToken):]
	for _, part := range []string{prefix, suffix} {
		if _, err := path.Match(part, ""); err != nil {
			return nil, &InvalidPatternError{Pattern: p, Reason: "malformed glob: " + part}
		}
	}

	return &Matcher{pattern: p, prefix: prefix, suffix: suffix}, nil
}

// Pattern returns the original pattern string.
func (m *Matcher) Pattern() string { return m.pattern }

// Glob returns the pattern with the date token widened to "????-??-??",
// suitable for remote-side `find -name` and for display.
func (m *Matcher) Glob() string {
	return strings.Replace(m.pattern, DateToken, dateGlob, 1)
}

// Match reports whether filename matches the pattern and, if so, returns the
// embedded date. Matching is two-stage: the glob skeleton around the date
// region must match exactly, and the date region must parse as a real
// calendar date. When `*` allows several alignments, the leftmost one
// yielding a valid date wins; if none is valid there is no match.
func (m *Matcher) Match(filename string) (time.Time, bool) {
	for _, loc := range dateRegexp.FindAllStringIndex(filename, -1) {
		d, err := time.ParseInLocation(dateLayout, filename[loc[0]:loc[1]], time.UTC)
		if err != nil {
			continue
		}
		if ok, _ := path.Match(m.prefix, filename[:loc[0]]); !ok {
			continue
		}
		if ok, _ := path.Match(m.suffix, filename[loc[1]:]); !ok {
			continue
		}
		return d, true
	}
	return time.Time{}, false
}

// ExtractDate returns the first valid calendar date embedded anywhere in s.
// The local retention pruner uses this: archived copies may have gained a
// .gz suffix, so only the date matters, not the full pattern.
func ExtractDate(s string) (time.Time, bool) {
	for _, loc := range dateRegexp.FindAllStringIndex(s, -1) {
		if d, err := time.ParseInLocation(dateLayout, s[loc[0]:loc[1]], time.UTC); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// Age returns the number of whole days between fileDate and today. Both are
// normalized to midnight UTC by calendar date first, so time of day and zone
// never shift the count.
func Age(fileDate, today time.Time) int {
	return int(midnight(today).Sub(midnight(fileDate)).Hours() / 24)
}

// IsArchivable decides the retention window: a file is archivable when its
// date is strictly more than daysToKeep whole days before today. A file
// dated exactly daysToKeep days ago is kept one more day.
func IsArchivable(fileDate, today time.Time, daysToKeep int) bool {
	return Age(fileDate, today) > daysToKeep
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
