// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package archive

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/toeirei/archiver/internal/i18n"
	"github.com/toeirei/archiver/internal/logging"
	"github.com/toeirei/archiver/internal/model"
	"github.com/toeirei/archiver/internal/pattern"
)

// PruneCandidates walks a service's local archive subtree and returns the
// files whose embedded date is strictly older than the service's local
// retention window, sorted oldest first. Filenames without a parseable date
// are left alone. A service without a retention window has no candidates.
func PruneCandidates(archiveDir string, svc model.ServiceConfig, today time.Time) ([]string, error) {
	if svc.RetentionPeriodDays <= 0 {
		return nil, nil
	}

	root := filepath.Join(archiveDir, svc.Name)
	type candidate struct {
		path string
		date time.Time
	}
	var candidates []candidate
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				// Nothing archived for this service yet.
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		date, ok := pattern.ExtractDate(d.Name())
		if !ok {
			return nil
		}
		if pattern.IsArchivable(date, today, svc.RetentionPeriodDays) {
			candidates = append(candidates, candidate{path: p, date: date})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].date.Equal(candidates[j].date) {
			return candidates[i].date.Before(candidates[j].date)
		}
		return candidates[i].path < candidates[j].path
	})
	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.path
	}
	return paths, nil
}

// Prune enforces the local retention policy for one service. In dry-run
// mode it only logs what would be deleted. Returns the number of files
// deleted (or, in dry-run, that would have been).
func Prune(ctx context.Context, archiveDir string, svc model.ServiceConfig, today time.Time, dryRun bool) (int, error) {
	candidates, err := PruneCandidates(archiveDir, svc, today)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		logging.Infof("%s", i18n.T("prune.deleting", p))
		if dryRun {
			pruned++
			continue
		}
		if err := os.Remove(p); err != nil {
			logging.Errorf("%s", i18n.T("prune.failed", p, err))
			continue
		}
		pruned++
	}
	return pruned, nil
}
