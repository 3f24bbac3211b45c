// Package janitor reconciles the clip catalog against the files on disk:
// rows whose audio is gone, and audio nobody owns.
package janitor

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hecklerbot/heckler/internal/store"
)

// Report lists the two kinds of drift between catalog and disk.
type Report struct {
	// MissingFiles are clips whose audio file no longer exists.
	MissingFiles []store.Clip
	// OrphanFiles are paths under the clips directory, relative to the
	// data directory, with no owning clip row.
	OrphanFiles []string
}

// Empty reports whether the catalog and disk agree.
func (r Report) Empty() bool {
	return len(r.MissingFiles) == 0 && len(r.OrphanFiles) == 0
}

// Scan walks the catalog and the clips directory and returns the drift
// between them. A missing clips directory yields no orphans rather than
// an error.
func Scan(ctx context.Context, s store.Store, dataDir string) (Report, error) {
	clips, err := s.ListClips(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("janitor: list clips: %w", err)
	}

	var report Report
	owned := make(map[string]struct{}, len(clips))
	for _, c := range clips {
		owned[filepath.Clean(c.AudioPath)] = struct{}{}
		if _, err := os.Stat(filepath.Join(dataDir, c.AudioPath)); os.IsNotExist(err) {
			report.MissingFiles = append(report.MissingFiles, c)
		}
	}

	clipsRoot := filepath.Join(dataDir, store.ClipsDir)
	err = filepath.WalkDir(clipsRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == clipsRoot {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			return err
		}
		if _, ok := owned[filepath.Clean(rel)]; !ok {
			report.OrphanFiles = append(report.OrphanFiles, rel)
		}
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("janitor: walk clips directory: %w", err)
	}
	return report, nil
}

// Clean removes the drift found by [Scan]: catalog rows without files
// and files without rows. Per-item failures are written to w and do not
// stop the run.
func Clean(ctx context.Context, s store.Store, dataDir string, report Report, w io.Writer) {
	for _, c := range report.MissingFiles {
		if _, err := s.RemoveClip(ctx, c.ID); err != nil {
			fmt.Fprintf(w, "failed to remove clip %s: %v\n", c.ID, err)
			continue
		}
		fmt.Fprintf(w, "removed clip %s (%s): file %s missing\n", c.ID, c.Description, c.AudioPath)
	}
	for _, rel := range report.OrphanFiles {
		if err := os.Remove(filepath.Join(dataDir, rel)); err != nil {
			fmt.Fprintf(w, "failed to remove orphan file %s: %v\n", rel, err)
			continue
		}
		fmt.Fprintf(w, "removed orphan file %s\n", rel)
	}
}

// Print writes a dry-run listing of the report to w.
func Print(report Report, w io.Writer) {
	if report.Empty() {
		fmt.Fprintln(w, "catalog and clips directory are in sync")
		return
	}
	for _, c := range report.MissingFiles {
		fmt.Fprintf(w, "clip %s (%s): file %s does not exist\n", c.ID, c.Description, c.AudioPath)
	}
	for _, rel := range report.OrphanFiles {
		fmt.Fprintf(w, "file %s has no owning clip\n", rel)
	}
}
