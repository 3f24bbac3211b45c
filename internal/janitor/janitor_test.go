package janitor_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hecklerbot/heckler/internal/janitor"
	"github.com/hecklerbot/heckler/internal/store"
)

func TestScan_CleanCatalog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	s := store.NewMemStore(dir)
	if _, _, err := s.AddClip(ctx, []byte("x"), "laugh", nil, "laugh.mp3"); err != nil {
		t.Fatalf("AddClip failed: %v", err)
	}

	report, err := janitor.Scan(ctx, s, dir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if !report.Empty() {
		t.Errorf("expected no drift, got %+v", report)
	}
}

func TestScan_NoClipsDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	report, err := janitor.Scan(context.Background(), store.NewMemStore(dir), dir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if !report.Empty() {
		t.Errorf("expected empty report without a clips directory, got %+v", report)
	}
}

func TestCleanRemovesDrift(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	s := store.NewMemStore(dir)

	// A clip whose file disappears, and an orphan file nobody owns.
	missing, _, err := s.AddClip(ctx, []byte("x"), "missing", nil, "gone.mp3")
	if err != nil {
		t.Fatalf("AddClip failed: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, missing.AudioPath)); err != nil {
		t.Fatalf("failed to delete clip file: %v", err)
	}
	orphan := filepath.Join(dir, store.ClipsDir, "orphan.mp3")
	if err := os.WriteFile(orphan, []byte("y"), 0o644); err != nil {
		t.Fatalf("failed to plant orphan: %v", err)
	}
	kept, _, err := s.AddClip(ctx, []byte("z"), "kept", nil, "kept.mp3")
	if err != nil {
		t.Fatalf("AddClip failed: %v", err)
	}

	report, err := janitor.Scan(ctx, s, dir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(report.MissingFiles) != 1 || report.MissingFiles[0].ID != missing.ID {
		t.Fatalf("missing files = %+v", report.MissingFiles)
	}
	if len(report.OrphanFiles) != 1 {
		t.Fatalf("orphan files = %+v", report.OrphanFiles)
	}

	var out bytes.Buffer
	janitor.Clean(ctx, s, dir, report, &out)

	if _, err := s.GetClip(ctx, missing.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing clip row should be gone, got %v", err)
	}
	if _, err := s.GetClip(ctx, kept.ID); err != nil {
		t.Errorf("intact clip must survive, got %v", err)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Errorf("orphan file should be gone, stat err: %v", err)
	}
	if out.Len() == 0 {
		t.Error("clean should report what it removed")
	}
}

func TestPrint_DryRun(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	janitor.Print(janitor.Report{}, &out)
	if out.Len() == 0 {
		t.Error("empty report should still print a summary line")
	}
}
