package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockDB implements the DB interface with per-call hooks.
type mockDB struct {
	queryRowFunc func(sql string, args ...any) pgx.Row
	queryFunc    func(sql string, args ...any) (pgx.Rows, error)
	execFunc     func(sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return m.queryRowFunc(sql, args...)
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return m.queryFunc(sql, args...)
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return m.execFunc(sql, args...)
}

func (m *mockDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("mockDB: transactions not supported")
}

func TestPostgres_GetClipNotFound(t *testing.T) {
	t.Parallel()
	db := &mockDB{
		queryRowFunc: func(sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}
	s := NewPostgresDB(db, t.TempDir())

	_, err := s.GetClip(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_BackendErrorsWrapUnavailable(t *testing.T) {
	t.Parallel()
	dbErr := errors.New("connection refused")
	db := &mockDB{
		queryFunc: func(sql string, args ...any) (pgx.Rows, error) {
			return nil, dbErr
		},
	}
	s := NewPostgresDB(db, t.TempDir())

	_, err := s.ListClips(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if !errors.Is(err, dbErr) {
		t.Errorf("original cause should still be wrapped, got %v", err)
	}
}

func TestPostgres_LastPlayedEmptyCatalog(t *testing.T) {
	t.Parallel()
	db := &mockDB{
		queryRowFunc: func(sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				// max() over zero rows yields SQL NULL.
				*(dest[0].(**time.Time)) = nil
				return nil
			}}
		},
	}
	s := NewPostgresDB(db, t.TempDir())

	got, err := s.LastPlayed(context.Background())
	if err != nil {
		t.Fatalf("LastPlayed failed: %v", err)
	}
	if !got.Equal(time.Unix(0, 0).UTC()) {
		t.Errorf("empty catalog should report the epoch, got %v", got)
	}
}

func TestPostgres_MarkPlayedUnknownClip(t *testing.T) {
	t.Parallel()
	db := &mockDB{
		execFunc: func(sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}
	s := NewPostgresDB(db, t.TempDir())

	if err := s.MarkPlayed(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClipFileName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		wantErr bool
		suffix  string
	}{
		{in: "laugh.mp3", suffix: "-laugh.mp3"},
		{in: "../../etc/passwd", suffix: "-passwd"},
		{in: "  trimmed.wav ", suffix: "-trimmed.wav"},
		{in: "", wantErr: true},
		{in: ".", wantErr: true},
	}
	for _, tt := range tests {
		got, err := clipFileName(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("clipFileName(%q) should fail, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("clipFileName(%q) failed: %v", tt.in, err)
			continue
		}
		if len(got) != 6+len(tt.suffix) {
			t.Errorf("clipFileName(%q) = %q, unexpected length", tt.in, got)
		}
		if got[6:] != tt.suffix {
			t.Errorf("clipFileName(%q) = %q, want suffix %q", tt.in, got, tt.suffix)
		}
	}
}
