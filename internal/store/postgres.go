package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the clip catalog. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS clips (
    id              TEXT PRIMARY KEY,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT date_trunc('second', now()),
    last_played_at  TIMESTAMPTZ NOT NULL DEFAULT date_trunc('second', now()),
    play_count      BIGINT NOT NULL DEFAULT 0,
    speech_detected TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    audio_path      TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS phrases (
    id      TEXT PRIMARY KEY,
    clip_id TEXT NOT NULL REFERENCES clips(id) ON DELETE CASCADE,
    text    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_phrases_clip ON phrases(clip_id);
`

// DB is the database interface used by [PostgresStore]. *pgxpool.Pool
// satisfies it; tests substitute mocks.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Clip audio
// bytes live on disk under the data directory; only metadata is stored
// in the database.
type PostgresStore struct {
	db      DB
	pool    *pgxpool.Pool
	dataDir string
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgres creates a [PostgresStore] on top of an existing pool,
// writing clip files under dataDir. The caller is responsible for
// calling [PostgresStore.Migrate] before issuing queries.
func NewPostgres(pool *pgxpool.Pool, dataDir string) *PostgresStore {
	return &PostgresStore{db: pool, pool: pool, dataDir: dataDir}
}

// NewPostgresDB is like [NewPostgres] but accepts any [DB]. Pool
// statistics are unavailable through this constructor; it exists for
// tests.
func NewPostgresDB(db DB, dataDir string) *PostgresStore {
	return &PostgresStore{db: db, dataDir: dataDir}
}

// Migrate executes the [Schema] DDL, creating the clips and phrases
// tables if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

const clipColumns = "id, created_at, last_played_at, play_count, speech_detected, description, audio_path"

func scanClip(row pgx.Row) (Clip, error) {
	var c Clip
	err := row.Scan(&c.ID, &c.CreatedAt, &c.LastPlayedAt, &c.PlayCount, &c.SpeechDetected, &c.Description, &c.AudioPath)
	return c, err
}

// ListClips implements [Store.ListClips].
func (s *PostgresStore) ListClips(ctx context.Context) ([]Clip, error) {
	rows, err := s.db.Query(ctx, "SELECT "+clipColumns+" FROM clips ORDER BY id")
	if err != nil {
		return nil, backendErr("list clips", err)
	}
	defer rows.Close()

	var out []Clip
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, backendErr("scan clip", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr("list clips", err)
	}
	return out, nil
}

// GetClip implements [Store.GetClip].
func (s *PostgresStore) GetClip(ctx context.Context, id string) (Clip, error) {
	c, err := scanClip(s.db.QueryRow(ctx, "SELECT "+clipColumns+" FROM clips WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Clip{}, ErrNotFound
		}
		return Clip{}, backendErr("get clip", err)
	}
	return c, nil
}

// AddClip implements [Store.AddClip]. The file is written first; if the
// insert transaction fails afterwards, the orphaned file is left for the
// janitor to reconcile.
func (s *PostgresStore) AddClip(ctx context.Context, data []byte, description string, phrases []string, originalFilename string) (Clip, []Phrase, error) {
	rel, err := writeClipFile(s.dataDir, data, originalFilename)
	if err != nil {
		return Clip{}, nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Clip{}, nil, backendErr("begin", err)
	}
	defer tx.Rollback(ctx)

	id := NewID()
	row := tx.QueryRow(ctx,
		"INSERT INTO clips (id, description, audio_path) VALUES ($1, $2, $3) RETURNING "+clipColumns,
		id, description, rel)
	clip, err := scanClip(row)
	if err != nil {
		return Clip{}, nil, backendErr("insert clip", err)
	}

	attached := make([]Phrase, 0, len(phrases))
	for _, text := range phrases {
		p := Phrase{ID: NewID(), ClipID: id, Text: strings.ToLower(text)}
		if _, err := tx.Exec(ctx,
			"INSERT INTO phrases (id, clip_id, text) VALUES ($1, $2, $3)",
			p.ID, p.ClipID, p.Text); err != nil {
			return Clip{}, nil, backendErr("insert phrase", err)
		}
		attached = append(attached, p)
	}

	if err := tx.Commit(ctx); err != nil {
		return Clip{}, nil, backendErr("commit", err)
	}
	return clip, attached, nil
}

// UpdateClip implements [Store.UpdateClip].
func (s *PostgresStore) UpdateClip(ctx context.Context, id, description string, phrases []string) (Clip, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Clip{}, backendErr("begin", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		"UPDATE clips SET description = $2 WHERE id = $1 RETURNING "+clipColumns,
		id, description)
	clip, err := scanClip(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Clip{}, ErrNotFound
		}
		return Clip{}, backendErr("update clip", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM phrases WHERE clip_id = $1", id); err != nil {
		return Clip{}, backendErr("delete phrases", err)
	}
	for _, text := range phrases {
		if _, err := tx.Exec(ctx,
			"INSERT INTO phrases (id, clip_id, text) VALUES ($1, $2, $3)",
			NewID(), id, strings.ToLower(text)); err != nil {
			return Clip{}, backendErr("insert phrase", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Clip{}, backendErr("commit", err)
	}
	return clip, nil
}

// RemoveClip implements [Store.RemoveClip]. The row goes first, the file
// second; attached phrases cascade with the row.
func (s *PostgresStore) RemoveClip(ctx context.Context, id string) (Clip, error) {
	row := s.db.QueryRow(ctx, "DELETE FROM clips WHERE id = $1 RETURNING "+clipColumns, id)
	clip, err := scanClip(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Clip{}, ErrNotFound
		}
		return Clip{}, backendErr("remove clip", err)
	}
	removeClipFile(s.dataDir, clip.AudioPath)
	return clip, nil
}

const phraseColumns = "id, clip_id, text"

func scanPhrase(row pgx.Row) (Phrase, error) {
	var p Phrase
	err := row.Scan(&p.ID, &p.ClipID, &p.Text)
	return p, err
}

// AddPhrase implements [Store.AddPhrase].
func (s *PostgresStore) AddPhrase(ctx context.Context, clipID, text string) (Phrase, error) {
	row := s.db.QueryRow(ctx,
		"INSERT INTO phrases (id, clip_id, text) VALUES ($1, $2, $3) RETURNING "+phraseColumns,
		NewID(), clipID, strings.ToLower(text))
	p, err := scanPhrase(row)
	if err != nil {
		if isForeignKeyError(err) {
			return Phrase{}, ErrNotFound
		}
		return Phrase{}, backendErr("add phrase", err)
	}
	return p, nil
}

// RemovePhrase implements [Store.RemovePhrase].
func (s *PostgresStore) RemovePhrase(ctx context.Context, id string) (Phrase, error) {
	row := s.db.QueryRow(ctx, "DELETE FROM phrases WHERE id = $1 RETURNING "+phraseColumns, id)
	p, err := scanPhrase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Phrase{}, ErrNotFound
		}
		return Phrase{}, backendErr("remove phrase", err)
	}
	return p, nil
}

// GetPhrase implements [Store.GetPhrase].
func (s *PostgresStore) GetPhrase(ctx context.Context, id string) (Phrase, error) {
	p, err := scanPhrase(s.db.QueryRow(ctx, "SELECT "+phraseColumns+" FROM phrases WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Phrase{}, ErrNotFound
		}
		return Phrase{}, backendErr("get phrase", err)
	}
	return p, nil
}

// ListPhrases implements [Store.ListPhrases].
func (s *PostgresStore) ListPhrases(ctx context.Context) ([]Phrase, error) {
	return s.queryPhrases(ctx, "SELECT "+phraseColumns+" FROM phrases ORDER BY id")
}

// PhrasesForClip implements [Store.PhrasesForClip].
func (s *PostgresStore) PhrasesForClip(ctx context.Context, clipID string) ([]Phrase, error) {
	return s.queryPhrases(ctx, "SELECT "+phraseColumns+" FROM phrases WHERE clip_id = $1 ORDER BY id", clipID)
}

func (s *PostgresStore) queryPhrases(ctx context.Context, sql string, args ...any) ([]Phrase, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, backendErr("list phrases", err)
	}
	defer rows.Close()

	out := make([]Phrase, 0)
	for rows.Next() {
		p, err := scanPhrase(rows)
		if err != nil {
			return nil, backendErr("scan phrase", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr("list phrases", err)
	}
	return out, nil
}

// LastPlayed implements [Store.LastPlayed].
func (s *PostgresStore) LastPlayed(ctx context.Context) (time.Time, error) {
	var latest *time.Time
	err := s.db.QueryRow(ctx, "SELECT max(last_played_at) FROM clips").Scan(&latest)
	if err != nil {
		return time.Time{}, backendErr("last played", err)
	}
	if latest == nil {
		return time.Unix(0, 0).UTC(), nil
	}
	return latest.UTC(), nil
}

// MarkPlayed implements [Store.MarkPlayed].
func (s *PostgresStore) MarkPlayed(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE clips SET play_count = play_count + 1, last_played_at = date_trunc('second', now()) WHERE id = $1",
		id)
	if err != nil {
		return backendErr("mark played", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Status reports the database server version and the number of open pool
// connections for the status endpoint.
func (s *PostgresStore) Status(ctx context.Context) (version string, connections int, err error) {
	if err := s.db.QueryRow(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", 0, backendErr("query server version", err)
	}
	if s.pool != nil {
		connections = int(s.pool.Stat().TotalConns())
	}
	return version, connections, nil
}

// backendErr wraps a database failure so callers can detect it with
// errors.Is(err, ErrUnavailable).
func backendErr(op string, err error) error {
	return fmt.Errorf("store: %s: %w: %w", op, ErrUnavailable, err)
}

// isForeignKeyError reports whether err is a PostgreSQL foreign key
// violation (SQLSTATE 23503).
func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
