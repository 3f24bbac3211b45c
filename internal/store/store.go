// Package store persists audio clips and their trigger phrases, keeps the
// clip catalog consistent with files under the data directory, and
// implements the phrase-matching used by the reaction engine.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a clip or phrase id does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrUnavailable wraps backend failures, for example a database that
// cannot be reached. HTTP handlers map it to 503.
var ErrUnavailable = errors.New("store: backend unavailable")

// Clip is a stored audio file plus its playback metadata. AudioPath is
// relative to the data directory and always points at an existing file
// while the clip exists.
type Clip struct {
	ID             string
	CreatedAt      time.Time
	LastPlayedAt   time.Time
	PlayCount      int64
	SpeechDetected string
	Description    string
	AudioPath      string
}

// Phrase is a lowercased trigger string attached to exactly one clip.
type Phrase struct {
	ID     string
	ClipID string
	Text   string
}

// Store is the persistence surface used by the reaction engine, the
// admin API, and the janitor.
type Store interface {
	// ListClips returns every clip. No pagination.
	ListClips(ctx context.Context) ([]Clip, error)

	// GetClip returns the clip with the given id or [ErrNotFound].
	GetClip(ctx context.Context, id string) (Clip, error)

	// AddClip writes data as a new file under the clips directory,
	// inserts a clip row with an empty ingest transcript, and inserts
	// one phrase per entry of phrases. The stored file name is the
	// original file name prefixed with six random characters.
	AddClip(ctx context.Context, data []byte, description string, phrases []string, originalFilename string) (Clip, []Phrase, error)

	// UpdateClip sets the description and replaces the complete phrase
	// set of the clip. All previously attached phrases are removed.
	UpdateClip(ctx context.Context, id, description string, phrases []string) (Clip, error)

	// RemoveClip deletes the clip row, cascading to its phrases, and
	// then deletes the audio file best-effort. A file deletion failure
	// is logged, not returned. The removed row is returned.
	RemoveClip(ctx context.Context, id string) (Clip, error)

	// AddPhrase attaches text, lowercased, to the clip.
	AddPhrase(ctx context.Context, clipID, text string) (Phrase, error)

	// RemovePhrase deletes one phrase and returns the removed row.
	RemovePhrase(ctx context.Context, id string) (Phrase, error)

	// GetPhrase returns the phrase with the given id or [ErrNotFound].
	GetPhrase(ctx context.Context, id string) (Phrase, error)

	// ListPhrases returns every phrase across all clips.
	ListPhrases(ctx context.Context) ([]Phrase, error)

	// PhrasesForClip returns the phrases attached to one clip. A clip
	// without phrases yields an empty slice, not an error.
	PhrasesForClip(ctx context.Context, clipID string) ([]Phrase, error)

	// LastPlayed returns the most recent LastPlayedAt across all clips,
	// or the Unix epoch when the catalog is empty.
	LastPlayed(ctx context.Context) (time.Time, error)

	// MarkPlayed increments the clip's play count and sets its
	// LastPlayedAt to the current time, atomically.
	MarkPlayed(ctx context.Context, id string) error
}

// now returns the current UTC time at second resolution, matching the
// resolution of the stored timestamps.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
