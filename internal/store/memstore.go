package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store]. Clip
// files still land on disk under the data directory; only the catalog
// rows live in memory. It backs tests and ephemeral deployments.
type MemStore struct {
	dataDir string

	mu      sync.RWMutex
	clips   map[string]Clip
	phrases map[string]Phrase
}

// NewMemStore returns an initialised [MemStore] writing clip files under
// dataDir.
func NewMemStore(dataDir string) *MemStore {
	return &MemStore{
		dataDir: dataDir,
		clips:   make(map[string]Clip),
		phrases: make(map[string]Phrase),
	}
}

// ListClips implements [Store.ListClips].
func (s *MemStore) ListClips(ctx context.Context) ([]Clip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Clip, 0, len(s.clips))
	for _, c := range s.clips {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Clip) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// GetClip implements [Store.GetClip].
func (s *MemStore) GetClip(ctx context.Context, id string) (Clip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clips[id]
	if !ok {
		return Clip{}, ErrNotFound
	}
	return c, nil
}

// AddClip implements [Store.AddClip].
func (s *MemStore) AddClip(ctx context.Context, data []byte, description string, phrases []string, originalFilename string) (Clip, []Phrase, error) {
	rel, err := writeClipFile(s.dataDir, data, originalFilename)
	if err != nil {
		return Clip{}, nil, err
	}

	ts := now()
	clip := Clip{
		ID:           NewID(),
		CreatedAt:    ts,
		LastPlayedAt: ts,
		Description:  description,
		AudioPath:    rel,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clips[clip.ID] = clip
	attached := make([]Phrase, 0, len(phrases))
	for _, text := range phrases {
		p := Phrase{ID: NewID(), ClipID: clip.ID, Text: strings.ToLower(text)}
		s.phrases[p.ID] = p
		attached = append(attached, p)
	}
	return clip, attached, nil
}

// UpdateClip implements [Store.UpdateClip].
func (s *MemStore) UpdateClip(ctx context.Context, id, description string, phrases []string) (Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clips[id]
	if !ok {
		return Clip{}, ErrNotFound
	}
	c.Description = description
	s.clips[id] = c

	for pid, p := range s.phrases {
		if p.ClipID == id {
			delete(s.phrases, pid)
		}
	}
	for _, text := range phrases {
		p := Phrase{ID: NewID(), ClipID: id, Text: strings.ToLower(text)}
		s.phrases[p.ID] = p
	}
	return c, nil
}

// RemoveClip implements [Store.RemoveClip].
func (s *MemStore) RemoveClip(ctx context.Context, id string) (Clip, error) {
	s.mu.Lock()
	c, ok := s.clips[id]
	if !ok {
		s.mu.Unlock()
		return Clip{}, ErrNotFound
	}
	delete(s.clips, id)
	for pid, p := range s.phrases {
		if p.ClipID == id {
			delete(s.phrases, pid)
		}
	}
	s.mu.Unlock()

	removeClipFile(s.dataDir, c.AudioPath)
	return c, nil
}

// AddPhrase implements [Store.AddPhrase].
func (s *MemStore) AddPhrase(ctx context.Context, clipID, text string) (Phrase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clips[clipID]; !ok {
		return Phrase{}, ErrNotFound
	}
	p := Phrase{ID: NewID(), ClipID: clipID, Text: strings.ToLower(text)}
	s.phrases[p.ID] = p
	return p, nil
}

// RemovePhrase implements [Store.RemovePhrase].
func (s *MemStore) RemovePhrase(ctx context.Context, id string) (Phrase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.phrases[id]
	if !ok {
		return Phrase{}, ErrNotFound
	}
	delete(s.phrases, id)
	return p, nil
}

// GetPhrase implements [Store.GetPhrase].
func (s *MemStore) GetPhrase(ctx context.Context, id string) (Phrase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.phrases[id]
	if !ok {
		return Phrase{}, ErrNotFound
	}
	return p, nil
}

// ListPhrases implements [Store.ListPhrases].
func (s *MemStore) ListPhrases(ctx context.Context) ([]Phrase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Phrase, 0, len(s.phrases))
	for _, p := range s.phrases {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Phrase) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// PhrasesForClip implements [Store.PhrasesForClip].
func (s *MemStore) PhrasesForClip(ctx context.Context, clipID string) ([]Phrase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Phrase, 0)
	for _, p := range s.phrases {
		if p.ClipID == clipID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b Phrase) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// SetSpeechDetected records an ingest transcript on a clip. Catalogs
// imported from older installations carry these; new uploads start empty.
func (s *MemStore) SetSpeechDetected(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clips[id]; ok {
		c.SpeechDetected = text
		s.clips[id] = c
	}
}

// LastPlayed implements [Store.LastPlayed].
func (s *MemStore) LastPlayed(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := time.Unix(0, 0).UTC()
	for _, c := range s.clips {
		if c.LastPlayedAt.After(latest) {
			latest = c.LastPlayedAt
		}
	}
	return latest, nil
}

// MarkPlayed implements [Store.MarkPlayed].
func (s *MemStore) MarkPlayed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clips[id]
	if !ok {
		return ErrNotFound
	}
	c.PlayCount++
	c.LastPlayedAt = now()
	s.clips[id] = c
	return nil
}
