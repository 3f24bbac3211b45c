package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hecklerbot/heckler/internal/store"
	"github.com/hecklerbot/heckler/internal/web"
	"github.com/hecklerbot/heckler/pkg/api"
)

// newTestClient spins up the real admin API over a memory store and
// returns a Client pointed at it.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	dataDir := t.TempDir()
	st := store.NewMemStore(dataDir)
	srv := httptest.NewServer(web.New(st, dataDir, "admin", "hunter2").Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "admin", "hunter2")
}

func writeClipFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "laugh.mp3")
	if err := os.WriteFile(path, []byte("mp3 bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClientClipLifecycle(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	clip, err := client.AddClip(ctx, writeClipFile(t), api.ClipUpload{
		Description: "nervous laugh",
		Phrases:     []string{"That's A Bold Strategy"},
	})
	if err != nil {
		t.Fatalf("AddClip() error: %v", err)
	}
	if clip.ID == "" || clip.Description != "nervous laugh" {
		t.Fatalf("AddClip() = %+v", clip)
	}

	got, err := client.GetClip(ctx, clip.ID)
	if err != nil {
		t.Fatalf("GetClip() error: %v", err)
	}
	if len(got.Phrases) != 1 || got.Phrases[0].Text != "that's a bold strategy" {
		t.Errorf("GetClip() phrases = %+v, want lowercased upload phrase", got.Phrases)
	}

	clips, err := client.ListClips(ctx)
	if err != nil {
		t.Fatalf("ListClips() error: %v", err)
	}
	if clips.Items != 1 || len(clips.Clips) != 1 {
		t.Errorf("ListClips() = %+v, want one clip", clips)
	}

	updated, err := client.EditClip(ctx, clip.ID, api.ClipUpload{
		Description: "very nervous laugh",
		Phrases:     []string{"cotton-headed ninny muggins"},
	})
	if err != nil {
		t.Fatalf("EditClip() error: %v", err)
	}
	if updated.OldClip.Description != "nervous laugh" || updated.NewClip.Description != "very nervous laugh" {
		t.Errorf("EditClip() = %+v", updated)
	}

	removed, err := client.RemoveClip(ctx, clip.ID)
	if err != nil {
		t.Fatalf("RemoveClip() error: %v", err)
	}
	if removed.ID != clip.ID {
		t.Errorf("RemoveClip() ID = %q, want %q", removed.ID, clip.ID)
	}

	if _, err := client.GetClip(ctx, clip.ID); err == nil {
		t.Error("GetClip() after removal did not error")
	}
}

func TestClientPhraseLifecycle(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	clip, err := client.AddClip(ctx, writeClipFile(t), api.ClipUpload{Description: "laugh"})
	if err != nil {
		t.Fatalf("AddClip() error: %v", err)
	}

	phrase, err := client.AddPhrase(ctx, clip.ID, "hello there")
	if err != nil {
		t.Fatalf("AddPhrase() error: %v", err)
	}
	if phrase.ClipID != clip.ID || phrase.Text != "hello there" {
		t.Errorf("AddPhrase() = %+v", phrase)
	}

	phrases, err := client.ListPhrases(ctx)
	if err != nil {
		t.Fatalf("ListPhrases() error: %v", err)
	}
	if phrases.Items != 1 {
		t.Errorf("ListPhrases() items = %d, want 1", phrases.Items)
	}

	if _, err := client.RemovePhrase(ctx, phrase.ID); err != nil {
		t.Fatalf("RemovePhrase() error: %v", err)
	}
	phrases, err = client.ListPhrases(ctx)
	if err != nil {
		t.Fatalf("ListPhrases() error: %v", err)
	}
	if phrases.Items != 0 {
		t.Errorf("ListPhrases() items after removal = %d, want 0", phrases.Items)
	}
}

func TestClientErrorsCarryServerMessage(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.GetClip(ctx, "no-such-clip")
	if err == nil {
		t.Fatal("GetClip() for unknown ID did not error")
	}

	// Bad credentials surface as an error too.
	bad := NewClient(client.base, "admin", "wrong")
	if _, err := bad.ListClips(ctx); err == nil {
		t.Fatal("ListClips() with bad credentials did not error")
	}
}

func TestClipEditKeepsUnsetFields(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	clip, err := client.AddClip(ctx, writeClipFile(t), api.ClipUpload{
		Description: "nervous laugh",
		Phrases:     []string{"old trigger"},
	})
	if err != nil {
		t.Fatalf("AddClip() error: %v", err)
	}

	// Replacing the phrases must not clear the description.
	if err := clipEdit(ctx, client, []string{clip.ID, "--phrase", "new trigger"}); err != nil {
		t.Fatalf("clipEdit() error: %v", err)
	}
	got, err := client.GetClip(ctx, clip.ID)
	if err != nil {
		t.Fatalf("GetClip() error: %v", err)
	}
	if got.Description != "nervous laugh" {
		t.Errorf("description after phrase-only edit = %q, want %q", got.Description, "nervous laugh")
	}
	if len(got.Phrases) != 1 || got.Phrases[0].Text != "new trigger" {
		t.Errorf("phrases after edit = %+v, want just the new trigger", got.Phrases)
	}

	// And the reverse: changing the description keeps the phrases.
	if err := clipEdit(ctx, client, []string{clip.ID, "--description", "awkward laugh"}); err != nil {
		t.Fatalf("clipEdit() error: %v", err)
	}
	got, err = client.GetClip(ctx, clip.ID)
	if err != nil {
		t.Fatalf("GetClip() error: %v", err)
	}
	if got.Description != "awkward laugh" {
		t.Errorf("description after edit = %q, want %q", got.Description, "awkward laugh")
	}
	if len(got.Phrases) != 1 || got.Phrases[0].Text != "new trigger" {
		t.Errorf("phrases after description-only edit = %+v, want preserved", got.Phrases)
	}
}
