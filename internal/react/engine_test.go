package react_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hecklerbot/heckler/internal/react"
	"github.com/hecklerbot/heckler/internal/store"
	"github.com/hecklerbot/heckler/internal/synonym"
)

// fakeEnqueuer records enqueued paths.
type fakeEnqueuer struct {
	mu        sync.Mutex
	paths     []string
	connected bool
}

func (f *fakeEnqueuer) Enqueue(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
}

func (f *fakeEnqueuer) Connected() bool { return f.connected }

func (f *fakeEnqueuer) enqueued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func seedClip(t *testing.T, s store.Store, description string, phrases ...string) store.Clip {
	t.Helper()
	clip, _, err := s.AddClip(context.Background(), []byte("riff"), description, phrases, description+".mp3")
	if err != nil {
		t.Fatalf("AddClip failed: %v", err)
	}
	return clip
}

// newEngine builds an engine with a deterministic clock far in the
// future (so the rate limiter passes) and a fixed RNG.
func newEngine(s store.Store, player react.Enqueuer, dataDir string, opts ...react.Option) *react.Engine {
	base := []react.Option{
		react.WithClock(func() time.Time { return time.Now().Add(24 * time.Hour) }),
		react.WithRand(func() float64 { return 0 }, func(n int) int { return 0 }),
	}
	return react.New(s, synonym.Noop{}, player, dataDir, 256, append(base, opts...)...)
}

func TestEngine_UploadThenMatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	s := store.NewMemStore(dir)
	clip := seedClip(t, s, "laugh", "that's hilarious")
	player := &fakeEnqueuer{}
	e := newEngine(s, player, dir)

	e.HandleTranscript(ctx, "okay that's hilarious honestly")

	got := player.enqueued()
	if len(got) != 1 {
		t.Fatalf("expected one playback, got %v", got)
	}
	if want := filepath.Join(dir, clip.AudioPath); got[0] != want {
		t.Errorf("enqueued %q, want %q", got[0], want)
	}
	played, _ := s.GetClip(ctx, clip.ID)
	if played.PlayCount != 1 {
		t.Errorf("play count = %d, want 1", played.PlayCount)
	}
	if played.LastPlayedAt.Before(clip.LastPlayedAt) {
		t.Errorf("last played time did not advance")
	}
}

func TestEngine_RateLimitBlocks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	s := store.NewMemStore(dir)
	clip := seedClip(t, s, "laugh", "anything goes")
	if err := s.MarkPlayed(ctx, clip.ID); err != nil {
		t.Fatalf("MarkPlayed failed: %v", err)
	}

	player := &fakeEnqueuer{}
	// Clock equals the last play time, so the chance is ~0; draw 0.99.
	e := react.New(s, synonym.Noop{}, player, dir, 120,
		react.WithClock(func() time.Time { return time.Now().UTC() }),
		react.WithRand(func() float64 { return 0.99 }, func(n int) int { return 0 }),
	)

	e.HandleTranscript(ctx, "anything goes")

	if got := player.enqueued(); len(got) != 0 {
		t.Errorf("expected no playback under the rate limit, got %v", got)
	}
	after, _ := s.GetClip(ctx, clip.ID)
	if after.PlayCount != 1 {
		t.Errorf("play count changed, got %d", after.PlayCount)
	}
}

func TestEngine_PolitenessBypass(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	s := store.NewMemStore(dir)
	clip := seedClip(t, s, "laugh", "anything goes")
	s.MarkPlayed(ctx, clip.ID)

	player := &fakeEnqueuer{}
	e := react.New(s, synonym.Noop{}, player, dir, 120,
		react.WithClock(func() time.Time { return time.Now().UTC() }),
		react.WithRand(func() float64 { return 0.99 }, func(n int) int { return 0 }),
	)

	e.HandleTranscript(ctx, "excuse me, anything goes")

	if got := player.enqueued(); len(got) != 1 {
		t.Errorf("politeness should bypass the rate limit, got %v", got)
	}
}

func TestEngine_EmptyTranscriptAndNoCandidates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	s := store.NewMemStore(dir)
	seedClip(t, s, "laugh", "that's hilarious")
	player := &fakeEnqueuer{}
	e := newEngine(s, player, dir)

	e.HandleTranscript(ctx, "   ")
	e.HandleTranscript(ctx, "nothing matches this")

	if got := player.enqueued(); len(got) != 0 {
		t.Errorf("expected no playback, got %v", got)
	}
}

func TestEngine_PunctuationStripped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	s := store.NewMemStore(dir)
	seedClip(t, s, "laugh", "thats hilarious")
	player := &fakeEnqueuer{}
	e := newEngine(s, player, dir)

	e.HandleTranscript(ctx, "That's hilarious!")

	if got := player.enqueued(); len(got) != 1 {
		t.Errorf("punctuation should not prevent a match, got %v", got)
	}
}

func TestEngine_ReporterIncludesPhrases(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	s := store.NewMemStore(dir)
	seedClip(t, s, "laugh", "that's hilarious")
	player := &fakeEnqueuer{}

	var mu sync.Mutex
	var reports []string
	e := newEngine(s, player, dir, react.WithReporter(func(ctx context.Context, msg string) {
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, msg)
	}))

	e.HandleTranscript(ctx, "that's hilarious")

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %v", reports)
	}
	if !strings.Contains(reports[0], "laugh") || !strings.Contains(reports[0], "that's hilarious") {
		t.Errorf("report should name the clip and its triggers, got %q", reports[0])
	}
}

func TestEngine_SetReporterAfterConstruction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	s := store.NewMemStore(dir)
	seedClip(t, s, "laugh", "that's hilarious")
	player := &fakeEnqueuer{}
	e := newEngine(s, player, dir)

	// No reporter yet; the play must still go through.
	e.HandleTranscript(ctx, "that's hilarious")
	if got := player.enqueued(); len(got) != 1 {
		t.Fatalf("expected one playback before a reporter exists, got %v", got)
	}

	var mu sync.Mutex
	var reports []string
	e.SetReporter(func(ctx context.Context, msg string) {
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, msg)
	})

	e.HandleTranscript(ctx, "that's hilarious")

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 1 {
		t.Fatalf("reporter installed after construction should see the play, got %v", reports)
	}
	if !strings.Contains(reports[0], "laugh") {
		t.Errorf("report should name the clip, got %q", reports[0])
	}
}

func TestEngine_PlayChanceCurve(t *testing.T) {
	t.Parallel()
	e := react.New(store.NewMemStore(t.TempDir()), synonym.Noop{}, &fakeEnqueuer{}, t.TempDir(), 256)

	if got := e.PlayChance(0); got != 0 {
		t.Errorf("chance at zero delta = %v, want 0", got)
	}
	if got := e.PlayChance(1000 * time.Hour); got < 0.999999 {
		t.Errorf("chance should approach 1 for large deltas, got %v", got)
	}
	prev := -1.0
	for _, d := range []time.Duration{time.Second, time.Minute, 3 * time.Minute, time.Hour} {
		c := e.PlayChance(d)
		if c <= prev {
			t.Errorf("chance must be monotonic, got %v after %v", c, prev)
		}
		prev = c
	}
	// Sanity anchors from the curve with rate_adjuster = 256.
	if c := e.PlayChance(time.Minute); c < 0.15 || c > 0.30 {
		t.Errorf("chance after 1 min = %v, expected around 0.2", c)
	}
}

func TestPeriodicPlayer_SkipsWhileDisconnected(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	s := store.NewMemStore(dir)
	seedClip(t, s, "laugh", "x")
	player := &fakeEnqueuer{connected: false}

	p := react.NewPeriodicPlayer(s, player, dir, 10*time.Millisecond)
	go p.Run(ctx)

	time.Sleep(60 * time.Millisecond)
	if got := player.enqueued(); len(got) != 0 {
		t.Errorf("disconnected player should not receive clips, got %v", got)
	}
}

func TestPeriodicPlayer_PlaysWhileConnected(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	s := store.NewMemStore(dir)
	seedClip(t, s, "laugh", "x")
	player := &fakeEnqueuer{connected: true}

	p := react.NewPeriodicPlayer(s, player, dir, 10*time.Millisecond)
	go p.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(player.enqueued()) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected at least one random clip")
}
