// Package react decides whether a transcript triggers a clip and plays
// it: rate limiting, phrase matching, selection, and play-out
// orchestration.
package react

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/hecklerbot/heckler/internal/store"
	"github.com/hecklerbot/heckler/internal/synonym"
)

// bypassPhrase skips the rate-limit gate so a polite request always gets
// an answer.
const bypassPhrase = "excuse me"

// Enqueuer is the playback slice of the voice platform the engine needs.
type Enqueuer interface {
	Enqueue(path string)
	Connected() bool
}

// Reporter receives a human-readable account of each play decision,
// typically posted to a Discord text channel.
type Reporter func(ctx context.Context, message string)

// Engine reacts to completed transcripts.
type Engine struct {
	store        store.Store
	oracle       synonym.Oracle
	player       Enqueuer
	dataDir      string
	rateAdjuster float64

	now    func() time.Time
	randF  func() float64
	randN  func(n int) int
	report atomic.Pointer[Reporter]

	transcripts metric.Int64Counter
	played      metric.Int64Counter
	limited     metric.Int64Counter
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRand overrides the random sources: randF draws from [0,1) for the
// rate-limit gate, randN selects among candidates.
func WithRand(randF func() float64, randN func(n int) int) Option {
	return func(e *Engine) {
		e.randF = randF
		e.randN = randN
	}
}

// WithReporter forwards play decisions to report.
func WithReporter(report Reporter) Option {
	return func(e *Engine) { e.SetReporter(report) }
}

// WithCounters records transcripts handled, clips played, and
// rate-limited drops on the given instruments.
func WithCounters(transcripts, played, limited metric.Int64Counter) Option {
	return func(e *Engine) {
		e.transcripts = transcripts
		e.played = played
		e.limited = limited
	}
}

// New returns an [Engine]. rateAdjuster is the time constant, in
// seconds, of the play-probability curve.
func New(s store.Store, oracle synonym.Oracle, player Enqueuer, dataDir string, rateAdjuster float64, opts ...Option) *Engine {
	e := &Engine{
		store:        s,
		oracle:       oracle,
		player:       player,
		dataDir:      dataDir,
		rateAdjuster: rateAdjuster,
		now:          time.Now,
		randF:        rand.Float64,
		randN:        rand.IntN,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SetReporter installs (or replaces) the play reporter. It is safe to
// call after the engine has started handling transcripts, which is how
// the Discord bot registers itself once its gateway session exists.
func (e *Engine) SetReporter(report Reporter) {
	if report == nil {
		e.report.Store(nil)
		return
	}
	e.report.Store(&report)
}

// PlayChance returns the probability of reacting after delta seconds of
// silence: zero immediately after a play, approaching one as the silence
// grows.
func (e *Engine) PlayChance(delta time.Duration) float64 {
	if delta <= 0 {
		return 0
	}
	return 1 - math.Exp(-delta.Seconds()/e.rateAdjuster)
}

// HandleTranscript runs one transcript through the reaction pipeline.
// Errors downstream of matching are logged and dropped; a transcript is
// never worth crashing the session over.
func (e *Engine) HandleTranscript(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if e.transcripts != nil {
		e.transcripts.Add(ctx, 1)
	}

	normalized := store.Normalize(text)
	log := slog.With("transcript", normalized)

	if !strings.Contains(normalized, bypassPhrase) {
		lastPlayed, err := e.store.LastPlayed(ctx)
		if err != nil {
			log.Error("failed to query last play time", "error", err)
			return
		}
		chance := e.PlayChance(e.now().Sub(lastPlayed))
		if draw := e.randF(); draw > chance {
			if e.limited != nil {
				e.limited.Add(ctx, 1)
			}
			log.Debug("rate limited", "chance", chance, "draw", draw)
			return
		}
	}

	candidates, err := store.MatchPhrase(ctx, e.store, normalized, e.oracle)
	if err != nil {
		log.Error("phrase matching failed", "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	clip := candidates[e.randN(len(candidates))]
	if err := e.store.MarkPlayed(ctx, clip.ID); err != nil {
		log.Error("failed to mark clip played", "clip", clip.ID, "error", err)
		return
	}
	if e.played != nil {
		e.played.Add(ctx, 1)
	}
	log.Info("playing clip", "clip", clip.ID, "description", clip.Description, "candidates", len(candidates))
	e.reportPlay(ctx, clip, len(candidates))

	e.player.Enqueue(filepath.Join(e.dataDir, clip.AudioPath))
}

// reportPlay posts the decision to the configured reporter, including
// the phrases that can trigger the chosen clip.
func (e *Engine) reportPlay(ctx context.Context, clip store.Clip, candidates int) {
	report := e.report.Load()
	if report == nil {
		return
	}
	phrases, err := e.store.PhrasesForClip(ctx, clip.ID)
	if err != nil {
		slog.Error("failed to load phrases for report", "clip", clip.ID, "error", err)
	}
	texts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		texts = append(texts, p.Text)
	}
	msg := fmt.Sprintf("Played %q (%d candidate(s)); triggers: %s",
		clip.Description, candidates, strings.Join(texts, ", "))
	(*report)(ctx, msg)
}
