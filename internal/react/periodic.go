package react

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/hecklerbot/heckler/internal/store"
)

// PeriodicPlayer plays a random clip at a fixed interval while the bot
// is connected to a voice channel.
type PeriodicPlayer struct {
	store    store.Store
	player   Enqueuer
	dataDir  string
	interval time.Duration
	randN    func(n int) int
}

// NewPeriodicPlayer returns a [PeriodicPlayer] firing every interval.
func NewPeriodicPlayer(s store.Store, player Enqueuer, dataDir string, interval time.Duration) *PeriodicPlayer {
	return &PeriodicPlayer{
		store:    s,
		player:   player,
		dataDir:  dataDir,
		interval: interval,
		randN:    rand.IntN,
	}
}

// Run blocks until ctx is done, enqueueing one uniformly chosen clip per
// tick. Ticks while disconnected are skipped.
func (p *PeriodicPlayer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.playOne(ctx)
		}
	}
}

func (p *PeriodicPlayer) playOne(ctx context.Context) {
	if !p.player.Connected() {
		return
	}
	clips, err := p.store.ListClips(ctx)
	if err != nil {
		slog.Error("failed to list clips for random play", "error", err)
		return
	}
	if len(clips) == 0 {
		return
	}
	clip := clips[p.randN(len(clips))]
	slog.Info("playing random clip", "clip", clip.ID, "description", clip.Description)
	p.player.Enqueue(filepath.Join(p.dataDir, clip.AudioPath))
}
