package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hecklerbot/heckler/internal/voice"
)

var _ voice.Player = (*Player)(nil)

const (
	// duckGain is the gain applied to playback while a participant
	// is speaking.
	duckGain = 0.4
	// duckMinDuration is the shortest track that ducking applies to.
	// Shorter clips play at full volume even during speech.
	duckMinDuration = 3 * time.Second

	playerQueueSize = 32
)

// Player plays audio clips into a Discord voice connection. Clips are
// decoded to 48 kHz stereo PCM with an ffmpeg subprocess, scaled by the
// current gain and sent as 20 ms Opus frames.
//
// Player ducks rather than pauses: while a participant is speaking,
// tracks longer than duckMinDuration continue at reduced gain.
type Player struct {
	queue chan string

	ducked    atomic.Bool
	connected atomic.Bool

	mu       sync.Mutex
	send     chan<- []byte
	speaking func(bool) error
}

// NewPlayer returns a detached Player. Attach it to a voice connection
// before tracks can be heard; Enqueue accepts tracks either way.
func NewPlayer() *Player {
	return &Player{queue: make(chan string, playerQueueSize)}
}

// Attach binds the player to an established voice connection.
func (p *Player) Attach(vc *discordgo.VoiceConnection) {
	p.mu.Lock()
	p.send = vc.OpusSend
	p.speaking = vc.Speaking
	p.mu.Unlock()
	p.connected.Store(true)
}

// Detach unbinds the player from its voice connection. Queued tracks
// are retained and play once reattached.
func (p *Player) Detach() {
	p.connected.Store(false)
	p.mu.Lock()
	p.send = nil
	p.speaking = nil
	p.mu.Unlock()
}

// Connected reports whether the player is attached to a voice
// connection.
func (p *Player) Connected() bool {
	return p.connected.Load()
}

// Enqueue adds a clip file to the playback queue. When the queue is
// full the track is dropped and logged rather than blocking the caller.
func (p *Player) Enqueue(path string) {
	select {
	case p.queue <- path:
	default:
		slog.Warn("player queue full, dropping track", "path", path)
	}
}

// Duck lowers playback gain while a participant speaks. The reduction
// only affects tracks longer than duckMinDuration.
func (p *Player) Duck() {
	p.ducked.Store(true)
}

// Restore returns playback to full gain.
func (p *Player) Restore() {
	p.ducked.Store(false)
}

// Run consumes the playback queue until ctx is cancelled. Tracks
// enqueued while detached stay queued until a connection is attached.
func (p *Player) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-p.queue:
			if err := p.play(ctx, path); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("track playback failed", "path", path, "error", err)
			}
		}
	}
}

func (p *Player) play(ctx context.Context, path string) error {
	pcm, err := decodeClip(ctx, path)
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		return fmt.Errorf("discord: clip %s decoded to no audio", path)
	}

	durMs := int64(len(pcm)) * 1000 / (opusSampleRate * opusChannels)

	enc, err := newOpusEncoder()
	if err != nil {
		return err
	}

	p.setSpeaking(true)
	defer p.setSpeaking(false)

	frame := make([]int16, opusFrameSize*opusChannels)
	for off := 0; off < len(pcm); off += len(frame) {
		n := copy(frame, pcm[off:])
		clear(frame[n:])

		gain := 1.0
		if p.ducked.Load() && durMs > duckMinDuration.Milliseconds() {
			gain = duckGain
		}
		if gain != 1.0 {
			for i := range frame {
				frame[i] = int16(float64(frame[i]) * gain)
			}
		}

		opus, err := enc.encode(frame)
		if err != nil {
			return err
		}
		if err := p.sendFrame(ctx, opus); err != nil {
			return err
		}
	}
	return nil
}

func (p *Player) sendFrame(ctx context.Context, opus []byte) error {
	p.mu.Lock()
	send := p.send
	p.mu.Unlock()
	if send == nil {
		return errors.New("discord: player not attached")
	}
	select {
	case send <- opus:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Player) setSpeaking(on bool) {
	p.mu.Lock()
	speaking := p.speaking
	p.mu.Unlock()
	if speaking == nil {
		return
	}
	if err := speaking(on); err != nil {
		slog.Warn("set speaking state failed", "error", err)
	}
}

// decodeClip runs ffmpeg to decode a clip file into 48 kHz stereo
// signed 16-bit little-endian PCM. The subprocess is killed if ctx is
// cancelled mid-decode.
func decodeClip(ctx context.Context, path string) ([]int16, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-ar", fmt.Sprint(opusSampleRate),
		"-ac", fmt.Sprint(opusChannels),
		"-loglevel", "error",
		"pipe:1",
	)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("discord: decode %s: %w: %s", path, err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("discord: decode %s: %w", path, err)
	}
	return bytesToInt16s(out), nil
}
