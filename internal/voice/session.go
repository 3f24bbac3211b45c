// Package voice tracks the per-channel state of a running voice
// conversation: which SSRC belongs to which user, who is speaking, and
// one streaming transcription per in-flight utterance.
package voice

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// streamBuffer bounds the per-speaker audio channel. A speaker whose
// transcription falls this far behind loses the utterance.
const streamBuffer = 2048

// Player is the playback surface a session controls. The platform
// adapter provides it.
type Player interface {
	// Duck lowers the volume of the current track while a human speaks.
	Duck()
	// Restore returns the volume to normal.
	Restore()
	// Enqueue schedules an audio file, given by absolute path, for
	// playback.
	Enqueue(path string)
	// Connected reports whether the player is attached to a channel.
	Connected() bool
}

// Streamer turns one utterance's audio stream into at most one
// transcript. *transcribe.Transcriber satisfies it.
type Streamer interface {
	Stream(ctx context.Context, audio <-chan []int16) <-chan string
}

// TranscriptFunc receives each completed transcript.
type TranscriptFunc func(ctx context.Context, text string)

// speaker is the per-SSRC state for one participant.
type speaker struct {
	ssrc     uint32
	userID   string
	speaking bool
	stream   chan<- []int16
}

// Session is the in-memory state for one voice channel. All exported
// methods are safe for concurrent use; the mutex is held only for map
// work and channel handoff, never across I/O.
type Session struct {
	ctx          context.Context
	transcriber  Streamer
	player       Player
	onTranscript TranscriptFunc

	activeSpeakers metric.Int64UpDownCounter

	mu         sync.Mutex
	speakers   map[uint32]*speaker
	byUser     map[string]uint32
	joinCounts map[string]int
	closed     bool
}

// Option is a functional option for configuring a [Session].
type Option func(*Session)

// WithActiveSpeakersGauge reports the number of currently speaking
// participants on the given instrument.
func WithActiveSpeakersGauge(g metric.Int64UpDownCounter) Option {
	return func(s *Session) { s.activeSpeakers = g }
}

// New returns a [Session]. ctx bounds every transcription started by the
// session; onTranscript is invoked from the session's completion
// goroutines, one per utterance.
func New(ctx context.Context, transcriber Streamer, player Player, onTranscript TranscriptFunc, opts ...Option) *Session {
	s := &Session{
		ctx:          ctx,
		transcriber:  transcriber,
		player:       player,
		onTranscript: onTranscript,
		speakers:     make(map[uint32]*speaker),
		byUser:       make(map[string]uint32),
		joinCounts:   make(map[string]int),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// HandleSpeaking processes a speaking-state edge for one SSRC. The first
// update for an SSRC records its user mapping.
func (s *Session) HandleSpeaking(ssrc uint32, userID string, speaking bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	sp, ok := s.speakers[ssrc]
	if !ok {
		sp = &speaker{ssrc: ssrc}
		s.speakers[ssrc] = sp
	}
	if sp.userID == "" && userID != "" {
		sp.userID = userID
		s.byUser[userID] = ssrc
	}

	wasSpeaking := sp.speaking
	sp.speaking = speaking

	var toClose chan<- []int16
	var anyone bool
	if !speaking {
		toClose = sp.stream
		sp.stream = nil
		anyone = s.anySpeakingLocked()
	}
	s.mu.Unlock()

	if s.activeSpeakers != nil && wasSpeaking != speaking {
		delta := int64(1)
		if !speaking {
			delta = -1
		}
		s.activeSpeakers.Add(s.ctx, delta)
	}

	if speaking {
		s.player.Duck()
		return
	}
	// Falling edge: end of utterance. Closing the stream is what lets
	// the transcriber emit its transcript.
	if toClose != nil {
		close(toClose)
	}
	if !anyone {
		s.player.Restore()
	}
}

// HandlePacket routes one decoded PCM chunk into the SSRC's open
// transcription stream, opening one if needed. An overflowing stream is
// dropped and its utterance lost.
func (s *Session) HandlePacket(ssrc uint32, pcm []int16) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	sp, ok := s.speakers[ssrc]
	if !ok {
		sp = &speaker{ssrc: ssrc}
		s.speakers[ssrc] = sp
	}
	if sp.stream == nil {
		audio := make(chan []int16, streamBuffer)
		sp.stream = audio
		out := s.transcriber.Stream(s.ctx, audio)
		go s.awaitTranscript(out)
	}
	stream := sp.stream

	select {
	case stream <- pcm:
		s.mu.Unlock()
	default:
		// Transcription fell too far behind; drop the utterance.
		sp.stream = nil
		s.mu.Unlock()
		close(stream)
		slog.Warn("audio stream overflow, dropping utterance", "ssrc", ssrc)
	}
}

// awaitTranscript forwards the single transcript of one utterance.
func (s *Session) awaitTranscript(out <-chan string) {
	for text := range out {
		s.onTranscript(s.ctx, text)
	}
}

// HandleDisconnect removes a user's speaker state, terminating any
// in-flight transcription.
func (s *Session) HandleDisconnect(userID string) {
	s.mu.Lock()
	ssrc, ok := s.byUser[userID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.byUser, userID)
	sp := s.speakers[ssrc]
	delete(s.speakers, ssrc)

	var toClose chan<- []int16
	if sp != nil {
		toClose = sp.stream
		sp.stream = nil
	}
	s.mu.Unlock()

	if toClose != nil {
		close(toClose)
	}
}

// IncrementJoin bumps and returns the join count for a user. The
// presence controller uses it for the rejoin cue probability.
func (s *Session) IncrementJoin(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.joinCounts[userID]++
	return s.joinCounts[userID]
}

// ResetJoins clears all join counts. Called when the channel empties.
func (s *Session) ResetJoins() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.joinCounts = make(map[string]int)
}

// Player returns the playback handle the session was built with.
func (s *Session) Player() Player {
	return s.player
}

// Close drops every speaker and stream. In-flight utterances either
// finish transcribing or are abandoned with the session context.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var toClose []chan<- []int16
	for _, sp := range s.speakers {
		if sp.stream != nil {
			toClose = append(toClose, sp.stream)
			sp.stream = nil
		}
	}
	s.speakers = make(map[uint32]*speaker)
	s.byUser = make(map[string]uint32)
	s.mu.Unlock()

	for _, ch := range toClose {
		close(ch)
	}
}

// anySpeakingLocked reports whether any speaker is currently marked
// speaking. Callers hold s.mu.
func (s *Session) anySpeakingLocked() bool {
	for _, sp := range s.speakers {
		if sp.speaking {
			return true
		}
	}
	return false
}
