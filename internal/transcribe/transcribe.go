// Package transcribe adapts a stream of voice PCM chunks for one
// utterance into a single transcript.
package transcribe

import (
	"context"
	"log/slog"

	"github.com/hecklerbot/heckler/internal/transcode"
)

// Submitter is the slice of the STT worker the transcriber needs.
// *stt.Worker satisfies it.
type Submitter interface {
	Submit(ctx context.Context, pcm []float32) (<-chan string, error)
}

// Transcriber turns per-utterance audio streams into transcripts by
// buffering, transcoding, and handing the result to the STT worker.
type Transcriber struct {
	worker Submitter
}

// New returns a [Transcriber] backed by worker.
func New(worker Submitter) *Transcriber {
	return &Transcriber{worker: worker}
}

// Stream consumes audio until the channel closes, then transcodes the
// buffered utterance and submits it for transcription. The returned
// channel yields at most one transcript and is closed afterwards.
// Closing audio is the sole signal of utterance end.
func (t *Transcriber) Stream(ctx context.Context, audio <-chan []int16) <-chan string {
	out := make(chan string, 1)
	go func() {
		defer close(out)

		var buf []byte
		for chunk := range audio {
			buf = append(buf, transcode.Int16sToBytes(chunk)...)
		}

		pcm, err := transcode.Transcode(buf)
		if err != nil {
			slog.Error("failed to transcode utterance", "error", err)
			return
		}

		reply, err := t.worker.Submit(ctx, pcm)
		if err != nil {
			slog.Error("failed to submit utterance for transcription", "error", err)
			return
		}
		select {
		case text, ok := <-reply:
			if ok {
				out <- text
			}
		case <-ctx.Done():
		}
	}()
	return out
}
