// Package stt runs speech-to-text inference on a dedicated blocking
// thread, fed through a bounded request queue.
package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ErrClosed is returned by Submit after the worker has been closed.
var ErrClosed = errors.New("stt: worker closed")

// InferFunc turns 16 kHz mono float PCM into text. Implementations are
// called from a single dedicated OS thread and may block for as long as
// inference takes.
type InferFunc func(pcm []float32) (string, error)

const defaultQueueSize = 64

// request pairs one utterance with its reply sink. Reply is buffered so
// the worker never blocks on a caller that stopped listening.
type request struct {
	pcm   []float32
	reply chan string
}

// Worker owns the inference backend and serialises all transcription
// requests through a bounded queue. Model inference is CPU-bound, so the
// worker runs on its own locked OS thread rather than sharing the
// scheduler with the rest of the process.
type Worker struct {
	infer  InferFunc
	closer func() error
	timing metric.Float64Histogram

	mu       sync.RWMutex
	closed   bool
	requests chan request
	exited   chan struct{}
}

// Option is a functional option for configuring a [Worker].
type Option func(*Worker)

// WithQueueSize bounds the request queue. A full queue blocks Submit,
// applying backpressure to the transcriber. Default: 64.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.requests = make(chan request, n)
		}
	}
}

// WithCloser registers a function run when the worker shuts down,
// typically releasing the loaded model.
func WithCloser(fn func() error) Option {
	return func(w *Worker) { w.closer = fn }
}

// WithDurationHistogram records per-request inference duration in
// seconds on the given instrument.
func WithDurationHistogram(h metric.Float64Histogram) Option {
	return func(w *Worker) { w.timing = h }
}

// NewWorker starts a worker around infer.
func NewWorker(infer InferFunc, opts ...Option) *Worker {
	w := &Worker{
		infer:    infer,
		requests: make(chan request, defaultQueueSize),
		exited:   make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	runtime.LockOSThread()
	defer close(w.exited)

	for req := range w.requests {
		start := time.Now()
		text, err := w.infer(req.pcm)
		if err != nil {
			slog.Error("transcription failed", "error", err)
			text = ""
		}
		if w.timing != nil {
			w.timing.Record(context.Background(), time.Since(start).Seconds())
		}
		// The reply channel is buffered; an abandoned caller just never
		// reads it.
		select {
		case req.reply <- text:
		default:
		}
	}

	if w.closer != nil {
		if err := w.closer(); err != nil {
			slog.Error("failed to release transcription backend", "error", err)
		}
	}
}

// Submit queues one utterance and returns the channel its transcript
// will arrive on. A full queue blocks until there is room, ctx is done,
// or the worker is closed. The returned channel receives exactly one
// value unless the worker shuts down first.
func (w *Worker) Submit(ctx context.Context, pcm []float32) (<-chan string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return nil, ErrClosed
	}

	reply := make(chan string, 1)
	select {
	case w.requests <- request{pcm: pcm, reply: reply}:
		return reply, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("stt: submit: %w", ctx.Err())
	}
}

// Close stops accepting requests, lets the worker drain its queue, and
// waits up to timeout for it to exit. A stuck inference is abandoned
// after the timeout.
func (w *Worker) Close(timeout time.Duration) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.requests)
	w.mu.Unlock()

	select {
	case <-w.exited:
		return nil
	case <-time.After(timeout):
		return errors.New("stt: worker did not exit in time")
	}
}
