// This file contains the whisper.cpp backend using the CGO bindings. The
// whisper.cpp static library (libwhisper.a) and headers (whisper.h) must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.

package stt

import (
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

const defaultLanguage = "en"

// NewNativeWorker loads the whisper.cpp model at modelPath and returns a
// worker that runs inference in-process. The model is released when the
// worker is closed.
func NewNativeWorker(modelPath string, opts ...Option) (*Worker, error) {
	if modelPath == "" {
		return nil, errors.New("stt: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("stt: load model %q: %w", modelPath, err)
	}

	infer := func(pcm []float32) (string, error) {
		return nativeInfer(model, pcm)
	}
	opts = append(opts, WithCloser(model.Close))
	return NewWorker(infer, opts...), nil
}

// nativeInfer runs one utterance through whisper.cpp. Each call gets a
// fresh context from the shared model, so a failed inference cannot
// poison later ones.
func nativeInfer(model whisperlib.Model, samples []float32) (string, error) {
	wctx, err := model.NewContext()
	if err != nil {
		return "", fmt.Errorf("stt: create whisper context: %w", err)
	}
	if err := wctx.SetLanguage(defaultLanguage); err != nil {
		return "", fmt.Errorf("stt: set language: %w", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("stt: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("stt: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
