// This file contains the remote whisper.cpp server backend. It POSTs
// each utterance as a WAV file to the server's /inference endpoint.

package stt

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/hecklerbot/heckler/internal/resilience"
)

const (
	remoteSampleRate = 16000
	bitsPerSample    = 16
)

// NewRemoteWorker returns a worker that sends utterances to a
// whisper.cpp server at serverURL. A circuit breaker wraps every
// request so a dead server makes utterances fail fast instead of
// stacking five-minute timeouts.
func NewRemoteWorker(serverURL string, opts ...Option) (*Worker, error) {
	if serverURL == "" {
		return nil, errors.New("stt: server URL must not be empty")
	}
	client := &http.Client{Timeout: 5 * time.Minute}
	endpoint := strings.TrimSuffix(serverURL, "/") + "/inference"
	breaker := resilience.NewBreaker("whisper-remote")

	infer := func(pcm []float32) (string, error) {
		var text string
		err := breaker.Do(func() error {
			var inferErr error
			text, inferErr = remoteInfer(client, endpoint, pcm)
			return inferErr
		})
		return text, err
	}
	return NewWorker(infer, opts...), nil
}

// remoteInfer encodes pcm as a mono 16 kHz WAV file and POSTs it as
// multipart/form-data.
func remoteInfer(client *http.Client, endpoint string, pcm []float32) (string, error) {
	wav := encodeWAV(float32ToPCM(pcm), remoteSampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("stt: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("stt: write wav data: %w", err)
	}
	if err := mw.WriteField("language", defaultLanguage); err != nil {
		return "", fmt.Errorf("stt: write language field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("stt: close multipart writer: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("stt: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("stt: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("stt: read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("stt: parse JSON response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// float32ToPCM converts normalised samples to little-endian signed
// 16-bit PCM, clamping out-of-range values.
func float32ToPCM(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(v)))
	}
	return out
}

// encodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
