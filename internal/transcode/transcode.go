// Package transcode converts the 48 kHz stereo PCM delivered by the voice
// platform into the 16 kHz mono float samples the speech-to-text engine
// expects.
package transcode

import (
	"encoding/binary"
	"fmt"
)

const (
	// SourceRate is the sample rate of platform voice audio.
	SourceRate = 48000
	// SourceChannels is the channel count of platform voice audio.
	SourceChannels = 2
	// TargetRate is the sample rate the STT engine expects.
	TargetRate = 16000

	// padSamples is two seconds of silence at the target rate, added at
	// both ends of every utterance. Very short utterances transcribe
	// poorly without the padding.
	padSamples = 2 * TargetRate
)

// Transcode converts little-endian signed 16-bit stereo 48 kHz PCM to
// mono 16 kHz float32 samples in [-1, 1], padded with two seconds of
// silence at each end. The input length must be a whole number of stereo
// frames (4 bytes each).
func Transcode(pcm []byte) ([]float32, error) {
	if len(pcm)%4 != 0 {
		return nil, fmt.Errorf("transcode: input is %d bytes, not a whole number of stereo frames", len(pcm))
	}

	mono := stereoToMono(pcm)
	resampled := resampleMono16(mono, SourceRate, TargetRate)

	samples := len(resampled) / 2
	out := make([]float32, padSamples+samples+padSamples)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(resampled[i*2 : i*2+2]))
		out[padSamples+i] = float32(s) / 32768.0
	}
	return out, nil
}

// Int16sToBytes flattens int16 samples into little-endian PCM bytes.
func Int16sToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(s))
	}
	return out
}

// stereoToMono averages L+R per stereo frame (4 bytes) to produce mono
// output. Uses int32 arithmetic to prevent overflow and clamps to int16
// range.
func stereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// resampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation.
func resampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}
