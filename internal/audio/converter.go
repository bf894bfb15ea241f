package audio

import (
	"fmt"
	"math"
	"strings"
)

// Supported browser capture encodings
const (
	EncodingLinear16 = "linear16" // 16-bit signed little-endian PCM
	EncodingMulaw    = "mulaw"    // G.711 μ-law
)

// DecodeSamples turns one browser audio frame into linear samples for
// energy analysis. The frame itself is forwarded to the recognizer as-is.
func DecodeSamples(encoding string, frame []byte) ([]int16, error) {
	switch strings.ToLower(encoding) {
	case EncodingLinear16, "":
		return BytesToSamples(frame)
	case EncodingMulaw:
		return MulawToSamples(frame), nil
	default:
		return nil, fmt.Errorf("unsupported audio encoding %q", encoding)
	}
}

// BytesToSamples converts 16-bit little-endian PCM bytes to samples
func BytesToSamples(pcmData []byte) ([]int16, error) {
	if len(pcmData)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d", len(pcmData))
	}

	samples := make([]int16, len(pcmData)/2)
	for i := range samples {
		samples[i] = int16(uint16(pcmData[i*2]) | uint16(pcmData[i*2+1])<<8)
	}
	return samples, nil
}

// MulawToSamples expands G.711 μ-law bytes to linear samples
func MulawToSamples(pcmuData []byte) []int16 {
	samples := make([]int16, len(pcmuData))
	for i, b := range pcmuData {
		samples[i] = mulawToLinear(b)
	}
	return samples
}

// mulawToLinear converts an 8-bit μ-law sample to 16-bit linear PCM
// (ITU-T G.711, 14-bit magnitude range)
func mulawToLinear(mulawByte byte) int16 {
	mulawByte = ^mulawByte

	sign := mulawByte & 0x80
	segment := int32((mulawByte >> 4) & 0x07)
	mantissa := int32(mulawByte & 0x0F)

	magnitude := (mantissa << (segment + 1)) + (int32(33) << segment) - 33
	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// FrameDuration returns how many seconds a frame of n samples covers
func FrameDuration(samples, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(samples) / float64(sampleRate)
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
