package audioio

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// VolumeGain scales RMS into the [0,1] volume metric shown to users.
const VolumeGain = 5.0

// FloatToPCM16 converts normalized float samples to 16-bit PCM. Values
// outside [-1, 1] are clamped.
func FloatToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s) * 32768
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// PCM16ToFloat converts 16-bit PCM to normalized float samples.
func PCM16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// EncodeBase64 encodes PCM16 samples for the transport envelope.
func EncodeBase64(samples []int16) string {
	return base64.StdEncoding.EncodeToString(SamplesToBytes(samples))
}

// DecodeBase64 decodes a transport audio payload into PCM16 samples.
func DecodeBase64(data string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("audioio: decode payload: %w", err)
	}
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	return BytesToSamples(raw), nil
}

// RMS returns the root mean square amplitude of normalized samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Volume maps an RMS amplitude to the [0,1] meter value.
func Volume(rms float64) float64 {
	return math.Min(rms*VolumeGain, 1)
}

// PCMMime returns the mime tag for PCM16 at the given rate.
func PCMMime(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// ParsePCMMime extracts the sample rate from a mime tag like
// "audio/pcm;rate=24000". It reports false for non-PCM types; a PCM tag
// without a rate returns fallback.
func ParsePCMMime(mime string, fallback int) (int, bool) {
	parts := strings.Split(mime, ";")
	if strings.TrimSpace(parts[0]) != "audio/pcm" {
		return 0, false
	}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || k != "rate" {
			continue
		}
		if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
			return rate, true
		}
	}
	return fallback, true
}

// Resample converts audio from one sample rate to another using linear
// interpolation. Good enough for speech.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(float64(len(samples)) / ratio)
	if newLen == 0 {
		return []int16{}
	}

	result := make([]int16, newLen)
	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx >= len(samples)-1 {
			result[i] = samples[len(samples)-1]
		} else {
			s1 := float64(samples[srcIdx])
			s2 := float64(samples[srcIdx+1])
			result[i] = int16(s1 + frac*(s2-s1))
		}
	}
	return result
}
