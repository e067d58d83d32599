package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrOddByteCount is returned when a PCM16 byte payload cannot be split into
// whole samples.
var ErrOddByteCount = errors.New("audio: odd byte count in PCM16 data")

// FloatToPCM16 converts one floating point sample to a signed 16-bit sample
// using round(clamp(s, -1, 1) * 32767). NaN maps to silence.
func FloatToPCM16(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(math.Round(v * math.MaxInt16))
}

// PCM16ToFloat converts one signed 16-bit sample back to the [-1, 1) range.
func PCM16ToFloat(v int16) float32 {
	return float32(v) / 32768
}

// EncodeFloats converts a run of floating point samples to PCM16.
func EncodeFloats(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		out[i] = FloatToPCM16(s)
	}
	return out
}

// DecodeFloats converts PCM16 samples to floats in [-1, 1).
func DecodeFloats(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = PCM16ToFloat(v)
	}
	return out
}

// PCM16Bytes serialises samples as little-endian bytes.
func PCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// BytesToPCM16 parses little-endian PCM16 bytes.
func BytesToPCM16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddByteCount, len(data))
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out, nil
}

// EncodeBase64 serialises samples as base64 over little-endian PCM16 bytes,
// the transport encoding used by the spoken-dialogue service.
func EncodeBase64(samples []int16) string {
	return base64.StdEncoding.EncodeToString(PCM16Bytes(samples))
}

// DecodeBase64 reverses [EncodeBase64].
func DecodeBase64(s string) ([]int16, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64: %w", err)
	}
	return BytesToPCM16(data)
}
