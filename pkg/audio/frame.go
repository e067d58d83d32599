// Package audio defines the frame type and the PCM helpers shared by the
// capture, transport and playback stages of the voice assistant.
//
// All audio exchanged with the spoken-dialogue service is 16-bit signed
// little-endian PCM, mono, sampled at [SampleRate]. Capture devices produce
// floating point samples; [EncodeFloats] converts them before transport and
// [DecodeFloats] reverses the conversion for playback sinks that want floats.
//
// This package lives under pkg/ because third-party capture sources and
// playback sinks are expected to produce and consume [Frame] values.
package audio

import (
	"fmt"
	"time"
)

const (
	// SampleRate is the fixed sample rate in Hz negotiated with the remote
	// service in both directions.
	SampleRate = 24000

	// Channels is the fixed channel count (mono).
	Channels = 1

	// DefaultFrameSamples is the number of samples per captured frame.
	DefaultFrameSamples = 4096

	// MIMEType labels outbound PCM chunks on the wire.
	MIMEType = "audio/pcm;rate=24000"
)

// Frame is a fixed-length, ordered run of PCM16 samples. A Frame is treated
// as immutable once created; the producer hands ownership to whichever queue
// holds it until it is played or discarded.
type Frame struct {
	// Samples holds the signed 16-bit samples, one per channel per tick.
	Samples []int16

	// SampleRate in Hz. Zero is interpreted as [SampleRate].
	SampleRate int

	// Channels is the channel count. Zero is interpreted as [Channels].
	Channels int

	// Timestamp is the offset of the first sample from the start of the stream.
	Timestamp time.Duration
}

// NewFrame returns a mono 24 kHz frame holding samples.
func NewFrame(samples []int16) Frame {
	return Frame{Samples: samples, SampleRate: SampleRate, Channels: Channels}
}

// Rate returns the effective sample rate of f.
func (f Frame) Rate() int {
	if f.SampleRate <= 0 {
		return SampleRate
	}
	return f.SampleRate
}

// ChannelCount returns the effective channel count of f.
func (f Frame) ChannelCount() int {
	if f.Channels <= 0 {
		return Channels
	}
	return f.Channels
}

// Duration is the playback length of the frame.
func (f Frame) Duration() time.Duration {
	ticks := len(f.Samples) / f.ChannelCount()
	return time.Duration(ticks) * time.Second / time.Duration(f.Rate())
}

// Len returns the number of samples in the frame.
func (f Frame) Len() int { return len(f.Samples) }

// String returns a short description such as "4096 samples @ 24000Hz mono".
func (f Frame) String() string {
	return fmt.Sprintf("%d samples @ %s", len(f.Samples), formatString(f.Rate(), f.ChannelCount()))
}
