package audio

import (
	"errors"
	"fmt"
)

// ErrPartialFrame is returned by [Convert] when a frame's sample count is not
// a whole number of channel groups.
var ErrPartialFrame = errors.New("audio: frame is not a whole number of channel groups")

// Format is a sample rate and channel count.
type Format struct {
	SampleRate int
	Channels   int
}

// AssistantFormat is the wire format of the spoken-dialogue service.
var AssistantFormat = Format{SampleRate: SampleRate, Channels: Channels}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string { return formatString(f.SampleRate, f.Channels) }

// IsZero reports whether f is unset.
func (f Format) IsZero() bool { return f.SampleRate == 0 && f.Channels == 0 }

// withDefaults fills unset fields from [AssistantFormat].
func (f Format) withDefaults() Format {
	if f.SampleRate <= 0 {
		f.SampleRate = SampleRate
	}
	if f.Channels <= 0 {
		f.Channels = Channels
	}
	return f
}

// FormatOf returns the effective format of a frame.
func FormatOf(f Frame) Format {
	return Format{SampleRate: f.Rate(), Channels: f.ChannelCount()}
}

// Convert returns frame in format to. The input is returned unchanged when
// it already matches. Resampling runs before remixing when the channel count
// shrinks, and after it when it grows, so the interpolation always works on
// the fewer channels.
func Convert(frame Frame, to Format) (Frame, error) {
	from := FormatOf(frame)
	to = to.withDefaults()
	if len(frame.Samples)%from.Channels != 0 {
		return Frame{}, fmt.Errorf("%w: %d samples, %d channels", ErrPartialFrame, len(frame.Samples), from.Channels)
	}
	if from == to {
		return frame, nil
	}

	pcm := frame.Samples
	if to.Channels < from.Channels {
		pcm = Remix(pcm, from.Channels, to.Channels)
		pcm = Resample(pcm, to.Channels, from.SampleRate, to.SampleRate)
	} else {
		pcm = Resample(pcm, from.Channels, from.SampleRate, to.SampleRate)
		pcm = Remix(pcm, from.Channels, to.Channels)
	}
	return Frame{Samples: pcm, SampleRate: to.SampleRate, Channels: to.Channels, Timestamp: frame.Timestamp}, nil
}

// Remix changes the channel count of interleaved pcm. Mono is copied to
// every output channel; going down to mono averages the input channels.
// Other layouts keep the first min(from, to) channels and silence the rest.
func Remix(pcm []int16, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 {
		return pcm
	}
	ticks := len(pcm) / from
	out := make([]int16, ticks*to)
	for i := range ticks {
		in := pcm[i*from : (i+1)*from]
		dst := out[i*to : (i+1)*to]
		switch {
		case from == 1:
			for c := range dst {
				dst[c] = in[0]
			}
		case to == 1:
			var sum int32
			for _, s := range in {
				sum += int32(s)
			}
			dst[0] = clamp16(sum / int32(from))
		default:
			copy(dst, in)
		}
	}
	return out
}

// Resample converts interleaved pcm with the given channel count from one
// rate to another by linear interpolation. Invalid rates return pcm as is.
func Resample(pcm []int16, channels, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 || channels <= 0 {
		return pcm
	}
	inTicks := len(pcm) / channels
	outTicks := int(int64(inTicks) * int64(to) / int64(from))
	if outTicks == 0 {
		return nil
	}
	out := make([]int16, outTicks*channels)
	step := float64(from) / float64(to)
	for i := range outTicks {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		next := j + 1
		if next >= inTicks {
			next = j
		}
		for c := range channels {
			a, b := float64(pcm[j*channels+c]), float64(pcm[next*channels+c])
			out[i*channels+c] = int16(a + (b-a)*frac)
		}
	}
	return out
}

func clamp16(v int32) int16 {
	return int16(max(-32768, min(32767, v)))
}

func formatString(rate, channels int) string {
	switch channels {
	case 1:
		return fmt.Sprintf("%dHz mono", rate)
	case 2:
		return fmt.Sprintf("%dHz stereo", rate)
	default:
		return fmt.Sprintf("%dHz %dch", rate, channels)
	}
}
