package playback

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/nammaroute/companion/pkg/audio"
)

const wavHeaderSize = 44

// WAVSink is a [Sink] that records frames into a 16-bit PCM WAV file.
//
// The RIFF and data chunk sizes are patched on Close. With pacing enabled,
// Play blocks for the frame's duration like a real device would.
type WAVSink struct {
	paced bool

	mu      sync.Mutex
	f       *os.File
	written uint32
	closed  bool
}

// CreateWAVSink creates (or truncates) path and writes a placeholder header.
func CreateWAVSink(path string, paced bool) (*WAVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("playback: create wav: %w", err)
	}
	if err := writeWAVHeader(f, 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &WAVSink{f: f, paced: paced}, nil
}

var _ Sink = (*WAVSink)(nil)

// Play implements [Sink].
func (s *WAVSink) Play(ctx context.Context, frame audio.Frame) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	n, err := s.f.Write(audio.PCM16Bytes(frame.Samples))
	s.written += uint32(n)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("playback: write wav: %w", err)
	}

	if !s.paced {
		return nil
	}
	return pace(ctx, start, frame.Duration())
}

// Written returns the number of PCM bytes recorded so far.
func (s *WAVSink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.written)
}

// Close finalises the header and closes the file. Close is idempotent.
func (s *WAVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		errs = append(errs, fmt.Errorf("playback: seek wav: %w", err))
	} else if err := writeWAVHeader(s.f, s.written); err != nil {
		errs = append(errs, err)
	}
	if err := s.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("playback: close wav: %w", err))
	}
	return errors.Join(errs...)
}

// writeWAVHeader writes a canonical 44-byte PCM header for mono 24 kHz audio.
func writeWAVHeader(w io.Writer, dataSize uint32) error {
	const (
		bitsPerSample = 16
		blockAlign    = audio.Channels * bitsPerSample / 8
	)
	hdr := make([]byte, wavHeaderSize)
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+dataSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], audio.Channels)
	binary.LittleEndian.PutUint32(hdr[24:28], audio.SampleRate)
	binary.LittleEndian.PutUint32(hdr[28:32], audio.SampleRate*blockAlign)
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], bitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("playback: write wav header: %w", err)
	}
	return nil
}
