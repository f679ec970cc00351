package buffer

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNoChannels        = errors.New("buffer must have at least one channel")
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
)

// Buffer is an immutable block of planar float32 audio. All channels share
// one frame count. Slices returned by Channel must not be modified.
type Buffer struct {
	sampleRate int
	frames     int
	channels   [][]float32
}

// New wraps channel data without copying. The caller hands ownership of the
// slices to the buffer.
func New(sampleRate int, channels [][]float32) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	frames := len(channels[0])
	for i, ch := range channels[1:] {
		if len(ch) != frames {
			return nil, fmt.Errorf("channel %d has %d frames, want %d", i+1, len(ch), frames)
		}
	}
	return &Buffer{sampleRate: sampleRate, frames: frames, channels: channels}, nil
}

// FromInterleaved splits interleaved samples into a new buffer.
func FromInterleaved(sampleRate, numChannels int, samples []float32) (*Buffer, error) {
	if numChannels <= 0 {
		return nil, ErrNoChannels
	}
	frames := len(samples) / numChannels
	chans := make([][]float32, numChannels)
	for c := range chans {
		chans[c] = make([]float32, frames)
	}
	for f := 0; f < frames; f++ {
		base := f * numChannels
		for c := 0; c < numChannels; c++ {
			chans[c][f] = samples[base+c]
		}
	}
	return New(sampleRate, chans)
}

func (b *Buffer) SampleRate() int   { return b.sampleRate }
func (b *Buffer) Frames() int       { return b.frames }
func (b *Buffer) NumChannels() int  { return len(b.channels) }
func (b *Buffer) Duration() float64 { return float64(b.frames) / float64(b.sampleRate) }

// Channel returns a read-only view of channel c.
func (b *Buffer) Channel(c int) []float32 {
	return b.channels[c]
}

// Channels returns read-only views of every channel.
func (b *Buffer) Channels() [][]float32 {
	out := make([][]float32, len(b.channels))
	copy(out, b.channels)
	return out
}

// CopyChannel returns a copy of channel c that the caller may modify.
func (b *Buffer) CopyChannel(c int) []float32 {
	out := make([]float32, b.frames)
	copy(out, b.channels[c])
	return out
}

// Interleaved returns a fresh interleaved copy (L R L R ... for stereo).
func (b *Buffer) Interleaved() []float32 {
	n := len(b.channels)
	out := make([]float32, b.frames*n)
	for c, ch := range b.channels {
		for f, s := range ch {
			out[f*n+c] = s
		}
	}
	return out
}

// Equal reports whether two buffers hold bit-identical samples.
func (b *Buffer) Equal(o *Buffer) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.sampleRate != o.sampleRate || b.frames != o.frames || len(b.channels) != len(o.channels) {
		return false
	}
	for c := range b.channels {
		x, y := b.channels[c], o.channels[c]
		for i := range x {
			if math.Float32bits(x[i]) != math.Float32bits(y[i]) {
				return false
			}
		}
	}
	return true
}
