// Package audio streams rendered buffers to the sound card through ebiten's
// audio context.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/cbegin/audiograph-go/internal/buffer"
)

// pollInterval is how often a player checks whether the driver drained.
const pollInterval = 10 * time.Millisecond

var ErrInvalidOffset = errors.New("playback offset outside the buffer")

// SampleSource fills interleaved stereo frames.
type SampleSource interface {
	Process(dst []float32)
}

// FinishingSource is a SampleSource that can signal when playback has ended.
// When Finished returns true, the stream will return io.EOF on the next Read.
type FinishingSource interface {
	SampleSource
	Finished() bool
}

// StreamReader encodes a SampleSource as 32-bit float little-endian PCM.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return 0, io.EOF
	}
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		u := math.Float32bits(r.buf[i])
		binary.LittleEndian.PutUint32(p[i*4:], u)
	}
	n := frames * 8
	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return n, io.EOF
	}
	return n, nil
}

func (r *StreamReader) Close() error { return nil }

// BufferSource plays a rendered buffer once as stereo. Mono buffers are
// copied to both sides; wider buffers play their first two channels.
type BufferSource struct {
	left, right []float32
	pos         atomic.Int64
	finished    atomic.Bool
}

// NewBufferSource starts at offset seconds into buf.
func NewBufferSource(buf *buffer.Buffer, offset float64) (*BufferSource, error) {
	if !(offset >= 0) || offset > buf.Duration() {
		return nil, fmt.Errorf("%w: %gs of %gs", ErrInvalidOffset, offset, buf.Duration())
	}
	s := &BufferSource{left: buf.Channel(0), right: buf.Channel(0)}
	if buf.NumChannels() > 1 {
		s.right = buf.Channel(1)
	}
	s.pos.Store(int64(math.Round(offset * float64(buf.SampleRate()))))
	return s, nil
}

func (s *BufferSource) Process(dst []float32) {
	pos := int(s.pos.Load())
	for i := 0; i+1 < len(dst); i += 2 {
		if pos < len(s.left) {
			dst[i], dst[i+1] = s.left[pos], s.right[pos]
			pos++
			continue
		}
		dst[i], dst[i+1] = 0, 0
	}
	s.pos.Store(int64(pos))
	if pos >= len(s.left) {
		s.finished.Store(true)
	}
}

func (s *BufferSource) Finished() bool { return s.finished.Load() }

// Frame is the next frame to be handed to the driver.
func (s *BufferSource) Frame() int { return int(s.pos.Load()) }

// Player is one playback of a source on the shared audio context.
type Player struct {
	player *ebitaudio.Player
	reader io.ReadCloser
	source SampleSource
	done   chan struct{}
	once   sync.Once
	stop   chan struct{}
	halt   sync.Once
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

func NewPlayer(sampleRate int, source SampleSource) (*Player, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	return &Player{
		player: pl,
		reader: reader,
		source: source,
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}, nil
}

// Play streams buf from offset seconds and returns once playback started.
func Play(buf *buffer.Buffer, offset float64) (*Player, error) {
	src, err := NewBufferSource(buf, offset)
	if err != nil {
		return nil, err
	}
	p, err := NewPlayer(buf.SampleRate(), src)
	if err != nil {
		return nil, err
	}
	p.Play()
	return p, nil
}

// Play starts the driver and begins watching for the end of the source.
func (p *Player) Play() {
	p.player.Play()
	go p.watch()
}

func (p *Player) watch() {
	fs, ok := p.source.(FinishingSource)
	if !ok {
		return
	}
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-tick.C:
			if fs.Finished() && !p.player.IsPlaying() {
				p.finish()
				return
			}
		}
	}
}

func (p *Player) finish() {
	p.once.Do(func() { close(p.done) })
}

// Done is closed when the source has been played out or Stop was called.
func (p *Player) Done() <-chan struct{} { return p.done }

func (p *Player) Pause() { p.player.Pause() }
func (p *Player) IsPlaying() bool {
	return p.player.IsPlaying()
}

// Position returns the current playback position (what the listener actually hears).
func (p *Player) Position() time.Duration {
	return p.player.Position()
}

// Stop ends playback and closes Done. Later calls do nothing.
func (p *Player) Stop() error {
	var err error
	p.halt.Do(func() {
		close(p.stop)
		p.player.Pause()
		err = p.player.Close()
		p.finish()
		if cerr := p.reader.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
