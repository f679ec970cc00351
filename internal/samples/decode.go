package samples

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"path"
	"strings"
	"sync"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/cbegin/audiograph-go/internal/buffer"
)

// Decoder turns a complete encoded asset into a buffer.
type Decoder interface {
	Decode(data []byte) (*buffer.Buffer, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(data []byte) (*buffer.Buffer, error)

func (f DecoderFunc) Decode(data []byte) (*buffer.Buffer, error) { return f(data) }

// Registry maps lower-case file extensions (".wav") to decoders.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Decoder)}
}

// DefaultRegistry knows WAV, AIFF, MP3 and Ogg Vorbis.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(".wav", WAVDecoder{})
	r.Register(".wave", WAVDecoder{})
	r.Register(".aif", AIFFDecoder{})
	r.Register(".aiff", AIFFDecoder{})
	r.Register(".mp3", MP3Decoder{})
	r.Register(".ogg", VorbisDecoder{})
	return r
}

func (r *Registry) Register(ext string, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[strings.ToLower(ext)] = d
}

func (r *Registry) Get(ext string) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.codecs[strings.ToLower(ext)]
	return d, ok
}

// ForPath picks the decoder for an asset path by its extension.
func (r *Registry) ForPath(p string) (Decoder, error) {
	ext := path.Ext(p)
	d, ok := r.Get(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return d, nil
}

// intScale is the divisor that maps signed integer PCM of the given depth
// into [-1, 1).
func intScale(bitDepth int) float32 {
	if bitDepth <= 0 || bitDepth > 32 {
		bitDepth = 16
	}
	return float32(uint64(1) << uint(bitDepth-1))
}

// fromIntBuffer deinterleaves go-audio integer PCM. offset is subtracted
// before scaling, for unsigned 8-bit WAV data.
func fromIntBuffer(ib *goaudio.IntBuffer, bitDepth, offset int) (*buffer.Buffer, error) {
	if ib == nil || ib.Format == nil {
		return nil, fmt.Errorf("decoder returned no format")
	}
	ch := ib.Format.NumChannels
	if ch <= 0 {
		return nil, buffer.ErrNoChannels
	}
	scale := intScale(bitDepth)
	frames := len(ib.Data) / ch
	chans := make([][]float32, ch)
	for c := range chans {
		chans[c] = make([]float32, frames)
	}
	for f := 0; f < frames; f++ {
		for c := 0; c < ch; c++ {
			chans[c][f] = float32(ib.Data[f*ch+c]-offset) / scale
		}
	}
	return buffer.New(ib.Format.SampleRate, chans)
}

// WAVDecoder decodes integer PCM through go-audio/wav and 32-bit IEEE float
// data chunks directly.
type WAVDecoder struct{}

func (WAVDecoder) Decode(data []byte) (*buffer.Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a wav file")
	}
	switch dec.WavAudioFormat {
	case 1:
		ib, err := dec.FullPCMBuffer()
		if err != nil {
			return nil, err
		}
		offset := 0
		if dec.BitDepth == 8 {
			offset = 128
		}
		return fromIntBuffer(ib, int(dec.BitDepth), offset)
	case 3:
		if dec.BitDepth != 32 {
			return nil, fmt.Errorf("%w: %d-bit float wav", ErrUnsupportedFormat, dec.BitDepth)
		}
		if err := dec.FwdToPCM(); err != nil {
			return nil, err
		}
		raw := make([]byte, dec.PCMSize)
		if _, err := io.ReadFull(dec.PCMChunk, raw); err != nil {
			return nil, err
		}
		n := int(dec.NumChans)
		samples := make([]float32, len(raw)/4)
		for i := range samples {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
		return buffer.FromInterleaved(int(dec.SampleRate), n, samples)
	default:
		return nil, fmt.Errorf("%w: wav audio format %d", ErrUnsupportedFormat, dec.WavAudioFormat)
	}
}

// AIFFDecoder decodes signed integer PCM through go-audio/aiff.
type AIFFDecoder struct{}

func (AIFFDecoder) Decode(data []byte) (*buffer.Buffer, error) {
	dec := aiff.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not an aiff file")
	}
	ib, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	return fromIntBuffer(ib, int(dec.BitDepth), 0)
}

// MP3Decoder decodes through go-mp3, which always yields 16-bit stereo.
type MP3Decoder struct{}

func (MP3Decoder) Decode(data []byte) (*buffer.Buffer, error) {
	dec, err := gomp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768
	}
	return buffer.FromInterleaved(dec.SampleRate(), 2, samples)
}

// VorbisDecoder decodes Ogg Vorbis through oggvorbis.
type VorbisDecoder struct{}

func (VorbisDecoder) Decode(data []byte) (*buffer.Buffer, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return buffer.FromInterleaved(format.SampleRate, format.Channels, samples)
}
