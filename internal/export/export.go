// Package export encodes rendered buffers as WAV files.
package export

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/cbegin/audiograph-go/internal/buffer"
)

// Format selects the sample encoding of the data chunk.
type Format int

const (
	// PCM16 is 16-bit signed integer PCM.
	PCM16 Format = iota
	// Float32 is 32-bit IEEE float, bit-exact with the render.
	Float32
)

func (f Format) String() string {
	switch f {
	case PCM16:
		return "pcm16"
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "pcm16", "pcm", "16":
		return PCM16, nil
	case "float32", "float", "f32":
		return Float32, nil
	}
	return PCM16, fmt.Errorf("unknown export format %q", s)
}

var ErrInvalidExportName = errors.New("export file name must end with \".wav\"")

// InvalidExportNameError reports a download name without the .wav suffix.
type InvalidExportNameError struct {
	Name string
}

func (e *InvalidExportNameError) Error() string {
	return fmt.Sprintf("invalid export name %q: must end with \".wav\"", e.Name)
}

func (e *InvalidExportNameError) Unwrap() error { return ErrInvalidExportName }

// CheckName rejects names that do not end in ".wav".
func CheckName(name string) error {
	if !strings.HasSuffix(name, ".wav") {
		return &InvalidExportNameError{Name: name}
	}
	return nil
}

// Encode writes buf as a WAV stream.
func Encode(w io.WriteSeeker, buf *buffer.Buffer, f Format) error {
	if buf == nil {
		return errors.New("nothing to export")
	}
	switch f {
	case PCM16:
		return encodePCM16(w, buf)
	case Float32:
		_, err := w.Write(EncodeWAVFloat32LE(buf.Interleaved(), buf.SampleRate(), buf.NumChannels()))
		return err
	default:
		return fmt.Errorf("unknown export format %d", int(f))
	}
}

func encodePCM16(w io.WriteSeeker, buf *buffer.Buffer) error {
	samples := buf.Interleaved()
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = pcm16(s)
	}
	enc := wav.NewEncoder(w, buf.SampleRate(), 16, buf.NumChannels(), 1)
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: buf.NumChannels(), SampleRate: buf.SampleRate()},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("encode pcm16: %w", err)
	}
	return enc.Close()
}

// pcm16 clamps to [-1, 1] and scales negative and positive halves to the
// full int16 range.
func pcm16(s float32) int {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v >= 1:
		return math.MaxInt16
	case v <= -1:
		return math.MinInt16
	case v < 0:
		return int(math.Round(v * 32768))
	default:
		return int(math.Round(v * 32767))
	}
}

// EncodeWAVFloat32LE builds a complete IEEE float WAV file from interleaved
// samples.
func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}

// EncodeBytes encodes into memory.
func EncodeBytes(buf *buffer.Buffer, f Format) ([]byte, error) {
	var ws writeSeeker
	if err := Encode(&ws, buf, f); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// WriteFile checks the file name, then encodes buf to path. Parent
// directories are created as needed.
func WriteFile(path string, buf *buffer.Buffer, f Format) error {
	if err := CheckName(filepath.Base(path)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(file, buf, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// writeSeeker is an in-memory io.WriteSeeker for go-audio's encoder, which
// seeks back to patch chunk sizes.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:end]
		}
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(w.pos) + offset
	case io.SeekEnd:
		next = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(next)
	return next, nil
}
