package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/cbegin/audiograph-go/internal/buffer"
)

func decodeF32(p []byte) []float32 {
	out := make([]float32, len(p)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
	}
	return out
}

func TestStreamReaderPlaysBufferThenEOF(t *testing.T) {
	buf, err := buffer.New(100, [][]float32{{0.1, 0.2, 0.3}, {-0.1, -0.2, -0.3}})
	if err != nil {
		t.Fatal(err)
	}
	src, err := NewBufferSource(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	r := NewStreamReader(src)

	p := make([]byte, 2*8)
	n, err := r.Read(p)
	if err != nil || n != len(p) {
		t.Fatalf("first read n=%d err=%v", n, err)
	}
	if got := decodeF32(p); got[0] != 0.1 || got[1] != -0.1 || got[2] != 0.2 || got[3] != -0.2 {
		t.Fatalf("first frames %v", got)
	}
	n, err = r.Read(p)
	if !errors.Is(err, io.EOF) || n != len(p) {
		t.Fatalf("second read n=%d err=%v want EOF with data", n, err)
	}
	if got := decodeF32(p); got[0] != 0.3 || got[1] != -0.3 || got[2] != 0 || got[3] != 0 {
		t.Fatalf("tail frames %v", got)
	}
	if n, err := r.Read(p); n != 0 || !errors.Is(err, io.EOF) {
		t.Fatalf("read after end n=%d err=%v", n, err)
	}
}

func TestBufferSourceMonoAndOffset(t *testing.T) {
	buf, err := buffer.New(10, [][]float32{{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}})
	if err != nil {
		t.Fatal(err)
	}
	src, err := NewBufferSource(buf, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if src.Frame() != 5 {
		t.Fatalf("frame=%d want 5", src.Frame())
	}
	dst := make([]float32, 4)
	src.Process(dst)
	if dst[0] != 6 || dst[1] != 6 || dst[2] != 7 || dst[3] != 7 {
		t.Fatalf("dst=%v", dst)
	}
	if src.Finished() {
		t.Fatal("finished early")
	}
}

func TestBufferSourceRejectsOffset(t *testing.T) {
	buf, err := buffer.New(10, [][]float32{{0, 0}})
	if err != nil {
		t.Fatal(err)
	}
	for _, off := range []float64{-1, 0.3, math.NaN()} {
		if _, err := NewBufferSource(buf, off); !errors.Is(err, ErrInvalidOffset) {
			t.Fatalf("offset %v: err=%v", off, err)
		}
	}
}

func TestStreamReaderZeroLength(t *testing.T) {
	buf, _ := buffer.New(10, [][]float32{{1}})
	src, _ := NewBufferSource(buf, 0)
	if n, err := NewStreamReader(src).Read(make([]byte, 7)); n != 0 || err != nil {
		t.Fatalf("n=%d err=%v", n, err)
	}
}
