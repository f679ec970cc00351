package audiograph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"testing"

	"github.com/cbegin/audiograph-go/internal/buffer"
	"github.com/cbegin/audiograph-go/internal/compose"
	"github.com/cbegin/audiograph-go/internal/render"
)

// toneLoader serves a short decaying 8 kHz tone for every sample path.
var toneLoader = compose.LoaderFunc(func(ctx context.Context, path string) (*buffer.Buffer, error) {
	ch := make([]float32, 800)
	for i := range ch {
		ch[i] = float32(math.Sin(2*math.Pi*200*float64(i)/8000) * math.Exp(-float64(i)/200))
	}
	return buffer.New(8000, [][]float32{ch})
})

func digest(t *testing.T, buf *Buffer) string {
	t.Helper()
	wav, err := EncodeWAV(buf, Float32)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	sum := sha256.Sum256(wav)
	return hex.EncodeToString(sum[:])
}

func TestPresetRendersAreReproducible(t *testing.T) {
	for _, name := range Presets() {
		t.Run(name, func(t *testing.T) {
			a, err := RenderPreset(context.Background(), name, 8000, toneLoader)
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			b, err := RenderPreset(context.Background(), name, 8000, toneLoader)
			if err != nil {
				t.Fatalf("render again: %v", err)
			}
			if got, want := digest(t, b), digest(t, a); got != want {
				t.Fatalf("renders differ\nfirst:  %s\nsecond: %s", want, got)
			}
			comp, _ := Preset(name)
			if want := render.FrameCount(comp.TotalDuration(), 8000); a.Frames() != want {
				t.Fatalf("frames=%d want %d", a.Frames(), want)
			}
			if a.NumChannels() != 2 {
				t.Fatalf("channels=%d want 2", a.NumChannels())
			}
		})
	}
}

func TestBeatStartsAtZeroCrossing(t *testing.T) {
	buf, err := RenderPreset(context.Background(), "beat", DefaultSampleRate, nil)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Frames() != DefaultSampleRate {
		t.Fatalf("frames=%d want %d", buf.Frames(), DefaultSampleRate)
	}
	ch := buf.Channel(0)
	if ch[0] != 0 {
		t.Fatalf("first sample %v want 0", ch[0])
	}
	// A quarter period of 110 Hz.
	quarter := DefaultSampleRate / 110 / 4
	if math.Abs(float64(ch[quarter])-1) > 1e-3 {
		t.Fatalf("quarter-period sample %v want ~1", ch[quarter])
	}
}

func TestRenderPresetErrors(t *testing.T) {
	if _, err := RenderPreset(context.Background(), "nope", 8000, nil); !errors.Is(err, ErrUnknownScene) {
		t.Fatalf("err=%v want ErrUnknownScene", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RenderPreset(ctx, "demo", 8000, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}
