package audiograph

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cbegin/audiograph-go/internal/buffer"
	"github.com/cbegin/audiograph-go/internal/compose"
	"github.com/cbegin/audiograph-go/internal/samples"
)

type fakeOutput struct {
	offset  float64
	done    chan struct{}
	stopped atomic.Bool
}

func (f *fakeOutput) Done() <-chan struct{} { return f.done }

func (f *fakeOutput) Stop() error {
	if f.stopped.CompareAndSwap(false, true) {
		close(f.done)
	}
	return nil
}

// withFakeOutput records every playback instead of opening a device.
func withFakeOutput(outputs *[]*fakeOutput) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.play = func(buf *Buffer, offset float64) (playback, error) {
			out := &fakeOutput{offset: offset, done: make(chan struct{})}
			*outputs = append(*outputs, out)
			return out, nil
		}
	}
}

func TestNewPlayerRejectsBadInput(t *testing.T) {
	if _, err := NewPresetPlayer("beat", WithSampleRate(0)); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
	if _, err := NewPresetPlayer("nope"); !errors.Is(err, ErrUnknownScene) {
		t.Fatalf("err=%v want ErrUnknownScene", err)
	}
	var ve *ValidationError
	if _, err := NewPlayer(Composition{Name: "empty"}); !errors.As(err, &ve) {
		t.Fatalf("err=%v want ValidationError", err)
	}
}

func TestPlayerRenderLogsAndKeepsBuffer(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	pl, err := NewPresetPlayer("beat", WithSampleRate(8000), WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	if pl.Buffer() != nil {
		t.Fatal("buffer before render")
	}
	buf, err := pl.Render(context.Background())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if pl.Buffer() != buf || buf.Frames() != 8000 {
		t.Fatalf("buffer not kept: frames=%d", buf.Frames())
	}
	if len(pl.Hits()) != 1 {
		t.Fatalf("hits=%v", pl.Hits())
	}
	if !strings.Contains(logs.String(), "rendered buffer") || !strings.Contains(logs.String(), "scene=beat") {
		t.Fatalf("missing render log: %s", logs.String())
	}
}

func TestFailedRenderKeepsPreviousBuffer(t *testing.T) {
	var calls atomic.Int32
	loader := compose.LoaderFunc(func(ctx context.Context, path string) (*buffer.Buffer, error) {
		if calls.Add(1) > 1 {
			return nil, &AssetFetchError{Path: path, Err: os.ErrNotExist}
		}
		return buffer.New(8000, [][]float32{{1, 0.5}})
	})
	comp := Composition{
		Name: "kick", Tempo: 120, BeatsPerBar: 4, Bars: 1,
		Voices: []Voice{{Name: "kick", Source: Source{Kind: compose.SourceSample, Sample: compose.SamplePath("kick")}, Hits: compose.Beats(0)}},
	}
	pl, err := NewPlayer(comp, WithSampleRate(8000), WithRepository(loader))
	if err != nil {
		t.Fatal(err)
	}
	first, err := pl.Render(context.Background())
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	_, err = pl.Render(context.Background())
	var fe *AssetFetchError
	if !errors.As(err, &fe) || !errors.Is(err, ErrAssetFetch) {
		t.Fatalf("err=%v want AssetFetchError", err)
	}
	if pl.Buffer() != first {
		t.Fatal("failed render replaced the buffer")
	}
}

func TestPlayerPlayStop(t *testing.T) {
	var outputs []*fakeOutput
	pl, err := NewPresetPlayer("beat", WithSampleRate(8000), withFakeOutput(&outputs))
	if err != nil {
		t.Fatal(err)
	}
	if err := pl.Play(0); !errors.Is(err, ErrNotRendered) {
		t.Fatalf("err=%v want ErrNotRendered", err)
	}
	if _, err := pl.Render(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := pl.Play(0.25); err != nil {
		t.Fatal(err)
	}
	if err := pl.Play(0.5); err != nil {
		t.Fatal(err)
	}
	if len(outputs) != 2 || outputs[1].offset != 0.5 {
		t.Fatalf("outputs=%v", outputs)
	}
	if !outputs[0].stopped.Load() {
		t.Fatal("replaced playback still running")
	}
	if err := pl.Stop(); err != nil {
		t.Fatal(err)
	}
	pl.Wait()
	if !outputs[1].stopped.Load() {
		t.Fatal("stop did not reach the output")
	}
	if err := pl.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestPlayerDownload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	pl, err := NewPresetPlayer("beat", WithSampleRate(8000), WithOutputDir(dir))
	if err != nil {
		t.Fatal(err)
	}
	var ne *InvalidExportNameError
	if _, err := pl.Download("beat.mp3"); !errors.As(err, &ne) {
		t.Fatalf("err=%v want InvalidExportNameError", err)
	}
	if _, err := pl.Download("beat.wav"); !errors.Is(err, ErrNotRendered) {
		t.Fatalf("err=%v want ErrNotRendered", err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("output dir created before a successful download: %v", err)
	}
	if _, err := pl.Render(context.Background()); err != nil {
		t.Fatal(err)
	}
	comp := pl.Composition()
	path, err := pl.Download(comp.ExportName())
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := samples.WAVDecoder{}.Decode(data)
	if err != nil {
		t.Fatalf("decode download: %v", err)
	}
	if got.Frames() != 8000 || got.NumChannels() != 2 || got.SampleRate() != 8000 {
		t.Fatalf("downloaded %d frames %d channels at %d Hz", got.Frames(), got.NumChannels(), got.SampleRate())
	}
}

func TestPlayerWaveform(t *testing.T) {
	pl, err := NewPresetPlayer("demo", WithSampleRate(22050))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pl.Waveform(context.Background(), 100); !errors.Is(err, ErrNotRendered) {
		t.Fatalf("err=%v want ErrNotRendered", err)
	}
	if _, err := pl.Render(context.Background()); err != nil {
		t.Fatal(err)
	}
	cols, err := pl.Waveform(context.Background(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 100 || len(cols[0]) != 2 {
		t.Fatalf("cols=%d channels=%d", len(cols), len(cols[0]))
	}
	for i, col := range cols {
		if col[0].Max < 0.9 || col[0].Min > -0.9 {
			t.Fatalf("column %d of a full-scale sine spans %+v", i, col[0])
		}
	}
	var img bytes.Buffer
	if err := pl.DrawWaveform(context.Background(), &img, 100, 60); err != nil {
		t.Fatal(err)
	}
	decoded, err := png.Decode(&img)
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 100 || b.Dy() != 60 {
		t.Fatalf("bounds=%v", b)
	}
}
