// Package audiograph renders scenes of scheduled oscillators, samples,
// filters and envelopes into sample-accurate buffers offline, then plays,
// draws or exports them.
package audiograph

import (
	"context"
	"log/slog"

	"github.com/cbegin/audiograph-go/internal/buffer"
	"github.com/cbegin/audiograph-go/internal/compose"
	"github.com/cbegin/audiograph-go/internal/export"
	"github.com/cbegin/audiograph-go/internal/render"
	"github.com/cbegin/audiograph-go/internal/samples"
	"github.com/cbegin/audiograph-go/internal/waveform"
)

// DefaultSampleRate is used when no sample rate is configured.
const DefaultSampleRate = 44100

type (
	Buffer      = buffer.Buffer
	Composition = compose.Composition
	Voice       = compose.Voice
	Source      = compose.Source
	Hit         = compose.Hit
	HitTime     = compose.HitTime
	Loader      = compose.Loader
	Format      = export.Format
	Column      = waveform.Column
)

const (
	PCM16   = export.PCM16
	Float32 = export.Float32
)

// Presets lists the built-in scene names.
func Presets() []string { return compose.Presets() }

// Preset returns a built-in scene.
func Preset(name string) (Composition, error) { return compose.Preset(name) }

// LoadScene reads a JSON scene file.
func LoadScene(path string) (Composition, error) { return compose.LoadJSON(path) }

// NewRepository returns a sample repository reading assets from dir.
func NewRepository(dir string, logger *slog.Logger) *samples.Repository {
	return samples.NewRepository(samples.NewDirFetcher(dir), samples.WithLogger(logger))
}

// NewHTTPRepository returns a sample repository fetching assets below
// baseURL.
func NewHTTPRepository(baseURL string, logger *slog.Logger) *samples.Repository {
	return samples.NewRepository(samples.NewHTTPFetcher(baseURL), samples.WithLogger(logger))
}

// RenderComposition schedules comp and renders it in one call. loader may be
// nil when the scene uses no samples.
func RenderComposition(ctx context.Context, comp Composition, sampleRate int, loader Loader) (*Buffer, error) {
	s, err := compose.Schedule(ctx, comp, sampleRate, loader)
	if err != nil {
		return nil, err
	}
	return render.Render(ctx, s.Plan)
}

// RenderPreset renders a built-in scene.
func RenderPreset(ctx context.Context, name string, sampleRate int, loader Loader) (*Buffer, error) {
	comp, err := compose.Preset(name)
	if err != nil {
		return nil, err
	}
	return RenderComposition(ctx, comp, sampleRate, loader)
}

// EncodeWAV encodes buf as a complete WAV file.
func EncodeWAV(buf *Buffer, f Format) ([]byte, error) {
	return export.EncodeBytes(buf, f)
}
