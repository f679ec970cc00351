package audiograph

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	intaudio "github.com/cbegin/audiograph-go/internal/audio"
	"github.com/cbegin/audiograph-go/internal/compose"
	"github.com/cbegin/audiograph-go/internal/export"
	"github.com/cbegin/audiograph-go/internal/render"
	"github.com/cbegin/audiograph-go/internal/waveform"
)

// playback is a running output stream.
type playback interface {
	Done() <-chan struct{}
	Stop() error
}

type playFunc func(buf *Buffer, offset float64) (playback, error)

func devicePlay(buf *Buffer, offset float64) (playback, error) {
	return intaudio.Play(buf, offset)
}

type PlayerOption func(*playerConfig)

type playerConfig struct {
	sampleRate int
	loader     Loader
	logger     *slog.Logger
	format     Format
	outputDir  string
	play       playFunc
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{
		sampleRate: DefaultSampleRate,
		logger:     slog.New(slog.DiscardHandler),
		format:     PCM16,
		outputDir:  ".",
		play:       devicePlay,
	}
}

func WithSampleRate(sampleRate int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleRate = sampleRate
	}
}

// WithRepository sets where sample assets are loaded from. Typically a
// *samples.Repository from NewRepository.
func WithRepository(loader Loader) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.loader = loader
	}
}

func WithLogger(logger *slog.Logger) PlayerOption {
	return func(cfg *playerConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithExportFormat selects the sample encoding used by Download.
func WithExportFormat(f Format) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.format = f
	}
}

// WithOutputDir sets the directory Download writes into.
func WithOutputDir(dir string) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.outputDir = dir
	}
}

// Player controls one scene: it renders the composition, keeps the last
// successful buffer, and plays, draws or downloads it.
type Player struct {
	mu     sync.Mutex
	comp   Composition
	cfg    playerConfig
	buf    *Buffer
	hits   []HitTime
	output playback
	done   chan struct{}
}

// NewPlayer validates comp and returns an idle player.
func NewPlayer(comp Composition, opts ...PlayerOption) (*Player, error) {
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if err := comp.Validate(); err != nil {
		return nil, err
	}
	return &Player{comp: comp, cfg: cfg}, nil
}

// NewPresetPlayer returns a player for a built-in scene.
func NewPresetPlayer(name string, opts ...PlayerOption) (*Player, error) {
	comp, err := compose.Preset(name)
	if err != nil {
		return nil, err
	}
	return NewPlayer(comp, opts...)
}

func (p *Player) Composition() Composition { return p.comp }
func (p *Player) SampleRate() int          { return p.cfg.sampleRate }

// Render schedules and renders the scene. On error the previously rendered
// buffer is kept.
func (p *Player) Render(ctx context.Context) (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := p.cfg.logger.With("scene", p.comp.Name)
	began := time.Now()
	s, err := compose.Schedule(ctx, p.comp, p.cfg.sampleRate, p.cfg.loader)
	if err != nil {
		return nil, err
	}
	for _, w := range s.Report.Warnings {
		log.Warn("graph warning", "warning", w)
	}
	buf, err := render.Render(ctx, s.Plan, render.WithLogger(log))
	if err != nil {
		return nil, err
	}
	p.buf = buf
	p.hits = s.Hits
	log.Info("rendered buffer",
		"ms", time.Since(began).Milliseconds(),
		"frames", buf.Frames(),
		"channels", buf.NumChannels(),
		"nodes", s.Graph.Len(),
	)
	return buf, nil
}

// Buffer returns the last rendered buffer, or nil.
func (p *Player) Buffer() *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf
}

// Hits returns the hit table of the last render.
func (p *Player) Hits() []HitTime {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]HitTime(nil), p.hits...)
}

// Play streams the rendered buffer from offset seconds, replacing any
// running playback.
func (p *Player) Play(offset float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf == nil {
		return ErrNotRendered
	}
	if p.output != nil {
		_ = p.output.Stop()
		p.output = nil
	}
	out, err := p.cfg.play(p.buf, offset)
	if err != nil {
		return err
	}
	p.output = out
	p.done = make(chan struct{})
	go p.release(out, p.done)
	p.cfg.logger.Debug("playing", "scene", p.comp.Name, "offset", offset)
	return nil
}

// release forgets out once it finishes and signals done.
func (p *Player) release(out playback, done chan struct{}) {
	<-out.Done()
	p.mu.Lock()
	if p.output == out {
		p.output = nil
	}
	p.mu.Unlock()
	close(done)
}

func (p *Player) Stop() error {
	p.mu.Lock()
	out := p.output
	p.output = nil
	p.mu.Unlock()
	if out == nil {
		return nil
	}
	return out.Stop()
}

// Wait blocks until the current playback ends. Wait returns immediately if
// nothing was played.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Download writes the rendered buffer to name inside the output directory
// and returns the written path. The name is checked before anything is
// encoded.
func (p *Player) Download(name string) (string, error) {
	if err := export.CheckName(name); err != nil {
		return "", err
	}
	p.mu.Lock()
	buf := p.buf
	p.mu.Unlock()
	if buf == nil {
		return "", ErrNotRendered
	}
	path := filepath.Join(p.cfg.outputDir, name)
	if err := export.WriteFile(path, buf, p.cfg.format); err != nil {
		return "", err
	}
	p.cfg.logger.Info("downloaded", "scene", p.comp.Name, "path", path, "format", p.cfg.format)
	return path, nil
}

// Waveform returns width min/max columns of the rendered buffer at the
// preview rate.
func (p *Player) Waveform(ctx context.Context, width int) ([]Column, error) {
	p.mu.Lock()
	buf := p.buf
	p.mu.Unlock()
	if buf == nil {
		return nil, ErrNotRendered
	}
	return waveform.Preview(ctx, buf, width)
}

// DrawWaveform renders the waveform preview as a PNG image.
func (p *Player) DrawWaveform(ctx context.Context, w io.Writer, width, height int) error {
	cols, err := p.Waveform(ctx, width)
	if err != nil {
		return err
	}
	return waveform.DrawPNG(w, cols, height)
}
