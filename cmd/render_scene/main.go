package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/cbegin/audiograph-go"
	"github.com/cbegin/audiograph-go/internal/export"
)

func main() {
	var (
		scene      = flag.String("scene", "beat", "built-in scene to render (see -list)")
		sceneFile  = flag.String("scene-file", "", "path to a JSON scene file; overrides -scene")
		sampleRate = flag.Int("sample-rate", audiograph.DefaultSampleRate, "render sample rate")
		out        = flag.String("out", "", "write the rendered WAV to this file (must end in .wav)")
		format     = flag.String("format", "pcm16", "WAV sample format: pcm16|float32")
		samplesDir = flag.String("samples-dir", ".", "directory holding /static/samples assets")
		samplesURL = flag.String("samples-url", "", "fetch sample assets from this base URL instead of -samples-dir")
		pngPath    = flag.String("png", "", "draw the waveform preview to this PNG file")
		pngWidth   = flag.Int("png-width", 800, "waveform image width")
		pngHeight  = flag.Int("png-height", 200, "waveform image height")
		play       = flag.Bool("play", false, "play the rendered buffer")
		offset     = flag.Float64("offset", 0, "playback start offset in seconds")
		list       = flag.Bool("list", false, "list built-in scenes and exit")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *list {
		for _, name := range audiograph.Presets() {
			fmt.Println(name)
		}
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	comp, err := resolveScene(*scene, *sceneFile)
	if err != nil {
		log.Fatal(err)
	}
	f, err := export.ParseFormat(*format)
	if err != nil {
		log.Fatal(err)
	}

	repo := audiograph.NewRepository(*samplesDir, logger)
	if strings.TrimSpace(*samplesURL) != "" {
		repo = audiograph.NewHTTPRepository(*samplesURL, logger)
	}

	dir, name := ".", comp.ExportName()
	if *out != "" {
		dir, name = filepath.Split(*out)
		if dir == "" {
			dir = "."
		}
	}
	pl, err := audiograph.NewPlayer(comp,
		audiograph.WithSampleRate(*sampleRate),
		audiograph.WithRepository(repo),
		audiograph.WithLogger(logger),
		audiograph.WithExportFormat(f),
		audiograph.WithOutputDir(dir),
	)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if _, err := pl.Render(ctx); err != nil {
		log.Fatal(err)
	}
	if *out != "" {
		path, err := pl.Download(name)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println("wrote", path)
	}
	if *pngPath != "" {
		if err := drawPNG(ctx, pl, *pngPath, *pngWidth, *pngHeight); err != nil {
			log.Fatal(err)
		}
		fmt.Println("wrote", *pngPath)
	}
	if *play {
		if err := pl.Play(*offset); err != nil {
			log.Fatal(err)
		}
		go func() {
			<-ctx.Done()
			pl.Stop()
		}()
		pl.Wait()
		fmt.Println("playback completed")
	}
}

func resolveScene(name, path string) (audiograph.Composition, error) {
	if strings.TrimSpace(path) != "" {
		return audiograph.LoadScene(path)
	}
	comp, err := audiograph.Preset(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return comp, fmt.Errorf("invalid -scene %q (expected one of %s)", name, strings.Join(audiograph.Presets(), "|"))
	}
	return comp, nil
}

func drawPNG(ctx context.Context, pl *audiograph.Player, path string, width, height int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := pl.DrawWaveform(ctx, file, width, height); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
