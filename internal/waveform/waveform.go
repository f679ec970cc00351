// Package waveform reduces rendered buffers to min/max columns for display.
package waveform

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/cbegin/audiograph-go/internal/buffer"
	"github.com/cbegin/audiograph-go/internal/graph"
	"github.com/cbegin/audiograph-go/internal/render"
)

// PreviewRate is the sample rate buffers are reduced to before drawing.
const PreviewRate = 11025

var ErrInvalidWidth = errors.New("waveform width must be positive")

// Extent is the sample range of one channel inside one column.
type Extent struct {
	Min, Max float32
}

// Column holds one Extent per channel.
type Column []Extent

// WindowSize is the number of samples aggregated per column.
func WindowSize(length, width int) int {
	if width <= 0 || length <= 0 {
		return 0
	}
	return (length + width - 1) / width
}

// Peaks splits every channel into width windows of WindowSize samples and
// returns each window's extent. Extents always include zero and are clamped
// to [-1, 1]. Columns past the end of the data are flat.
func Peaks(channels [][]float32, width int) ([]Column, error) {
	if width <= 0 {
		return nil, ErrInvalidWidth
	}
	length := 0
	for _, ch := range channels {
		if len(ch) > length {
			length = len(ch)
		}
	}
	win := WindowSize(length, width)
	cols := make([]Column, width)
	for i := range cols {
		col := make(Column, len(channels))
		for c, ch := range channels {
			var lo, hi float32
			start, end := i*win, (i+1)*win
			if end > len(ch) {
				end = len(ch)
			}
			for j := start; j < end; j++ {
				v := ch[j]
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
			if lo < -1 {
				lo = -1
			}
			if hi > 1 {
				hi = 1
			}
			col[c] = Extent{Min: lo, Max: hi}
		}
		cols[i] = col
	}
	return cols, nil
}

// Downsample renders buf through a one-node graph at rate. Buffers already
// at or below rate are returned unchanged.
func Downsample(ctx context.Context, buf *buffer.Buffer, rate int) (*buffer.Buffer, error) {
	if buf.SampleRate() <= rate {
		return buf, nil
	}
	g := graph.New()
	src, err := g.BufferSource(graph.Options{Buffer: buf})
	if err != nil {
		return nil, err
	}
	if err := g.Start(src, 0); err != nil {
		return nil, err
	}
	if err := g.Stop(src, buf.Duration()); err != nil {
		return nil, err
	}
	if err := g.Connect(src, g.Destination()); err != nil {
		return nil, err
	}
	plan, _, err := render.NewPlan(g, buf.Duration(), buf.NumChannels(), rate)
	if err != nil {
		return nil, err
	}
	return render.Render(ctx, plan)
}

// Preview downsamples buf to PreviewRate and computes width columns.
func Preview(ctx context.Context, buf *buffer.Buffer, width int) ([]Column, error) {
	small, err := Downsample(ctx, buf, PreviewRate)
	if err != nil {
		return nil, err
	}
	return Peaks(small.Channels(), width)
}

// DrawPNG draws one lane per channel, top to bottom, with a vertical stroke
// per column from Min to Max.
func DrawPNG(w io.Writer, cols []Column, height int) error {
	width := len(cols)
	if width == 0 {
		return ErrInvalidWidth
	}
	if height <= 0 {
		return errors.New("waveform height must be positive")
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	bg := color.RGBA{A: 0xff}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+3] = bg.A
	}
	lanes := len(cols[0])
	if lanes == 0 {
		return png.Encode(w, img)
	}
	laneH := float64(height) / float64(lanes)
	fg := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	for x, col := range cols {
		for c, ext := range col {
			center := laneH * (float64(c) + 0.5)
			top := int(math.Floor(center - float64(ext.Max)*laneH/2))
			bottom := int(math.Ceil(center - float64(ext.Min)*laneH/2))
			for y := top; y <= bottom && y < height; y++ {
				if y >= 0 {
					img.SetRGBA(x, y, fg)
				}
			}
		}
	}
	return png.Encode(w, img)
}
