package render

import "math"

// delayLine holds one ring buffer per channel. The output is read at the
// node's place in the processing order and the input is written once the
// whole frame is done, so the delay is always at least one frame.
type delayLine struct {
	lines      [][]float32
	pos        int
	sampleRate float64
	maxFrames  float64
	tail       int
}

func newDelayLine(maxDelay float64, channels int, sampleRate float64) *delayLine {
	maxFrames := math.Ceil(maxDelay * sampleRate)
	if maxFrames < 1 {
		maxFrames = 1
	}
	size := int(maxFrames) + 2
	lines := make([][]float32, channels)
	for c := range lines {
		lines[c] = make([]float32, size)
	}
	return &delayLine{lines: lines, sampleRate: sampleRate, maxFrames: maxFrames}
}

func (d *delayLine) quiet(float64, bool) bool { return d.tail == 0 }

func (d *delayLine) render(_ float64, _ []float32, p []float64, out []float32) {
	delay := p[0] * d.sampleRate
	if !(delay >= 1) {
		delay = 1
	}
	if delay > d.maxFrames {
		delay = d.maxFrames
	}
	k := int(delay)
	frac := float32(delay - float64(k))
	size := len(d.lines[0])
	i0 := (d.pos - k + size) % size
	i1 := (i0 - 1 + size) % size
	for c, line := range d.lines {
		out[c] = line[i0]*(1-frac) + line[i1]*frac
	}
}

func (d *delayLine) latch(in []float32, silent bool) {
	for c, line := range d.lines {
		if silent {
			line[d.pos] = 0
		} else {
			line[d.pos] = in[c]
		}
	}
	d.pos++
	if d.pos >= len(d.lines[0]) {
		d.pos = 0
	}
	switch {
	case !silent:
		d.tail = len(d.lines[0])
	case d.tail > 0:
		d.tail--
	}
}
