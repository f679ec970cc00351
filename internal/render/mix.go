package render

// mixInto adds src to dst. Mono up-mixes into every channel, stereo
// down-mixes to mono by averaging, other counts map channel to channel.
func mixInto(dst, src []float32) {
	switch {
	case len(src) == len(dst):
		for i, v := range src {
			dst[i] += v
		}
	case len(src) == 1:
		v := src[0]
		for i := range dst {
			dst[i] += v
		}
	case len(src) == 2 && len(dst) == 1:
		dst[0] += (src[0] + src[1]) * 0.5
	default:
		n := len(src)
		if len(dst) < n {
			n = len(dst)
		}
		for i := 0; i < n; i++ {
			dst[i] += src[i]
		}
	}
}

// mono averages the channels of one frame.
func mono(frame []float32) float32 {
	if len(frame) == 1 {
		return frame[0]
	}
	var sum float32
	for _, v := range frame {
		sum += v
	}
	return sum / float32(len(frame))
}
