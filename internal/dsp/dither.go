package dsp

import "math/rand"

// shibataTaps holds the noise-shaping filter coefficients per level (0-7).
// Level 0 is pure TPDF (no shaping) and is the only level with a table;
// levels 1-7 have no coefficients and no per-sample-rate variants here, so
// they behave exactly like level 0 (see NewDither).
var shibataTaps = map[int][]float32{
	0: {},
}

// Dither applies TPDF dither, scaled by the current volume so dither energy
// tracks signal scale, plus optional noise shaping before requantization
// (spec.md §4.5 stage 5).
type Dither struct {
	targetBits int
	level      int
	taps       []float32
	history    []float32 // per-channel error feedback, len == channels*len(taps)
	channels   int
	rng        *rand.Rand
}

// NewDither builds a ditherer for targetBits-deep integer output and the
// requested Shibata level (0-7), at sampleRate and channels. A level with
// no populated coefficient table silently behaves like level 0.
func NewDither(targetBits int, level int, sampleRate int, channels int, rng *rand.Rand) *Dither {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if channels <= 0 {
		channels = 1
	}
	taps := shibataTaps[level]
	return &Dither{
		targetBits: targetBits,
		level:      level,
		taps:       taps,
		history:    make([]float32, channels*len(taps)),
		channels:   channels,
		rng:        rng,
	}
}

// lsbAmplitude is ±1 LSB at targetBits, expressed in the [-1,1] float
// domain (spec.md §4.5 stage 5: "amplitude = 1/2 LSB of target depth").
func lsbAmplitude(targetBits int) float32 {
	if targetBits <= 0 {
		return 0
	}
	full := float32(int64(1) << uint(targetBits-1))
	return 1.0 / full
}

// Process applies dither (and, if configured, noise shaping) to buf in
// place, scaled by volume in [0,1] so quiet passages don't get
// disproportionately loud dither noise.
func (d *Dither) Process(buf []float32, volume float32) {
	half := lsbAmplitude(d.targetBits) / 2 * volume

	for ch := 0; ch < d.channels; ch++ {
		for i := ch; i < len(buf); i += d.channels {
			shaped := float32(0)
			for t, coeff := range d.taps {
				shaped += coeff * d.history[ch*len(d.taps)+t]
			}

			// Two uniform draws summed = triangular PDF.
			noise := (d.rng.Float32()+d.rng.Float32()-1) * half

			out := buf[i] + noise - shaped
			err := out - buf[i]
			buf[i] = out

			if len(d.taps) > 0 {
				copy(d.history[ch*len(d.taps)+1:(ch+1)*len(d.taps)], d.history[ch*len(d.taps):(ch+1)*len(d.taps)-1])
				d.history[ch*len(d.taps)] = err
			}
		}
	}
}
