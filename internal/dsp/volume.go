// Package dsp implements pleezer's fixed-order DSP chain (spec.md §4.5):
// volume ramp, normalization/limiting, ISO 226:2013 loudness compensation,
// logarithmic volume mapping, and bit-depth match with dither/noise
// shaping. Nothing here is grounded in the example corpus — no pack repo
// ships an audio DSP library, so every stage is built on math/cmplx-free
// stdlib float math (see DESIGN.md).
package dsp

import "math"

// Ramp linearly fades gain across a block to eliminate start/stop/track
// -change pops (spec.md §4.5 stage 1: "linear fade over >= 20ms").
type Ramp struct {
	from, to   float32
	sampleRate int
	totalSamp  int
	done       int
}

// NewRamp builds a ramp from from to to over durationMs at sampleRate.
// Durations below 20ms are clamped up to avoid audible stepping.
func NewRamp(from, to float32, durationMs int, sampleRate int) *Ramp {
	if durationMs < 20 {
		durationMs = 20
	}
	return &Ramp{
		from:       from,
		to:         to,
		sampleRate: sampleRate,
		totalSamp:  sampleRate * durationMs / 1000,
	}
}

// Done reports whether the ramp has reached its target gain.
func (r *Ramp) Done() bool { return r.done >= r.totalSamp }

// Next returns the gain to apply to the next frame (one sample period) and
// advances the ramp.
func (r *Ramp) Next() float32 {
	if r.Done() || r.totalSamp == 0 {
		return r.to
	}
	t := float32(r.done) / float32(r.totalSamp)
	g := r.from + (r.to-r.from)*t
	r.done++
	return g
}

// ApplyRamp scales buf (interleaved, channels-agnostic) in place, one gain
// value per frame (every `channels` samples), consuming from r.
func ApplyRamp(buf []float32, channels int, r *Ramp) {
	if channels <= 0 {
		channels = 1
	}
	for i := 0; i < len(buf); i += channels {
		g := r.Next()
		for c := 0; c < channels && i+c < len(buf); c++ {
			buf[i+c] *= g
		}
	}
}

// LogVolume maps a [0,100] UI volume to a linear gain per spec.md §4.5 stage
// 4: "logarithmic mapping from [0,100] to [-60 dB, 0 dB], with 0 mapped to
// -inf (mute)".
func LogVolume(v int) float32 {
	if v <= 0 {
		return 0
	}
	if v > 100 {
		v = 100
	}
	db := -60.0 + (float64(v)/100.0)*60.0
	return float32(math.Pow(10, db/20))
}
