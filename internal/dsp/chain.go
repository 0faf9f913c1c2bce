package dsp

import "math/rand"

// Options configures a Chain (spec.md §4.5: normalize-volume, loudness
// compensation, dither target depth and Shibata level are all
// operator-configured via internal/config).
type Options struct {
	Normalize    bool
	Loudness     bool
	TargetBits   int
	NoiseShaping int // 0-7
	SampleRate   int
	Channels     int
}

// Chain runs the fixed-order DSP pipeline (spec.md §4.5): ramp is applied
// externally by the player (it needs state-transition awareness the chain
// doesn't have), then normalize -> loudness -> volume -> dither.
type Chain struct {
	normalizer *Normalizer
	loudness   *LoudnessCurve
	dither     *Dither
	volume     int // 0-100, set via SetVolume
}

// NewChain builds a Chain for one track (normalization depends on that
// track's replay gain).
func NewChain(opts Options, gainDB *float64, rng *rand.Rand) *Chain {
	c := &Chain{
		normalizer: NewNormalizer(opts.Normalize, gainDB, opts.Channels, opts.SampleRate),
		dither:     NewDither(opts.TargetBits, opts.NoiseShaping, opts.SampleRate, opts.Channels, rng),
		volume:     100,
	}
	if opts.Loudness {
		c.loudness = NewLoudnessCurve(opts.SampleRate)
		c.loudness.SetVolume(c.volume)
	}
	return c
}

// SetVolume updates the chain's volume (0-100), which feeds both the
// loudness curve's strength and the logarithmic gain stage.
func (c *Chain) SetVolume(v int) {
	c.volume = v
	if c.loudness != nil {
		c.loudness.SetVolume(v)
	}
}

// Process runs buf (interleaved, `channels` samples per frame) through
// normalize -> loudness -> volume -> dither, in place.
func (c *Chain) Process(buf []float32, channels int) {
	c.normalizer.Process(buf, channels)
	if c.loudness != nil {
		c.loudness.Process(buf, channels)
	}
	gain := LogVolume(c.volume)
	for i := range buf {
		buf[i] *= gain
	}
	c.dither.Process(buf, gain)
}
