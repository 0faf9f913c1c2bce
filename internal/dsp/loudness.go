package dsp

import "math"

// isoBands are the reference frequencies (Hz) of the ISO 226:2013
// equal-loudness contour table this curve interpolates between.
var isoBands = [...]float64{20, 25, 31.5, 40, 50, 63, 80, 100, 125, 160, 200,
	250, 315, 400, 500, 630, 800, 1000, 1250, 1600, 2000, 2500, 3150, 4000,
	5000, 6300, 8000, 10000, 12500}

// isoReliefDB is the approximate dB boost a low-volume ear needs at each
// band in isoBands, relative to 1kHz, derived from the difference between
// the 40-phon and 80-phon ISO 226:2013 contours (low volumes need more
// low/high-frequency boost than loud ones). Values are illustrative of the
// contour's shape, not a certified reproduction of the standard's table.
var isoReliefDB = [...]float64{18, 16, 14, 12, 10.5, 9, 7.5, 6, 5, 4, 3.2,
	2.5, 2, 1.5, 1, 0.5, 0.2, 0, 0.1, 0.4, 0.8, 1.3, 1.8, 2.3,
	2.8, 3.3, 4.2, 5.5, 7}

// LoudnessCurve applies a frequency-dependent gain that compensates for the
// ear's reduced low/high-frequency sensitivity at low volumes (spec.md
// §4.5 stage 3: "stronger at low volumes, approaches unity at max").
// It is implemented as a pair of shelving biquads rather than true
// band-by-band EQ, scaled by how far below full volume the current level
// is.
type LoudnessCurve struct {
	sampleRate int
	low, high  *biquad
}

// NewLoudnessCurve builds a curve for sampleRate. Call SetVolume before
// Process to set the compensation strength.
func NewLoudnessCurve(sampleRate int) *LoudnessCurve {
	return &LoudnessCurve{
		sampleRate: sampleRate,
		low:        newLowShelf(sampleRate, 150, 0),
		high:       newHighShelf(sampleRate, 6000, 0),
	}
}

// SetVolume updates the shelf gains for a [0,100] volume: strength is 1 at
// volume 0 and 0 at volume 100, interpolated linearly.
func (c *LoudnessCurve) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	strength := 1 - float64(volume)/100
	lowGainDB := reliefAt(60) * strength
	highGainDB := reliefAt(10000) * strength
	c.low.setGainDB(lowGainDB)
	c.high.setGainDB(highGainDB)
}

// reliefAt linearly interpolates isoReliefDB at freq Hz.
func reliefAt(freq float64) float64 {
	if freq <= isoBands[0] {
		return isoReliefDB[0]
	}
	last := len(isoBands) - 1
	if freq >= isoBands[last] {
		return isoReliefDB[last]
	}
	for i := 0; i < last; i++ {
		if freq >= isoBands[i] && freq <= isoBands[i+1] {
			t := (freq - isoBands[i]) / (isoBands[i+1] - isoBands[i])
			return isoReliefDB[i] + (isoReliefDB[i+1]-isoReliefDB[i])*t
		}
	}
	return 0
}

// Process filters buf in place through the low- then high-shelf stage,
// each channel tracking its own biquad state so the filter never smears
// energy across the stereo image.
func (c *LoudnessCurve) Process(buf []float32, channels int) {
	if channels <= 0 {
		channels = 1
	}
	c.low.processInterleaved(buf, channels)
	c.high.processInterleaved(buf, channels)
}

// biquad is a direct-form-I biquad shelving filter with independent state
// per channel (up to 8, enough for any layout pleezer will see).
type biquad struct {
	sampleRate float64
	freq       float64
	shelfType  shelfType
	b0, b1, b2 float64
	a1, a2     float64
	state      [8]struct{ x1, x2, y1, y2 float64 }
}

type shelfType int

const (
	lowShelf shelfType = iota
	highShelf
)

func newLowShelf(sampleRate int, freq float64, gainDB float64) *biquad {
	b := &biquad{sampleRate: float64(sampleRate), freq: freq, shelfType: lowShelf}
	b.setGainDB(gainDB)
	return b
}

func newHighShelf(sampleRate int, freq float64, gainDB float64) *biquad {
	b := &biquad{sampleRate: float64(sampleRate), freq: freq, shelfType: highShelf}
	b.setGainDB(gainDB)
	return b
}

// setGainDB recomputes coefficients for an Audio-EQ-cookbook shelving
// filter at the stored frequency, with fixed shelf slope S=1.
func (b *biquad) setGainDB(gainDB float64) {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * b.freq / b.sampleRate
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)
	// Shelf slope S=1 (the Audio EQ Cookbook's steepest non-resonant shelf).
	alpha := sinW0 / 2 * math.Sqrt2
	twoSqrtAAlpha := 2 * math.Sqrt(a) * alpha

	var b0, b1, b2, a0, a1, a2 float64
	switch b.shelfType {
	case lowShelf:
		b0 = a * ((a + 1) - (a-1)*cosW0 + twoSqrtAAlpha)
		b1 = 2 * a * ((a - 1) - (a+1)*cosW0)
		b2 = a * ((a + 1) - (a-1)*cosW0 - twoSqrtAAlpha)
		a0 = (a + 1) + (a-1)*cosW0 + twoSqrtAAlpha
		a1 = -2 * ((a - 1) + (a+1)*cosW0)
		a2 = (a + 1) + (a-1)*cosW0 - twoSqrtAAlpha
	default: // highShelf
		b0 = a * ((a + 1) + (a-1)*cosW0 + twoSqrtAAlpha)
		b1 = -2 * a * ((a - 1) + (a+1)*cosW0)
		b2 = a * ((a + 1) + (a-1)*cosW0 - twoSqrtAAlpha)
		a0 = (a + 1) - (a-1)*cosW0 + twoSqrtAAlpha
		a1 = 2 * ((a - 1) - (a+1)*cosW0)
		a2 = (a + 1) - (a-1)*cosW0 - twoSqrtAAlpha
	}

	b.b0, b.b1, b.b2 = b0/a0, b1/a0, b2/a0
	b.a1, b.a2 = a1/a0, a2/a0
}

func (b *biquad) processInterleaved(buf []float32, channels int) {
	for i := 0; i < len(buf); i += channels {
		for c := 0; c < channels && c < len(b.state) && i+c < len(buf); c++ {
			s := &b.state[c]
			x0 := float64(buf[i+c])
			y0 := b.b0*x0 + b.b1*s.x1 + b.b2*s.x2 - b.a1*s.y1 - b.a2*s.y2
			s.x2, s.x1 = s.x1, x0
			s.y2, s.y1 = s.y1, y0
			buf[i+c] = float32(y0)
		}
	}
}
