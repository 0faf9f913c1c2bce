package dsp

import "math"

// TargetLUFS is the normalization target (spec.md §4.5 stage 2).
const TargetLUFS = -15.0

// Normalizer applies gain-or-limit normalization toward TargetLUFS using a
// track's reported replay gain (spec.md §4.5 stage 2): a flat attenuation
// when gainDB <= 0 (the track is already louder than target, scale it
// down), or a feed-forward limiter when gainDB > 0 (the track is quieter
// than target and a flat boost could clip).
type Normalizer struct {
	enabled bool
	gain    float32 // flat-attenuation case
	limiter *Limiter
}

// NewNormalizer builds a Normalizer for a track whose replay gain is
// gainDB. enabled mirrors --normalize-volume; when gainDB is nil the stage
// is a no-op (spec.md §4.5: "if gain_db is known").
func NewNormalizer(enabled bool, gainDB *float64, channels int, sampleRate int) *Normalizer {
	n := &Normalizer{enabled: enabled}
	if !enabled || gainDB == nil {
		n.gain = 1
		return n
	}
	g := *gainDB
	if g <= 0 {
		n.gain = float32(math.Pow(10, g/20))
		return n
	}
	n.limiter = NewLimiter(float32(math.Pow(10, g/20)), channels, sampleRate)
	return n
}

// Process applies normalization to buf in place (interleaved, `channels`
// samples per frame).
func (n *Normalizer) Process(buf []float32, channels int) {
	if !n.enabled {
		return
	}
	if n.limiter != nil {
		n.limiter.Process(buf, channels)
		return
	}
	for i := range buf {
		buf[i] *= n.gain
	}
}

// Limiter is a feed-forward peak limiter with one gain-reduction envelope
// coupled across all channels, so stereo imaging never shifts from
// per-channel-independent gain (spec.md §4.5 stage 2: "multichannel-coupled
// to preserve stereo imaging").
type Limiter struct {
	threshold    float32 // linear, 0..1
	makeupGain   float32
	attackCoeff  float32
	releaseCoeff float32
	envelope     float32
}

// NewLimiter builds a limiter that applies makeupGain (the track's
// requested boost) while clamping peaks to threshold (fixed at -1 dBFS,
// matching common loudness-normalizing players) with a 5ms attack and
// 100ms release.
func NewLimiter(makeupGain float32, channels int, sampleRate int) *Limiter {
	const thresholdDB = -1.0
	attackMs, releaseMs := 5.0, 100.0
	return &Limiter{
		threshold:    float32(math.Pow(10, thresholdDB/20)),
		makeupGain:   makeupGain,
		attackCoeff:  coeffFor(attackMs, sampleRate),
		releaseCoeff: coeffFor(releaseMs, sampleRate),
		envelope:     1, // start at unity gain reduction
	}
}

func coeffFor(ms float64, sampleRate int) float32 {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return float32(math.Exp(-1.0 / (ms / 1000 * float64(sampleRate))))
}

// Process applies boosted-then-limited gain to buf in place, tracking one
// envelope shared by every channel in a frame.
func (l *Limiter) Process(buf []float32, channels int) {
	if channels <= 0 {
		channels = 1
	}
	for i := 0; i < len(buf); i += channels {
		peak := float32(0)
		for c := 0; c < channels && i+c < len(buf); c++ {
			boosted := buf[i+c] * l.makeupGain
			if abs := float32(math.Abs(float64(boosted))); abs > peak {
				peak = abs
			}
		}

		desired := float32(1)
		if peak > l.threshold {
			desired = l.threshold / peak
		}

		coeff := l.releaseCoeff
		if desired < l.envelope {
			coeff = l.attackCoeff
		}
		l.envelope = desired + (l.envelope-desired)*coeff

		for c := 0; c < channels && i+c < len(buf); c++ {
			buf[i+c] = buf[i+c] * l.makeupGain * l.envelope
		}
	}
}
