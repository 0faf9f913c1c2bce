package player

import (
	"context"

	"pleezer/internal/decode"
	"pleezer/internal/dsp"
	"pleezer/internal/model"
)

// slot holds one loaded (or loading) track: its metadata, decoder and DSP
// chain. The player keeps two (current, preload) for gapless playback
// (spec.md §4.6).
type slot struct {
	item    model.QueueItem
	meta    model.TrackMeta
	decoder decode.Decoder
	chain   *dsp.Chain

	positionMs int
	cancel     context.CancelFunc
	ready      chan struct{} // closed once resolve+open completes
	err        error
	announced  bool // true once track_changed has fired for this slot
}

func newSlot(item model.QueueItem) *slot {
	return &slot{item: item, ready: make(chan struct{})}
}

func (s *slot) durationMs() (int, bool) {
	if s.meta.Duration == nil {
		return 0, false
	}
	return *s.meta.Duration, true
}

func (s *slot) close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.decoder != nil {
		s.decoder.Close()
	}
}
