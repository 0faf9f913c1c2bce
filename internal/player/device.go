package player

import "pleezer/internal/decode"

// Device is the audio sink the engine writes decoded, DSP-processed PCM
// to. internal/device implements this over gopxl/beep + ebitengine/oto;
// defining the interface here (rather than importing internal/device)
// keeps the player package free of the concrete audio backend, matching
// spec.md §4.6's "device lifecycle" being the player's concern, not the
// device's.
type Device interface {
	// Open (re)configures the device for format, opening it lazily on first
	// playback after controller connect (spec.md §4.6).
	Open(format decode.Format) error
	// Write blocks until buf has been consumed (or the device errs).
	Write(buf []float32) error
	Close() error
}
