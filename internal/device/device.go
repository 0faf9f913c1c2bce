// Package device implements player.Device over gopxl/beep/v2's speaker
// package (itself backed by ebitengine/oto/v3). It adapts pleezer's
// pull-free, push-style pipeline (the engine calls Write with already
// decoded and DSP-processed PCM) onto beep's pull-style beep.Streamer,
// which the speaker's mixer goroutine calls back on its own rhythm
// (spec.md §5: "the audio render thread ... never blocks on network or
// disk; underflow produces silence, not stalls").
package device

import (
	"fmt"
	"io"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"pleezer/internal/decode"
	"pleezer/internal/perrors"
)

// bufferMs is the speaker's internal ring buffer size, matching typical
// beep/oto setups (small enough to keep A/V sync tight, large enough to
// absorb GC pauses on the render thread).
const bufferMs = 50

// chunk is one Write() call's worth of interleaved samples, handed to the
// speaker goroutine via pending and acknowledged via done once fully
// drained — this is what lets Write block "until buf has been consumed"
// (player.Device) despite beep's pull-based Streamer.
type chunk struct {
	samples  []float32
	channels int
	pos      int // frames already copied out
	done     chan struct{}
}

// Device is pleezer's beep/oto-backed audio sink.
type Device struct {
	mu       sync.Mutex
	opened   bool
	channels int

	pending chan *chunk
	cur     *chunk
}

// New returns an unopened Device; Open configures and starts the speaker
// for a specific PCM format.
func New() *Device {
	return &Device{pending: make(chan *chunk)}
}

// Open (re)initializes the speaker for format and starts pulling from d.
// Reopening with a different sample rate closes and reinitializes the
// speaker, since beep/oto don't support changing it in place.
func (d *Device) Open(format decode.Format) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opened {
		speaker.Clear()
		speaker.Close()
	}

	bufferSize := format.SampleRate * bufferMs / 1000
	if err := speaker.Init(beep.SampleRate(format.SampleRate), bufferSize); err != nil {
		return perrors.NewDevice("initializing audio device", err)
	}
	d.channels = format.Channels
	d.opened = true
	speaker.Play(d)
	return nil
}

// Write blocks until buf has been fully drained by the speaker's render
// callback.
func (d *Device) Write(buf []float32) error {
	d.mu.Lock()
	if !d.opened {
		d.mu.Unlock()
		return perrors.NewDevice("write before device opened", nil)
	}
	channels := d.channels
	d.mu.Unlock()

	if len(buf) == 0 {
		return nil
	}
	done := make(chan struct{})
	d.pending <- &chunk{samples: buf, channels: channels, done: done}
	<-done
	return nil
}

// Close stops and tears down the speaker. Safe to call on an already
// closed Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return nil
	}
	speaker.Clear()
	speaker.Close()
	d.opened = false
	return nil
}

// Stream implements beep.Streamer; called by the speaker's own goroutine,
// never by pleezer's player loop directly.
func (d *Device) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		if d.cur == nil {
			c, open := <-d.pending
			if !open {
				return n, n > 0
			}
			d.cur = c
		}

		framesAvail := len(d.cur.samples)/d.cur.channels - d.cur.pos
		if framesAvail <= 0 {
			close(d.cur.done)
			d.cur = nil
			continue
		}

		take := len(samples) - n
		if take > framesAvail {
			take = framesAvail
		}
		for i := 0; i < take; i++ {
			base := (d.cur.pos + i) * d.cur.channels
			left := float64(d.cur.samples[base])
			right := left
			if d.cur.channels > 1 {
				right = float64(d.cur.samples[base+1])
			}
			samples[n+i][0] = left
			samples[n+i][1] = right
		}
		d.cur.pos += take
		n += take

		if d.cur.pos >= len(d.cur.samples)/d.cur.channels {
			close(d.cur.done)
			d.cur = nil
		}
	}
	return n, true
}

// ListDevices writes the available audio output devices to w (spec.md
// §6: `-d "?"` enumerates devices). oto/beep negotiate the platform's
// default output device rather than exposing a device-enumeration API, so
// this reports the single implicit device pleezer actually opens; a
// future oto release that exposes PortAudio-style enumeration would let
// this list real alternatives.
func ListDevices(w io.Writer) error {
	_, err := fmt.Fprintln(w, "default")
	return err
}

// Err implements beep.Streamer and always returns nil. Device loss is not
// reported by this type: neither Err nor Write observes it.
func (d *Device) Err() error { return nil }
