package player

import (
	"io"
	"testing"

	"pleezer/internal/decode"
	"pleezer/internal/model"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateStopped: "stopped",
		StateLoading: "loading",
		StatePlaying: "playing",
		StatePaused:  "paused",
		State(99):    "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestNewEngineStartsStopped(t *testing.T) {
	e := NewEngine(Config{})
	if e.State() != StateStopped {
		t.Errorf("new engine state = %v, want Stopped", e.State())
	}
	pos, dur := e.Progress()
	if pos != 0 || dur != nil {
		t.Errorf("new engine progress = (%d, %v), want (0, nil)", pos, dur)
	}
}

func TestSetQueueEmptyLeavesEngineStopped(t *testing.T) {
	e := NewEngine(Config{})
	e.SetQueue(nil, 0)
	if e.State() != StateStopped {
		t.Errorf("state after empty SetQueue = %v, want Stopped", e.State())
	}
}

func TestPlayNoOpWithoutCurrentTrack(t *testing.T) {
	e := NewEngine(Config{})
	e.Play()
	if e.State() != StateStopped {
		t.Errorf("Play() with no current track changed state to %v", e.State())
	}
}

func TestPauseNoOpWhenNotPlaying(t *testing.T) {
	e := NewEngine(Config{})
	e.Pause()
	if e.State() != StateStopped {
		t.Errorf("Pause() while stopped changed state to %v", e.State())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	e := NewEngine(Config{})
	e.Stop()
	e.Stop()
	if e.State() != StateStopped {
		t.Errorf("state after double Stop() = %v, want Stopped", e.State())
	}
}

func TestSetVolumeWithoutCurrentReturnsError(t *testing.T) {
	e := NewEngine(Config{})
	if err := e.SetVolume(42); err == nil {
		t.Error("SetVolume with no track loaded: want an error, got nil")
	}
}

func TestSetShuffleAndRepeatWithNoQueueDoesNotPanic(t *testing.T) {
	e := NewEngine(Config{})
	e.SetShuffle(true)
	e.SetRepeat(model.RepeatAll)
}

func TestNextWithNoQueueIsNoOp(t *testing.T) {
	e := NewEngine(Config{})
	e.Next()
	if e.State() != StateStopped {
		t.Errorf("Next() with no queue changed state to %v", e.State())
	}
}

func TestNextPastEndOfQueueStops(t *testing.T) {
	e := NewEngine(Config{})
	e.queue = model.NewQueue([]model.QueueItem{{TrackID: model.Song("1")}}, 0)
	e.state = StatePlaying
	e.Next() // repeat-off, single item: Next() reports ok=false, so only Stop() runs
	if e.State() != StateStopped {
		t.Errorf("state after Next() past queue end = %v, want Stopped", e.State())
	}
}

func TestSeekWithNoCurrentTrackErrors(t *testing.T) {
	e := NewEngine(Config{})
	if err := e.Seek(1000); err == nil {
		t.Error("Seek() with no current track: expected error, got nil")
	}
}

func TestSeekBeforeSlotFinishesLoadingErrors(t *testing.T) {
	e := NewEngine(Config{})
	e.current = newSlot(model.QueueItem{TrackID: model.Song("1")})
	if err := e.Seek(1000); err == nil {
		t.Error("Seek() before decoder is ready: expected error, got nil")
	}
}

// fakeSeekableDecoder is a minimal decode.Decoder that also implements the
// anonymous SeekFrame interface Engine.Seek type-asserts for.
type fakeSeekableDecoder struct {
	format    decode.Format
	lastSeek  int64
	seekCalls int
}

func (d *fakeSeekableDecoder) Format() decode.Format { return d.format }
func (d *fakeSeekableDecoder) ReadFrames(buf []float32) (int, error) {
	return 0, io.EOF
}
func (d *fakeSeekableDecoder) Close() error { return nil }
func (d *fakeSeekableDecoder) SeekFrame(frame int64) error {
	d.lastSeek = frame
	d.seekCalls++
	return nil
}

func TestSeekComputesFrameFromSampleRate(t *testing.T) {
	e := NewEngine(Config{})
	dec := &fakeSeekableDecoder{format: decode.Format{SampleRate: 44100, Channels: 2}}
	durMs := 300000
	s := newSlot(model.QueueItem{TrackID: model.Song("1")})
	s.decoder = dec
	s.meta = model.TrackMeta{Duration: &durMs}
	e.current = s

	if err := e.Seek(1000); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if dec.seekCalls != 1 {
		t.Fatalf("SeekFrame called %d times, want 1", dec.seekCalls)
	}
	if want := int64(44100); dec.lastSeek != want {
		t.Errorf("SeekFrame(frame) = %d, want %d", dec.lastSeek, want)
	}
	if s.positionMs != 1000 {
		t.Errorf("slot positionMs after seek = %d, want 1000", s.positionMs)
	}
}

func TestSeekClampsToDuration(t *testing.T) {
	e := NewEngine(Config{})
	dec := &fakeSeekableDecoder{format: decode.Format{SampleRate: 44100, Channels: 2}}
	durMs := 5000
	s := newSlot(model.QueueItem{TrackID: model.Song("1")})
	s.decoder = dec
	s.meta = model.TrackMeta{Duration: &durMs}
	e.current = s

	if err := e.Seek(999999); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if s.positionMs != durMs {
		t.Errorf("positionMs after over-range seek = %d, want clamped %d", s.positionMs, durMs)
	}
}

func TestSeekOnNonSeekableDecoderErrors(t *testing.T) {
	e := NewEngine(Config{})
	s := newSlot(model.QueueItem{TrackID: model.Song("1")})
	s.decoder = &nonSeekableDecoder{}
	e.current = s
	if err := e.Seek(1000); err == nil {
		t.Error("Seek() on a decoder without SeekFrame: expected error, got nil")
	}
}

type nonSeekableDecoder struct{}

func (d *nonSeekableDecoder) Format() decode.Format             { return decode.Format{SampleRate: 44100, Channels: 2} }
func (d *nonSeekableDecoder) ReadFrames(buf []float32) (int, error) { return 0, io.EOF }
func (d *nonSeekableDecoder) Close() error                          { return nil }
