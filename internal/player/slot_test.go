package player

import (
	"testing"

	"pleezer/internal/model"
)

func TestSlotDurationMsNilForLivestream(t *testing.T) {
	s := newSlot(model.QueueItem{TrackID: model.Livestream("1")})
	s.meta = model.TrackMeta{TrackID: model.Livestream("1")}
	if _, ok := s.durationMs(); ok {
		t.Error("durationMs() ok = true for a livestream slot, want false")
	}
}

func TestSlotDurationMsReturnsResolvedDuration(t *testing.T) {
	s := newSlot(model.QueueItem{TrackID: model.Song("1")})
	ms := 210000
	s.meta = model.TrackMeta{TrackID: model.Song("1"), Duration: &ms}
	got, ok := s.durationMs()
	if !ok || got != ms {
		t.Errorf("durationMs() = (%d, %v), want (%d, true)", got, ok, ms)
	}
}

func TestSlotCloseCancelsContext(t *testing.T) {
	s := newSlot(model.QueueItem{TrackID: model.Song("1")})
	canceled := false
	s.cancel = func() { canceled = true }
	s.close()
	if !canceled {
		t.Error("close() did not invoke cancel")
	}
}
