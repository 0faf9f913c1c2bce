package resolver

import "testing"

func TestCeilingForCapsAtSubscription(t *testing.T) {
	ent := Entitlements{LosslessAllowed: false, HQAllowed: true}
	got := ceilingFor(ent, QualityFLAC)
	if got != QualityMP3320 {
		t.Errorf("ceilingFor should cap at subscription ceiling, got %v", got)
	}
}

func TestCeilingForHonorsLowerPreference(t *testing.T) {
	ent := Entitlements{LosslessAllowed: true, HQAllowed: true}
	got := ceilingFor(ent, QualityMP3128)
	if got != QualityMP3128 {
		t.Errorf("ceilingFor should honor a preference below the subscription ceiling, got %v", got)
	}
}

func TestLadderStartsAtCeilingAndDescends(t *testing.T) {
	l := ladder(QualityMP3320)
	want := []Quality{QualityMP3320, QualityMP3128}
	if len(l) != len(want) {
		t.Fatalf("ladder length = %d, want %d", len(l), len(want))
	}
	for i := range want {
		if l[i] != want[i] {
			t.Errorf("ladder[%d] = %v, want %v", i, l[i], want[i])
		}
	}
}

func TestBitrateHintsMatchCodecMaxima(t *testing.T) {
	if QualityFLAC.bitrateHint() != maxFLACBitrateKbps {
		t.Errorf("FLAC bitrate hint should equal codec max, got %d", QualityFLAC.bitrateHint())
	}
	if QualityMP3320.bitrateHint() != 320 {
		t.Errorf("MP3_320 bitrate hint = %d, want 320", QualityMP3320.bitrateHint())
	}
}

func TestCapBitrate(t *testing.T) {
	if got := capBitrate(500, maxMP3BitrateKbps); got != maxMP3BitrateKbps {
		t.Errorf("capBitrate(500, 320) = %d, want 320", got)
	}
	if got := capBitrate(128, maxMP3BitrateKbps); got != 128 {
		t.Errorf("capBitrate(128, 320) = %d, want 128", got)
	}
}
