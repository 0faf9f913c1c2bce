package resolver

import (
	"io"

	"github.com/bogem/id3v2/v2"

	"pleezer/internal/perrors"
)

const (
	maxMP3BitrateKbps  = 320
	maxFLACBitrateKbps = 1411
)

// ComputeUserUploadBitrate estimates a user-uploaded MP3's audio bitrate
// excluding its ID3 tag and any embedded art (spec.md §4.2 edge case:
// "bitrate is computed excluding ID3 and embedded art"), then caps it to the
// codec maximum (spec.md §4.2: "bitrate reports capped to codec maxima").
//
// data must support ReadSeeker so id3v2 can parse the leading tag without
// consuming the whole stream; totalBytes is the file's full size.
func ComputeUserUploadBitrate(data io.ReadSeeker, totalBytes int64, durationMs int) (int, error) {
	if durationMs <= 0 {
		return 0, perrors.NewMedia("cannot compute bitrate: unknown duration", nil)
	}

	tag, err := id3v2.ParseReader(data, id3v2.Options{Parse: false})
	if err != nil {
		return 0, perrors.NewMedia("parsing ID3 tag for bitrate estimate", err)
	}

	audioBytes := totalBytes - int64(tag.Size())
	if audioBytes <= 0 {
		return 0, perrors.NewMedia("ID3 tag consumes entire file", nil)
	}

	seconds := float64(durationMs) / 1000
	kbps := int(float64(audioBytes*8) / seconds / 1000)

	return capBitrate(kbps, maxMP3BitrateKbps), nil
}

func capBitrate(kbps, max int) int {
	if kbps > max {
		return max
	}
	return kbps
}
