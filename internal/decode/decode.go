// Package decode demuxes and decodes compressed audio into interleaved f32
// PCM at the source sample rate and channel layout (spec.md §4.5). It
// leaves resampling/requantization to the dither stage in internal/dsp.
package decode

import (
	"io"

	"pleezer/internal/model"
	"pleezer/internal/perrors"
)

// Format describes the PCM layout a Decoder produces.
type Format struct {
	SampleRate int
	Channels   int // podcasts that omit channel count default to mono (spec.md §4.5)
}

// Decoder yields interleaved float32 PCM frames. ReadFrames reports exactly
// how many values it wrote, but a stream's total length is not known in
// advance; callers treat io.EOF as the authoritative end-of-stream
// (spec.md §4.5: "decoder output length is NOT guaranteed exact").
type Decoder interface {
	Format() Format
	// ReadFrames fills buf (interleaved, len(buf) a multiple of Channels)
	// and returns the number of float32 values written.
	ReadFrames(buf []float32) (int, error)
	Close() error
}

// Open selects a Decoder for codec and wraps src. External podcast URLs and
// livestreams are handled by their own callers (src is already the plain
// media bytes in every case; decryption happens upstream in the player's
// AudioFile wiring).
func Open(src io.ReadSeeker, codec model.Codec) (Decoder, error) {
	switch codec {
	case model.CodecMP3:
		return newMP3Decoder(src)
	case model.CodecFLAC:
		return newFLACDecoder(src)
	case model.CodecWAV:
		return newWAVDecoder(src)
	case model.CodecAACADTS, model.CodecAACMP4:
		return nil, perrors.NewMedia("AAC decoding is not supported in this build", nil)
	case model.CodecHLS:
		return nil, perrors.NewMedia("HLS is not supported by Open", nil)
	default:
		return nil, perrors.NewMedia("unknown codec", nil)
	}
}
