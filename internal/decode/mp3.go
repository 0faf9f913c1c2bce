package decode

import (
	"encoding/binary"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"pleezer/internal/perrors"
)

// mp3Decoder wraps go-mp3, which demuxes+decodes straight to signed 16-bit
// little-endian stereo PCM; ReadFrames converts that to the interleaved f32
// the rest of the chain expects.
type mp3Decoder struct {
	dec     *mp3.Decoder
	src     io.Closer
	format  Format
	scratch []byte
}

const mp3BytesPerFrame = 4 // 16-bit stereo

func newMP3Decoder(src io.ReadSeeker) (Decoder, error) {
	dec, err := mp3.NewDecoder(src)
	if err != nil {
		return nil, perrors.NewMedia("opening mp3 stream", err)
	}
	closer, _ := src.(io.Closer)
	return &mp3Decoder{
		dec:    dec,
		src:    closer,
		format: Format{SampleRate: dec.SampleRate(), Channels: 2}, // go-mp3 always outputs stereo
	}, nil
}

func (d *mp3Decoder) Format() Format { return d.format }

func (d *mp3Decoder) ReadFrames(buf []float32) (int, error) {
	need := len(buf) * 2 // 2 bytes per sample (int16)
	if cap(d.scratch) < need {
		d.scratch = make([]byte, need)
	}
	raw := d.scratch[:need]

	n, err := d.dec.Read(raw)
	samples := n / 2
	for i := 0; i < samples; i++ {
		buf[i] = float32(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768.0
	}
	if err != nil && err != io.EOF {
		return samples, perrors.NewMedia("decoding mp3 frame", err)
	}
	return samples, err
}

// SeekFrame seeks to an exact PCM frame position. go-mp3's Decoder exposes
// Seek in PCM byte offsets over the fully-decoded stream (it maintains its
// own frame index internally), so this is sample-accurate.
func (d *mp3Decoder) SeekFrame(frame int64) error {
	_, err := d.dec.Seek(frame*mp3BytesPerFrame, io.SeekStart)
	if err != nil {
		return perrors.NewMedia("seeking mp3 stream", err)
	}
	return nil
}

func (d *mp3Decoder) Close() error {
	if d.src != nil {
		return d.src.Close()
	}
	return nil
}
