package decode

import (
	"encoding/binary"
	"io"

	"pleezer/internal/perrors"
)

// wavDecoder parses a canonical PCM RIFF/WAVE container. Livestream sources
// occasionally serve WAV rather than HLS; it's also the simplest format to
// fall back to if a codec probe is inconclusive.
type wavDecoder struct {
	src            io.ReadSeeker
	format         Format
	bytesPerSample int
	dataOffset     int64 // byte offset of the first PCM sample, for SeekFrame
	scratch        []byte
}

func newWAVDecoder(src io.ReadSeeker) (Decoder, error) {
	var riff [12]byte
	if _, err := io.ReadFull(src, riff[:]); err != nil {
		return nil, perrors.NewMedia("reading RIFF header", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, perrors.NewMedia("not a RIFF/WAVE stream", nil)
	}

	var channels, bitsPerSample uint16
	var sampleRate uint32
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(src, hdr[:]); err != nil {
			return nil, perrors.NewMedia("reading wav chunk header", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		if id == "fmt " {
			body := make([]byte, size)
			if _, err := io.ReadFull(src, body); err != nil {
				return nil, perrors.NewMedia("reading wav fmt chunk", err)
			}
			channels = binary.LittleEndian.Uint16(body[2:4])
			sampleRate = binary.LittleEndian.Uint32(body[4:8])
			bitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			continue
		}
		if id == "data" {
			break // leave the reader positioned at the start of PCM data
		}
		if _, err := io.CopyN(io.Discard, src, int64(size)); err != nil {
			return nil, perrors.NewMedia("skipping wav chunk", err)
		}
	}

	if channels == 0 {
		channels = 1 // podcasts that omit channel count default to mono (spec.md §4.5)
	}
	if bitsPerSample == 0 {
		bitsPerSample = 16
	}

	dataOffset, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, perrors.NewMedia("locating wav data chunk", err)
	}

	return &wavDecoder{
		src:            src,
		format:         Format{SampleRate: int(sampleRate), Channels: int(channels)},
		bytesPerSample: int(bitsPerSample) / 8,
		dataOffset:     dataOffset,
	}, nil
}

func (d *wavDecoder) Format() Format { return d.format }

func (d *wavDecoder) ReadFrames(buf []float32) (int, error) {
	need := len(buf) * d.bytesPerSample
	if cap(d.scratch) < need {
		d.scratch = make([]byte, need)
	}
	raw := d.scratch[:need]

	read, err := io.ReadFull(d.src, raw)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, perrors.NewMedia("reading wav samples", err)
	}

	n := read / d.bytesPerSample
	maxVal := float32(int64(1) << (d.bytesPerSample*8 - 1))
	for i := 0; i < n; i++ {
		off := i * d.bytesPerSample
		var v int32
		switch d.bytesPerSample {
		case 2:
			v = int32(int16(binary.LittleEndian.Uint16(raw[off : off+2])))
		case 3:
			v = int32(raw[off]) | int32(raw[off+1])<<8 | int32(int8(raw[off+2]))<<16
		default:
			v = int32(binary.LittleEndian.Uint32(raw[off : off+4]))
		}
		buf[i] = float32(v) / maxVal
	}

	if read < need {
		return n, io.EOF
	}
	return n, nil
}

// SeekFrame seeks to an exact sample frame. PCM data is fixed-width, so this
// is a direct byte-offset seek, unlike the compressed codecs.
func (d *wavDecoder) SeekFrame(frame int64) error {
	bytesPerFrame := int64(d.bytesPerSample * d.format.Channels)
	target := d.dataOffset + frame*bytesPerFrame
	if _, err := d.src.Seek(target, io.SeekStart); err != nil {
		return perrors.NewMedia("seeking wav stream", err)
	}
	return nil
}

func (d *wavDecoder) Close() error {
	if closer, ok := d.src.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
