package decode

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func buildWAV(t *testing.T, channels, sampleRate, bitsPerSample int, samples []int16) []byte {
	t.Helper()
	dataBytes := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dataBytes[i*2:], uint16(s))
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(dataBytes)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	byteRate := sampleRate * channels * bitsPerSample / 8
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	blockAlign := channels * bitsPerSample / 8
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(dataBytes)))
	buf.Write(dataBytes)

	return buf.Bytes()
}

func TestWAVDecoderRoundTrip(t *testing.T) {
	samples := []int16{0, 16384, -16384, 32767, -32768, 0}
	raw := buildWAV(t, 2, 44100, 16, samples)

	dec, err := newWAVDecoder(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("newWAVDecoder: %v", err)
	}
	defer dec.Close()

	if f := dec.Format(); f.SampleRate != 44100 || f.Channels != 2 {
		t.Errorf("unexpected format: %+v", f)
	}

	buf := make([]float32, len(samples))
	n, err := dec.ReadFrames(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("ReadFrames: %v", err)
	}
	if n != len(samples) {
		t.Fatalf("n = %d, want %d", n, len(samples))
	}

	for i, s := range samples {
		want := float32(s) / 32768.0
		if diff := buf[i] - want; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("sample %d = %v, want %v", i, buf[i], want)
		}
	}
}

func TestWAVDecoderDefaultsToMonoWhenChannelsOmitted(t *testing.T) {
	// A fmt chunk with channels=0 is malformed in practice, but the decoder
	// should still default rather than divide by zero downstream.
	raw := buildWAV(t, 0, 48000, 16, []int16{100, -100})
	dec, err := newWAVDecoder(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("newWAVDecoder: %v", err)
	}
	defer dec.Close()
	if dec.Format().Channels != 1 {
		t.Errorf("Channels = %d, want 1", dec.Format().Channels)
	}
}
