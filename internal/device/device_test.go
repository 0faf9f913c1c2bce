package device

import "testing"

func TestStreamMixesStereoInterleavedSamples(t *testing.T) {
	d := &Device{pending: make(chan *chunk, 1)}
	done := make(chan struct{})
	d.pending <- &chunk{samples: []float32{0.1, 0.2, 0.3, 0.4}, channels: 2, done: done}

	out := make([][2]float64, 2)
	n, ok := d.Stream(out)
	if !ok || n != 2 {
		t.Fatalf("Stream() = (%d, %v), want (2, true)", n, ok)
	}
	if out[0][0] != float64(float32(0.1)) || out[0][1] != float64(float32(0.2)) {
		t.Errorf("frame 0 = %v, want (0.1, 0.2)", out[0])
	}
	if out[1][0] != float64(float32(0.3)) || out[1][1] != float64(float32(0.4)) {
		t.Errorf("frame 1 = %v, want (0.3, 0.4)", out[1])
	}
	select {
	case <-done:
	default:
		t.Error("chunk.done was not closed after being fully consumed")
	}
}

func TestStreamDuplicatesMonoToBothChannels(t *testing.T) {
	d := &Device{pending: make(chan *chunk, 1)}
	done := make(chan struct{})
	d.pending <- &chunk{samples: []float32{0.5, -0.5}, channels: 1, done: done}

	out := make([][2]float64, 2)
	n, ok := d.Stream(out)
	if !ok || n != 2 {
		t.Fatalf("Stream() = (%d, %v), want (2, true)", n, ok)
	}
	if out[0][0] != out[0][1] || out[1][0] != out[1][1] {
		t.Errorf("mono samples should duplicate to both channels, got %v", out)
	}
}

func TestStreamSpansMultipleChunks(t *testing.T) {
	d := &Device{pending: make(chan *chunk, 2)}
	done1, done2 := make(chan struct{}), make(chan struct{})
	d.pending <- &chunk{samples: []float32{0.1, 0.1}, channels: 1, done: done1}
	d.pending <- &chunk{samples: []float32{0.2, 0.2}, channels: 1, done: done2}

	out := make([][2]float64, 4)
	n, ok := d.Stream(out)
	if !ok || n != 4 {
		t.Fatalf("Stream() = (%d, %v), want (4, true)", n, ok)
	}
	select {
	case <-done1:
	default:
		t.Error("first chunk was not drained")
	}
	select {
	case <-done2:
	default:
		t.Error("second chunk was not drained")
	}
}

func TestErrIsAlwaysNil(t *testing.T) {
	d := New()
	if err := d.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}
