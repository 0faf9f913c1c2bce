package audiofile

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenAndReadRAM(t *testing.T) {
	payload := strings.Repeat("abcdefgh", 4096) // 32KiB
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	f, err := Open(context.Background(), srv.Client(), srv.URL, nil, Options{Backing: BackingRAM, MaxRAM: 1 << 20})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	r := f.NewReader()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != payload {
		t.Errorf("content mismatch: got %d bytes, want %d", len(got), len(payload))
	}

	deadline := time.Now().Add(time.Second)
	for !f.IsComplete() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !f.IsComplete() {
		t.Error("expected download to complete")
	}
}

func TestOpenAndReadTempFile(t *testing.T) {
	payload := strings.Repeat("z", 10000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	f, err := Open(context.Background(), srv.Client(), srv.URL, nil, Options{Backing: BackingTempFile})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	r := f.NewReader()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != payload {
		t.Error("content mismatch reading temp-file-backed AudioFile")
	}
}

func TestZeroByteDownloadFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Write nothing, 200 OK.
	}))
	defer srv.Close()

	f, err := Open(context.Background(), srv.Client(), srv.URL, nil, Options{Backing: BackingTempFile})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	r := f.NewReader()
	_, err = r.Read(make([]byte, 10))
	if err == nil {
		t.Error("expected error reading a 0-byte download")
	}
}

func TestSeekWithinDownloadedRegion(t *testing.T) {
	payload := strings.Repeat("0123456789", 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	f, err := Open(context.Background(), srv.Client(), srv.URL, nil, Options{Backing: BackingTempFile})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !f.IsComplete() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	r := f.NewReader()
	if _, err := r.Seek(5000, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([]byte, 10)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("ReadFull after seek: %v", err)
	}
	if string(buf) != payload[5000:5010] {
		t.Errorf("got %q, want %q", buf, payload[5000:5010])
	}
}
