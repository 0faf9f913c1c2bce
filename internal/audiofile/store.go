package audiofile

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ramStore is a growable in-memory buffer bounded by maxBytes (0 = unbounded,
// used only when MaxRAM is explicitly 0 meaning "no RAM cap configured").
type ramStore struct {
	mu       sync.Mutex
	buf      []byte
	maxBytes int64
}

func newRAMStore(maxBytes int64) *ramStore {
	return &ramStore{maxBytes: maxBytes}
}

func (s *ramStore) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := off + int64(len(p))
	if s.maxBytes > 0 && end > s.maxBytes {
		return 0, fmt.Errorf("audiofile: RAM buffer exceeds max-ram limit (%d bytes)", s.maxBytes)
	}
	if end > int64(len(s.buf)) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[off:end], p)
	return len(p), nil
}

func (s *ramStore) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if off >= int64(len(s.buf)) {
		return 0, io.EOF
	}
	n := copy(p, s.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *ramStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
	return nil
}

// tempFileStore spills the download to disk, supporting arbitrary seek
// within the downloaded region (spec.md §4.4). The file is removed on
// Close so no partial download lingers on disk.
type tempFileStore struct {
	f *os.File
}

func newTempFileStore() (*tempFileStore, error) {
	f, err := os.CreateTemp("", "pleezer-track-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("audiofile: create temp file: %w", err)
	}
	return &tempFileStore{f: f}, nil
}

func (s *tempFileStore) WriteAt(p []byte, off int64) (int, error) {
	return s.f.WriteAt(p, off)
}

func (s *tempFileStore) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *tempFileStore) Close() error {
	name := s.f.Name()
	err := s.f.Close()
	os.Remove(name) // temp files are deleted on drop (spec.md §5: cancellation)
	return err
}
