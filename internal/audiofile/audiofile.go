// Package audiofile implements spec.md §4.4's AudioFile: a seekable byte
// source fed by a background HTTP download, backed by either a bounded RAM
// buffer or a spilled temp file. A blocking download-to-file loop is turned
// into a concurrent producer/consumer the decoder can read from while the
// download is still in flight.
package audiofile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"pleezer/internal/perrors"
)

// DefaultPrefetch is the default read-ahead target before playback may start.
const DefaultPrefetch = 32 * 1024

// DefaultReadTimeout bounds how long Read waits for data to arrive.
const DefaultReadTimeout = 5 * time.Second

// Backing selects where downloaded bytes are buffered.
type Backing int

const (
	// BackingAuto picks RAM up to MaxRAM, spilling to a temp file beyond it.
	BackingAuto Backing = iota
	BackingRAM
	BackingTempFile
)

// Options configures a File.
type Options struct {
	Backing     Backing
	MaxRAM      int64 // bytes; with BackingAuto 0 disables the RAM backing, with BackingRAM 0 means no limit
	ReadTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	return o
}

// File is a byte source downloaded from url, buffered per Options. File
// itself has no Read or Seek; the reader returned by NewReader does, and
// satisfies decrypt.Source so a decrypt.Reader can wrap it directly.
type File struct {
	mu   sync.Mutex
	cond *sync.Cond

	store store // ram or temp-file backing

	size     int64 // -1 if unknown until download completes
	written  int64 // bytes committed to store so far
	complete bool
	err      error // terminal download error, if any

	readTimeout time.Duration
	cancel      context.CancelFunc
}

type store interface {
	io.ReaderAt
	WriteAt(p []byte, off int64) (int, error)
	Close() error
}

// Open starts downloading url in the background and returns a File whose
// NewReader views can be read and seeked concurrently with the download. contentLength may be -1 if
// unknown ahead of time (e.g. chunked transfer).
func Open(ctx context.Context, client *http.Client, url string, headers map[string]string, opts Options) (*File, error) {
	opts = opts.withDefaults()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, perrors.NewNetwork("build download request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, perrors.NewNetwork("download request failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, perrors.NewMedia(fmt.Sprintf("download failed with status %d", resp.StatusCode), nil)
	}

	dlCtx, cancel := context.WithCancel(ctx)

	f := &File{
		size:        resp.ContentLength,
		readTimeout: opts.ReadTimeout,
		cancel:      cancel,
	}
	f.cond = sync.NewCond(&f.mu)

	st, err := newStore(opts, resp.ContentLength)
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}
	f.store = st

	go f.download(dlCtx, resp.Body)

	return f, nil
}

func newStore(opts Options, contentLength int64) (store, error) {
	useRAM := opts.Backing == BackingRAM
	if opts.Backing == BackingAuto {
		useRAM = opts.MaxRAM > 0 && contentLength >= 0 && contentLength <= opts.MaxRAM
	}
	if useRAM {
		return newRAMStore(opts.MaxRAM), nil
	}
	return newTempFileStore()
}

func (f *File) download(ctx context.Context, body io.ReadCloser) {
	defer body.Close()

	buf := make([]byte, 64*1024)
	var total int64
	for {
		select {
		case <-ctx.Done():
			f.finish(total, ctx.Err())
			return
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := f.store.WriteAt(buf[:n], total); werr != nil {
				f.finish(total, perrors.NewMedia("write to buffer failed", werr))
				return
			}
			total += int64(n)

			f.mu.Lock()
			f.written = total
			f.cond.Broadcast()
			f.mu.Unlock()
		}

		if err == io.EOF {
			if total == 0 {
				// spec.md §3/§4.4: 0-byte downloads are always an error.
				f.finish(total, perrors.NewMedia("download returned 0 bytes", nil))
				return
			}
			f.finish(total, nil)
			return
		}
		if err != nil {
			f.finish(total, perrors.NewNetwork("download read failed", err))
			return
		}
	}
}

func (f *File) finish(total int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = total
	if f.size < 0 {
		f.size = total
	}
	f.complete = true
	f.err = err
	f.cond.Broadcast()
}

// Len reports the known total size, if any (spec.md §3: AudioFile.len?).
func (f *File) Len() (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.size < 0 {
		return 0, false
	}
	return f.size, true
}

// IsComplete reports whether the download has finished (successfully or not).
func (f *File) IsComplete() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.complete
}

// Close releases the backing store and cancels any in-flight download.
func (f *File) Close() error {
	f.cancel()
	return f.store.Close()
}

// reader is a stateful view over File implementing decrypt.Source.
type reader struct {
	f   *File
	pos int64
}

// NewReader returns an io.ReadSeeker view starting at offset 0. Multiple
// readers may be created; each tracks its own position.
func (f *File) NewReader() *reader { return &reader{f: f} }

func (r *reader) Len() (int64, bool) { return r.f.Len() }

func (r *reader) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.pos + offset
	case io.SeekEnd:
		size, known := r.f.Len()
		if !known {
			return 0, fmt.Errorf("audiofile: seek from end requires known length")
		}
		target = size + offset
	default:
		return 0, fmt.Errorf("audiofile: invalid whence %d", whence)
	}
	if target < 0 {
		return 0, fmt.Errorf("audiofile: negative seek position %d", target)
	}

	// seek is only permitted into already-downloaded regions, or it blocks
	// until the write head reaches it (spec.md §4.4); we don't validate here,
	// Read enforces the wait/timeout.
	r.pos = target
	return target, nil
}

// Read blocks up to the configured timeout waiting for bytes to become
// available at the current position, per spec.md §4.4.
func (r *reader) Read(p []byte) (int, error) {
	f := r.f
	deadline := time.Now().Add(f.readTimeout)

	f.mu.Lock()
	for r.pos >= f.written && !f.complete {
		if time.Now().After(deadline) {
			f.mu.Unlock()
			return 0, perrors.NewMedia("read timed out waiting for download data", nil)
		}
		waitTimer := time.AfterFunc(f.readTimeout, func() {
			f.mu.Lock()
			f.cond.Broadcast()
			f.mu.Unlock()
		})
		f.cond.Wait()
		waitTimer.Stop()
	}

	if r.pos >= f.written && f.complete {
		err := f.err
		f.mu.Unlock()
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	available := f.written
	downloadErr := f.err
	f.mu.Unlock()

	toRead := available - r.pos
	if int64(len(p)) < toRead {
		toRead = int64(len(p))
	}
	if toRead <= 0 {
		if downloadErr != nil {
			return 0, downloadErr
		}
		return 0, io.EOF
	}

	n, err := f.store.ReadAt(p[:toRead], r.pos)
	r.pos += int64(n)
	if err != nil && err != io.EOF {
		return n, err
	}
	return n, nil
}
