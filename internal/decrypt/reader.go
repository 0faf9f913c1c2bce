package decrypt

import (
	"crypto/cipher"
	"fmt"
	"io"

	"golang.org/x/crypto/blowfish"
)

// BlockSize is the stripe unit: every Nth block of this size is encrypted.
const BlockSize = 2048

// Stripe is the block-index modulus: block i is encrypted iff i%Stripe==0.
const Stripe = 3

// iv is the fixed Blowfish-CBC initialization vector from spec.md §3/§4.3.
var iv = [8]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}

// Source is the byte-source interface DecryptedReader wraps: a seekable
// reader with an optional known length, matching spec.md §3's AudioFile
// (`read`, `seek`, `len?`, `is_complete`).
type Source interface {
	io.Reader
	io.Seeker
	// Len reports the known total length, if any.
	Len() (size int64, known bool)
}

// Reader exposes the decrypted byte stream of an encrypted Source. It
// implements io.Reader and io.Seeker with O(1) seek (spec.md §4.3: seeking
// aligns to the enclosing block and discards the prefix within it).
type Reader struct {
	src Source
	key [SecretSize]byte

	pos int64 // logical position == underlying position (decryption preserves length)
}

// NewReader wraps src, decrypting every Stripe-th full BlockSize block
// using key. key is produced by GenerateKey for the track being read.
func NewReader(src Source, key [SecretSize]byte) *Reader {
	return &Reader{src: src, key: key}
}

// Len passes through the source's known length; decryption never changes size.
func (r *Reader) Len() (int64, bool) { return r.src.Len() }

// Seek repositions the underlying source at the requested offset and
// records it; the next Read realigns to the containing block boundary and
// discards bytes before the offset. This keeps seeking O(1) modulo one block
// decrypt, as required by spec.md §4.3.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.pos + offset
	case io.SeekEnd:
		size, known := r.src.Len()
		if !known {
			return 0, fmt.Errorf("decrypt: seek from end requires a known length")
		}
		target = size + offset
	default:
		return 0, fmt.Errorf("decrypt: invalid whence %d", whence)
	}
	if target < 0 {
		return 0, fmt.Errorf("decrypt: negative seek position %d", target)
	}

	if _, err := r.src.Seek(target, io.SeekStart); err != nil {
		return 0, err
	}
	r.pos = target
	return target, nil
}

// Read decrypts block-aligned data covering [pos, pos+len(p)) and copies
// the requested sub-range into p. Blocks are decrypted in full (aligning
// reads to BlockSize boundaries) so a caller issuing unaligned reads still
// gets sample-accurate output; see spec.md invariant 2 (seek consistency).
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	blockStart := (r.pos / BlockSize) * BlockSize
	prefix := int(r.pos - blockStart)

	// Read enough whole blocks to cover prefix+len(p).
	need := prefix + len(p)
	numBlocks := (need + BlockSize - 1) / BlockSize
	buf := make([]byte, numBlocks*BlockSize)

	if _, err := r.src.Seek(blockStart, io.SeekStart); err != nil {
		return 0, err
	}

	n, readErr := io.ReadFull(r.src, buf)
	// A short final read is expected at end-of-stream; keep what we got.
	if readErr == io.ErrUnexpectedEOF || readErr == io.EOF {
		buf = buf[:n]
		readErr = nil
	} else if readErr != nil {
		return 0, readErr
	}

	r.decryptBlocks(buf, blockStart)

	avail := buf[prefix:]
	if len(avail) == 0 {
		// Restore position for the next call and signal EOF.
		r.src.Seek(r.pos, io.SeekStart)
		return 0, io.EOF
	}

	copied := copy(p, avail)
	r.pos += int64(copied)

	// Re-seek the underlying source to the logical position so concurrent
	// use (and the next Read's blockStart math) stays correct even though
	// we over-read full blocks above.
	if _, err := r.src.Seek(r.pos, io.SeekStart); err != nil {
		return copied, err
	}

	return copied, nil
}

// decryptBlocks decrypts, in place, every Stripe-th full BlockSize block of
// buf, where buf starts at absolute offset base and block indices are
// computed from base (spec.md §3/§4.3). A new cipher.Block is created per
// block: Blowfish-CBC state must not carry over between stripe blocks.
func (r *Reader) decryptBlocks(buf []byte, base int64) {
	firstBlockIndex := base / BlockSize

	for off := 0; off+BlockSize <= len(buf); off += BlockSize {
		blockIndex := firstBlockIndex + int64(off/BlockSize)
		if blockIndex%Stripe != 0 {
			continue
		}

		block, err := blowfish.NewCipher(r.key[:])
		if err != nil {
			// The key is always 16 bytes (within Blowfish's 4-56 byte range);
			// this cannot fail in practice.
			panic(fmt.Sprintf("decrypt: blowfish.NewCipher: %v", err))
		}
		mode := cipher.NewCBCDecrypter(block, iv[:])
		mode.CryptBlocks(buf[off:off+BlockSize], buf[off:off+BlockSize])
	}
	// A trailing partial block (len(buf)-off < BlockSize) is passthrough,
	// matching spec.md §4.3's "partial trailing block is passthrough".
}
