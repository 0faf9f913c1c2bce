package decrypt

import (
	"bytes"
	"crypto/cipher"
	"io"
	"testing"

	"golang.org/x/crypto/blowfish"
)

// memSource is a minimal in-memory Source for tests.
type memSource struct {
	*bytes.Reader
	size int64
}

func newMemSource(b []byte) *memSource {
	return &memSource{Reader: bytes.NewReader(b), size: int64(len(b))}
}

func (m *memSource) Len() (int64, bool) { return m.size, true }

func testKey() [SecretSize]byte {
	var k [SecretSize]byte
	for i := range k {
		k[i] = byte(i * 7)
	}
	return k
}

// encryptStripe re-encrypts plaintext the same way the CDN would have
// encrypted it: every Stripe-th full BlockSize block, in place.
func encryptStripe(t *testing.T, plain []byte, key [SecretSize]byte) []byte {
	t.Helper()
	out := append([]byte(nil), plain...)
	for off := 0; off+BlockSize <= len(out); off += BlockSize {
		if (off/BlockSize)%Stripe != 0 {
			continue
		}
		block, err := blowfish.NewCipher(key[:])
		if err != nil {
			t.Fatal(err)
		}
		mode := cipher.NewCBCEncrypter(block, iv[:])
		mode.CryptBlocks(out[off:off+BlockSize], out[off:off+BlockSize])
	}
	return out
}

func TestRoundTrip(t *testing.T) {
	key := testKey()

	sizes := []int{0, 100, BlockSize, BlockSize*3 + 500, BlockSize * 9}
	for _, size := range sizes {
		plain := make([]byte, size)
		for i := range plain {
			plain[i] = byte(i)
		}

		encrypted := encryptStripe(t, plain, key)

		r := NewReader(newMemSource(encrypted), key)
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("size %d: ReadAll: %v", size, err)
		}
		if !bytes.Equal(got, plain) {
			t.Errorf("size %d: round trip mismatch", size)
		}
	}
}

func TestSeekConsistency(t *testing.T) {
	key := testKey()
	plain := make([]byte, BlockSize*6)
	for i := range plain {
		plain[i] = byte(i % 251)
	}
	encrypted := encryptStripe(t, plain, key)

	positions := []int64{0, 1, BlockSize - 1, BlockSize, BlockSize + 17, BlockSize * 3, int64(len(plain)) - 10}

	for _, p1 := range positions {
		for _, p2 := range positions {
			if p2 < p1 {
				continue
			}
			r1 := NewReader(newMemSource(encrypted), key)
			if _, err := r1.Seek(p1, io.SeekStart); err != nil {
				t.Fatal(err)
			}
			if _, err := r1.Seek(p2, io.SeekStart); err != nil {
				t.Fatal(err)
			}
			got1, _ := io.ReadAll(r1)

			r2 := NewReader(newMemSource(encrypted), key)
			if _, err := r2.Seek(p2, io.SeekStart); err != nil {
				t.Fatal(err)
			}
			got2, _ := io.ReadAll(r2)

			if !bytes.Equal(got1, got2) {
				t.Errorf("seek(%d) then seek(%d) != direct seek(%d)", p1, p2, p2)
			}
			want := plain[p2:]
			if !bytes.Equal(got1, want) {
				t.Errorf("seek(%d) then seek(%d): got %d bytes, want %d matching plaintext tail", p1, p2, len(got1), len(want))
			}
		}
	}
}

func TestGenerateKeyDeterministic(t *testing.T) {
	secret := testKey()
	k1 := GenerateKey("123456789", secret)
	k2 := GenerateKey("123456789", secret)
	if k1 != k2 {
		t.Error("GenerateKey must be deterministic for the same track id and secret")
	}

	k3 := GenerateKey("987654321", secret)
	if k1 == k3 {
		t.Error("different track ids should (overwhelmingly likely) produce different keys")
	}
}
