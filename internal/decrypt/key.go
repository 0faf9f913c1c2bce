// Package decrypt implements spec.md §4.3's stripe decryption: Blowfish-CBC
// applied to every third 2048-byte block of an otherwise-plaintext byte
// stream. A one-shot file-to-file decrypt is turned into a seekable stream
// transform so it can sit between an AudioFile and a demux/decode stage.
package decrypt

import (
	"crypto/md5"
	"encoding/hex"
)

// SecretSize is the length of the per-installation secret XORed into the
// MD5-derived key. It is out-of-band per spec.md §9 — pleezer never bakes
// in Deezer's real value, the caller supplies it (e.g. loaded from an
// operator-provided file alongside secrets.toml).
const SecretSize = 16

// GenerateKey derives the per-track Blowfish key: MD5(trackIDDecimal)
// hex-encoded, XORed stripe-wise against secret (spec.md §3, "DecryptedReader").
func GenerateKey(trackIDDecimal string, secret [SecretSize]byte) [SecretSize]byte {
	sum := md5.Sum([]byte(trackIDDecimal))
	hexSum := hex.EncodeToString(sum[:]) // 32 hex characters

	var key [SecretSize]byte
	for i := 0; i < SecretSize; i++ {
		key[i] = hexSum[i] ^ hexSum[i+SecretSize] ^ secret[i]
	}
	return key
}
