package decode

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder for image.Decode

	"github.com/go-flac/flacvorbis"
	flacpkg "github.com/go-flac/go-flac"
	"github.com/nfnt/resize"

	"pleezer/internal/perrors"
)

// coverThumbSize bounds the image nfnt/resize hashes for CoverIDFromFLAC.
// User-uploaded FLACs occasionally embed multi-megapixel cover art;
// resizing to a small thumbnail before hashing keeps probing cheap and
// still yields a stable identifier for repeated plays of the same file.
const coverThumbSize = 64

// TagFallback holds the title/artist a FLAC's VORBIS_COMMENT block
// supplies, used only when the gateway's TrackMeta leaves them blank
// (common for user-uploaded tracks).
type TagFallback struct {
	Title  string
	Artist string
}

// TagsFromFLAC probes a FLAC file's VORBIS_COMMENT block for TITLE/ARTIST
// tags. It returns a zero TagFallback with no error if the file carries no
// comment block or neither tag is set. data is the whole FLAC file; callers
// read it from the AudioFile (decrypted, if the track is ciphered) before
// probing, since go-flac parses in-memory rather than from a stream.
func TagsFromFLAC(data []byte) (TagFallback, error) {
	f, err := flacpkg.ParseBytes(data)
	if err != nil {
		return TagFallback{}, perrors.NewMedia("parsing flac file for tag probe", err)
	}

	var out TagFallback
	for _, block := range f.Meta {
		if block.Type != flacpkg.VorbisComment {
			continue
		}
		comment, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			continue
		}
		if v, err := comment.Get(flacvorbis.FIELD_TITLE); err == nil && len(v) > 0 {
			out.Title = v[0]
		}
		if v, err := comment.Get(flacvorbis.FIELD_ARTIST); err == nil && len(v) > 0 {
			out.Artist = v[0]
		}
	}
	return out, nil
}

// CoverIDFromFLAC probes a FLAC file's PICTURE metadata block for a cover
// identifier when the gateway's TrackMeta omitted cover_id (user uploads
// commonly lack it). It returns "" with no error if the file has no picture
// block; the identifier is the MD5 of a small thumbnail re-encode of the
// embedded image (or of the raw image bytes when they do not decode; see
// thumbnailForHash), giving the same stable cover_id for repeated plays of
// the same file. data is the
// whole FLAC file, as for TagsFromFLAC.
func CoverIDFromFLAC(data []byte) (string, error) {
	f, err := flacpkg.ParseBytes(data)
	if err != nil {
		return "", perrors.NewMedia("parsing flac file for cover probe", err)
	}

	for _, block := range f.Meta {
		if block.Type != flacpkg.Picture {
			continue
		}
		imageData, ok := extractPictureBytes(block.Data)
		if !ok {
			continue
		}
		sum := md5.Sum(thumbnailForHash(imageData))
		return hex.EncodeToString(sum[:]), nil
	}
	return "", nil
}

// thumbnailForHash decodes and downsizes img to a small fixed thumbnail
// before hashing; embedded cover art can run several megabytes, and the
// full-resolution bytes aren't needed just to derive a stable identifier.
// Falls back to the original bytes if they don't decode as an image.
func thumbnailForHash(img []byte) []byte {
	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return img
	}
	thumb := resize.Thumbnail(coverThumbSize, coverThumbSize, decoded, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return img
	}
	return buf.Bytes()
}

// extractPictureBytes parses the big-endian FLAC PICTURE block layout
// (picture type, MIME length+string, description length+string, width,
// height, color depth, color count, data length, data) far enough to pull
// out the trailing image bytes.
func extractPictureBytes(data []byte) ([]byte, bool) {
	pos := 4 // picture type
	if len(data) < pos+4 {
		return nil, false
	}
	mimeLen := int(binary.BigEndian.Uint32(data[pos:]))
	pos += 4 + mimeLen

	if len(data) < pos+4 {
		return nil, false
	}
	descLen := int(binary.BigEndian.Uint32(data[pos:]))
	pos += 4 + descLen

	pos += 4 + 4 + 4 + 4 // width, height, color depth, color count
	if len(data) < pos+4 {
		return nil, false
	}
	dataLen := int(binary.BigEndian.Uint32(data[pos:]))
	pos += 4

	if len(data) < pos+dataLen {
		return nil, false
	}
	return data[pos : pos+dataLen], true
}
