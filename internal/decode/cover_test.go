package decode

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

// buildPictureBlockData constructs the big-endian FLAC PICTURE block body
// extractPictureBytes parses, wrapping imageData as a JPEG cover picture.
func buildPictureBlockData(mime string, imageData []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(3)) // picture type: cover (front)

	binary.Write(&buf, binary.BigEndian, uint32(len(mime)))
	buf.WriteString(mime)

	binary.Write(&buf, binary.BigEndian, uint32(0)) // description length

	binary.Write(&buf, binary.BigEndian, uint32(100)) // width
	binary.Write(&buf, binary.BigEndian, uint32(100)) // height
	binary.Write(&buf, binary.BigEndian, uint32(24))  // color depth
	binary.Write(&buf, binary.BigEndian, uint32(0))   // color count (non-indexed)

	binary.Write(&buf, binary.BigEndian, uint32(len(imageData)))
	buf.Write(imageData)

	return buf.Bytes()
}

func solidJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encoding test jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestExtractPictureBytesRoundTrip(t *testing.T) {
	img := solidJPEG(t, 200, 200)
	block := buildPictureBlockData("image/jpeg", img)

	got, ok := extractPictureBytes(block)
	if !ok {
		t.Fatal("extractPictureBytes: ok = false, want true")
	}
	if !bytes.Equal(got, img) {
		t.Error("extractPictureBytes did not round-trip the original image bytes")
	}
}

func TestExtractPictureBytesTruncatedBlockFails(t *testing.T) {
	block := buildPictureBlockData("image/jpeg", solidJPEG(t, 10, 10))
	_, ok := extractPictureBytes(block[:len(block)-5])
	if ok {
		t.Error("extractPictureBytes: ok = true for a truncated block, want false")
	}
}

func TestThumbnailForHashIsStableAndSmaller(t *testing.T) {
	img := solidJPEG(t, 1000, 1000)
	thumb1 := thumbnailForHash(img)
	thumb2 := thumbnailForHash(img)

	if !bytes.Equal(thumb1, thumb2) {
		t.Error("thumbnailForHash is not deterministic across calls on identical input")
	}
	if len(thumb1) >= len(img) {
		t.Errorf("thumbnail (%d bytes) is not smaller than source image (%d bytes)", len(thumb1), len(img))
	}
}

func TestThumbnailForHashFallsBackOnUndecodableInput(t *testing.T) {
	garbage := []byte("not an image")
	if got := thumbnailForHash(garbage); !bytes.Equal(got, garbage) {
		t.Error("thumbnailForHash should return the input unchanged when it isn't a decodable image")
	}
}
