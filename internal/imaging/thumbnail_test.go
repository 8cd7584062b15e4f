package imaging

import (
	"testing"

	"github.com/h2non/bimg"
)

// 2x1 white PNG.
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x02, 0x00, 0x00, 0x00, 0x7b, 0x40, 0xe8, 0xdd, 0x00, 0x00, 0x00,
	0x0b, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0xf8, 0x0f, 0x06, 0x00,
	0x14, 0xf2, 0x05, 0xfb, 0xa4, 0x0d, 0x7c, 0x5e, 0x00, 0x00, 0x00, 0x00,
	0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func TestThumbnailRejectsNonImage(t *testing.T) {
	if _, err := New().Thumbnail([]byte("%PDF-1.4 not an image")); err == nil {
		t.Fatal("Thumbnail of a PDF succeeded")
	}
}

func TestThumbnailProducesJPEG(t *testing.T) {
	if bimg.DetermineImageType(tinyPNG) != bimg.PNG {
		t.Skip("libvips build without PNG support")
	}
	out, err := New().Thumbnail(tinyPNG)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if got := bimg.DetermineImageType(out); got != bimg.JPEG {
		t.Errorf("thumbnail type = %v, want JPEG", bimg.ImageTypeName(got))
	}
	size, err := bimg.NewImage(out).Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size.Width != 2 {
		t.Errorf("width = %d, want 2 (small images are not enlarged)", size.Width)
	}
}
