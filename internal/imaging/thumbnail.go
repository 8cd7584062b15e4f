// Package imaging produces JPEG thumbnails for PHOTO uploads using
// libvips through bimg.
package imaging

import (
	"fmt"

	"github.com/h2non/bimg"
)

// DefaultWidth is the thumbnail width in pixels.
const DefaultWidth = 320

// Thumbnailer converts an uploaded image into a small JPEG.
type Thumbnailer struct {
	Width   int
	Quality int
}

func New() *Thumbnailer {
	return &Thumbnailer{Width: DefaultWidth, Quality: 80}
}

// Thumbnail scales data down to t.Width keeping the aspect ratio.
// Images narrower than the target are re-encoded but not enlarged.
func (t *Thumbnailer) Thumbnail(data []byte) ([]byte, error) {
	img := bimg.NewImage(data)
	size, err := img.Size()
	if err != nil {
		return nil, fmt.Errorf("read image size: %w", err)
	}

	opts := bimg.Options{
		Type:          bimg.JPEG,
		Quality:       t.Quality,
		StripMetadata: true,
	}
	if size.Width > t.Width {
		opts.Width = t.Width
	}

	out, err := img.Process(opts)
	if err != nil {
		return nil, fmt.Errorf("create thumbnail: %w", err)
	}
	return out, nil
}
