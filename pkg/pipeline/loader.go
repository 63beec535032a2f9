package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// Decode turns an uploaded byte buffer into a canonical NRGBA bitmap.
// The primary path handles the common upload containers (png/jpeg/gif); if that
// fails the extended codecs from x/image are tried one by one before giving up.
func Decode(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrDecode)
	}
	if img, err := imaging.Decode(bytes.NewReader(data)); err == nil {
		return imaging.Clone(img), nil
	}
	decoders := []func(io.Reader) (image.Image, error){bmp.Decode, tiff.Decode, webp.Decode}
	for _, dec := range decoders {
		if img, err := dec(bytes.NewReader(data)); err == nil {
			return imaging.Clone(img), nil
		}
	}
	return nil, fmt.Errorf("%w: unsupported or corrupt image data", ErrDecode)
}
