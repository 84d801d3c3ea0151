package images

import (
	"bytes"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// ErrUnsupportedFormat is returned when the input bytes are not a decodable image.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Decode sniffs and decodes an encoded raster.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: ErrUnsupportedFormat for non-image content, or the decoder error.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrUnsupportedFormat, "empty image data")
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "detected %s", mtype.String())
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", mtype.String())
	}
	return img, nil
}

// Crop cuts region r out of img at full resolution.
//
// Returns nil when r does not overlap img.
func Crop(img image.Image, r Rect) *image.NRGBA {
	clipped := r.Intersect(FromRectangle(img.Bounds()))
	if clipped.Empty() {
		return nil
	}
	return imaging.Crop(img, clipped.Rectangle())
}

// Patch crops r from img, downsamples it to size x size and converts it to a
// single grayscale channel in [0, 1] computed as (r+g+b)/(3*255).
//
// Arguments:
//   - img: The full resolution source raster.
//   - r: The region to sample.
//   - size: The side of the output patch.
//
// Returns:
//   - []float32: Row-major patch values, or nil when r is empty.
func Patch(img image.Image, r Rect, size int) []float32 {
	cropped := Crop(img, r)
	if cropped == nil || size <= 0 {
		return nil
	}
	small := imaging.Resize(cropped, size, size, imaging.Linear)

	out := make([]float32, size*size)
	for y := 0; y < size; y++ {
		row := small.Pix[y*small.Stride:]
		for x := 0; x < size; x++ {
			p := row[x*4 : x*4+3]
			out[y*size+x] = (float32(p[0]) + float32(p[1]) + float32(p[2])) / (3 * 255)
		}
	}
	return out
}
