package images

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.Set(1, 1, color.NRGBA{R: 9, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	img, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())

	_, err = Decode([]byte("definitely not an image"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = Decode(nil)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestCrop(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	out := Crop(src, Rect{X1: 8, Y1: 8, X2: 20, Y2: 20})
	require.NotNil(t, out)
	assert.Equal(t, 2, out.Bounds().Dx())
	assert.Equal(t, 2, out.Bounds().Dy())

	assert.Nil(t, Crop(src, Rect{X1: 20, Y1: 20, X2: 30, Y2: 30}))
}

func TestPatch_Grayscale(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			src.Set(x, y, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
		}
	}
	p := Patch(src, Rect{X2: 32, Y2: 32}, 16)
	require.Len(t, p, 256)
	for _, v := range p {
		assert.InDelta(t, 1.0/3.0, v, 5e-3)
	}

	assert.Nil(t, Patch(src, Rect{X1: 5, Y1: 5, X2: 5, Y2: 9}, 16))
}
