package images

import (
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/clone"
	"github.com/chewxy/math32"
)

// Painter is a mutable display surface that overlays can be composited onto.
type Painter interface {
	// Blend composites c over the pixel at (x, y) with the given opacity in [0, 1].
	// Pixels outside the surface are ignored.
	Blend(x, y int, c color.NRGBA, opacity float32)
	// Bounds returns the paintable region of the surface.
	Bounds() Rect
}

// Surface is an RGBA composite surface.
//
// A Surface is owned by a single pipeline run; it is not safe for concurrent
// writers.
type Surface struct {
	img *image.RGBA
}

// NewSurface creates a surface holding a private copy of src.
//
// Arguments:
//   - src: The background image.
//
// Returns:
//   - *Surface: A surface whose origin is (0, 0) and whose size matches src.
func NewSurface(src image.Image) *Surface {
	rgba := clone.AsRGBA(src)
	if rgba.Rect.Min != (image.Point{}) {
		shifted := image.NewRGBA(image.Rect(0, 0, rgba.Rect.Dx(), rgba.Rect.Dy()))
		for y := 0; y < rgba.Rect.Dy(); y++ {
			src := rgba.Pix[y*rgba.Stride : y*rgba.Stride+4*rgba.Rect.Dx()]
			copy(shifted.Pix[y*shifted.Stride:], src)
		}
		rgba = shifted
	}
	return &Surface{img: rgba}
}

// Image returns the composited image.
func (s *Surface) Image() *image.RGBA {
	return s.img
}

// Bounds returns the paintable region of the surface.
func (s *Surface) Bounds() Rect {
	return FromRectangle(s.img.Rect)
}

// Blend composites c over the pixel at (x, y) using source-over blending.
//
// The effective alpha is opacity scaled by the alpha of c.
func (s *Surface) Blend(x, y int, c color.NRGBA, opacity float32) {
	if !(image.Point{X: x, Y: y}.In(s.img.Rect)) {
		return
	}
	a := clamp01(opacity) * float32(c.A) / 255
	if a == 0 {
		return
	}
	i := s.img.PixOffset(x, y)
	px := s.img.Pix[i : i+4 : i+4]
	// image.RGBA stores premultiplied values.
	px[0] = toByte(float32(c.R)*a + float32(px[0])*(1-a))
	px[1] = toByte(float32(c.G)*a + float32(px[1])*(1-a))
	px[2] = toByte(float32(c.B)*a + float32(px[2])*(1-a))
	px[3] = toByte(255*a + float32(px[3])*(1-a))
}

// StrokeRect draws an outline of r with the given thickness, inside r.
//
// Arguments:
//   - r: The rectangle to outline.
//   - c: The stroke colour.
//   - thickness: The stroke width in pixels.
func (s *Surface) StrokeRect(r Rect, c color.NRGBA, thickness int) {
	if r.Empty() || thickness <= 0 {
		return
	}
	for y := r.Y1; y < r.Y2; y++ {
		for x := r.X1; x < r.X2; x++ {
			if x-r.X1 < thickness || r.X2-1-x < thickness ||
				y-r.Y1 < thickness || r.Y2-1-y < thickness {
				s.Blend(x, y, c, 1)
			}
		}
	}
}

func clamp01(v float32) float32 {
	if !(v > 0) {
		return 0
	}
	return math32.Min(v, 1)
}

func toByte(v float32) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math32.Round(v))
}
