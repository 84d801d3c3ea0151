// Package images - Raster primitives for the cascade: regions, surfaces, volumes and masks.
package images

import "image"

// Rect is an integer pixel region.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 int
}

// Dx returns the width of the region, zero when inverted.
func (r Rect) Dx() int {
	return max(0, r.X2-r.X1)
}

// Dy returns the height of the region, zero when inverted.
func (r Rect) Dy() int {
	return max(0, r.Y2-r.Y1)
}

// Empty reports whether the region covers no pixels.
func (r Rect) Empty() bool {
	return r.Dx() == 0 || r.Dy() == 0
}

// Area returns the number of pixels covered by the region.
func (r Rect) Area() int {
	return r.Dx() * r.Dy()
}

// Intersect returns the largest region contained by both r and o. If the two
// regions do not overlap the zero Rect is returned.
//
// Arguments:
//   - o: The other region.
//
// Returns:
//   - Rect: The overlapping region.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
		X2: min(r.X2, o.X2),
		Y2: min(r.Y2, o.Y2),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

// Rectangle converts the region to an image.Rectangle.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// FromRectangle converts an image.Rectangle to a Rect.
func FromRectangle(r image.Rectangle) Rect {
	r = r.Canon()
	return Rect{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}
