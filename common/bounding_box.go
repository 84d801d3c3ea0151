// Package common - Geometry shared by every stage of the detection cascade.
package common

import (
	"fmt"

	"github.com/chewxy/math32"
)

// BoundingBox represents a bounding box with its label, confidence, and coordinates.
//
// Coordinates are image-space pixels. A well-formed box satisfies X1 <= X2 and
// Y1 <= Y2; inverted boxes are tolerated and treated as zero-area.
type BoundingBox struct {
	Label          string
	ClassID        int
	Confidence     float32
	X1, Y1, X2, Y2 float32
}

// Boxed is implemented by anything that can be suppressed by NMS.
type Boxed interface {
	// Bounds returns the corner form of the value, with its confidence.
	Bounds() BoundingBox
}

// Bounds returns b itself.
func (b BoundingBox) Bounds() BoundingBox {
	return b
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("Object %s (confidence %f): (%f, %f), (%f, %f)",
		b.Label, b.Confidence, b.X1, b.Y1, b.X2, b.Y2)
}

// Width returns the horizontal extent of the box, never negative.
func (b BoundingBox) Width() float32 {
	return math32.Max(0, b.X2-b.X1)
}

// Height returns the vertical extent of the box, never negative.
func (b BoundingBox) Height() float32 {
	return math32.Max(0, b.Y2-b.Y1)
}

// Area calculates the area of the box.
//
// Degenerate and inverted boxes have an area of zero.
//
// Arguments:
//   - b: The box to measure.
//
// Returns:
//   - The area in square pixels as float32.
//
// @example
// box := BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 50}
// area := Area(box) // Returns 5000.0
func Area(b BoundingBox) float32 {
	return b.Width() * b.Height()
}

// IntersectionArea calculates the intersection area between two bounding boxes.
//
// Arguments:
//   - a: The first bounding box.
//   - b: The second bounding box.
//
// Returns:
//   - The area of intersection in pixels as float32.
//
// @example
// box1 := BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
// box2 := BoundingBox{X1: 50, Y1: 50, X2: 150, Y2: 150}
// area := IntersectionArea(box1, box2) // Returns 2500.0 (50x50 overlap)
func IntersectionArea(a, b BoundingBox) float32 {
	w := math32.Max(0, math32.Min(a.X2, b.X2)-math32.Max(a.X1, b.X1))
	h := math32.Max(0, math32.Min(a.Y2, b.Y2)-math32.Max(a.Y1, b.Y1))
	return w * h
}

// IoU calculates the Intersection over Union between two bounding boxes.
//
// This metric is used for Non-Maximum Suppression (NMS) to remove duplicate
// detections. The result is symmetric and bounded in [0, 1]. When the union is
// zero (two degenerate boxes) the IoU is defined as 0 rather than NaN.
//
// Arguments:
//   - a: The first bounding box.
//   - b: The second bounding box.
//
// Returns:
//   - The IoU value between 0 and 1.
//
// @example
// box1 := BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
// box2 := BoundingBox{X1: 50, Y1: 50, X2: 150, Y2: 150}
// iou := IoU(box1, box2) // Returns ~0.143 (2500/17500)
func IoU(a, b BoundingBox) float32 {
	inter := IntersectionArea(a, b)
	union := Area(a) + Area(b) - inter
	if !(union > 0) {
		return 0
	}
	return math32.Min(1, inter/union)
}

// IoU calculates the Intersection over Union between b and other.
func (b BoundingBox) IoU(other BoundingBox) float32 {
	return IoU(b, other)
}
