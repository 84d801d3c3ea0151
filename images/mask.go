package images

import (
	"image/color"

	"github.com/pkg/errors"
)

// DefaultGridSize is the side of the segmentation grid produced by the region segmenter.
const DefaultGridSize = 16

// ErrInvalidGrid is returned when segmentation output does not form a square grid.
var ErrInvalidGrid = errors.New("invalid segmentation grid")

// Grid is a Size x Size array of segmentation activations, row major.
type Grid struct {
	Size int
	Data []float32
}

// NewGrid wraps data as a size x size grid.
//
// Arguments:
//   - data: Row-major activations.
//   - size: The grid side G.
//
// Returns:
//   - Grid: The grid.
//   - error: ErrInvalidGrid if size is not positive or len(data) != size*size.
func NewGrid(data []float32, size int) (Grid, error) {
	if size <= 0 || len(data) != size*size {
		return Grid{}, errors.Wrapf(ErrInvalidGrid, "got %d values for a %dx%d grid", len(data), size, size)
	}
	return Grid{Size: size, Data: data}, nil
}

// At returns the activation of cell (gx, gy).
func (g Grid) At(gx, gy int) float32 {
	return g.Data[gy*g.Size+gx]
}

// Overlay configures how a binarized mask is painted.
type Overlay struct {
	// Color is the paint colour.
	Color color.NRGBA `json:"color" yaml:"color"`
	// Opacity is the paint opacity in [0, 1].
	Opacity float32 `json:"opacity" yaml:"opacity"`
	// Threshold binarizes activations; a cell is set when its value is strictly greater.
	Threshold float32 `json:"threshold" yaml:"threshold"`
}

// DefaultOverlay returns a red overlay at opacity 180/255 with a 0.5 threshold.
func DefaultOverlay() Overlay {
	return Overlay{
		Color:     color.NRGBA{R: 255, A: 255},
		Opacity:   180.0 / 255.0,
		Threshold: 0.5,
	}
}

// ProjectMask paints grid onto region of p using nearest-neighbour upsampling.
//
// Each destination pixel (x, y) of the region samples cell
// (floor(x*G/w), floor(y*G/h)). Pixels whose cell is above the threshold are
// blended with the overlay colour; all other pixels are left untouched. An
// empty region or a grid whose data does not hold Size*Size cells is a no-op.
//
// Arguments:
//   - p: The surface to paint on.
//   - grid: The segmentation grid.
//   - region: The destination region on p.
//   - o: The overlay settings.
//
// Returns:
//   - int: The number of pixels painted.
func ProjectMask(p Painter, grid Grid, region Rect, o Overlay) int {
	w, h := region.Dx(), region.Dy()
	if w == 0 || h == 0 || grid.Size <= 0 || len(grid.Data) != grid.Size*grid.Size {
		return 0
	}

	painted := 0
	for y := 0; y < h; y++ {
		gy := y * grid.Size / h
		for x := 0; x < w; x++ {
			gx := x * grid.Size / w
			if grid.At(gx, gy) > o.Threshold {
				p.Blend(region.X1+x, region.Y1+y, o.Color, o.Opacity)
				painted++
			}
		}
	}
	return painted
}
