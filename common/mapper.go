package common

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-cascade/images"
)

// ErrInvalidMapping is returned when a Mapper is built from non-positive sizes.
var ErrInvalidMapping = errors.New("invalid coordinate mapping")

// Mapper converts between the square model-input space and a target space.
//
// The source raster is stretched non-uniformly to InputSize x InputSize before
// inference, so the two axes scale independently. Aspect distortion is
// carried into the output coordinates unchanged.
type Mapper struct {
	// InputSize is the side S of the model-input square.
	InputSize int
	// Width and Height are the target (image or slice) dimensions.
	Width, Height int
	// Labels maps class ids to names. Optional.
	Labels []string
}

// NewMapper creates a mapper between an S x S model input and a W x H target.
//
// Arguments:
//   - inputSize: The side of the model-input square.
//   - width: The target width in pixels.
//   - height: The target height in pixels.
//   - labels: Class names indexed by class id.
//
// Returns:
//   - Mapper: The mapper.
//   - error: ErrInvalidMapping if any dimension is not positive.
func NewMapper(inputSize, width, height int, labels []string) (Mapper, error) {
	if inputSize <= 0 || width <= 0 || height <= 0 {
		return Mapper{}, errors.Wrapf(ErrInvalidMapping,
			"input=%d target=%dx%d", inputSize, width, height)
	}
	return Mapper{InputSize: inputSize, Width: width, Height: height, Labels: labels}, nil
}

// Scale returns the independent horizontal and vertical scale factors W/S and H/S.
func (m Mapper) Scale() (sx, sy float32) {
	s := float32(m.InputSize)
	return float32(m.Width) / s, float32(m.Height) / s
}

// ToImage maps a model-space candidate to an image-space bounding box.
//
// Arguments:
//   - c: The candidate in model-input coordinates.
//
// Returns:
//   - BoundingBox: The box in target coordinates, labelled when a name is known.
func (m Mapper) ToImage(c Candidate) BoundingBox {
	sx, sy := m.Scale()
	return BoundingBox{
		Label:      m.label(c.ClassID),
		ClassID:    c.ClassID,
		Confidence: c.Confidence,
		X1:         (c.XC - c.W/2) * sx,
		Y1:         (c.YC - c.H/2) * sy,
		X2:         (c.XC + c.W/2) * sx,
		Y2:         (c.YC + c.H/2) * sy,
	}
}

// ToModel maps an image-space box back to a model-space candidate.
func (m Mapper) ToModel(b BoundingBox) Candidate {
	sx, sy := m.Scale()
	return Candidate{
		XC:         (b.X1 + b.X2) / 2 / sx,
		YC:         (b.Y1 + b.Y2) / 2 / sy,
		W:          (b.X2 - b.X1) / sx,
		H:          (b.Y2 - b.Y1) / sy,
		Confidence: b.Confidence,
		ClassID:    b.ClassID,
	}
}

// CropRegion returns the pixel region of the full-resolution target covered by b.
//
// The region is expanded outward to whole pixels and clamped to the target
// bounds, so a box partly outside the image yields the visible part and a box
// entirely outside yields an empty region.
//
// Arguments:
//   - b: The image-space box.
//
// Returns:
//   - images.Rect: The crop region, possibly empty.
func (m Mapper) CropRegion(b BoundingBox) images.Rect {
	r := images.Rect{
		X1: int(math32.Floor(b.X1)),
		Y1: int(math32.Floor(b.Y1)),
		X2: int(math32.Ceil(b.X2)),
		Y2: int(math32.Ceil(b.Y2)),
	}
	return r.Intersect(images.Rect{X2: m.Width, Y2: m.Height})
}

func (m Mapper) label(classID int) string {
	if classID >= 0 && classID < len(m.Labels) {
		return m.Labels[classID]
	}
	return ""
}
