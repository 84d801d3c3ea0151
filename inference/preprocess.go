package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-cascade/models/model"
)

// PrepareInput stretches img to size x size and lays it out as a
// [1, 3, size, size] planar RGB tensor scaled to [0, 1].
//
// The resize is non-uniform: the aspect ratio of img is not preserved.
//
// Arguments:
//   - img: The image to prepare.
//   - size: The side S of the model input.
//
// Returns:
//   - *tensor.Dense: The input tensor.
//   - error: An error if size is not positive or img is empty.
func PrepareInput(img image.Image, size int) (*tensor.Dense, error) {
	if size <= 0 {
		return nil, errors.Errorf("input size %d must be positive", size)
	}
	if img.Bounds().Empty() {
		return nil, errors.New("empty input image")
	}
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	origin := resized.Bounds().Min

	channelSize := size * size
	data := make([]float32, channelSize*3)
	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(origin.X+x, origin.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return tensor.New(tensor.WithShape(1, 3, size, size), tensor.WithBacking(data)), nil
}

// PreparePatch wraps a G x G grayscale patch in the segmenter's input shape.
//
// Arguments:
//   - patch: Row-major grayscale values.
//   - spec: The segmenter spec selecting grid size and channel order.
//
// Returns:
//   - *tensor.Dense: A [1, 1, G, G] or [1, G, G, 1] tensor.
//   - error: An error if the patch does not hold G*G values.
func PreparePatch(patch []float32, spec model.SegmenterSpec) (*tensor.Dense, error) {
	if spec.GridSize <= 0 || len(patch) != spec.GridSize*spec.GridSize {
		return nil, errors.Errorf("patch holds %d values, grid %d needs %d",
			len(patch), spec.GridSize, spec.GridSize*spec.GridSize)
	}
	// With a single channel both orders share the same memory layout.
	data := append([]float32(nil), patch...)
	return tensor.New(tensor.WithShape(spec.Shape()...), tensor.WithBacking(data)), nil
}
