package detector

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-cascade/images"
	"github.com/nvr-ai/go-cascade/inference"
	"github.com/nvr-ai/go-cascade/models/model"
)

// Segmenter runs a region segmenter on G x G grayscale patches.
type Segmenter struct {
	engine inference.Engine
	spec   model.SegmenterSpec
}

// NewSegmenter creates a segmenter.
func NewSegmenter(engine inference.Engine, spec model.SegmenterSpec) (*Segmenter, error) {
	if engine == nil {
		return nil, errors.New("segmenter engine is required")
	}
	if spec.GridSize <= 0 {
		return nil, errors.Wrapf(images.ErrInvalidGrid, "grid size %d", spec.GridSize)
	}
	return &Segmenter{engine: engine, spec: spec}, nil
}

// Spec returns the model spec.
func (s *Segmenter) Spec() model.SegmenterSpec {
	return s.spec
}

// Prepare crops region from the full-resolution img and downsamples it to the
// segmenter input.
//
// Returns:
//   - *tensor.Dense: The patch tensor.
//   - error: An error if region does not overlap img.
func (s *Segmenter) Prepare(img image.Image, region images.Rect) (*tensor.Dense, error) {
	patch := images.Patch(img, region, s.spec.GridSize)
	if patch == nil {
		return nil, errors.Errorf("region %v does not overlap the image", region)
	}
	return inference.PreparePatch(patch, s.spec)
}

// Infer runs the segmenter on a prepared patch.
//
// Returns:
//   - images.Grid: The G x G activations.
//   - error: An inference error, or images.ErrInvalidGrid if the output size is wrong.
func (s *Segmenter) Infer(ctx context.Context, patch *tensor.Dense) (images.Grid, error) {
	outputs, err := s.engine.Run(ctx, map[string]*tensor.Dense{s.spec.Input: patch})
	if err != nil {
		return images.Grid{}, err
	}
	out, err := inference.Output(outputs, s.spec.Output)
	if err != nil {
		return images.Grid{}, err
	}
	data, ok := out.Data().([]float32)
	if !ok {
		return images.Grid{}, errors.Wrapf(images.ErrInvalidGrid, "dtype %v, want float32", out.Dtype())
	}
	return images.NewGrid(data, s.spec.GridSize)
}

// Segment crops, prepares and segments region of img.
func (s *Segmenter) Segment(ctx context.Context, img image.Image, region images.Rect) (images.Grid, error) {
	patch, err := s.Prepare(img, region)
	if err != nil {
		return images.Grid{}, err
	}
	return s.Infer(ctx, patch)
}
