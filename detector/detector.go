// Package detector - Region detection and region segmentation stages of the cascade.
package detector

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-cascade/common"
	"github.com/nvr-ai/go-cascade/inference"
	"github.com/nvr-ai/go-cascade/models/model"
	"github.com/nvr-ai/go-cascade/models/postprocess"
)

// Detector runs a region detector and turns its output into image-space boxes.
//
// The steps are exposed individually so that callers can time them and
// retry the inference step alone; Detect chains them.
type Detector struct {
	engine  inference.Engine
	spec    model.DetectorSpec
	labels  []string
	decoder *postprocess.Decoder
	nms     postprocess.NMSConfig
}

// Config holds the decode and suppression settings of a Detector.
type Config struct {
	// Labels names the classes; its length is the class count C.
	Labels []string
	// ConfidenceThreshold rejects candidates below it.
	ConfidenceThreshold float32
	// NMS configures suppression.
	NMS postprocess.NMSConfig
}

// New creates a detector.
//
// Arguments:
//   - engine: The inference engine running the detector model. The caller keeps ownership.
//   - spec: The model bindings and tensor layout.
//   - cfg: The decode and suppression settings.
//
// Returns:
//   - *Detector: The detector.
//   - error: An error if the spec or the decoder settings are invalid.
func New(engine inference.Engine, spec model.DetectorSpec, cfg Config) (*Detector, error) {
	if engine == nil {
		return nil, errors.New("detector engine is required")
	}
	if spec.InputSize <= 0 {
		return nil, errors.Errorf("detector input size %d must be positive", spec.InputSize)
	}
	decoder, err := postprocess.NewDecoder(spec.Layout, len(cfg.Labels), cfg.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}
	return &Detector{
		engine:  engine,
		spec:    spec,
		labels:  cfg.Labels,
		decoder: decoder,
		nms:     cfg.NMS,
	}, nil
}

// Spec returns the model spec.
func (d *Detector) Spec() model.DetectorSpec {
	return d.spec
}

// Prepare stretches img to the model input square.
func (d *Detector) Prepare(img image.Image) (*tensor.Dense, error) {
	return inference.PrepareInput(img, d.spec.InputSize)
}

// Infer runs the detector model on a prepared input.
func (d *Detector) Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	outputs, err := d.engine.Run(ctx, map[string]*tensor.Dense{d.spec.Input: input})
	if err != nil {
		return nil, err
	}
	return inference.Output(outputs, d.spec.Output)
}

// Decode decodes a raw detector output into model-space candidates.
func (d *Detector) Decode(output *tensor.Dense) ([]common.Candidate, error) {
	return d.decoder.DecodeTensor(output)
}

// Suppress applies greedy NMS. A positive limit overrides the configured limit.
func (d *Detector) Suppress(candidates []common.Candidate, limit int) []common.Candidate {
	cfg := d.nms
	if limit > 0 {
		cfg.Limit = limit
	}
	return postprocess.ApplyGreedyNMS(candidates, cfg)
}

// Mapper returns the coordinate mapper from the model input to a width x height target.
func (d *Detector) Mapper(width, height int) (common.Mapper, error) {
	return common.NewMapper(d.spec.InputSize, width, height, d.labels)
}

// Map converts candidates to labelled boxes in the coordinates of a width x height target.
func (d *Detector) Map(candidates []common.Candidate, width, height int) ([]common.BoundingBox, error) {
	m, err := d.Mapper(width, height)
	if err != nil {
		return nil, err
	}
	boxes := make([]common.BoundingBox, len(candidates))
	for i, c := range candidates {
		boxes[i] = m.ToImage(c)
	}
	return boxes, nil
}

// Detect runs the whole detection stage on img.
//
// Arguments:
//   - ctx: The context for the inference call.
//   - img: The full-resolution image.
//
// Returns:
//   - []common.BoundingBox: Image-space boxes, confidence descending. Empty when nothing is found.
//   - error: An inference error or postprocess.ErrMalformedTensor.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]common.BoundingBox, error) {
	input, err := d.Prepare(img)
	if err != nil {
		return nil, err
	}
	output, err := d.Infer(ctx, input)
	if err != nil {
		return nil, err
	}
	candidates, err := d.Decode(output)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return d.Map(d.Suppress(candidates, 0), b.Dx(), b.Dy())
}
