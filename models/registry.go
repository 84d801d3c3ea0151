// Package models - Registry of detector and segmenter presets.
package models

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-cascade/models/model"
)

// ErrUnknownModel is returned for names with no registered preset.
var ErrUnknownModel = errors.New("unknown model")

// DefaultInputSize is the detector input side S of the registered presets.
const DefaultInputSize = 512

// NewDetectorSpec returns the preset named name with its model path set.
//
// This factory function is the entry point for detector configuration,
// routing names to the input/output bindings and tensor layout of known
// exports so callers never guess a layout.
//
// Arguments:
//   - name: The preset name.
//   - path: The model file location.
//
// Returns:
//   - model.DetectorSpec: The preset.
//   - error: ErrUnknownModel for unregistered names.
//
// Example:
//
//	spec, err := NewDetectorSpec(model.ModelNameYOLOv8, "/models/eyes.onnx")
//	if err != nil {
//	    log.Fatalf("Failed to resolve detector: %v", err)
//	}
func NewDetectorSpec(name model.Name, path string) (model.DetectorSpec, error) {
	switch name {
	case model.ModelNameYOLOv8:
		return model.DetectorSpec{
			Name:      name,
			Path:      path,
			InputSize: DefaultInputSize,
			Input:     "images",
			Output:    "output0",
			Layout:    model.LayoutPlanar,
		}, nil
	case model.ModelNameYOLORecords:
		return model.DetectorSpec{
			Name:      name,
			Path:      path,
			InputSize: DefaultInputSize,
			Input:     "images",
			Output:    "output0",
			Layout:    model.LayoutInterleaved,
		}, nil
	default:
		return model.DetectorSpec{}, errors.Wrapf(ErrUnknownModel, "detector %q", name)
	}
}

// NewSegmenterSpec returns the segmenter preset named name with its model path set.
func NewSegmenterSpec(name model.Name, path string) (model.SegmenterSpec, error) {
	switch name {
	case model.ModelNameUNet16:
		return model.SegmenterSpec{
			Name:     name,
			Path:     path,
			GridSize: 16,
			Input:    "input_1",
			Output:   "output",
			Order:    model.NCHW,
		}, nil
	case model.ModelNameUNet16NHWC:
		return model.SegmenterSpec{
			Name:     name,
			Path:     path,
			GridSize: 16,
			Input:    "input_1",
			Output:   "output",
			Order:    model.NHWC,
		}, nil
	default:
		return model.SegmenterSpec{}, errors.Wrapf(ErrUnknownModel, "segmenter %q", name)
	}
}
