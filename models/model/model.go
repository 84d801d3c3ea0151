// Package model - Definitions for detector and segmenter model specs.
package model

// Layout is the memory layout of a detection output tensor.
type Layout string

const (
	// LayoutPlanar stores attribute a of candidate slot k at a*N+k, with
	// attributes [xc, yc, w, h, score_0 .. score_C-1].
	LayoutPlanar Layout = "planar"
	// LayoutInterleaved stores each candidate as a contiguous record
	// [xc, yc, w, h, confidence, classId].
	LayoutInterleaved Layout = "interleaved"
)

// InterleavedStride is the record width of LayoutInterleaved.
const InterleavedStride = 6

// Valid reports whether l names a known layout.
func (l Layout) Valid() bool {
	return l == LayoutPlanar || l == LayoutInterleaved
}

// Stride returns the number of values per candidate for classes classes.
func (l Layout) Stride(classes int) int {
	if l == LayoutInterleaved {
		return InterleavedStride
	}
	return 4 + classes
}

// ChannelOrder is the dimension order of a single-channel image tensor.
type ChannelOrder string

const (
	// NCHW is [batch, channels, height, width].
	NCHW ChannelOrder = "nchw"
	// NHWC is [batch, height, width, channels].
	NHWC ChannelOrder = "nhwc"
)

// Name is the unique identifier of a model preset.
type Name string

const (
	// ModelNameYOLOv8 is a planar YOLOv8-style detector export.
	ModelNameYOLOv8 Name = "yolov8"
	// ModelNameYOLORecords is a detector export with interleaved records.
	ModelNameYOLORecords Name = "yolo-records"
	// ModelNameUNet16 is a 16x16 single-channel UNet segmenter, NCHW.
	ModelNameUNet16 Name = "unet16"
	// ModelNameUNet16NHWC is a 16x16 single-channel UNet segmenter, NHWC.
	ModelNameUNet16NHWC Name = "unet16-nhwc"
)

// DetectorSpec describes how to feed and read a region detector.
type DetectorSpec struct {
	Name Name `json:"name" yaml:"name"`
	// Path is the model file location.
	Path string `json:"path" yaml:"path"`
	// InputSize is the side S of the square model input.
	InputSize int    `json:"input_size" yaml:"input_size"`
	Input     string `json:"input" yaml:"input"`
	Output    string `json:"output" yaml:"output"`
	Layout    Layout `json:"layout" yaml:"layout"`
}

// Shape returns the [1, 3, S, S] input shape.
func (s DetectorSpec) Shape() []int {
	return []int{1, 3, s.InputSize, s.InputSize}
}

// SegmenterSpec describes how to feed and read a region segmenter.
type SegmenterSpec struct {
	Name Name   `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
	// GridSize is the side G of both the input patch and the output grid.
	GridSize int          `json:"grid_size" yaml:"grid_size"`
	Input    string       `json:"input" yaml:"input"`
	Output   string       `json:"output" yaml:"output"`
	Order    ChannelOrder `json:"order" yaml:"order"`
}

// Shape returns the single-channel patch shape in the segmenter's channel order.
func (s SegmenterSpec) Shape() []int {
	if s.Order == NHWC {
		return []int{1, s.GridSize, s.GridSize, 1}
	}
	return []int{1, 1, s.GridSize, s.GridSize}
}
