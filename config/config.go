// Package config - Layered configuration for the cascade.
//
// Values are resolved in order: built-in defaults, an optional YAML file,
// CASCADE_ environment variables and finally caller overrides. Keys are
// lowercase with no separators inside a name, so CASCADE_DETECTOR_NMS_IOUTHRESHOLD
// sets detector.nms.iouthreshold.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-cascade/images"
	"github.com/nvr-ai/go-cascade/inference"
	"github.com/nvr-ai/go-cascade/inference/providers"
	"github.com/nvr-ai/go-cascade/logger"
	"github.com/nvr-ai/go-cascade/models"
	"github.com/nvr-ai/go-cascade/models/model"
	"github.com/nvr-ai/go-cascade/models/postprocess"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CASCADE_"

// ErrInvalid is returned by Validate for out-of-range settings.
var ErrInvalid = errors.New("invalid configuration")

// DetectorConfig configures the region detector.
type DetectorConfig struct {
	// Model names the detector preset.
	Model model.Name `json:"model" yaml:"model" koanf:"model"`
	Path  string     `json:"path" yaml:"path" koanf:"path"`
	// InputSize, Input, Output and Layout override the preset when set.
	InputSize int          `json:"inputsize" yaml:"inputsize" koanf:"inputsize"`
	Input     string       `json:"input" yaml:"input" koanf:"input"`
	Output    string       `json:"output" yaml:"output" koanf:"output"`
	Layout    model.Layout `json:"layout" yaml:"layout" koanf:"layout"`
	// Labels names the classes. When empty the registered LabelSet is used.
	Labels   []string            `json:"labels" yaml:"labels" koanf:"labels"`
	LabelSet models.LabelSetName `json:"labelset" yaml:"labelset" koanf:"labelset"`

	ConfidenceThreshold float32               `json:"confidencethreshold" yaml:"confidencethreshold" koanf:"confidencethreshold"`
	NMS                 postprocess.NMSConfig `json:"nms" yaml:"nms" koanf:"nms"`
}

// SegmenterConfig configures the region segmenter.
type SegmenterConfig struct {
	Model model.Name `json:"model" yaml:"model" koanf:"model"`
	Path  string     `json:"path" yaml:"path" koanf:"path"`
	// GridSize, Input, Output and Order override the preset when set.
	GridSize int                `json:"gridsize" yaml:"gridsize" koanf:"gridsize"`
	Input    string             `json:"input" yaml:"input" koanf:"input"`
	Output   string             `json:"output" yaml:"output" koanf:"output"`
	Order    model.ChannelOrder `json:"order" yaml:"order" koanf:"order"`
	// MaskThreshold binarizes the grid; a cell is set when strictly greater.
	MaskThreshold float32 `json:"maskthreshold" yaml:"maskthreshold" koanf:"maskthreshold"`
}

// CascadeConfig configures the orchestrator.
type CascadeConfig struct {
	// Workers bounds concurrent per-box segmentation calls.
	Workers int `json:"workers" yaml:"workers" koanf:"workers"`
	// Retries is the number of extra attempts for a failed inference call.
	Retries int `json:"retries" yaml:"retries" koanf:"retries"`
	// RetryInterval is the initial backoff between attempts.
	RetryInterval time.Duration `json:"retryinterval" yaml:"retryinterval" koanf:"retryinterval"`
}

// OpenCVConfig selects the OpenCV DNN backend and target of the opencv engine.
type OpenCVConfig struct {
	Backend string `json:"backend" yaml:"backend" koanf:"backend"`
	Target  string `json:"target" yaml:"target" koanf:"target"`
}

// RenderConfig configures the composite output.
type RenderConfig struct {
	OverlayColor   string  `json:"overlaycolor" yaml:"overlaycolor" koanf:"overlaycolor"`
	OverlayOpacity float32 `json:"overlayopacity" yaml:"overlayopacity" koanf:"overlayopacity"`
	// Boxes draws box outlines after the masks.
	Boxes        bool   `json:"boxes" yaml:"boxes" koanf:"boxes"`
	BoxColor     string `json:"boxcolor" yaml:"boxcolor" koanf:"boxcolor"`
	BoxThickness int    `json:"boxthickness" yaml:"boxthickness" koanf:"boxthickness"`
}

// Config is the complete cascade configuration.
type Config struct {
	Detector  DetectorConfig       `json:"detector" yaml:"detector" koanf:"detector"`
	Segmenter SegmenterConfig      `json:"segmenter" yaml:"segmenter" koanf:"segmenter"`
	Engine    inference.EngineType `json:"engine" yaml:"engine" koanf:"engine"`
	Provider  providers.Config     `json:"provider" yaml:"provider" koanf:"provider"`
	OpenCV    OpenCVConfig         `json:"opencv" yaml:"opencv" koanf:"opencv"`
	Cascade   CascadeConfig        `json:"cascade" yaml:"cascade" koanf:"cascade"`
	Render    RenderConfig         `json:"render" yaml:"render" koanf:"render"`
	Log       logger.Options       `json:"log" yaml:"log" koanf:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Detector: DetectorConfig{
			Model:               model.ModelNameYOLOv8,
			LabelSet:            models.LabelSetEyes,
			ConfidenceThreshold: postprocess.DefaultConfidenceThreshold,
			NMS:                 postprocess.DefaultNMSConfig(),
		},
		Segmenter: SegmenterConfig{
			Model:         model.ModelNameUNet16,
			MaskThreshold: 0.5,
		},
		Engine:   inference.EngineONNX,
		Provider: providers.DefaultConfig(),
		OpenCV:   OpenCVConfig{Backend: "default", Target: "cpu"},
		Cascade: CascadeConfig{
			Workers:       1,
			RetryInterval: 100 * time.Millisecond,
		},
		Render: RenderConfig{
			OverlayColor:   "#ff0000",
			OverlayOpacity: 0.7,
			BoxColor:       "#00ff00",
			BoxThickness:   2,
		},
		Log: logger.DefaultOptions(),
	}
}

// Load resolves the configuration.
//
// Arguments:
//   - path: An optional YAML file. Empty skips the file layer.
//   - overrides: Optional flat "a.b.c" keys applied last, typically from CLI flags.
//
// Returns:
//   - Config: The validated configuration.
//   - error: A load error or ErrInvalid.
func Load(path string, overrides map[string]any) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, errors.Wrapf(err, "load config file %s", path)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(s string, v string) (string, any) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
		if strings.Contains(v, ",") {
			return key, strings.Split(strings.TrimSpace(v), ",")
		}
		return key, v
	}), nil); err != nil {
		return Config{}, errors.Wrap(err, "load environment")
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return Config{}, errors.Wrap(err, "load overrides")
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DetectorSpec resolves the detector preset and applies the overrides.
func (c Config) DetectorSpec() (model.DetectorSpec, error) {
	spec, err := models.NewDetectorSpec(c.Detector.Model, c.Detector.Path)
	if err != nil {
		return model.DetectorSpec{}, err
	}
	if c.Detector.InputSize != 0 {
		spec.InputSize = c.Detector.InputSize
	}
	if c.Detector.Input != "" {
		spec.Input = c.Detector.Input
	}
	if c.Detector.Output != "" {
		spec.Output = c.Detector.Output
	}
	if c.Detector.Layout != "" {
		spec.Layout = c.Detector.Layout
	}
	return spec, nil
}

// SegmenterSpec resolves the segmenter preset and applies the overrides.
func (c Config) SegmenterSpec() (model.SegmenterSpec, error) {
	spec, err := models.NewSegmenterSpec(c.Segmenter.Model, c.Segmenter.Path)
	if err != nil {
		return model.SegmenterSpec{}, err
	}
	if c.Segmenter.GridSize != 0 {
		spec.GridSize = c.Segmenter.GridSize
	}
	if c.Segmenter.Input != "" {
		spec.Input = c.Segmenter.Input
	}
	if c.Segmenter.Output != "" {
		spec.Output = c.Segmenter.Output
	}
	if c.Segmenter.Order != "" {
		spec.Order = c.Segmenter.Order
	}
	return spec, nil
}

// Labels returns the explicit labels, or the registered label set.
func (c Config) Labels() ([]string, error) {
	if len(c.Detector.Labels) > 0 {
		return c.Detector.Labels, nil
	}
	return models.LookupLabels(c.Detector.LabelSet)
}

// Overlay returns the mask overlay settings.
func (c Config) Overlay() (images.Overlay, error) {
	col, err := images.ParseColor(c.Render.OverlayColor)
	if err != nil {
		return images.Overlay{}, err
	}
	return images.Overlay{
		Color:     col,
		Opacity:   c.Render.OverlayOpacity,
		Threshold: c.Segmenter.MaskThreshold,
	}, nil
}

// Validate checks every setting the pipeline depends on.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.Wrapf(ErrInvalid, format, args...)
	}

	det, err := c.DetectorSpec()
	if err != nil {
		return invalid("detector: %v", err)
	}
	if det.InputSize <= 0 {
		return invalid("detector input size %d must be positive", det.InputSize)
	}
	if !det.Layout.Valid() {
		return invalid("unknown detector layout %q", det.Layout)
	}
	labels, err := c.Labels()
	if err != nil {
		return invalid("detector labels: %v", err)
	}
	if len(labels) == 0 {
		return invalid("detector labels are empty")
	}
	if !unit(c.Detector.ConfidenceThreshold) {
		return invalid("confidence threshold %v outside [0, 1]", c.Detector.ConfidenceThreshold)
	}
	if !unit(c.Detector.NMS.IoUThreshold) {
		return invalid("iou threshold %v outside [0, 1]", c.Detector.NMS.IoUThreshold)
	}
	if c.Detector.NMS.Limit < 0 {
		return invalid("nms limit %d is negative", c.Detector.NMS.Limit)
	}

	seg, err := c.SegmenterSpec()
	if err != nil {
		return invalid("segmenter: %v", err)
	}
	if seg.GridSize <= 0 {
		return invalid("segmentation grid size %d must be positive", seg.GridSize)
	}
	if seg.Order != model.NCHW && seg.Order != model.NHWC {
		return invalid("unknown segmenter channel order %q", seg.Order)
	}
	if !unit(c.Segmenter.MaskThreshold) {
		return invalid("mask threshold %v outside [0, 1]", c.Segmenter.MaskThreshold)
	}

	if !c.Engine.Valid() {
		return invalid("unknown engine %q", c.Engine)
	}
	if err := c.Provider.Validate(); err != nil {
		return invalid("provider: %v", err)
	}

	if c.Cascade.Workers < 1 {
		return invalid("workers %d must be at least 1", c.Cascade.Workers)
	}
	if c.Cascade.Retries < 0 {
		return invalid("retries %d is negative", c.Cascade.Retries)
	}

	if !unit(c.Render.OverlayOpacity) {
		return invalid("overlay opacity %v outside [0, 1]", c.Render.OverlayOpacity)
	}
	if _, err := images.ParseColor(c.Render.OverlayColor); err != nil {
		return invalid("overlay colour: %v", err)
	}
	if c.Render.Boxes {
		if _, err := images.ParseColor(c.Render.BoxColor); err != nil {
			return invalid("box colour: %v", err)
		}
		if c.Render.BoxThickness < 1 {
			return invalid("box thickness %d must be at least 1", c.Render.BoxThickness)
		}
	}
	return nil
}

// unit reports whether v lies in [0, 1]. NaN does not.
func unit(v float32) bool {
	return v >= 0 && v <= 1
}
