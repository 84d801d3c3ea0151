// Package providers - Execution provider selection for ONNX Runtime sessions.
package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers.
type ProviderBackend string

const (
	// CPUProviderBackend runs on the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
)

// ErrUnsupportedBackend is returned for unknown execution provider names.
var ErrUnsupportedBackend = errors.New("unsupported execution provider")

// Config selects and tunes the execution provider of a session.
type Config struct {
	// Backend specifies the execution provider to use.
	Backend ProviderBackend `json:"backend" yaml:"backend" koanf:"backend"`
	// IntraOpThreads parallelizes execution within graph nodes. 0 uses the runtime default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads" koanf:"intraopthreads"`
	// InterOpThreads parallelizes execution across graph nodes. 0 uses the runtime default.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads" koanf:"interopthreads"`

	CoreML   CoreMLOptions   `json:"coreml" yaml:"coreml" koanf:"coreml"`
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino" koanf:"openvino"`
	CUDA     CUDAOptions     `json:"cuda" yaml:"cuda" koanf:"cuda"`
}

// DefaultConfig returns a CPU configuration with runtime-chosen thread counts.
func DefaultConfig() Config {
	return Config{Backend: CPUProviderBackend}
}

// Validate checks that the backend is known.
func (c Config) Validate() error {
	switch c.Backend {
	case CPUProviderBackend, CoreMLProviderBackend, OpenVINOProviderBackend, CUDAProviderBackend:
		return nil
	default:
		return errors.Wrapf(ErrUnsupportedBackend, "%q", c.Backend)
	}
}

// NewSessionOptions builds ONNX Runtime session options for c.
//
// The caller owns the returned options and must Destroy them once the
// session has been created.
//
// Arguments:
//   - c: The provider configuration.
//
// Returns:
//   - *ort.SessionOptions: The session options with the execution provider appended.
//   - error: An error if the backend is unknown or the runtime rejects an option.
func NewSessionOptions(c Config) (*ort.SessionOptions, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	fail := func(err error, msg string) (*ort.SessionOptions, error) {
		options.Destroy()
		return nil, errors.Wrap(err, msg)
	}

	if err := options.SetIntraOpNumThreads(c.IntraOpThreads); err != nil {
		return fail(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(c.InterOpThreads); err != nil {
		return fail(err, "error setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return fail(err, "error setting graph optimization level")
	}

	switch c.Backend {
	case CoreMLProviderBackend:
		if err := options.AppendExecutionProviderCoreML(c.CoreML.Flags()); err != nil {
			return fail(err, "error enabling CoreML")
		}
	case OpenVINOProviderBackend:
		if err := options.AppendExecutionProviderOpenVINO(c.OpenVINO.ToMap()); err != nil {
			return fail(err, "error enabling OpenVINO")
		}
	case CUDAProviderBackend:
		cuda, err := c.CUDA.ToNativeProviderOptions()
		if err != nil {
			return fail(err, "error converting CUDA options")
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return fail(err, "error enabling CUDA")
		}
	}

	return options, nil
}
