// Package cvdnn - Inference engine backed by the OpenCV DNN module.
package cvdnn

import (
	"context"
	"runtime"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-cascade/inference"
)

// Config configures an OpenCV DNN engine.
type Config struct {
	// ModelPath is the ONNX model file.
	ModelPath string
	// Inputs and Outputs name the bound graph nodes.
	Inputs  []string
	Outputs []string
	// Backend and Target are OpenCV DNN names, e.g. "default"/"cpu" or "cuda"/"cuda".
	Backend string
	Target  string
}

// Engine runs ONNX models through gocv.Net.
//
// gocv.Net is not safe for concurrent use; calls are serialized.
type Engine struct {
	mu  sync.Mutex
	net gocv.Net
	cfg Config
}

// New loads the model described by cfg.
//
// Arguments:
//   - cfg: The engine configuration.
//
// Returns:
//   - *Engine: The engine.
//   - error: An *inference.Error if the model cannot be read.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Inputs) != 1 || len(cfg.Outputs) == 0 {
		return nil, &inference.Error{Op: "load", Model: cfg.ModelPath,
			Err: errors.New("exactly one input and at least one output are required")}
	}
	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, &inference.Error{Op: "load", Model: cfg.ModelPath, Err: errors.New("error reading network")}
	}
	if cfg.Backend != "" {
		if err := net.SetPreferableBackend(gocv.ParseNetBackend(cfg.Backend)); err != nil {
			net.Close()
			return nil, &inference.Error{Op: "load", Model: cfg.ModelPath, Err: err}
		}
	}
	if cfg.Target != "" {
		if err := net.SetPreferableTarget(gocv.ParseNetTarget(cfg.Target)); err != nil {
			net.Close()
			return nil, &inference.Error{Op: "load", Model: cfg.ModelPath, Err: err}
		}
	}
	return &Engine{net: net, cfg: cfg}, nil
}

// Run feeds the single input blob and returns every configured output.
func (e *Engine) Run(ctx context.Context, inputs map[string]*tensor.Dense) (map[string]*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := e.cfg.Inputs[0]
	in, ok := inputs[name]
	if !ok {
		return nil, &inference.Error{Op: "run", Model: e.cfg.ModelPath, Err: errors.Errorf("missing input %q", name)}
	}
	data, ok := in.Data().([]float32)
	if !ok || len(data) == 0 {
		return nil, &inference.Error{Op: "run", Model: e.cfg.ModelPath, Err: errors.Errorf("input %q is not float32", name)}
	}

	blob, err := gocv.NewMatWithSizesFromBytes([]int(in.Shape()), gocv.MatTypeCV32F, float32Bytes(data))
	if err != nil {
		return nil, &inference.Error{Op: "run", Model: e.cfg.ModelPath, Err: errors.Wrap(err, "error creating input blob")}
	}
	defer blob.Close()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.net.SetInput(blob, name)
	outs := e.net.ForwardLayers(e.cfg.Outputs)
	runtime.KeepAlive(data)
	defer func() {
		for _, m := range outs {
			m.Close()
		}
	}()
	if len(outs) != len(e.cfg.Outputs) {
		return nil, &inference.Error{Op: "run", Model: e.cfg.ModelPath,
			Err: errors.Errorf("got %d outputs, want %d", len(outs), len(e.cfg.Outputs))}
	}

	result := make(map[string]*tensor.Dense, len(outs))
	for i, m := range outs {
		t, err := toTensor(m)
		if err != nil {
			return nil, &inference.Error{Op: "run", Model: e.cfg.ModelPath, Err: errors.Wrapf(err, "output %q", e.cfg.Outputs[i])}
		}
		result[e.cfg.Outputs[i]] = t
	}
	return result, nil
}

// Close releases the network.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.net.Close()
}

func toTensor(m gocv.Mat) (*tensor.Dense, error) {
	if m.Empty() {
		return nil, errors.New("empty output")
	}
	values, err := m.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	dims := m.Size()
	// The Mat owns values; copy before it is closed.
	data := append([]float32(nil), values...)
	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(data)), nil
}

func float32Bytes(data []float32) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
}
