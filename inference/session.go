package inference

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-cascade/inference/providers"
)

// Session is an Engine backed by an onnxruntime dynamic session.
//
// Output tensors are allocated by the runtime on every call, so a Session
// accepts any input shape the model accepts. Calls are serialized.
type Session struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	model   string
	inputs  []string
	outputs []string
}

// NewSessionArgs represents the arguments for creating a new Session.
type NewSessionArgs struct {
	// The path to the ONNX model file.
	ModelPath string
	// The input names of the model.
	Inputs []string
	// The output names of the model.
	Outputs []string
	// The execution provider configuration.
	Provider providers.Config
	// LibraryPath overrides the onnxruntime shared library location.
	LibraryPath string
}

// NewSession creates a new ONNX Runtime session.
//
// Order of operations:
//  1. Environment setup: loads the native library once per process.
//  2. Session options: threading, optimization level and execution provider.
//  3. Session creation: loads the model and binds the input and output names.
//
// Arguments:
//   - args: The arguments for the session.
//
// Returns:
//   - *Session: The session.
//   - error: An *Error if the runtime or the model cannot be loaded.
func NewSession(args NewSessionArgs) (*Session, error) {
	if len(args.Inputs) == 0 || len(args.Outputs) == 0 {
		return nil, &Error{Op: "load", Model: args.ModelPath, Err: errors.New("input and output names are required")}
	}
	if err := providers.InitializeEnvironment(args.LibraryPath); err != nil {
		return nil, &Error{Op: "load", Model: args.ModelPath, Err: err}
	}

	options, err := providers.NewSessionOptions(args.Provider)
	if err != nil {
		return nil, &Error{Op: "load", Model: args.ModelPath, Err: err}
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(args.ModelPath, args.Inputs, args.Outputs, options)
	if err != nil {
		return nil, &Error{Op: "load", Model: args.ModelPath, Err: errors.Wrap(err, "error creating ORT session")}
	}

	return &Session{
		session: session,
		model:   args.ModelPath,
		inputs:  args.Inputs,
		outputs: args.Outputs,
	}, nil
}

// Run executes the model.
//
// Arguments:
//   - ctx: Checked before the call; an in-flight call is never interrupted.
//   - inputs: Tensors keyed by input name. Every input name must be present.
//
// Returns:
//   - map[string]*tensor.Dense: Float32 tensors keyed by output name.
//   - error: An *Error if an input is missing or the runtime fails.
func (s *Session) Run(ctx context.Context, inputs map[string]*tensor.Dense) (map[string]*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, &Error{Op: "run", Model: s.model, Err: errors.New("session closed")}
	}

	in := make([]ort.Value, 0, len(s.inputs))
	defer func() {
		for _, v := range in {
			v.Destroy()
		}
	}()
	for _, name := range s.inputs {
		t, ok := inputs[name]
		if !ok {
			return nil, &Error{Op: "run", Model: s.model, Err: errors.Errorf("missing input %q", name)}
		}
		v, err := toValue(t)
		if err != nil {
			return nil, &Error{Op: "run", Model: s.model, Err: errors.Wrapf(err, "input %q", name)}
		}
		in = append(in, v)
	}

	out := make([]ort.Value, len(s.outputs))
	if err := s.session.Run(in, out); err != nil {
		return nil, &Error{Op: "run", Model: s.model, Err: err}
	}
	defer func() {
		for _, v := range out {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	result := make(map[string]*tensor.Dense, len(out))
	for i, v := range out {
		t, err := fromValue(v)
		if err != nil {
			return nil, &Error{Op: "run", Model: s.model, Err: errors.Wrapf(err, "output %q", s.outputs[i])}
		}
		result[s.outputs[i]] = t
	}
	return result, nil
}

// Close releases the native session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	if err != nil {
		return errors.Wrap(err, "error destroying ORT session")
	}
	return nil
}

func toValue(t *tensor.Dense) (ort.Value, error) {
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("dtype %v, want float32", t.Dtype())
	}
	dims := make([]int64, len(t.Shape()))
	for i, d := range t.Shape() {
		dims[i] = int64(d)
	}
	v, err := ort.NewTensor(ort.NewShape(dims...), data)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func fromValue(v ort.Value) (*tensor.Dense, error) {
	ft, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, errors.Errorf("unsupported output value %T", v)
	}
	shape := ft.GetShape()
	dims := make([]int, len(shape))
	for i, d := range shape {
		dims[i] = int(d)
	}
	// The runtime owns the tensor buffer; copy before it is destroyed.
	data := append([]float32(nil), ft.GetData()...)
	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(data)), nil
}
