// Package inference - Inference engine interface and implementations.
package inference

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrInference marks failures reported by an inference engine.
var ErrInference = errors.New("inference failed")

// Error describes a failed engine call.
//
// errors.Is(err, ErrInference) holds for every *Error.
type Error struct {
	// Op is the operation that failed, e.g. "run" or "load".
	Op string
	// Model identifies the model, usually its path.
	Model string
	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("inference %s %s: %v", e.Op, e.Model, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrInference.
func (e *Error) Is(target error) bool {
	return target == ErrInference
}

// Engine defines the interface for ML inference engines.
//
// Run maps named input tensors to named output tensors. Implementations do
// not retain the inputs after Run returns and hand over ownership of the
// outputs to the caller.
type Engine interface {
	Run(ctx context.Context, inputs map[string]*tensor.Dense) (map[string]*tensor.Dense, error)
	Close() error
}

// Output returns the output named name.
//
// Arguments:
//   - outputs: The result of Engine.Run.
//   - name: The output name.
//
// Returns:
//   - *tensor.Dense: The output tensor.
//   - error: An *Error when the output is missing.
func Output(outputs map[string]*tensor.Dense, name string) (*tensor.Dense, error) {
	t, ok := outputs[name]
	if !ok || t == nil {
		return nil, &Error{Op: "output", Model: name, Err: errors.New("output not produced")}
	}
	return t, nil
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, inputs map[string]*tensor.Dense) (map[string]*tensor.Dense, error)

// Run calls f.
func (f EngineFunc) Run(ctx context.Context, inputs map[string]*tensor.Dense) (map[string]*tensor.Dense, error) {
	return f(ctx, inputs)
}

// Close is a no-op.
func (f EngineFunc) Close() error {
	return nil
}
