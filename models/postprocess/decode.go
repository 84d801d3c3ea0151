// Package postprocess - Decoding and suppression of raw detector output.
package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-cascade/common"
	"github.com/nvr-ai/go-cascade/models/model"
)

var (
	// ErrMalformedTensor is returned when a detection tensor is inconsistent
	// with the configured layout. No partial result accompanies it.
	ErrMalformedTensor = errors.New("malformed detection tensor")
	// ErrInvalidConfig is returned for decoder settings that cannot decode anything.
	ErrInvalidConfig = errors.New("invalid decoder configuration")
)

// DefaultConfidenceThreshold is the minimum confidence a candidate must reach.
const DefaultConfidenceThreshold float32 = 0.5

// Decoder turns a flat detection tensor into candidates in model-input space.
//
// A Decoder holds no state beyond its configuration and is safe for
// concurrent use.
type Decoder struct {
	// Layout selects how candidate attributes are arranged in memory.
	Layout model.Layout
	// Classes is the number of declared labels C.
	Classes int
	// ConfidenceThreshold rejects candidates whose confidence is below it.
	ConfidenceThreshold float32
}

// NewDecoder creates a decoder for the given layout and label count.
//
// Arguments:
//   - layout: The tensor layout.
//   - classes: The number of declared labels.
//   - threshold: The confidence threshold in [0, 1].
//
// Returns:
//   - *Decoder: The decoder.
//   - error: ErrInvalidConfig if the layout is unknown, classes < 1 or the threshold is out of range.
func NewDecoder(layout model.Layout, classes int, threshold float32) (*Decoder, error) {
	if !layout.Valid() {
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown layout %q", layout)
	}
	if classes < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "need at least one class, got %d", classes)
	}
	if !(threshold >= 0 && threshold <= 1) {
		return nil, errors.Wrapf(ErrInvalidConfig, "confidence threshold %v outside [0, 1]", threshold)
	}
	return &Decoder{Layout: layout, Classes: classes, ConfidenceThreshold: threshold}, nil
}

// Stride returns the number of values that make up one candidate.
func (d *Decoder) Stride() int {
	return d.Layout.Stride(d.Classes)
}

// Decode decodes a flat detection buffer.
//
// Candidates below the confidence threshold are dropped, as are candidates
// whose confidence or geometry is not a finite number. An output in which
// every slot is below the threshold yields an empty, non-nil slice.
//
// Arguments:
//   - output: The raw detector output.
//
// Returns:
//   - []common.Candidate: The accepted candidates in slot order.
//   - error: ErrMalformedTensor if the length is not a multiple of the stride or a class id is out of range.
func (d *Decoder) Decode(output []float32) ([]common.Candidate, error) {
	stride := d.Stride()
	if len(output)%stride != 0 {
		return nil, errors.Wrapf(ErrMalformedTensor,
			"%d values is not a multiple of the %s stride %d", len(output), d.Layout, stride)
	}
	if d.Layout == model.LayoutInterleaved {
		return d.decodeInterleaved(output)
	}
	return d.decodePlanar(output), nil
}

// DecodeTensor validates the element type and shape of t and decodes its data.
//
// Planar tensors are expected as [..., 4+C, N] and interleaved tensors as
// [..., N, 6]. Tensors of rank 1 are decoded as flat buffers.
func (d *Decoder) DecodeTensor(t *tensor.Dense) ([]common.Candidate, error) {
	if t == nil {
		return nil, errors.Wrap(ErrMalformedTensor, "nil tensor")
	}
	if t.Dtype() != tensor.Float32 {
		return nil, errors.Wrapf(ErrMalformedTensor, "dtype %v, want float32", t.Dtype())
	}
	shape := t.Shape()
	if len(shape) >= 2 {
		stride := d.Stride()
		dim := shape[len(shape)-1]
		if d.Layout == model.LayoutPlanar {
			dim = shape[len(shape)-2]
		}
		if dim != stride {
			return nil, errors.Wrapf(ErrMalformedTensor, "shape %v does not carry %s stride %d", shape, d.Layout, stride)
		}
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Wrapf(ErrMalformedTensor, "shape %v holds no float32 buffer", shape)
	}
	return d.Decode(data)
}

func (d *Decoder) decodePlanar(output []float32) []common.Candidate {
	n := len(output) / d.Stride()
	candidates := make([]common.Candidate, 0)
	at := func(attr, slot int) float32 { return output[attr*n+slot] }

	for k := 0; k < n; k++ {
		classID, best := -1, float32(0)
		for j := 0; j < d.Classes; j++ {
			score := at(4+j, k)
			if math32.IsNaN(score) {
				continue
			}
			// Strict comparison keeps the lowest index on ties.
			if classID < 0 || score > best {
				classID, best = j, score
			}
		}
		if classID < 0 || !d.accepts(best) {
			continue
		}
		c := common.Candidate{
			XC: at(0, k), YC: at(1, k), W: at(2, k), H: at(3, k),
			Confidence: best,
			ClassID:    classID,
		}
		if finite(c) {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

func (d *Decoder) decodeInterleaved(output []float32) ([]common.Candidate, error) {
	candidates := make([]common.Candidate, 0)
	for off := 0; off < len(output); off += model.InterleavedStride {
		rec := output[off : off+model.InterleavedStride]
		cls := rec[5]
		if !(cls >= 0 && cls < float32(d.Classes)) || cls != math32.Trunc(cls) {
			return nil, errors.Wrapf(ErrMalformedTensor,
				"record %d: class id %v outside [0, %d)", off/model.InterleavedStride, cls, d.Classes)
		}
		if !d.accepts(rec[4]) {
			continue
		}
		c := common.Candidate{
			XC: rec[0], YC: rec[1], W: rec[2], H: rec[3],
			Confidence: rec[4],
			ClassID:    int(cls),
		}
		if finite(c) {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

// accepts reports whether conf reaches the threshold. NaN never does.
func (d *Decoder) accepts(conf float32) bool {
	return conf >= d.ConfidenceThreshold
}

func finite(c common.Candidate) bool {
	for _, v := range [...]float32{c.XC, c.YC, c.W, c.H} {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}
