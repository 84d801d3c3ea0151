package controller

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-cascade/detector"
	"github.com/nvr-ai/go-cascade/images"
	"github.com/nvr-ai/go-cascade/inference"
	"github.com/nvr-ai/go-cascade/models"
	"github.com/nvr-ai/go-cascade/models/model"
	"github.com/nvr-ai/go-cascade/models/postprocess"
	"github.com/nvr-ai/go-cascade/profiler"
)

// planarOutput builds a [1, 4+C, N] tensor from rows of [xc, yc, w, h, scores...].
func planarOutput(rows ...[]float32) *tensor.Dense {
	n, attrs := len(rows), len(rows[0])
	data := make([]float32, n*attrs)
	for k, row := range rows {
		for a, v := range row {
			data[a*n+k] = v
		}
	}
	return tensor.New(tensor.WithShape(1, attrs, n), tensor.WithBacking(data))
}

// MockDetectorEngine answers the n-th call with outputs[n], repeating the last one.
type MockDetectorEngine struct {
	outputs []*tensor.Dense
	// failures makes the first calls fail with err.
	failures int
	err      error
	// onCall runs before every call.
	onCall func(call int)
	calls  int
}

func (m *MockDetectorEngine) Run(_ context.Context, _ map[string]*tensor.Dense) (map[string]*tensor.Dense, error) {
	call := m.calls
	m.calls++
	if m.onCall != nil {
		m.onCall(call)
	}
	if call < m.failures {
		return nil, m.err
	}
	i := call - m.failures
	if i >= len(m.outputs) {
		i = len(m.outputs) - 1
	}
	return map[string]*tensor.Dense{"output0": m.outputs[i]}, nil
}

func (m *MockDetectorEngine) Close() error {
	return nil
}

// MockSegmenterEngine returns an all-ones grid for bright patches and an
// all-zeros grid otherwise. Bright patches answer late.
type MockSegmenterEngine struct {
	calls atomic.Int32
	delay time.Duration
}

func (m *MockSegmenterEngine) Run(_ context.Context, in map[string]*tensor.Dense) (map[string]*tensor.Dense, error) {
	m.calls.Add(1)
	patch := in["input_1"].Data().([]float32)
	var sum float32
	for _, v := range patch {
		sum += v
	}
	value := float32(0)
	if sum/float32(len(patch)) > 0.5 {
		value = 1
		time.Sleep(m.delay)
	}
	grid := make([]float32, len(patch))
	for i := range grid {
		grid[i] = value
	}
	return map[string]*tensor.Dense{
		"output": tensor.New(tensor.WithShape(1, 1, 16, 16), tensor.WithBacking(grid)),
	}, nil
}

func (m *MockSegmenterEngine) Close() error {
	return nil
}

func newTestCascade(t *testing.T, det, seg inference.Engine, labels []string, opts Options) *Cascade {
	t.Helper()
	detSpec, err := models.NewDetectorSpec(model.ModelNameYOLOv8, "detector.onnx")
	require.NoError(t, err)
	d, err := detector.New(det, detSpec, detector.Config{
		Labels:              labels,
		ConfidenceThreshold: postprocess.DefaultConfidenceThreshold,
		NMS:                 postprocess.DefaultNMSConfig(),
	})
	require.NoError(t, err)

	segSpec, err := models.NewSegmenterSpec(model.ModelNameUNet16, "segmenter.onnx")
	require.NoError(t, err)
	s, err := detector.NewSegmenter(seg, segSpec)
	require.NoError(t, err)

	c, err := New(d, s, opts, nil, profiler.New(0))
	require.NoError(t, err)
	return c
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Overlay = images.Overlay{Color: color.NRGBA{R: 255, A: 255}, Opacity: 0.7, Threshold: 0.5}
	opts.RetryInterval = time.Millisecond
	return opts
}

// halfWhite returns a size x size black image whose left half is white.
func halfWhite(size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, color.NRGBA{A: 255})
			if x < size/2 {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
	}
	return img
}

func missOutput() *tensor.Dense {
	return planarOutput([]float32{256, 256, 100, 100, 0.1, 0.2})
}

func TestNew_RequiresStages(t *testing.T) {
	_, err := New(nil, nil, DefaultOptions(), nil, nil)
	assert.Error(t, err)
}

func TestCascade_Run(t *testing.T) {
	det := &MockDetectorEngine{outputs: []*tensor.Dense{planarOutput(
		[]float32{384, 256, 100, 100, 0.8, 0.1}, // over the black half
		[]float32{128, 256, 100, 100, 0.9, 0.1}, // over the white half
	)}}
	seg := &MockSegmenterEngine{delay: 20 * time.Millisecond}
	opts := testOptions()
	opts.Workers = 2
	c := newTestCascade(t, det, seg, models.EyeClasses.Labels(), opts)

	res, err := c.Run(context.Background(), halfWhite(512))
	require.NoError(t, err)

	require.Len(t, res.Boxes, 2)
	assert.Equal(t, float32(0.9), res.Boxes[0].Confidence)
	assert.Equal(t, "eye1", res.Boxes[0].Label)
	assert.Equal(t, images.Rect{X1: 78, Y1: 206, X2: 178, Y2: 306}, res.Regions[0])
	assert.Equal(t, images.Rect{X1: 334, Y1: 206, X2: 434, Y2: 306}, res.Regions[1])

	// The slow bright box finishes last but keeps its own mask.
	assert.Equal(t, []int{100 * 100, 0}, res.Painted)
	assert.Equal(t, int32(2), seg.calls.Load())

	painted := res.Image.RGBAAt(128, 256)
	assert.Equal(t, uint8(255), painted.R)
	assert.InDelta(t, 77, int(painted.G), 1)
	assert.Equal(t, color.RGBA{A: 255}, res.Image.RGBAAt(384, 256))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, res.Image.RGBAAt(10, 10))

	var stages []string
	for _, s := range res.Timings {
		stages = append(stages, s.Name)
	}
	assert.Subset(t, stages, []string{
		profiler.StagePrepare, profiler.StageDetect, profiler.StageDecode,
		profiler.StageSuppress, profiler.StageSegment, profiler.StageComposite,
	})
}

func TestCascade_RunDrawsBoxes(t *testing.T) {
	det := &MockDetectorEngine{outputs: []*tensor.Dense{planarOutput(
		[]float32{128, 256, 100, 100, 0.9, 0.1},
	)}}
	opts := testOptions()
	opts.Boxes = true
	c := newTestCascade(t, det, &MockSegmenterEngine{}, models.EyeClasses.Labels(), opts)

	res, err := c.Run(context.Background(), halfWhite(512))
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{G: 255, A: 255}, res.Image.RGBAAt(78, 206))
	assert.Equal(t, color.RGBA{G: 255, A: 255}, res.Image.RGBAAt(177, 305))
	assert.NotEqual(t, color.RGBA{G: 255, A: 255}, res.Image.RGBAAt(128, 256))
}

func TestCascade_RunNoDetections(t *testing.T) {
	det := &MockDetectorEngine{outputs: []*tensor.Dense{missOutput()}}
	seg := &MockSegmenterEngine{}
	c := newTestCascade(t, det, seg, models.EyeClasses.Labels(), testOptions())

	img := halfWhite(64)
	res, err := c.Run(context.Background(), img)
	require.NoError(t, err)
	assert.Empty(t, res.Boxes)
	assert.Empty(t, res.Painted)
	assert.Equal(t, int32(0), seg.calls.Load())
	assert.Equal(t, images.NewSurface(img).Image().Pix, res.Image.Pix)
}

func TestCascade_RunCancelled(t *testing.T) {
	det := &MockDetectorEngine{outputs: []*tensor.Dense{missOutput()}}
	c := newTestCascade(t, det, &MockSegmenterEngine{}, models.EyeClasses.Labels(), testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Run(ctx, halfWhite(64))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, det.calls)
}

func TestCascade_Retry(t *testing.T) {
	engineErr := &inference.Error{Op: "run", Model: "detector.onnx", Err: errors.New("device busy")}

	tests := []struct {
		name      string
		retries   int
		failures  int
		err       error
		output    *tensor.Dense
		wantCalls int
		target    error
	}{
		{"Recovers after transient failures", 2, 2, engineErr, missOutput(), 3, nil},
		{"Gives up after the last attempt", 1, 5, engineErr, missOutput(), 2, inference.ErrInference},
		{"No retries configured", 0, 5, engineErr, missOutput(), 1, inference.ErrInference},
		{"Other errors are permanent", 3, 5, errors.New("bad input"), missOutput(), 1, nil},
		{"Malformed output is not retried", 3, 0, nil, tensor.New(tensor.WithShape(1, 5, 2), tensor.WithBacking(make([]float32, 10))), 1, postprocess.ErrMalformedTensor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := &MockDetectorEngine{outputs: []*tensor.Dense{tt.output}, failures: tt.failures, err: tt.err}
			opts := testOptions()
			opts.Retries = tt.retries
			c := newTestCascade(t, det, &MockSegmenterEngine{}, models.EyeClasses.Labels(), opts)

			_, err := c.Run(context.Background(), halfWhite(64))
			assert.Equal(t, tt.wantCalls, det.calls)
			switch {
			case tt.target != nil:
				assert.True(t, errors.Is(err, tt.target), "got %v", err)
			case tt.failures > tt.retries:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}
