package controller

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-cascade/images"
	"github.com/nvr-ai/go-cascade/models"
)

var (
	organHit  = []float32{256, 256, 128, 128, 0.9}
	organMiss = []float32{256, 256, 128, 128, 0.1}
)

func uniformVolume(t *testing.T, size, depth int) *images.Volume {
	t.Helper()
	data := make([]float32, size*size*depth)
	for i := range data {
		data[i] = 1
	}
	vol, err := images.NewVolume(size, size, depth, data)
	require.NoError(t, err)
	return vol
}

func TestScan_StopsAtFirstDetection(t *testing.T) {
	for _, depth := range []int{5, 8} {
		det := &MockDetectorEngine{outputs: []*tensor.Dense{
			planarOutput(organMiss), // slice 1
			planarOutput(organMiss), // slice 2
			planarOutput(organHit),  // slice 3
			planarOutput(organMiss),
		}}
		seg := &MockSegmenterEngine{}
		c := newTestCascade(t, det, seg, models.OrganClasses.Labels(), testOptions())

		res, err := c.Scan(context.Background(), uniformVolume(t, 64, depth))
		require.NoError(t, err)

		assert.Equal(t, ScanDone, res.State)
		assert.Equal(t, []ScanState{ScanIdle, ScanSlice, ScanSlice, ScanSlice, ScanSegment, ScanComposite, ScanDone}, res.States)
		assert.Equal(t, []int{1, 2, 3}, res.Visited, "depth %d", depth)
		assert.Equal(t, 3, det.calls, "depth %d", depth)
		assert.Equal(t, 3, res.Slice)

		require.NotNil(t, res.Box)
		assert.Equal(t, "organ", res.Box.Label)
		assert.Equal(t, images.Rect{X1: 24, Y1: 24, X2: 40, Y2: 40}, res.Region)
		assert.Equal(t, 16*16, res.Painted)
		assert.Equal(t, int32(1), seg.calls.Load())

		require.NotNil(t, res.Image)
		assert.Equal(t, 64, res.Image.Bounds().Dx())
		inside := res.Image.RGBAAt(30, 30)
		assert.Equal(t, uint8(255), inside.R)
		assert.InDelta(t, 77, int(inside.G), 1)
		outside := res.Image.RGBAAt(5, 5)
		assert.Equal(t, outside.R, outside.G)
	}
}

func TestScan_NoResult(t *testing.T) {
	tests := []struct {
		name    string
		depth   int
		visited []int
	}{
		{"Exhausts the range", 5, []int{1, 2, 3}},
		{"Too shallow to scan", 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := &MockDetectorEngine{outputs: []*tensor.Dense{planarOutput(organMiss)}}
			seg := &MockSegmenterEngine{}
			c := newTestCascade(t, det, seg, models.OrganClasses.Labels(), testOptions())

			res, err := c.Scan(context.Background(), uniformVolume(t, 32, tt.depth))
			require.NoError(t, err)
			assert.Equal(t, ScanNoResult, res.State)
			assert.Equal(t, tt.visited, res.Visited)
			assert.Equal(t, len(tt.visited), det.calls)
			assert.Equal(t, -1, res.Slice)
			assert.Nil(t, res.Box)
			assert.Nil(t, res.Image)
			assert.Equal(t, int32(0), seg.calls.Load())
		})
	}
}

func TestScan_CancelledBetweenSlices(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	det := &MockDetectorEngine{
		outputs: []*tensor.Dense{planarOutput(organMiss)},
		onCall:  func(int) { cancel() },
	}
	c := newTestCascade(t, det, &MockSegmenterEngine{}, models.OrganClasses.Labels(), testOptions())

	_, err := c.Scan(ctx, uniformVolume(t, 32, 6))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, det.calls)
}

func TestScanState_String(t *testing.T) {
	assert.Equal(t, "scan-slice", ScanSlice.String())
	assert.Equal(t, "run-segmentation", ScanSegment.String())
	assert.Equal(t, "no-result", ScanNoResult.String())
	assert.Equal(t, "unknown", ScanState(42).String())
}
