package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIoU_Correctness validates the IoU implementation against known test cases
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		a        BoundingBox
		b        BoundingBox
		expected float32
	}{
		{
			name:     "Identical boxes",
			a:        BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			b:        BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			expected: 1.0,
		},
		{
			name:     "No overlap",
			a:        BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			b:        BoundingBox{X1: 200, Y1: 200, X2: 300, Y2: 300},
			expected: 0.0,
		},
		{
			name:     "Touching edges",
			a:        BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			b:        BoundingBox{X1: 100, Y1: 0, X2: 200, Y2: 100},
			expected: 0.0,
		},
		{
			name:     "Half overlap",
			a:        BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			b:        BoundingBox{X1: 50, Y1: 50, X2: 150, Y2: 150},
			expected: 0.142857, // 2500 / 17500
		},
		{
			name:     "One inside other",
			a:        BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			b:        BoundingBox{X1: 25, Y1: 25, X2: 75, Y2: 75},
			expected: 0.25,
		},
		{
			name:     "Fractional coordinates",
			a:        BoundingBox{X1: 0.5, Y1: 0.5, X2: 1.5, Y2: 1.5},
			b:        BoundingBox{X1: 1.0, Y1: 0.5, X2: 2.0, Y2: 1.5},
			expected: 1.0 / 3.0,
		},
		{
			name:     "Both degenerate",
			a:        BoundingBox{X1: 10, Y1: 10, X2: 10, Y2: 10},
			b:        BoundingBox{X1: 10, Y1: 10, X2: 10, Y2: 10},
			expected: 0.0,
		},
		{
			name:     "Inverted box",
			a:        BoundingBox{X1: 100, Y1: 100, X2: 0, Y2: 0},
			b:        BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IoU(tt.a, tt.b)
			assert.InDelta(t, tt.expected, got, 0.001)
			assert.False(t, math.IsNaN(float64(got)), "IoU must never be NaN")

			// IoU(A, B) should equal IoU(B, A)
			assert.Equal(t, got, IoU(tt.b, tt.a), "IoU not symmetric")
			assert.Equal(t, got, tt.a.IoU(tt.b))
		})
	}
}

func TestIoU_SelfIsOne(t *testing.T) {
	boxes := []BoundingBox{
		{X1: 0, Y1: 0, X2: 1, Y2: 1},
		{X1: -50, Y1: -20, X2: 30, Y2: 70},
		{X1: 0.25, Y1: 0.75, X2: 511.5, Y2: 400.125},
		{X1: 1000, Y1: 1000, X2: 1920, Y2: 1080},
	}
	for _, b := range boxes {
		assert.Greater(t, Area(b), float32(0))
		assert.Equal(t, float32(1), IoU(b, b), "box %v", b)
	}
}

func TestArea_NeverNegative(t *testing.T) {
	tests := []struct {
		name     string
		box      BoundingBox
		expected float32
	}{
		{"Regular", BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 50}, 5000},
		{"Zero width", BoundingBox{X1: 5, Y1: 0, X2: 5, Y2: 50}, 0},
		{"Inverted x", BoundingBox{X1: 10, Y1: 0, X2: 0, Y2: 50}, 0},
		{"Inverted both", BoundingBox{X1: 10, Y1: 10, X2: 0, Y2: 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Area(tt.box))
		})
	}
}

func TestIntersectionArea(t *testing.T) {
	a := BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
	b := BoundingBox{X1: 50, Y1: 50, X2: 150, Y2: 150}
	assert.Equal(t, float32(2500), IntersectionArea(a, b))
	assert.Equal(t, float32(2500), IntersectionArea(b, a))
	assert.Equal(t, float32(0), IntersectionArea(a, BoundingBox{X1: 200, Y1: 200, X2: 300, Y2: 300}))
}

func TestCandidate_Bounds(t *testing.T) {
	c := Candidate{XC: 100, YC: 50, W: 40, H: 20, Confidence: 0.9, ClassID: 1}
	b := c.Bounds()
	assert.Equal(t, BoundingBox{ClassID: 1, Confidence: 0.9, X1: 80, Y1: 40, X2: 120, Y2: 60}, b)
}
