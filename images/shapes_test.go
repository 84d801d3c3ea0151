package images

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRect_Intersect validates intersections against image.Rectangle.
func TestRect_Intersect(t *testing.T) {
	testCases := []struct {
		name string
		r1   Rect
		r2   Rect
	}{
		{"No overlap", Rect{0, 0, 100, 100}, Rect{200, 200, 300, 300}},
		{"Partial overlap", Rect{0, 0, 100, 100}, Rect{50, 50, 150, 150}},
		{"Full overlap", Rect{50, 50, 150, 150}, Rect{50, 50, 150, 150}},
		{"One inside other", Rect{0, 0, 100, 100}, Rect{25, 25, 75, 75}},
		{"Touching edges", Rect{0, 0, 100, 100}, Rect{100, 0, 200, 100}},
		{"Negative coordinates", Rect{-100, -100, 0, 0}, Rect{-50, -50, 50, 50}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.r1.Intersect(tc.r2)
			expected := tc.r1.Rectangle().Intersect(tc.r2.Rectangle())
			if expected.Empty() {
				assert.Equal(t, Rect{}, got)
				return
			}
			assert.Equal(t, FromRectangle(expected), got)
			assert.Equal(t, expected.Dx()*expected.Dy(), got.Area())
		})
	}
}

func TestRect_Dimensions(t *testing.T) {
	tests := []struct {
		name  string
		r     Rect
		dx    int
		dy    int
		empty bool
	}{
		{"Regular", Rect{10, 20, 110, 70}, 100, 50, false},
		{"Zero width", Rect{10, 20, 10, 70}, 0, 50, true},
		{"Inverted", Rect{10, 20, 0, 0}, 0, 0, true},
		{"Single pixel", Rect{0, 0, 1, 1}, 1, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.dx, tt.r.Dx())
			assert.Equal(t, tt.dy, tt.r.Dy())
			assert.Equal(t, tt.empty, tt.r.Empty())
		})
	}
}

func TestFromRectangle_Canonicalizes(t *testing.T) {
	r := FromRectangle(image.Rectangle{Min: image.Pt(10, 10), Max: image.Pt(0, 0)})
	assert.Equal(t, Rect{0, 0, 10, 10}, r)
}
