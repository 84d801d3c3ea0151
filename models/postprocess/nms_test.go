package postprocess

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-cascade/common"
)

func box(x1, y1, x2, y2, conf float32, class int) common.BoundingBox {
	return common.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2, Confidence: conf, ClassID: class}
}

func TestApplyGreedyNMS(t *testing.T) {
	tests := []struct {
		name   string
		input  []common.BoundingBox
		config NMSConfig
		want   []common.BoundingBox
	}{
		{
			name: "Overlap across classes keeps the higher confidence",
			// IoU = 80 / 100 = 0.8.
			input:  []common.BoundingBox{box(0, 0, 10, 10, 0.90, 0), box(0, 0, 10, 8, 0.95, 1)},
			config: DefaultNMSConfig(),
			want:   []common.BoundingBox{box(0, 0, 10, 8, 0.95, 1)},
		},
		{
			name:   "Disjoint boxes both survive in confidence order",
			input:  []common.BoundingBox{box(0, 0, 10, 10, 0.55, 0), box(50, 50, 60, 60, 0.60, 0)},
			config: DefaultNMSConfig(),
			want:   []common.BoundingBox{box(50, 50, 60, 60, 0.60, 0), box(0, 0, 10, 10, 0.55, 0)},
		},
		{
			name: "IoU equal to threshold suppresses",
			// IoU = 50 / 100 = 0.5.
			input:  []common.BoundingBox{box(0, 0, 10, 10, 0.9, 0), box(0, 0, 10, 5, 0.8, 0)},
			config: NMSConfig{IoUThreshold: 0.5},
			want:   []common.BoundingBox{box(0, 0, 10, 10, 0.9, 0)},
		},
		{
			name:   "Class aware keeps overlapping boxes of other classes",
			input:  []common.BoundingBox{box(0, 0, 10, 10, 0.90, 0), box(0, 0, 10, 8, 0.95, 1)},
			config: NMSConfig{IoUThreshold: 0.7, ClassAware: true},
			want:   []common.BoundingBox{box(0, 0, 10, 8, 0.95, 1), box(0, 0, 10, 10, 0.90, 0)},
		},
		{
			name: "Ties keep input order",
			input: []common.BoundingBox{
				box(0, 0, 1, 1, 0.7, 0), box(10, 10, 11, 11, 0.7, 1), box(20, 20, 21, 21, 0.7, 2),
			},
			config: DefaultNMSConfig(),
			want: []common.BoundingBox{
				box(0, 0, 1, 1, 0.7, 0), box(10, 10, 11, 11, 0.7, 1), box(20, 20, 21, 21, 0.7, 2),
			},
		},
		{
			name:   "NaN confidence is discarded",
			input:  []common.BoundingBox{box(0, 0, 10, 10, math32.NaN(), 0), box(50, 50, 60, 60, 0.6, 0)},
			config: DefaultNMSConfig(),
			want:   []common.BoundingBox{box(50, 50, 60, 60, 0.6, 0)},
		},
		{
			name:   "Limit keeps only the best",
			input:  []common.BoundingBox{box(0, 0, 10, 10, 0.55, 0), box(50, 50, 60, 60, 0.60, 0)},
			config: NMSConfig{IoUThreshold: 0.7, Limit: 1},
			want:   []common.BoundingBox{box(50, 50, 60, 60, 0.60, 0)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyGreedyNMS(tt.input, tt.config))
		})
	}
}

func TestApplyGreedyNMS_Empty(t *testing.T) {
	assert.Empty(t, ApplyGreedyNMS([]common.Candidate{}, DefaultNMSConfig()))
	assert.Empty(t, ApplyGreedyNMS[common.Candidate](nil, DefaultNMSConfig()))
}

func TestApplyGreedyNMS_Candidates(t *testing.T) {
	in := []common.Candidate{
		{XC: 5, YC: 5, W: 10, H: 10, Confidence: 0.6},
		{XC: 5, YC: 5, W: 10, H: 10, Confidence: 0.8},
	}
	got := ApplyGreedyNMS(in, DefaultNMSConfig())
	require.Len(t, got, 1)
	assert.Equal(t, float32(0.8), got[0].Confidence)
	assert.Equal(t, float32(0.6), in[0].Confidence, "input order is untouched")
}

func TestApplyGreedyNMS_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	config := DefaultNMSConfig()

	for round := 0; round < 50; round++ {
		input := make([]common.BoundingBox, rng.Intn(40))
		for i := range input {
			x, y := rng.Float32()*100, rng.Float32()*100
			input[i] = box(x, y, x+5+rng.Float32()*30, y+5+rng.Float32()*30, rng.Float32(), rng.Intn(3))
		}
		got := ApplyGreedyNMS(input, config)

		assert.Equal(t, len(input) == 0, len(got) == 0)
		for i := range got {
			assert.Contains(t, input, got[i])
			if i > 0 {
				assert.GreaterOrEqual(t, got[i-1].Confidence, got[i].Confidence)
			}
			for j := i + 1; j < len(got); j++ {
				assert.Less(t, common.IoU(got[i], got[j]), config.IoUThreshold)
			}
		}
	}
}
