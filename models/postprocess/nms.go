package postprocess

import (
	"cmp"
	"slices"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-cascade/common"
)

// DefaultIoUThreshold is the overlap at which a lower-confidence box is suppressed.
const DefaultIoUThreshold float32 = 0.7

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// IoUThreshold suppresses a box whose IoU with a kept box is >= this value.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold" koanf:"iouthreshold"`
	// ClassAware suppresses only within the same class when true.
	ClassAware bool `json:"class_aware" yaml:"class_aware" koanf:"classaware"`
	// Limit caps the number of kept boxes. Zero keeps all.
	Limit int `json:"limit" yaml:"limit" koanf:"limit"`
}

// DefaultNMSConfig returns class-agnostic suppression at DefaultIoUThreshold.
func DefaultNMSConfig() NMSConfig {
	return NMSConfig{IoUThreshold: DefaultIoUThreshold}
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Items are stably sorted by descending confidence, so equal confidences keep
// their input order. The highest remaining item is kept and every remaining
// item overlapping it with IoU >= the threshold is dropped, until none remain.
// Items with a NaN confidence are discarded before sorting.
//
// Arguments:
//   - items: Candidates or boxes, in any order. The slice is not modified.
//   - config: NMS configuration.
//
// Returns:
//   - []T: The kept items, confidence descending.
func ApplyGreedyNMS[T common.Boxed](items []T, config NMSConfig) []T {
	sorted := make([]T, 0, len(items))
	for _, it := range items {
		if !math32.IsNaN(it.Bounds().Confidence) {
			sorted = append(sorted, it)
		}
	}
	slices.SortStableFunc(sorted, func(a, b T) int {
		return cmp.Compare(b.Bounds().Confidence, a.Bounds().Confidence)
	})

	n := len(sorted)
	filtered := make([]T, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}
		anchor := sorted[i].Bounds()
		filtered = append(filtered, sorted[i])
		if config.Limit > 0 && len(filtered) == config.Limit {
			break
		}

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			other := sorted[j].Bounds()
			if config.ClassAware && anchor.ClassID != other.ClassID {
				continue
			}
			if common.IoU(anchor, other) >= config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
