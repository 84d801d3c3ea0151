package controller

import (
	"context"
	"image"

	"go.uber.org/zap"

	"github.com/nvr-ai/go-cascade/common"
	"github.com/nvr-ai/go-cascade/images"
	"github.com/nvr-ai/go-cascade/profiler"
)

// ScanState is a step of the volumetric scan.
type ScanState int

const (
	// ScanIdle precedes the first slice.
	ScanIdle ScanState = iota
	// ScanSlice runs detection on one slice composite.
	ScanSlice
	// ScanSegment segments the accepted detection.
	ScanSegment
	// ScanComposite paints the mask onto the slice.
	ScanComposite
	// ScanDone is terminal: a detection was accepted and composited.
	ScanDone
	// ScanNoResult ends a scan that exhausted its slices without a detection.
	ScanNoResult
)

func (s ScanState) String() string {
	switch s {
	case ScanIdle:
		return "idle"
	case ScanSlice:
		return "scan-slice"
	case ScanSegment:
		return "run-segmentation"
	case ScanComposite:
		return "composite"
	case ScanDone:
		return "done"
	case ScanNoResult:
		return "no-result"
	default:
		return "unknown"
	}
}

// ScanResult is the outcome of a volumetric scan.
type ScanResult struct {
	// State is ScanDone or ScanNoResult.
	State ScanState
	// States traces every transition, starting with ScanIdle.
	States []ScanState
	// Visited lists the slices decoded, in order.
	Visited []int
	// Slice is the slice of the accepted detection, or -1.
	Slice int
	// Box is the accepted detection, nil without a result.
	Box *common.BoundingBox
	// Region is the crop region of Box.
	Region images.Rect
	// Painted is the number of mask pixels painted.
	Painted int
	// Image is the grayscale slice with the mask composited, nil without a result.
	Image *image.RGBA
	// Timings is a snapshot of the profiler after the scan.
	Timings []profiler.Stats
}

func (r *ScanResult) enter(s ScanState) {
	r.State = s
	r.States = append(r.States, s)
}

// Scan searches vol slice by slice and segments the first detection found.
//
// Slices z = 1 .. Depth-2 are visited in increasing order. Each slice is
// detected on the composite of slices z-1, z and z+1, keeping only the best
// box. The first slice with a detection is segmented on its grayscale image,
// the mask is composited and the scan stops: later slices are never decoded.
// Cancellation is checked between slices.
//
// Arguments:
//   - ctx: The scan context.
//   - vol: The volume.
//
// Returns:
//   - *ScanResult: The outcome, ScanNoResult when no slice yields a detection.
//   - error: An inference error, postprocess.ErrMalformedTensor or the context error.
func (c *Cascade) Scan(ctx context.Context, vol *images.Volume) (*ScanResult, error) {
	res := &ScanResult{Slice: -1}
	res.enter(ScanIdle)

	for z := 1; z <= vol.Depth-2; z++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.enter(ScanSlice)
		res.Visited = append(res.Visited, z)

		composite, err := vol.Composite(z)
		if err != nil {
			return nil, err
		}
		boxes, mapper, err := c.detect(ctx, composite, 1)
		if err != nil {
			return nil, err
		}
		c.log.Debug("slice scanned", zap.Int("slice", z), zap.Int("boxes", len(boxes)))
		if len(boxes) == 0 {
			continue
		}

		box := boxes[0]
		res.Slice = z
		res.Box = &box
		res.Region = mapper.CropRegion(box)
		c.log.Info("detection accepted",
			zap.Int("slice", z),
			zap.Stringer("box", box),
		)

		res.enter(ScanSegment)
		background := vol.SliceImage(z)
		grids, err := c.segmentAll(ctx, background, []images.Rect{res.Region})
		if err != nil {
			return nil, err
		}

		res.enter(ScanComposite)
		surface := images.NewSurface(background)
		painted, err := c.composite(ctx, surface, boxes, []images.Rect{res.Region}, grids)
		if err != nil {
			return nil, err
		}
		res.Painted = painted[0]
		res.Image = surface.Image()

		res.enter(ScanDone)
		res.Timings = c.prof.Snapshot()
		return res, nil
	}

	res.enter(ScanNoResult)
	res.Timings = c.prof.Snapshot()
	c.log.Info("scan finished without a detection", zap.Int("slices", len(res.Visited)))
	return res, nil
}
