// Package controller - Orchestration of the detect then segment cascade.
package controller

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-cascade/common"
	"github.com/nvr-ai/go-cascade/detector"
	"github.com/nvr-ai/go-cascade/images"
	"github.com/nvr-ai/go-cascade/inference"
	"github.com/nvr-ai/go-cascade/profiler"
)

// Options configures a Cascade.
type Options struct {
	// Workers bounds concurrent segmentation calls. Values below 1 run one at a time.
	Workers int
	// Retries is the number of extra attempts for an inference call that
	// failed with inference.ErrInference.
	Retries int
	// RetryInterval is the initial exponential backoff interval.
	RetryInterval time.Duration
	// Overlay is the mask paint.
	Overlay images.Overlay
	// Boxes draws box outlines after the masks.
	Boxes        bool
	BoxColor     color.NRGBA
	BoxThickness int
}

// DefaultOptions returns sequential segmentation with no retries.
func DefaultOptions() Options {
	return Options{
		Workers:       1,
		RetryInterval: 100 * time.Millisecond,
		Overlay:       images.DefaultOverlay(),
		BoxColor:      color.NRGBA{G: 255, A: 255},
		BoxThickness:  2,
	}
}

// Result is the outcome of a 2-D cascade run.
type Result struct {
	// Boxes are the detections, confidence descending.
	Boxes []common.BoundingBox
	// Regions holds the crop region of each box.
	Regions []images.Rect
	// Painted holds the number of pixels painted for each box.
	Painted []int
	// Image is the composited surface.
	Image *image.RGBA
	// Timings is a snapshot of the profiler after the run.
	Timings []profiler.Stats
}

// Cascade chains a region detector and a region segmenter.
//
// A Cascade may serve several runs concurrently when its engines allow it;
// each run owns its own surface.
type Cascade struct {
	detector  *detector.Detector
	segmenter *detector.Segmenter
	opts      Options
	log       *zap.Logger
	prof      *profiler.Profiler
}

// New creates a cascade.
//
// Arguments:
//   - det: The region detector.
//   - seg: The region segmenter.
//   - opts: The orchestration options.
//   - log: The logger. Nil discards logs.
//   - prof: The stage profiler. Nil creates a private one.
//
// Returns:
//   - *Cascade: The cascade.
//   - error: An error if a stage is missing.
func New(det *detector.Detector, seg *detector.Segmenter, opts Options, log *zap.Logger, prof *profiler.Profiler) (*Cascade, error) {
	if det == nil || seg == nil {
		return nil, errors.New("cascade needs a detector and a segmenter")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	if prof == nil {
		prof = profiler.New(0)
	}
	return &Cascade{detector: det, segmenter: seg, opts: opts, log: log, prof: prof}, nil
}

// Run detects regions in img, segments every region and composites the masks.
//
// Boxes are segmented concurrently up to Options.Workers, but masks are
// composited sequentially in box order, so overlapping regions resolve the
// same way as a sequential run. Cancellation is checked between boxes; an
// inference call in flight is never interrupted by the cascade itself.
//
// Arguments:
//   - ctx: The run context.
//   - img: The full-resolution image.
//
// Returns:
//   - *Result: The boxes and the composite. No detections is not an error.
//   - error: An inference error, postprocess.ErrMalformedTensor or the context error.
func (c *Cascade) Run(ctx context.Context, img image.Image) (*Result, error) {
	src := img
	if img.Bounds().Min != (image.Point{}) {
		src = images.NewSurface(img).Image()
	}
	surface := images.NewSurface(src)

	boxes, mapper, err := c.detect(ctx, src, 0)
	if err != nil {
		return nil, err
	}

	regions := make([]images.Rect, len(boxes))
	for i, b := range boxes {
		regions[i] = mapper.CropRegion(b)
	}

	grids, err := c.segmentAll(ctx, src, regions)
	if err != nil {
		return nil, err
	}

	painted, err := c.composite(ctx, surface, boxes, regions, grids)
	if err != nil {
		return nil, err
	}

	return &Result{
		Boxes:   boxes,
		Regions: regions,
		Painted: painted,
		Image:   surface.Image(),
		Timings: c.prof.Snapshot(),
	}, nil
}

// detect runs the detection stage on img. A positive limit caps the boxes kept.
func (c *Cascade) detect(ctx context.Context, img image.Image, limit int) ([]common.BoundingBox, common.Mapper, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Mapper{}, err
	}
	b := img.Bounds()
	mapper, err := c.detector.Mapper(b.Dx(), b.Dy())
	if err != nil {
		return nil, common.Mapper{}, err
	}

	done := c.prof.StartOperation(profiler.StagePrepare)
	input, err := c.detector.Prepare(img)
	done()
	if err != nil {
		return nil, mapper, err
	}

	done = c.prof.StartOperation(profiler.StageDetect)
	output, err := retry(ctx, c, profiler.StageDetect, func() (*tensor.Dense, error) {
		return c.detector.Infer(ctx, input)
	})
	done()
	if err != nil {
		return nil, mapper, err
	}

	done = c.prof.StartOperation(profiler.StageDecode)
	candidates, err := c.detector.Decode(output)
	done()
	if err != nil {
		return nil, mapper, err
	}

	done = c.prof.StartOperation(profiler.StageSuppress)
	kept := c.detector.Suppress(candidates, limit)
	done()

	boxes := make([]common.BoundingBox, len(kept))
	for i, k := range kept {
		boxes[i] = mapper.ToImage(k)
	}
	c.log.Debug("detection finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(boxes)),
	)
	return boxes, mapper, nil
}

// segmentAll segments every non-empty region of img with at most Workers calls in flight.
func (c *Cascade) segmentAll(ctx context.Context, img image.Image, regions []images.Rect) ([]images.Grid, error) {
	grids := make([]images.Grid, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, region := range regions {
		if region.Empty() {
			continue
		}
		g.Go(func() error {
			grid, err := c.segment(gctx, img, region)
			if err != nil {
				return errors.Wrapf(err, "segment box %d", i)
			}
			grids[i] = grid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return grids, nil
}

// segment runs the segmenter on one region.
func (c *Cascade) segment(ctx context.Context, img image.Image, region images.Rect) (images.Grid, error) {
	if err := ctx.Err(); err != nil {
		return images.Grid{}, err
	}
	done := c.prof.StartOperation(profiler.StageSegment)
	defer done()

	patch, err := c.segmenter.Prepare(img, region)
	if err != nil {
		return images.Grid{}, err
	}
	return retry(ctx, c, profiler.StageSegment, func() (images.Grid, error) {
		return c.segmenter.Infer(ctx, patch)
	})
}

// composite paints the grids in box order, then the outlines when enabled.
func (c *Cascade) composite(ctx context.Context, surface *images.Surface, boxes []common.BoundingBox, regions []images.Rect, grids []images.Grid) ([]int, error) {
	done := c.prof.StartOperation(profiler.StageComposite)
	defer done()

	painted := make([]int, len(boxes))
	for i := range boxes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		painted[i] = images.ProjectMask(surface, grids[i], regions[i], c.opts.Overlay)
		c.log.Debug("mask composited",
			zap.Stringer("box", boxes[i]),
			zap.Int("painted", painted[i]),
		)
	}
	if c.opts.Boxes {
		for _, r := range regions {
			surface.StrokeRect(r, c.opts.BoxColor, c.opts.BoxThickness)
		}
	}
	return painted, nil
}

// retry runs op, retrying inference failures with exponential backoff.
//
// Only errors matching inference.ErrInference are retried; context errors
// and every other error end the loop at once.
func retry[T any](ctx context.Context, c *Cascade, stage string, op func() (T, error)) (T, error) {
	if c.opts.Retries == 0 {
		return op()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryInterval

	res, err := backoff.Retry(ctx, func() (T, error) {
		res, err := op()
		if err == nil {
			return res, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
			!errors.Is(err, inference.ErrInference) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.opts.Retries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("retrying inference",
				zap.String("stage", stage),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return res, err
}
