// Package main - Command line runner for the detect then segment cascade.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"

	"github.com/disintegration/imaging"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-cascade/config"
	"github.com/nvr-ai/go-cascade/controller"
	"github.com/nvr-ai/go-cascade/detector"
	"github.com/nvr-ai/go-cascade/images"
	"github.com/nvr-ai/go-cascade/inference"
	"github.com/nvr-ai/go-cascade/inference/cvdnn"
	"github.com/nvr-ai/go-cascade/logger"
	"github.com/nvr-ai/go-cascade/profiler"
	"github.com/nvr-ai/go-cascade/util"
)

// DefaultOutputPath is where the composite is written when -out is not set.
const DefaultOutputPath = "cascade.png"

type flags struct {
	config  string
	envFile string
	image   string
	slices  string
	out     string
	workers int
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&f.envFile, "env", ".env", "Path to a .env file; missing files are ignored")
	flag.StringVar(&f.image, "image", "", "Image to run the 2-D cascade on")
	flag.StringVar(&f.slices, "slices", "", "Directory of slice-N images to scan as a volume")
	flag.StringVar(&f.out, "out", DefaultOutputPath, "Output PNG for the composite")
	flag.IntVar(&f.workers, "workers", 0, "Concurrent segmentation calls; 0 keeps the configured value")
	flag.Parse()

	if (f.image == "") == (f.slices == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -image or -slices is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f); err != nil {
		fmt.Fprintf(os.Stderr, "cascade: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	if err := godotenv.Load(f.envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return errors.Wrapf(err, "load %s", f.envFile)
	}

	overrides := map[string]any{}
	if f.workers > 0 {
		overrides["cascade.workers"] = f.workers
	}
	cfg, err := config.Load(f.config, overrides)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cascade, closeEngines, err := build(cfg, log)
	if err != nil {
		return err
	}
	defer closeEngines()

	if f.image != "" {
		return runImage(ctx, cascade, log, f.image, f.out)
	}
	return runSlices(ctx, cascade, log, f.slices, f.out)
}

// build wires the engines, the stages and the orchestrator described by cfg.
func build(cfg config.Config, log *zap.Logger) (*controller.Cascade, func(), error) {
	detSpec, err := cfg.DetectorSpec()
	if err != nil {
		return nil, nil, err
	}
	segSpec, err := cfg.SegmenterSpec()
	if err != nil {
		return nil, nil, err
	}
	labels, err := cfg.Labels()
	if err != nil {
		return nil, nil, err
	}
	opts, err := cascadeOptions(cfg)
	if err != nil {
		return nil, nil, err
	}

	detEngine, err := newEngine(cfg, detSpec.Path, detSpec.Input, detSpec.Output)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load detector")
	}
	segEngine, err := newEngine(cfg, segSpec.Path, segSpec.Input, segSpec.Output)
	if err != nil {
		_ = detEngine.Close()
		return nil, nil, errors.Wrap(err, "load segmenter")
	}
	closeEngines := func() {
		for _, e := range []inference.Engine{detEngine, segEngine} {
			if err := e.Close(); err != nil {
				log.Warn("close engine", zap.Error(err))
			}
		}
	}

	det, err := detector.New(detEngine, detSpec, detector.Config{
		Labels:              labels,
		ConfidenceThreshold: cfg.Detector.ConfidenceThreshold,
		NMS:                 cfg.Detector.NMS,
	})
	if err != nil {
		closeEngines()
		return nil, nil, err
	}
	seg, err := detector.NewSegmenter(segEngine, segSpec)
	if err != nil {
		closeEngines()
		return nil, nil, err
	}
	cascade, err := controller.New(det, seg, opts, log, profiler.New(0))
	if err != nil {
		closeEngines()
		return nil, nil, err
	}

	log.Info("cascade ready",
		zap.String("engine", string(cfg.Engine)),
		zap.String("detector", detSpec.Path),
		zap.String("layout", string(detSpec.Layout)),
		zap.Strings("labels", labels),
		zap.String("segmenter", segSpec.Path),
	)
	return cascade, closeEngines, nil
}

// newEngine loads one model with the configured engine.
func newEngine(cfg config.Config, path, input, output string) (inference.Engine, error) {
	if cfg.Engine == inference.EngineOpenCV {
		e, err := cvdnn.New(cvdnn.Config{
			ModelPath: path,
			Inputs:    []string{input},
			Outputs:   []string{output},
			Backend:   cfg.OpenCV.Backend,
			Target:    cfg.OpenCV.Target,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	s, err := inference.NewSession(inference.NewSessionArgs{
		ModelPath: path,
		Inputs:    []string{input},
		Outputs:   []string{output},
		Provider:  cfg.Provider,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// cascadeOptions maps the configuration onto orchestrator options.
func cascadeOptions(cfg config.Config) (controller.Options, error) {
	overlay, err := cfg.Overlay()
	if err != nil {
		return controller.Options{}, err
	}
	boxColor, err := images.ParseColor(cfg.Render.BoxColor)
	if err != nil {
		return controller.Options{}, err
	}
	return controller.Options{
		Workers:       cfg.Cascade.Workers,
		Retries:       cfg.Cascade.Retries,
		RetryInterval: cfg.Cascade.RetryInterval,
		Overlay:       overlay,
		Boxes:         cfg.Render.Boxes,
		BoxColor:      boxColor,
		BoxThickness:  cfg.Render.BoxThickness,
	}, nil
}

func runImage(ctx context.Context, c *controller.Cascade, log *zap.Logger, path, out string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read image")
	}
	img, err := images.Decode(data)
	if err != nil {
		return err
	}

	res, err := c.Run(ctx, img)
	if err != nil {
		return err
	}
	for i, b := range res.Boxes {
		log.Info("box",
			zap.Int("index", i),
			zap.Stringer("box", b),
			zap.Int("painted", res.Painted[i]),
		)
	}
	logTimings(log, res.Timings)
	return save(log, res.Image, out)
}

func runSlices(ctx context.Context, c *controller.Cascade, log *zap.Logger, dir, out string) error {
	vol, err := util.LoadSliceDirectory(dir)
	if err != nil {
		return err
	}
	log.Info("volume loaded",
		zap.Int("width", vol.Width),
		zap.Int("height", vol.Height),
		zap.Int("depth", vol.Depth),
	)

	res, err := c.Scan(ctx, vol)
	if err != nil {
		return err
	}
	logTimings(log, res.Timings)
	if res.State != controller.ScanDone {
		log.Info("no detection in volume", zap.Ints("visited", res.Visited))
		return nil
	}
	log.Info("volume result",
		zap.Int("slice", res.Slice),
		zap.Stringer("box", res.Box),
		zap.Int("painted", res.Painted),
	)
	return save(log, res.Image, out)
}

func logTimings(log *zap.Logger, stats []profiler.Stats) {
	for _, s := range stats {
		log.Debug("stage timing",
			zap.String("stage", s.Name),
			zap.Int64("count", s.Count),
			zap.Duration("mean", s.Mean),
			zap.Duration("max", s.Max),
		)
	}
}

func save(log *zap.Logger, img image.Image, out string) error {
	if err := imaging.Save(img, out); err != nil {
		return errors.Wrapf(err, "save %s", out)
	}
	log.Info("composite written", zap.String("path", out))
	return nil
}
