package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/errors"

	"github.com/abihf/camgate"
	"github.com/abihf/camgate/config"
	"github.com/abihf/camgate/scanner"
)

var conf = config.Load()

func main() {
	if err := mainE(); err != nil {
		fmt.Println(err)
	}
}

func mainE() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	detector, err := camgate.StartDetector(ctx, conf, nil)
	if err != nil {
		return errors.Wrap(err, "Can not initialize detector")
	}
	defer detector.Close()

	opts, err := camgate.OptionsFromConfig(conf, detector, nil)
	if err != nil {
		return err
	}
	opts.OnFrame = printFrame

	batch, err := camgate.Capture(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Batch: %d samples, best %.3f (index %d), stddev %.4f\n",
		batch.SampleCount, batch.BestMiddle.Quality(), batch.BestMiddleIndex, batch.QualityVariance)
	return nil
}

func printFrame(s camgate.FrameSample) {
	out := s.Output
	fmt.Printf("Frame %d at %s\n", s.Image.Seq, s.Timestamp.Format("15:04:05.000"))
	switch {
	case len(out.Detections) == 0:
		fmt.Println("	- No face detected")
		return
	case len(out.Detections) > 1:
		fmt.Printf("	- %d faces detected\n", len(out.Detections))
		return
	}
	fmt.Printf("  - Face (score: %.3f, coverage: %.3f) centered=%t edges=%t coverage=%t focusing=%t\n",
		out.Score, out.Verdict.Coverage, out.Verdict.Centered, out.Verdict.AwayFromEdges, out.Verdict.CoverageOK, out.Focusing)
	printMotion(out)
}

func printMotion(out scanner.FaceOutput) {
	if out.Motion == nil {
		return
	}
	iou := "-"
	if out.Motion.IOU != nil {
		iou = fmt.Sprintf("%.3f", *out.Motion.IOU)
	}
	fmt.Printf("  - Motion (iou: %s, frames: %d, stable: %s) blur=%t\n",
		iou, out.Motion.FrameCount, out.Motion.Duration, out.HasMotionBlur())
}
