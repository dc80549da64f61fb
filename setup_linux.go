package camgate

import (
	"context"
	"log/slog"

	"github.com/abihf/camgate/capture"
	"github.com/abihf/camgate/config"
	"github.com/abihf/camgate/detect"
	"github.com/abihf/camgate/scanner"
)

// OptionsFromConfig builds capture options for the V4L2 devices listed in
// conf. Every session gets its own V4L2 hardware.
func OptionsFromConfig(conf *config.Config, detector detect.Detector, logger *slog.Logger) (Options, error) {
	if logger == nil {
		logger = slog.Default()
	}
	devices, err := conf.V4L2Devices()
	if err != nil {
		return Options{}, err
	}
	pos, err := conf.CameraPosition()
	if err != nil {
		return Options{}, err
	}

	opts := Options{
		NewHardware: func() (capture.Hardware, error) {
			return capture.NewV4L2(devices, capture.V4L2Options{
				Logger:         logger,
				SkipDarkFrames: true,
			}), nil
		},
		Detector: detector,
		Capture: capture.Configuration{
			Position:  pos,
			FocusMode: capture.FocusContinuous,
			Preset:    capture.Preset(conf.Preset),
			Output: capture.OutputSettings{
				PixelFormat: conf.PixelFormat(),
				Width:       conf.Width,
				Height:      conf.Height,
			},
		},
		FaceConfig: scanner.FaceConfig{
			Thresholds: conf.Thresholds(),
			Motion:     conf.MotionConfig(),
		},
		BurstSize: conf.BurstSize,
		Timeout:   conf.CaptureTimeout(),
		Fallback:  true,
		Logger:    logger,
	}
	if conf.WorkerCPU != nil && *conf.WorkerCPU >= 0 {
		opts.Session.PinWorker = true
		opts.Session.WorkerCPU = *conf.WorkerCPU
	}
	return opts, nil
}

// StartDetector launches the detector helper named in conf.
func StartDetector(ctx context.Context, conf *config.Config, logger *slog.Logger) (*detect.Process, error) {
	return detect.StartProcess(ctx, detect.ProcessConfig{
		Command: conf.Detector,
		Args:    conf.DetectorArgs,
		Logger:  logger,
	})
}
