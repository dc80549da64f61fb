// Package camgate captures a short burst of well framed, stable frames from a
// camera and reduces it to a capture batch for downstream verification.
package camgate

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/abihf/camgate/async"
	"github.com/abihf/camgate/capture"
	"github.com/abihf/camgate/detect"
	"github.com/abihf/camgate/sample"
	"github.com/abihf/camgate/scanner"
)

const (
	DefaultBurstSize = 5
	DefaultTimeout   = 10 * time.Second
)

// FrameSample is one evaluated frame.
type FrameSample struct {
	Image     *capture.Frame
	Output    scanner.FaceOutput
	Telemetry *capture.DeviceProperties
	Timestamp time.Time
}

func (s FrameSample) Quality() float64 { return s.Output.Score }

type Batch = sample.Batch[FrameSample]

type Options struct {
	// NewHardware opens the capture stack. It is called once per session, so
	// a camera fallback gets fresh hardware.
	NewHardware func() (capture.Hardware, error)
	Detector    detect.Detector
	Capture     capture.Configuration
	// Scanner defaults to a FaceScanner built from FaceConfig.
	Scanner    scanner.Scanner[scanner.FaceOutput]
	FaceConfig scanner.FaceConfig
	// BurstSize is the number of consecutive accepted frames that ends an
	// attempt early.
	BurstSize int
	Timeout   time.Duration
	// Fallback retries at the opposite position when no camera is found.
	Fallback bool
	Session  capture.Options
	Logger   *slog.Logger
	// OnFrame observes every evaluated frame on the session queue.
	OnFrame func(FrameSample)
	// AttemptID tags the attempt's log lines. A random UUID is used if empty.
	AttemptID string
}

func (o *Options) setDefaults() {
	if o.BurstSize < sample.MinSamples {
		o.BurstSize = DefaultBurstSize
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Scanner == nil {
		cfg := o.FaceConfig
		if cfg == (scanner.FaceConfig{}) {
			cfg = scanner.DefaultFaceConfig()
		}
		o.Scanner = scanner.NewFaceScanner(cfg)
	}
	if o.AttemptID == "" {
		o.AttemptID = uuid.NewString()
	}
	if o.Session.Logger == nil {
		o.Session.Logger = o.Logger
	}
}

// Capture runs one capture attempt. It returns ErrInsufficientSamples from
// the sample package when fewer than three frames were accepted in time.
func Capture(ctx context.Context, opts Options) (*Batch, error) {
	if opts.NewHardware == nil {
		return nil, errors.New("No capture hardware")
	}
	if opts.Detector == nil {
		return nil, errors.New("No detector")
	}
	opts.setDefaults()

	logger := opts.Logger.With("attempt", opts.AttemptID)
	opts.Session.Logger = opts.Session.Logger.With("attempt", opts.AttemptID)

	attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c := &collector{
		ctx:      attemptCtx,
		detector: opts.Detector,
		scanner:  opts.Scanner,
		burst:    opts.BurstSize,
		onFrame:  opts.OnFrame,
		logger:   logger,
		done:     async.New[[]FrameSample](),
	}
	c.scanner.Reset()

	session, err := openSession(attemptCtx, opts, opts.Capture.Position, c)
	if errors.Is(err, capture.ErrCaptureDeviceNotFound) && opts.Fallback {
		other := opts.Capture.Position.Opposite()
		logger.Info("Camera not found, trying the other side", "position", opts.Capture.Position, "fallback", other)
		session, err = openSession(attemptCtx, opts, other, c)
	}
	if err != nil {
		return nil, err
	}
	defer session.Close()

	if _, err := session.StartSession().Await(attemptCtx); err != nil {
		return nil, errors.Wrap(err, "Can not start capture")
	}
	logger.Debug("Capture started", "burst", opts.BurstSize, "timeout", opts.Timeout)

	select {
	case <-c.done.Done():
	case <-attemptCtx.Done():
		session.Queue().Execute(c.finish)
		<-c.done.Done()
	}
	session.StopSession()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples, _ := c.done.Value()
	batch, err := sample.Aggregate(samples)
	if err != nil {
		logger.Warn("Capture attempt failed", "accepted", len(samples), "error", err)
		return nil, err
	}
	logger.Info("Capture attempt done",
		"samples", batch.SampleCount,
		"best", batch.BestMiddle.Quality(),
		"quality_stddev", batch.QualityVariance,
		"dropped", session.Stats().DroppedFrames,
	)
	return batch, nil
}

func openSession(ctx context.Context, opts Options, pos capture.Position, c *collector) (*capture.Session, error) {
	hw, err := opts.NewHardware()
	if err != nil {
		return nil, errors.Wrap(err, "Can not open capture hardware")
	}
	session := capture.NewSession(hw, opts.Session)
	c.session = session

	cfg := opts.Capture
	cfg.Position = pos
	res, err := session.Configure(cfg, c.handle).Await(ctx)
	if err == nil {
		err = res.Err
	}
	if err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

// collector accumulates accepted frames. It only runs on the session queue.
type collector struct {
	ctx      context.Context
	session  *capture.Session
	detector detect.Detector
	scanner  scanner.Scanner[scanner.FaceOutput]
	burst    int
	onFrame  func(FrameSample)
	logger   *slog.Logger

	samples []FrameSample
	done    *async.Result[[]FrameSample]
}

func (c *collector) handle(frame *capture.Frame) {
	if c.done.Settled() {
		return
	}

	dets, err := c.detector.Detect(c.ctx, frame)
	if err != nil {
		if c.ctx.Err() == nil {
			c.logger.Warn("Detection failed", "seq", frame.Seq, "error", err)
		}
		return
	}
	props, _ := c.session.DeviceProperties()

	c.scanner.ScanImage(frame, dets, props).Observe(async.Immediate, func(out scanner.FaceOutput, err error) {
		if err != nil {
			c.logger.Warn("Scan failed", "seq", frame.Seq, "error", err)
			return
		}
		c.accept(FrameSample{
			Image:     frame,
			Output:    out,
			Telemetry: props,
			Timestamp: frame.Timestamp,
		})
	})
}

func (c *collector) accept(s FrameSample) {
	if c.onFrame != nil {
		c.onFrame(s)
	}

	switch {
	case len(s.Output.Detections) != 1:
		c.breakBurst("subject lost")
	case !s.Output.IsValid:
	case s.Output.HasMotionBlur():
		c.breakBurst("motion blur")
	default:
		c.samples = append(c.samples, s)
		if len(c.samples) >= c.burst {
			c.finish()
		}
	}
}

func (c *collector) breakBurst(reason string) {
	if len(c.samples) == 0 {
		return
	}
	c.logger.Debug("Burst interrupted", "reason", reason, "discarded", len(c.samples))
	c.samples = nil
}

func (c *collector) finish() {
	c.done.Resolve(append([]FrameSample(nil), c.samples...))
}
