package scanner

import (
	"time"

	"github.com/abihf/camgate/async"
	"github.com/abihf/camgate/capture"
	"github.com/abihf/camgate/detect"
	"github.com/abihf/camgate/motion"
	"github.com/abihf/camgate/quality"
)

type FaceConfig struct {
	Thresholds quality.Thresholds `json:"thresholds"`
	Motion     motion.Config      `json:"motion"`
}

func DefaultFaceConfig() FaceConfig {
	return FaceConfig{
		Thresholds: quality.DefaultThresholds(),
		Motion:     motion.DefaultConfig(),
	}
}

// FaceOutput is the evaluation of one frame.
type FaceOutput struct {
	Detections []detect.Detection
	IsValid    bool
	// Verdict and Motion are only set when exactly one face was found.
	Verdict   quality.Verdict
	Motion    *motion.Result
	Focusing  bool
	Score     float64
	Timestamp time.Time
}

func (o FaceOutput) Quality() float64 { return o.Score }

// HasMotionBlur reports whether the subject was not yet stable. Frames with
// no single face count as blurred.
func (o FaceOutput) HasMotionBlur() bool {
	return o.Motion == nil || o.Motion.HasMotionBlur
}

type Metrics struct {
	Frames        int
	Valid         int
	NoFace        int
	MultipleFaces int
	Focusing      int
}

// FaceScanner validates single-face frames.
type FaceScanner struct {
	cfg     FaceConfig
	blur    *motion.Detector
	metrics Metrics
}

var _ Scanner[FaceOutput] = (*FaceScanner)(nil)

func NewFaceScanner(cfg FaceConfig) *FaceScanner {
	return &FaceScanner{
		cfg:  cfg,
		blur: motion.NewDetector(cfg.Motion),
	}
}

func (s *FaceScanner) ScanImage(frame *capture.Frame, detections []detect.Detection, props *capture.DeviceProperties) *async.Result[FaceOutput] {
	return async.Resolved(s.Scan(frame, detections, props))
}

// Scan is the synchronous form of ScanImage.
func (s *FaceScanner) Scan(frame *capture.Frame, detections []detect.Detection, props *capture.DeviceProperties) FaceOutput {
	s.metrics.Frames++
	out := FaceOutput{
		Detections: detections,
		Focusing:   props != nil && props.IsAdjustingFocus,
	}
	if frame != nil {
		out.Timestamp = frame.Timestamp
	}

	switch len(detections) {
	case 0:
		s.metrics.NoFace++
		s.blur.Reset()
		return out
	case 1:
	default:
		s.metrics.MultipleFaces++
		s.blur.Reset()
		return out
	}

	face := detections[0]
	out.Score = face.Score
	out.Verdict = quality.Face(face.Box, s.cfg.Thresholds)
	m := s.blur.Determine(face.Box, out.Timestamp)
	out.Motion = &m

	if out.Focusing {
		s.metrics.Focusing++
	}
	out.IsValid = !out.Focusing && out.Verdict.Valid()
	if out.IsValid {
		s.metrics.Valid++
	}
	return out
}

func (s *FaceScanner) Reset() {
	s.blur.Reset()
	s.metrics = Metrics{}
}

func (s *FaceScanner) Metrics() Metrics { return s.metrics }
