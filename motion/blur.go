// Package motion flags frames captured while the subject was still moving.
//
// A Detector compares each frame's subject box against the previous one. A
// run of consecutive frames whose boxes overlap by at least MinIOU forms a
// streak; the subject counts as stable once the streak has lasted
// MinDuration. Any frame that is not stable is reported as motion blur.
package motion

import (
	"time"

	"github.com/abihf/camgate/detect"
)

type Config struct {
	MinIOU      float64       `json:"min_iou"`
	MinDuration time.Duration `json:"min_duration"`
}

func DefaultConfig() Config {
	return Config{
		MinIOU:      0.95,
		MinDuration: 350 * time.Millisecond,
	}
}

// State is the rolling history kept between frames.
type State struct {
	LastBox       *detect.Rect
	LastTimestamp time.Time
	StreakStart   time.Time
	StreakFrames  int
}

type Result struct {
	HasMotionBlur bool
	// IOU against the previous box, nil on the first frame.
	IOU        *float64
	FrameCount int
	Duration   time.Duration
}

// Detector is not safe for concurrent use. Drive it from one goroutine.
type Detector struct {
	cfg   Config
	state State
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

func (d *Detector) Config() Config { return d.cfg }

// State returns a copy of the rolling history.
func (d *Detector) State() State { return d.state }

// Determine records box seen at ts and reports whether the subject is stable.
// Timestamps must increase from call to call.
func (d *Detector) Determine(box detect.Rect, ts time.Time) Result {
	prev := d.state.LastBox
	prevTS := d.state.LastTimestamp
	d.state.LastBox = &box
	d.state.LastTimestamp = ts

	if prev == nil {
		d.state.StreakStart = time.Time{}
		d.state.StreakFrames = 0
		return Result{HasMotionBlur: true, FrameCount: 1}
	}

	iou := detect.IOU(*prev, box)
	if iou < d.cfg.MinIOU {
		d.state.StreakStart = time.Time{}
		d.state.StreakFrames = 0
		return Result{HasMotionBlur: true, IOU: &iou, FrameCount: 1}
	}

	if d.state.StreakStart.IsZero() {
		d.state.StreakStart = prevTS
		d.state.StreakFrames = 1
	}
	d.state.StreakFrames++

	duration := ts.Sub(d.state.StreakStart)
	return Result{
		HasMotionBlur: duration < d.cfg.MinDuration,
		IOU:           &iou,
		FrameCount:    d.state.StreakFrames,
		Duration:      duration,
	}
}

// Reset forgets all history. Call it whenever there is no single subject to
// track.
func (d *Detector) Reset() {
	d.state = State{}
}
