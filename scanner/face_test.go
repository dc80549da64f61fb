package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abihf/camgate/capture"
	"github.com/abihf/camgate/detect"
)

var (
	t0       = time.Unix(1700000000, 0)
	centered = detect.Rect{X: 0.3, Y: 0.25, Width: 0.4, Height: 0.5}
)

func frameAt(d time.Duration) *capture.Frame {
	return &capture.Frame{Timestamp: t0.Add(d)}
}

func one(box detect.Rect, score float64) []detect.Detection {
	return []detect.Detection{{Box: box, Score: score}}
}

func TestFaceScannerValidFrame(t *testing.T) {
	s := NewFaceScanner(DefaultFaceConfig())

	out, err := s.ScanImage(frameAt(0), one(centered, 0.92), &capture.DeviceProperties{}).Await(context.Background())
	require.NoError(t, err)

	assert.True(t, out.IsValid)
	assert.Equal(t, 0.92, out.Quality())
	assert.Equal(t, t0, out.Timestamp)
	require.NotNil(t, out.Motion)
	assert.True(t, out.HasMotionBlur(), "first frame has no reference box")
}

func TestFaceScannerGates(t *testing.T) {
	tests := []struct {
		name  string
		dets  []detect.Detection
		props *capture.DeviceProperties
	}{
		{"no face", nil, nil},
		{"two faces", append(one(centered, 0.9), one(centered, 0.8)...), nil},
		{"focusing", one(centered, 0.9), &capture.DeviceProperties{IsAdjustingFocus: true}},
		{"off center", one(detect.Rect{X: 0.05, Y: 0.25, Width: 0.3, Height: 0.5}, 0.9), nil},
		{"at the edge", one(detect.Rect{X: 0.3, Y: 0.01, Width: 0.4, Height: 0.98}, 0.9), nil},
		{"too close", one(detect.Rect{X: 0.025, Y: 0.025, Width: 0.95, Height: 0.95}, 0.9), nil},
		{"too far", one(detect.Rect{X: 0.45, Y: 0.45, Width: 0.1, Height: 0.1}, 0.9), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewFaceScanner(DefaultFaceConfig())
			out := s.Scan(frameAt(0), tt.dets, tt.props)
			assert.False(t, out.IsValid)
		})
	}
}

func TestFaceScannerCoverageAboveMaxIsInvalid(t *testing.T) {
	cfg := DefaultFaceConfig()
	cfg.Thresholds.MinEdge = 0
	s := NewFaceScanner(cfg)

	out := s.Scan(frameAt(0), one(detect.Rect{X: 0.025, Y: 0.025, Width: 0.95, Height: 0.95}, 0.99), nil)
	assert.True(t, out.Verdict.Centered)
	assert.True(t, out.Verdict.AwayFromEdges)
	assert.False(t, out.IsValid)
}

func TestFaceScannerTracksMotion(t *testing.T) {
	s := NewFaceScanner(DefaultFaceConfig())

	s.Scan(frameAt(0), one(centered, 0.9), nil)
	out := s.Scan(frameAt(400*time.Millisecond), one(centered, 0.9), nil)
	assert.True(t, out.IsValid)
	assert.False(t, out.HasMotionBlur())
	assert.Equal(t, 2, out.Motion.FrameCount)
}

func TestFaceScannerResetsMotionWhenSubjectLost(t *testing.T) {
	s := NewFaceScanner(DefaultFaceConfig())

	s.Scan(frameAt(0), one(centered, 0.9), nil)
	lost := s.Scan(frameAt(100*time.Millisecond), nil, nil)
	assert.Nil(t, lost.Motion)
	assert.True(t, lost.HasMotionBlur())

	out := s.Scan(frameAt(500*time.Millisecond), one(centered, 0.9), nil)
	assert.Nil(t, out.Motion.IOU, "history must restart after losing the subject")
	assert.True(t, out.HasMotionBlur())
}

func TestFaceScannerMetricsAndReset(t *testing.T) {
	s := NewFaceScanner(DefaultFaceConfig())
	s.Scan(frameAt(0), one(centered, 0.9), nil)
	s.Scan(frameAt(10*time.Millisecond), nil, nil)
	s.Scan(frameAt(20*time.Millisecond), append(one(centered, 0.9), one(centered, 0.1)...), nil)
	s.Scan(frameAt(30*time.Millisecond), one(centered, 0.9), &capture.DeviceProperties{IsAdjustingFocus: true})

	assert.Equal(t, Metrics{Frames: 4, Valid: 1, NoFace: 1, MultipleFaces: 1, Focusing: 1}, s.Metrics())

	s.Reset()
	assert.Equal(t, Metrics{}, s.Metrics())
}
