package camgate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abihf/camgate/capture"
	"github.com/abihf/camgate/detect"
	"github.com/abihf/camgate/sample"
	"github.com/abihf/camgate/scanner"
	"github.com/abihf/camgate/utils/clock"
)

var centered = detect.Rect{X: 0.3, Y: 0.25, Width: 0.4, Height: 0.5}

// faceDetector reports one centered face scored by the first byte of the
// frame. A zero byte means nobody is in view.
var faceDetector = detect.DetectorFunc(func(_ context.Context, f *capture.Frame) ([]detect.Detection, error) {
	if len(f.Buffer) == 0 || f.Buffer[0] == 0 {
		return nil, nil
	}
	return []detect.Detection{{Box: centered, Score: float64(f.Buffer[0]) / 255}}, nil
})

type rig struct {
	t      *testing.T
	clock  *clock.Mock
	frames chan FrameSample

	mu  sync.Mutex
	hws []*capture.MockHardware
}

func newRig(t *testing.T, devices ...func() *capture.MockDevice) (*rig, Options) {
	r := &rig{
		t:      t,
		clock:  clock.NewMock(time.Unix(1700000000, 0)),
		frames: make(chan FrameSample, 64),
	}
	opts := Options{
		NewHardware: func() (capture.Hardware, error) {
			var devs []*capture.MockDevice
			for _, d := range devices {
				devs = append(devs, d())
			}
			hw := capture.NewMockHardware(r.clock, devs...)
			r.mu.Lock()
			r.hws = append(r.hws, hw)
			r.mu.Unlock()
			return hw, nil
		},
		Detector:  faceDetector,
		Capture:   capture.Configuration{Position: capture.PositionFront, Output: capture.OutputSettings{PixelFormat: capture.FormatGrey, Width: 4, Height: 1}},
		BurstSize: 5,
		Timeout:   5 * time.Second,
		Session:   capture.Options{Clock: r.clock},
		OnFrame:   func(s FrameSample) { r.frames <- s },
	}
	return r, opts
}

func frontCamera() *capture.MockDevice {
	return &capture.MockDevice{Name: "front", Kind: capture.DeviceWide, Side: capture.PositionFront}
}

func backCamera() *capture.MockDevice {
	return &capture.MockDevice{Name: "back", Kind: capture.DeviceWide, Side: capture.PositionBack}
}

func (r *rig) hardware() []*capture.MockHardware {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*capture.MockHardware(nil), r.hws...)
}

func (r *rig) waitRunning() *capture.MockHardware {
	var hw *capture.MockHardware
	require.Eventually(r.t, func() bool {
		hws := r.hardware()
		if len(hws) == 0 {
			return false
		}
		hw = hws[len(hws)-1]
		return hw.Snapshot().Running
	}, 2*time.Second, time.Millisecond)
	return hw
}

// emit pushes one frame 100ms after the previous one and waits until it was
// evaluated. A frame dropped as late is pushed again with the same timestamp.
func (r *rig) emit(hw *capture.MockHardware, score byte) FrameSample {
	r.clock.Advance(100 * time.Millisecond)
	for i := 0; i < 20; i++ {
		hw.Emit([]byte{score, 0, 0, 0})
		select {
		case s := <-r.frames:
			return s
		case <-time.After(100 * time.Millisecond):
		}
	}
	r.t.Fatalf("frame with score %d was never evaluated", score)
	return FrameSample{}
}

type captureResult struct {
	batch *Batch
	err   error
}

func start(ctx context.Context, opts Options) <-chan captureResult {
	done := make(chan captureResult, 1)
	go func() {
		b, err := Capture(ctx, opts)
		done <- captureResult{b, err}
	}()
	return done
}

func wait(t *testing.T, done <-chan captureResult) captureResult {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(10 * time.Second):
		t.Fatal("capture did not finish")
		return captureResult{}
	}
}

func TestCaptureBurst(t *testing.T) {
	r, opts := newRig(t, frontCamera)
	done := start(context.Background(), opts)
	hw := r.waitRunning()

	// the subject has to hold still for 350ms before frames count
	for i := 0; i < 4; i++ {
		s := r.emit(hw, 200)
		assert.True(t, s.Output.HasMotionBlur(), "warmup frame %d", i)
	}
	for _, score := range []byte{150, 250, 180, 240, 160} {
		s := r.emit(hw, score)
		assert.True(t, s.Output.IsValid)
		assert.False(t, s.Output.HasMotionBlur())
		assert.NotNil(t, s.Telemetry)
	}

	res := wait(t, done)
	require.NoError(t, res.err)
	b := res.batch
	assert.Equal(t, 5, b.SampleCount)
	assert.InDelta(t, 150.0/255, b.First.Quality(), 1e-9)
	assert.InDelta(t, 160.0/255, b.Last.Quality(), 1e-9)
	assert.InDelta(t, 250.0/255, b.BestMiddle.Quality(), 1e-9)
	assert.Equal(t, 1, b.BestMiddleIndex)
	assert.Greater(t, b.QualityVariance, 0.0)
	assert.True(t, b.First.Timestamp.Before(b.Last.Timestamp))

	snap := hw.Snapshot()
	assert.True(t, snap.Closed)
	assert.False(t, snap.Running)
}

func TestCaptureLosingSubjectRestartsBurst(t *testing.T) {
	r, opts := newRig(t, frontCamera)
	opts.Timeout = 1500 * time.Millisecond
	done := start(context.Background(), opts)
	hw := r.waitRunning()

	for i := 0; i < 4; i++ {
		r.emit(hw, 200)
	}
	r.emit(hw, 220)
	r.emit(hw, 230)

	lost := r.emit(hw, 0)
	assert.Empty(t, lost.Output.Detections)

	for i := 0; i < 4; i++ {
		s := r.emit(hw, 200)
		assert.True(t, s.Output.HasMotionBlur())
	}
	for _, score := range []byte{210, 240, 205} {
		r.emit(hw, score)
	}

	res := wait(t, done)
	require.NoError(t, res.err)
	assert.Equal(t, 3, res.batch.SampleCount)
	assert.InDelta(t, 210.0/255, res.batch.First.Quality(), 1e-9)
	assert.InDelta(t, 240.0/255, res.batch.BestMiddle.Quality(), 1e-9)
	assert.InDelta(t, 205.0/255, res.batch.Last.Quality(), 1e-9)
}

func TestCaptureTimeoutAggregatesPartialBurst(t *testing.T) {
	r, opts := newRig(t, frontCamera)
	opts.Timeout = 1500 * time.Millisecond
	done := start(context.Background(), opts)
	hw := r.waitRunning()

	for i := 0; i < 4; i++ {
		r.emit(hw, 200)
	}
	for _, score := range []byte{180, 220, 190} {
		s := r.emit(hw, score)
		require.False(t, s.Output.HasMotionBlur())
	}

	res := wait(t, done)
	require.NoError(t, res.err)
	assert.Equal(t, 3, res.batch.SampleCount, "burst of %d was not reached", opts.BurstSize)
	assert.InDelta(t, 180.0/255, res.batch.First.Quality(), 1e-9)
	assert.InDelta(t, 220.0/255, res.batch.BestMiddle.Quality(), 1e-9)
	assert.InDelta(t, 190.0/255, res.batch.Last.Quality(), 1e-9)
	assert.True(t, hw.Snapshot().Closed)
}

func TestCaptureTimesOutWithoutSamples(t *testing.T) {
	_, opts := newRig(t, frontCamera)
	opts.Timeout = 200 * time.Millisecond

	_, err := Capture(context.Background(), opts)
	assert.ErrorIs(t, err, sample.ErrInsufficientSamples)
}

func TestCaptureFallsBackToOtherCamera(t *testing.T) {
	r, opts := newRig(t, backCamera)
	opts.Fallback = true
	opts.Timeout = 300 * time.Millisecond

	_, err := Capture(context.Background(), opts)
	assert.ErrorIs(t, err, sample.ErrInsufficientSamples)

	hws := r.hardware()
	require.Len(t, hws, 2)
	first, second := hws[0].Snapshot(), hws[1].Snapshot()
	assert.True(t, first.Closed)
	assert.Zero(t, first.InputAttaches)
	assert.Zero(t, first.OutputAttaches, "output must not be attached without an input")
	assert.Equal(t, 1, second.InputAttaches)
	assert.Equal(t, 1, second.OutputAttaches)
	assert.True(t, second.Closed)
}

func TestCaptureWithoutFallbackReportsMissingCamera(t *testing.T) {
	r, opts := newRig(t, backCamera)

	_, err := Capture(context.Background(), opts)
	assert.ErrorIs(t, err, capture.ErrCaptureDeviceNotFound)
	assert.Len(t, r.hardware(), 1)
}

func TestCaptureCancelled(t *testing.T) {
	r, opts := newRig(t, frontCamera)
	ctx, cancel := context.WithCancel(context.Background())
	done := start(ctx, opts)
	hw := r.waitRunning()
	cancel()

	res := wait(t, done)
	assert.ErrorIs(t, res.err, context.Canceled)
	assert.True(t, hw.Snapshot().Closed)
}

func TestCaptureStartFailure(t *testing.T) {
	_, opts := newRig(t, frontCamera)
	newHW := opts.NewHardware
	opts.NewHardware = func() (capture.Hardware, error) {
		hw, err := newHW()
		hw.(*capture.MockHardware).StartErr = assert.AnError
		return hw, err
	}

	_, err := Capture(context.Background(), opts)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestCaptureRequiresHardwareAndDetector(t *testing.T) {
	_, opts := newRig(t, frontCamera)

	noHW := opts
	noHW.NewHardware = nil
	_, err := Capture(context.Background(), noHW)
	assert.Error(t, err)

	noDetector := opts
	noDetector.Detector = nil
	_, err = Capture(context.Background(), noDetector)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	var samples []FrameSample
	for i, score := range []float64{0.8, 0.95, 0.9, 0.85} {
		samples = append(samples, FrameSample{
			Output:    scanner.FaceOutput{Score: score},
			Timestamp: t0.Add(time.Duration(i) * 100 * time.Millisecond),
		})
	}
	b, err := sample.Aggregate(samples)
	require.NoError(t, err)

	s := Summarize("attempt-1", b)
	assert.Equal(t, "attempt-1", s.Attempt)
	assert.Equal(t, 4, s.SampleCount)
	assert.Equal(t, 0.8, s.First.Score)
	assert.Equal(t, 0.95, s.Best.Score)
	assert.Equal(t, t0.Add(100*time.Millisecond), s.Best.Timestamp)
	assert.Equal(t, 0.85, s.Last.Score)
	assert.Equal(t, b.QualityVariance, s.QualityVariance)
}
