package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abihf/camgate/capture"
	"github.com/abihf/camgate/quality"
)

func TestParseDefaults(t *testing.T) {
	conf, err := Parse(strings.NewReader(`{"devices":[{"path":"/dev/video2"}]}`))
	require.NoError(t, err)

	assert.Equal(t, "front", conf.Position)
	assert.Equal(t, 5, conf.BurstSize)
	assert.Equal(t, 10*time.Second, conf.CaptureTimeout())
	assert.Equal(t, "/var/run/camgate.sock", conf.Socket)
	assert.Equal(t, "/var/run/camgate.pid", conf.PidFile)
	assert.Equal(t, capture.FormatYUYV, conf.PixelFormat())
	assert.Equal(t, quality.DefaultThresholds(), conf.Thresholds())
	assert.Equal(t, 0.95, conf.MotionConfig().MinIOU)
	assert.Equal(t, 350*time.Millisecond, conf.MotionConfig().MinDuration)
	assert.Nil(t, conf.WorkerCPU)

	devs, err := conf.V4L2Devices()
	require.NoError(t, err)
	assert.Equal(t, []capture.V4L2Device{{
		Path:     "/dev/video2",
		Position: capture.PositionFront,
		Type:     capture.DeviceWide,
	}}, devs)
}

func TestParseOverrides(t *testing.T) {
	conf, err := Parse(strings.NewReader(`{
		"devices": [
			{"path": "/dev/video0", "position": "back", "type": "dual", "torch": 10094858},
			{"path": "/dev/video2", "type": "infrared"}
		],
		"position": "back",
		"format": "GREY",
		"timeout": 3,
		"quality": {"center_x": 0.1, "max_coverage": 0.6},
		"motion": {"min_iou": 0.9, "min_duration": 500},
		"worker_cpu": 2
	}`))
	require.NoError(t, err)

	pos, err := conf.CameraPosition()
	require.NoError(t, err)
	assert.Equal(t, capture.PositionBack, pos)
	assert.Equal(t, capture.FormatGrey, conf.PixelFormat())
	assert.Equal(t, 3*time.Second, conf.CaptureTimeout())

	th := conf.Thresholds()
	assert.Equal(t, 0.1, th.CenterX)
	assert.Equal(t, 0.2, th.CenterY)
	assert.Equal(t, 0.6, th.MaxCoverage)
	assert.Equal(t, 500*time.Millisecond, conf.MotionConfig().MinDuration)
	require.NotNil(t, conf.WorkerCPU)
	assert.Equal(t, 2, *conf.WorkerCPU)

	devs, err := conf.V4L2Devices()
	require.NoError(t, err)
	require.Len(t, devs, 2)
	assert.Equal(t, uint32(10094858), devs[0].TorchControl)
	// devices without a position inherit the preferred one
	assert.Equal(t, capture.PositionBack, devs[1].Position)
	assert.Equal(t, capture.DeviceInfrared, devs[1].Type)
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"devices":`))
	assert.Error(t, err)

	conf, err := Parse(strings.NewReader(`{"devices":[{"path":"/dev/video0","position":"side"}]}`))
	require.NoError(t, err)
	_, err = conf.V4L2Devices()
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"devices":[{"path":"/dev/video0"}],"burst_size":7}`), 0o600))
	t.Setenv("CAMGATE_CONFIG", path)

	conf := Load()
	assert.Equal(t, 7, conf.BurstSize)
	assert.Equal(t, "/dev/video0", conf.Devices[0].Path)
}

func TestLoadPanicsWithoutDevice(t *testing.T) {
	t.Setenv("CAMGATE_CONFIG", filepath.Join(t.TempDir(), "missing.json"))
	assert.Panics(t, func() { Load() })
}
