package config

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/abihf/camgate/capture"
	"github.com/abihf/camgate/motion"
	"github.com/abihf/camgate/quality"
)

const DefaultPath = "/etc/camgate/config.json"

type Device struct {
	Path     string `json:"path"`
	Position string `json:"position"`
	Type     string `json:"type"`
	Virtual  bool   `json:"virtual"`
	// Torch is the V4L2 control id driving the flash LED, if any.
	Torch uint32 `json:"torch"`
}

type Quality struct {
	CenterX     float64 `json:"center_x"`
	CenterY     float64 `json:"center_y"`
	MinEdge     float64 `json:"min_edge"`
	MinCoverage float64 `json:"min_coverage"`
	MaxCoverage float64 `json:"max_coverage"`
}

type Motion struct {
	MinIOU float64 `json:"min_iou"`
	// MinDuration is in milliseconds.
	MinDuration int `json:"min_duration"`
}

type Config struct {
	Devices  []Device `json:"devices"`
	Position string   `json:"position"`
	Format   string   `json:"format"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Preset   string   `json:"preset"`

	BurstSize int `json:"burst_size"`
	// Timeout is in seconds.
	Timeout int `json:"timeout"`

	Socket  string `json:"socket"`
	PidFile string `json:"pid_file"`

	Detector     string   `json:"detector"`
	DetectorArgs []string `json:"detector_args"`

	Quality Quality `json:"quality"`
	Motion  Motion  `json:"motion"`

	// WorkerCPU pins the capture queue thread when >= 0.
	WorkerCPU *int `json:"worker_cpu"`
}

// Load reads the config file named by CAMGATE_CONFIG, or DefaultPath.
func Load() *Config {
	path := os.Getenv("CAMGATE_CONFIG")
	if path == "" {
		path = DefaultPath
	}
	conf, err := loadFromFile(path)
	if err != nil {
		slog.Warn("Failed to load config file", "path", path, "error", err)
	}
	if conf == nil {
		conf = &Config{}
	}
	conf.setDefaults()
	if len(conf.Devices) == 0 {
		panic("Device not set")
	}
	return conf
}

// Parse decodes a config and fills defaults. Unlike Load it does not require
// any device.
func Parse(r io.Reader) (*Config, error) {
	conf := &Config{}
	if err := json.NewDecoder(r).Decode(conf); err != nil {
		return nil, errors.Wrap(err, "Invalid config")
	}
	conf.setDefaults()
	return conf, nil
}

func (c *Config) setDefaults() {
	if c.Position == "" {
		c.Position = "front"
	}
	if c.Format == "" {
		c.Format = "YUYV"
	}
	// with a preset the frame size comes from the preset
	if c.Width == 0 && c.Height == 0 && c.Preset == "" {
		c.Width, c.Height = 640, 480
	}
	if c.BurstSize == 0 {
		c.BurstSize = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 10
	}
	if c.Socket == "" {
		c.Socket = "/var/run/camgate.sock"
	}
	if c.PidFile == "" {
		c.PidFile = "/var/run/camgate.pid"
	}

	def := quality.DefaultThresholds()
	if c.Quality.CenterX == 0 {
		c.Quality.CenterX = def.CenterX
	}
	if c.Quality.CenterY == 0 {
		c.Quality.CenterY = def.CenterY
	}
	if c.Quality.MinEdge == 0 {
		c.Quality.MinEdge = def.MinEdge
	}
	if c.Quality.MinCoverage == 0 {
		c.Quality.MinCoverage = def.MinCoverage
	}
	if c.Quality.MaxCoverage == 0 {
		c.Quality.MaxCoverage = def.MaxCoverage
	}

	mdef := motion.DefaultConfig()
	if c.Motion.MinIOU == 0 {
		c.Motion.MinIOU = mdef.MinIOU
	}
	if c.Motion.MinDuration == 0 {
		c.Motion.MinDuration = int(mdef.MinDuration / time.Millisecond)
	}

	for i := range c.Devices {
		if c.Devices[i].Position == "" {
			c.Devices[i].Position = c.Position
		}
		if c.Devices[i].Type == "" {
			c.Devices[i].Type = string(capture.DeviceWide)
		}
	}
}

func loadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// CameraPosition returns the preferred camera side.
func (c *Config) CameraPosition() (capture.Position, error) {
	return capture.ParsePosition(c.Position)
}

func (c *Config) PixelFormat() capture.PixelFormat {
	return capture.FourCC(c.Format)
}

func (c *Config) Thresholds() quality.Thresholds {
	return quality.Thresholds(c.Quality)
}

func (c *Config) MotionConfig() motion.Config {
	return motion.Config{
		MinIOU:      c.Motion.MinIOU,
		MinDuration: time.Duration(c.Motion.MinDuration) * time.Millisecond,
	}
}

func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// V4L2Devices converts the device list for capture.NewV4L2.
func (c *Config) V4L2Devices() ([]capture.V4L2Device, error) {
	out := make([]capture.V4L2Device, 0, len(c.Devices))
	for _, d := range c.Devices {
		pos, err := capture.ParsePosition(d.Position)
		if err != nil {
			return nil, errors.Wrapf(err, "Device %s", d.Path)
		}
		out = append(out, capture.V4L2Device{
			Path:         d.Path,
			Position:     pos,
			Type:         capture.DeviceType(d.Type),
			Virtual:      d.Virtual,
			TorchControl: d.Torch,
		})
	}
	return out, nil
}
