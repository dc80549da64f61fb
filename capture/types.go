package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Position int

const (
	PositionUnspecified Position = iota
	PositionFront
	PositionBack
)

func (p Position) String() string {
	switch p {
	case PositionFront:
		return "front"
	case PositionBack:
		return "back"
	default:
		return "unspecified"
	}
}

// Opposite returns the other physical side.
func (p Position) Opposite() Position {
	switch p {
	case PositionFront:
		return PositionBack
	case PositionBack:
		return PositionFront
	default:
		return PositionUnspecified
	}
}

func ParsePosition(s string) (Position, error) {
	switch strings.ToLower(s) {
	case "front", "user":
		return PositionFront, nil
	case "back", "rear", "environment":
		return PositionBack, nil
	case "":
		return PositionUnspecified, nil
	}
	return PositionUnspecified, errors.Errorf("Unknown camera position %q", s)
}

type DeviceType string

const (
	DeviceTrueDepth DeviceType = "truedepth"
	DeviceInfrared  DeviceType = "infrared"
	DeviceWide      DeviceType = "wide"
	DeviceDual      DeviceType = "dual"
	DeviceTriple    DeviceType = "triple"
	DeviceExternal  DeviceType = "external"
)

// PreferredDeviceTypes lists device types for a position, most capable first.
func PreferredDeviceTypes(p Position) []DeviceType {
	switch p {
	case PositionFront:
		return []DeviceType{DeviceTrueDepth, DeviceInfrared, DeviceWide}
	case PositionBack:
		return []DeviceType{DeviceTriple, DeviceDual, DeviceWide}
	default:
		return []DeviceType{DeviceWide, DeviceExternal}
	}
}

type Orientation int

const (
	OrientationPortrait Orientation = iota
	OrientationPortraitUpsideDown
	OrientationLandscapeLeft
	OrientationLandscapeRight
)

func (o Orientation) String() string {
	switch o {
	case OrientationPortrait:
		return "portrait"
	case OrientationPortraitUpsideDown:
		return "portrait-upside-down"
	case OrientationLandscapeLeft:
		return "landscape-left"
	case OrientationLandscapeRight:
		return "landscape-right"
	}
	return fmt.Sprintf("orientation(%d)", int(o))
}

type FocusMode int

const (
	// FocusUnset leaves the device focus untouched.
	FocusUnset FocusMode = iota
	FocusLocked
	FocusAuto
	FocusContinuous
)

func (m FocusMode) String() string {
	switch m {
	case FocusUnset:
		return "unset"
	case FocusLocked:
		return "locked"
	case FocusAuto:
		return "auto"
	case FocusContinuous:
		return "continuous"
	}
	return fmt.Sprintf("focus(%d)", int(m))
}

// Point is a normalized point of interest in the frame.
type Point struct {
	X float64
	Y float64
}

type Preset string

const (
	PresetLow    Preset = "low"
	PresetMedium Preset = "medium"
	PresetHigh   Preset = "high"
	PresetPhoto  Preset = "photo"
)

// FrameSize returns a nominal frame size for the preset.
func (p Preset) FrameSize() (width, height int) {
	switch p {
	case PresetLow:
		return 320, 240
	case PresetMedium:
		return 640, 480
	case PresetPhoto:
		return 1920, 1080
	default:
		return 1280, 720
	}
}

// PixelFormat is a V4L2 style fourcc code.
type PixelFormat uint32

func FourCC(code string) PixelFormat {
	var b [4]byte
	copy(b[:], code)
	return PixelFormat(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

var (
	FormatGrey  = FourCC("GREY")
	FormatYUYV  = FourCC("YUYV")
	FormatMJPEG = FourCC("MJPG")
	FormatNV12  = FourCC("NV12")
)

func (f PixelFormat) String() string {
	if f == 0 {
		return "none"
	}
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

// OutputSettings describes the frame output attached to a session.
type OutputSettings struct {
	PixelFormat PixelFormat
	Width       int
	Height      int
	// DiscardLateFrames is always forced on by Session.
	DiscardLateFrames bool
}

// Configuration is one session setup request.
type Configuration struct {
	Position    Position
	Orientation Orientation
	FocusMode   FocusMode
	FocusPoint  *Point
	Preset      Preset
	Output      OutputSettings
}

// Frame is one buffer delivered by the hardware.
type Frame struct {
	Buffer    []byte
	Width     int
	Height    int
	Format    PixelFormat
	Seq       uint64
	Timestamp time.Time
}

// DeviceProperties is the telemetry of the bound device at one instant.
type DeviceProperties struct {
	ExposureDuration time.Duration
	DeviceType       DeviceType
	IsVirtualDevice  bool
	LensPosition     float64
	ExposureISO      float64
	IsAdjustingFocus bool
}

// SetupResult is the outcome of a configure or toggle. A nil Err means
// success.
type SetupResult struct {
	Err error
}

func (r SetupResult) Succeeded() bool { return r.Err == nil }

type State int

const (
	StateUnconfigured State = iota
	StateConfiguring
	StateConfigured
	StateRunning
	StateStopped
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfiguring:
		return "configuring"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateReleased:
		return "released"
	}
	return fmt.Sprintf("state(%d)", int(s))
}
