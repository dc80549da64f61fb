//go:build linux

package capture

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"

	"github.com/abihf/camgate/utils/clock"
)

// V4L2 control ids, from linux/v4l2-controls.h.
const (
	cidExposureAbsolute webcam.ControlID = 0x009a0902
	cidFocusAbsolute    webcam.ControlID = 0x009a090a
	cidFocusAuto        webcam.ControlID = 0x009a090c
	cidISOSensitivity   webcam.ControlID = 0x009a0917
	cidAutoFocusStatus  webcam.ControlID = 0x009a0921

	autoFocusStatusBusy = 1
)

// V4L2Device describes one /dev/video node and where it sits.
type V4L2Device struct {
	Path     string
	Position Position
	Type     DeviceType
	Virtual  bool
	// TorchControl is the control id of an LED or IR emitter, 0 if none.
	TorchControl uint32
}

type V4L2Options struct {
	Logger *slog.Logger
	Clock  clock.Clock
	// SkipDarkFrames drops frames that fail the black level check.
	SkipDarkFrames bool
	// WaitTimeout is the WaitForFrame timeout in seconds.
	WaitTimeout uint32
	Buffers     uint32
}

// V4L2 is a Hardware backed by video4linux devices.
type V4L2 struct {
	opts    V4L2Options
	logger  *slog.Logger
	descs   []V4L2Device
	devices map[string]*v4l2Device

	preset   Preset
	input    *v4l2Device
	settings OutputSettings
	deliver  func(*Frame)
	conn     *v4l2Connection

	running  bool
	stop     chan struct{}
	pumpDone chan struct{}
	seq      atomic.Uint64
}

func NewV4L2(devices []V4L2Device, opts V4L2Options) *V4L2 {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = 1
	}
	if opts.Buffers == 0 {
		opts.Buffers = 4
	}
	return &V4L2{
		opts:    opts,
		logger:  opts.Logger,
		descs:   devices,
		devices: make(map[string]*v4l2Device),
		preset:  PresetHigh,
	}
}

func (h *V4L2) BeginConfiguration()  {}
func (h *V4L2) CommitConfiguration() {}

func (h *V4L2) SetPreset(p Preset) error {
	h.preset = p
	return nil
}

func (h *V4L2) Devices(p Position) []Device {
	var out []Device
	for _, desc := range h.descs {
		if desc.Position != p {
			continue
		}
		if _, err := os.Stat(desc.Path); err != nil {
			continue
		}
		dev, ok := h.devices[desc.Path]
		if !ok {
			dev = &v4l2Device{desc: desc}
			h.devices[desc.Path] = dev
		}
		out = append(out, dev)
	}
	return out
}

func (h *V4L2) Inputs() []Device {
	if h.input == nil {
		return nil
	}
	return []Device{h.input}
}

func (h *V4L2) AddInput(d Device) error {
	dev, ok := d.(*v4l2Device)
	if !ok {
		return errors.Errorf("Device %s is not a V4L2 device", d.ID())
	}
	if h.input != nil {
		return errors.Errorf("Input %s already attached", h.input.ID())
	}
	if err := dev.open(); err != nil {
		return err
	}
	h.input = dev
	if h.running {
		if err := h.startStreaming(); err != nil {
			h.input = nil
			dev.close()
			return err
		}
	}
	return nil
}

func (h *V4L2) RemoveInput(d Device) {
	if h.input == nil || h.input != d {
		return
	}
	if h.running {
		h.stopStreaming()
	}
	h.input.close()
	h.input = nil
}

func (h *V4L2) AddOutput(settings OutputSettings, deliver func(*Frame)) (Connection, error) {
	if settings.Width == 0 || settings.Height == 0 {
		settings.Width, settings.Height = h.preset.FrameSize()
	}
	h.settings = settings
	h.deliver = deliver
	h.conn = &v4l2Connection{}
	return h.conn, nil
}

func (h *V4L2) Start() error {
	if h.running {
		return nil
	}
	if h.input == nil {
		return errors.New("No input attached")
	}
	if h.deliver == nil {
		return errors.New("No output attached")
	}
	if err := h.startStreaming(); err != nil {
		return err
	}
	h.running = true
	return nil
}

func (h *V4L2) Stop() {
	if !h.running {
		return
	}
	h.stopStreaming()
	h.running = false
}

func (h *V4L2) Close() error {
	h.Stop()
	if h.input != nil {
		err := h.input.close()
		h.input = nil
		return err
	}
	return nil
}

func (h *V4L2) startStreaming() error {
	dev := h.input
	cam := dev.cam

	format := webcam.PixelFormat(h.settings.PixelFormat)
	if format == 0 {
		format = pickFormat(cam.GetSupportedFormats())
	}
	format, width, height, err := cam.SetImageFormat(format, uint32(h.settings.Width), uint32(h.settings.Height))
	if err != nil {
		return errors.Wrapf(err, "Can not set image format on %s", dev.ID())
	}
	if err := cam.SetBufferCount(h.opts.Buffers); err != nil {
		return errors.Wrapf(err, "Can not set buffer count on %s", dev.ID())
	}
	if err := cam.StartStreaming(); err != nil {
		return errors.Wrap(err, "Can not start streaming")
	}

	h.stop = make(chan struct{})
	h.pumpDone = make(chan struct{})
	go h.pump(dev, PixelFormat(format), int(width), int(height), h.deliver, h.stop, h.pumpDone)
	return nil
}

func (h *V4L2) stopStreaming() {
	if h.stop == nil {
		return
	}
	close(h.stop)
	<-h.pumpDone
	h.stop, h.pumpDone = nil, nil
	if err := h.input.cam.StopStreaming(); err != nil {
		h.logger.Warn("Can not stop streaming", "device", h.input.ID(), "error", err)
	}
}

func (h *V4L2) pump(dev *v4l2Device, format PixelFormat, width, height int, deliver func(*Frame), stop, done chan struct{}) {
	defer close(done)

	stopped := func() bool {
		select {
		case <-stop:
			return true
		default:
			return false
		}
	}

	for !stopped() {
		err := dev.cam.WaitForFrame(h.opts.WaitTimeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			h.logger.Debug("Frame wait timed out", "device", dev.ID())
			continue
		default:
			h.logger.Error("Frame wait failed", "device", dev.ID(), "error", err)
			return
		}

		if stopped() {
			return
		}

		frame, err := dev.cam.ReadFrame()
		if err != nil {
			h.logger.Error("Read frame failed", "device", dev.ID(), "error", err)
			return
		}
		if len(frame) == 0 {
			continue
		}

		if h.opts.SkipDarkFrames {
			if luma := lumaPlane(frame, format, width, height); luma != nil && !hasGoodBlackLevel(luma) {
				continue
			}
		}

		// ReadFrame returns the mmap'd buffer, which the driver reuses.
		buf := make([]byte, len(frame))
		copy(buf, frame)
		deliver(&Frame{
			Buffer:    buf,
			Width:     width,
			Height:    height,
			Format:    format,
			Seq:       h.seq.Add(1),
			Timestamp: h.opts.Clock.Now(),
		})
	}
}

func pickFormat(supported map[webcam.PixelFormat]string) webcam.PixelFormat {
	for _, f := range []PixelFormat{FormatGrey, FormatYUYV, FormatNV12, FormatMJPEG} {
		if _, ok := supported[webcam.PixelFormat(f)]; ok {
			return webcam.PixelFormat(f)
		}
	}
	for f := range supported {
		return f
	}
	return webcam.PixelFormat(FormatYUYV)
}

type v4l2Device struct {
	desc     V4L2Device
	cam      *webcam.Webcam
	controls map[webcam.ControlID]webcam.Control

	mu     sync.Mutex
	locked bool
}

func (d *v4l2Device) open() error {
	cam, err := webcam.Open(d.desc.Path)
	if err != nil {
		return errors.Wrapf(err, "Can not open device %s", d.desc.Path)
	}
	d.cam = cam
	d.controls = cam.GetControls()
	return nil
}

func (d *v4l2Device) close() error {
	if d.cam == nil {
		return nil
	}
	err := d.cam.Close()
	d.cam = nil
	d.controls = nil
	return err
}

func (d *v4l2Device) ID() string         { return d.desc.Path }
func (d *v4l2Device) Type() DeviceType   { return d.desc.Type }
func (d *v4l2Device) Position() Position { return d.desc.Position }
func (d *v4l2Device) IsVirtual() bool    { return d.desc.Virtual }

func (d *v4l2Device) Lock() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam == nil {
		return errors.Errorf("Device %s is not open", d.desc.Path)
	}
	if d.locked {
		return errors.Errorf("Device %s is already locked", d.desc.Path)
	}
	d.locked = true
	return nil
}

func (d *v4l2Device) Unlock() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locked = false
}

func (d *v4l2Device) hasControl(id webcam.ControlID) bool {
	_, ok := d.controls[id]
	return ok
}

func (d *v4l2Device) control(id webcam.ControlID) (int32, bool) {
	if d.cam == nil || !d.hasControl(id) {
		return 0, false
	}
	v, err := d.cam.GetControl(id)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (d *v4l2Device) IsFocusModeSupported(m FocusMode) bool {
	switch m {
	case FocusLocked, FocusAuto, FocusContinuous:
		return d.hasControl(cidFocusAuto)
	}
	return false
}

func (d *v4l2Device) SetFocusMode(m FocusMode) error {
	value := int32(1)
	if m == FocusLocked {
		value = 0
	}
	if err := d.cam.SetControl(cidFocusAuto, value); err != nil {
		return errors.Wrapf(err, "Can not set focus_auto on %s", d.desc.Path)
	}
	return nil
}

// V4L2 has no point-of-interest focus.
func (d *v4l2Device) IsFocusPointSupported() bool { return false }

func (d *v4l2Device) SetFocusPoint(Point) error {
	return errors.New("Focus point not supported")
}

func (d *v4l2Device) HasTorch() bool {
	return d.desc.TorchControl != 0
}

func (d *v4l2Device) SetTorch(on bool, level float64) error {
	value := int32(0)
	if on {
		value = 1
	}
	if err := d.cam.SetControl(webcam.ControlID(d.desc.TorchControl), value); err != nil {
		return errors.Wrapf(err, "Can not set torch on %s", d.desc.Path)
	}
	return nil
}

func (d *v4l2Device) Properties() DeviceProperties {
	p := DeviceProperties{
		DeviceType:      d.desc.Type,
		IsVirtualDevice: d.desc.Virtual,
	}
	// exposure_absolute is in 100us units
	if v, ok := d.control(cidExposureAbsolute); ok {
		p.ExposureDuration = time.Duration(v) * 100 * time.Microsecond
	}
	if v, ok := d.control(cidFocusAbsolute); ok {
		p.LensPosition = float64(v)
	}
	if v, ok := d.control(cidISOSensitivity); ok {
		p.ExposureISO = float64(v)
	}
	if v, ok := d.control(cidAutoFocusStatus); ok {
		p.IsAdjustingFocus = v&autoFocusStatusBusy != 0
	}
	return p
}

type v4l2Connection struct {
	mu          sync.Mutex
	orientation Orientation
}

func (c *v4l2Connection) SetOrientation(o Orientation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orientation = o
}

func (c *v4l2Connection) Orientation() Orientation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orientation
}
