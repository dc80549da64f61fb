package capture

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/abihf/camgate/utils/clock"
)

// MockDevice is a programmable Device for tests and dry runs.
type MockDevice struct {
	mu sync.Mutex

	Name     string
	Kind     DeviceType
	Side     Position
	Virtual  bool
	Torch    bool
	Props    DeviceProperties
	Supports []FocusMode
	// FocusPointSupported enables SetFocusPoint.
	FocusPointSupported bool

	LockErr  error
	FocusErr error
	TorchErr error

	Locks      int
	Unlocks    int
	Focus      FocusMode
	FocusPoint *Point
	TorchOn    bool
	TorchLevel float64
}

func (d *MockDevice) ID() string         { return d.Name }
func (d *MockDevice) Type() DeviceType   { return d.Kind }
func (d *MockDevice) Position() Position { return d.Side }
func (d *MockDevice) IsVirtual() bool    { return d.Virtual }

func (d *MockDevice) Lock() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Locks++
	return d.LockErr
}

func (d *MockDevice) Unlock() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Unlocks++
}

func (d *MockDevice) IsFocusModeSupported(m FocusMode) bool {
	for _, s := range d.Supports {
		if s == m {
			return true
		}
	}
	return false
}

func (d *MockDevice) SetFocusMode(m FocusMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FocusErr != nil {
		return d.FocusErr
	}
	d.Focus = m
	return nil
}

func (d *MockDevice) IsFocusPointSupported() bool { return d.FocusPointSupported }

func (d *MockDevice) SetFocusPoint(p Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FocusErr != nil {
		return d.FocusErr
	}
	d.FocusPoint = &p
	return nil
}

func (d *MockDevice) HasTorch() bool { return d.Torch }

func (d *MockDevice) SetTorch(on bool, level float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.TorchErr != nil {
		return d.TorchErr
	}
	d.TorchOn = on
	d.TorchLevel = level
	return nil
}

func (d *MockDevice) Properties() DeviceProperties {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.Props
	p.DeviceType = d.Kind
	p.IsVirtualDevice = d.Virtual
	return p
}

// SetProperties replaces the reported telemetry.
func (d *MockDevice) SetProperties(p DeviceProperties) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Props = p
}

// MockConnection records the orientation applied to it.
type MockConnection struct {
	mu          sync.Mutex
	orientation Orientation
}

func (c *MockConnection) SetOrientation(o Orientation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orientation = o
}

func (c *MockConnection) Orientation() Orientation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orientation
}

// MockHardware is an in-memory Hardware. Frames are pushed with Emit.
type MockHardware struct {
	mu sync.Mutex

	devices []*MockDevice
	inputs  []Device
	clock   clock.Clock
	seq     uint64

	deliver  func(*Frame)
	settings OutputSettings
	conn     *MockConnection

	AddInputErr  error
	AddOutputErr error
	StartErr     error
	PresetErr    error
	// OnAddInput runs inside AddInput before the input is bound. Tests use it
	// to hold a configuration step in flight.
	OnAddInput func(Device)

	Preset         Preset
	Begins         int
	Commits        int
	InputAttaches  int
	OutputAttaches int
	Running        bool
	Closed         bool
}

func NewMockHardware(clk clock.Clock, devices ...*MockDevice) *MockHardware {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MockHardware{devices: devices, clock: clk}
}

func (h *MockHardware) BeginConfiguration() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Begins++
}

func (h *MockHardware) CommitConfiguration() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Commits++
}

func (h *MockHardware) SetPreset(p Preset) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.PresetErr != nil {
		return h.PresetErr
	}
	h.Preset = p
	return nil
}

func (h *MockHardware) Devices(p Position) []Device {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Device
	for _, d := range h.devices {
		if d.Side == p {
			out = append(out, d)
		}
	}
	return out
}

func (h *MockHardware) Inputs() []Device {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Device(nil), h.inputs...)
}

func (h *MockHardware) AddInput(d Device) error {
	h.mu.Lock()
	hook := h.OnAddInput
	h.mu.Unlock()
	if hook != nil {
		hook(d)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.AddInputErr != nil {
		return h.AddInputErr
	}
	if len(h.inputs) > 0 {
		return errors.New("mock hardware already has an input")
	}
	h.inputs = append(h.inputs, d)
	h.InputAttaches++
	return nil
}

func (h *MockHardware) RemoveInput(d Device) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, in := range h.inputs {
		if in == d {
			h.inputs = append(h.inputs[:i], h.inputs[i+1:]...)
			return
		}
	}
}

func (h *MockHardware) AddOutput(settings OutputSettings, deliver func(*Frame)) (Connection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.AddOutputErr != nil {
		return nil, h.AddOutputErr
	}
	h.settings = settings
	h.deliver = deliver
	h.conn = &MockConnection{}
	h.OutputAttaches++
	return h.conn, nil
}

func (h *MockHardware) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.StartErr != nil {
		return h.StartErr
	}
	h.Running = true
	return nil
}

func (h *MockHardware) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Running = false
}

func (h *MockHardware) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Closed = true
	h.deliver = nil
	return nil
}

// Emit pushes a frame through the attached output, stamped with the mock's
// clock. It reports false when nothing is streaming.
func (h *MockHardware) Emit(buf []byte) bool {
	h.mu.Lock()
	if !h.Running || h.deliver == nil {
		h.mu.Unlock()
		return false
	}
	h.seq++
	f := &Frame{
		Buffer:    buf,
		Width:     h.settings.Width,
		Height:    h.settings.Height,
		Format:    h.settings.PixelFormat,
		Seq:       h.seq,
		Timestamp: h.clock.Now(),
	}
	deliver := h.deliver
	h.mu.Unlock()

	deliver(f)
	return true
}

// Settings returns the output settings last attached.
func (h *MockHardware) Settings() OutputSettings {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.settings
}

// Connection returns the connection created by AddOutput.
func (h *MockHardware) Connection() *MockConnection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn
}

// Snapshot returns a copy of the counters under lock.
func (h *MockHardware) Snapshot() MockHardwareState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return MockHardwareState{
		Preset:         h.Preset,
		Begins:         h.Begins,
		Commits:        h.Commits,
		InputAttaches:  h.InputAttaches,
		OutputAttaches: h.OutputAttaches,
		Inputs:         len(h.inputs),
		Running:        h.Running,
		Closed:         h.Closed,
	}
}

type MockHardwareState struct {
	Preset         Preset
	Begins         int
	Commits        int
	InputAttaches  int
	OutputAttaches int
	Inputs         int
	Running        bool
	Closed         bool
}
