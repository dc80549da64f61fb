package capture

// Hardware is the capture stack owned by a Session. Session calls it from its
// worker queue only, so implementations need not be safe for concurrent use.
type Hardware interface {
	// BeginConfiguration and CommitConfiguration bracket a batch of changes.
	BeginConfiguration()
	CommitConfiguration()

	SetPreset(p Preset) error

	// Devices lists the devices physically present at a position.
	Devices(p Position) []Device
	Inputs() []Device
	AddInput(d Device) error
	RemoveInput(d Device)

	// AddOutput attaches a frame output. deliver may be called from any
	// goroutine.
	AddOutput(settings OutputSettings, deliver func(*Frame)) (Connection, error)

	Start() error
	Stop()
	Close() error
}

// Device is one physical or virtual camera.
type Device interface {
	ID() string
	Type() DeviceType
	Position() Position
	IsVirtual() bool

	// Lock takes exclusive configuration access. Unlock must be safe to call
	// even when Lock failed.
	Lock() error
	Unlock()

	IsFocusModeSupported(m FocusMode) bool
	SetFocusMode(m FocusMode) error
	IsFocusPointSupported() bool
	SetFocusPoint(p Point) error

	HasTorch() bool
	SetTorch(on bool, level float64) error

	Properties() DeviceProperties
}

// Connection links the frame output to the current input.
type Connection interface {
	SetOrientation(o Orientation)
	Orientation() Orientation
}

// Preview is a caller-owned on-screen surface fed by the session.
type Preview interface {
	SetOrientation(o Orientation)
}

// SelectDevice picks the first device matching the position's preferred
// types, in priority order.
func SelectDevice(devices []Device, p Position) Device {
	for _, t := range PreferredDeviceTypes(p) {
		for _, d := range devices {
			if d.Type() == t {
				return d
			}
		}
	}
	return nil
}
