package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/abihf/camgate/async"
	"github.com/abihf/camgate/utils/clock"
	"github.com/abihf/camgate/utils/thread"
)

// FrameSink receives frames on the session queue. It may call
// Session.DeviceProperties.
type FrameSink func(frame *Frame)

type Options struct {
	Logger *slog.Logger
	Clock  clock.Clock
	// UI is the presentation context used for preview updates.
	UI async.Executor
	// TorchLevel is the flash brightness in (0,1]. Zero means full.
	TorchLevel float64
	// PinWorker pins the session queue thread to WorkerCPU.
	PinWorker bool
	WorkerCPU int
}

type Stats struct {
	DeliveredFrames uint64
	DroppedFrames   uint64
}

// Session owns a capture Hardware. All hardware mutation and all frame
// delivery run on one serial queue.
type Session struct {
	hw     Hardware
	queue  *thread.Queue
	logger *slog.Logger
	clock  clock.Clock
	ui     async.Executor
	level  float64

	mu      sync.Mutex
	state   State
	setup   *async.Result[SetupResult]
	setupOK bool
	preview Preview

	released  atomic.Bool
	pending   atomic.Bool
	delivered atomic.Uint64
	dropped   atomic.Uint64

	// owned by the queue
	input Device
	conn  Connection
	torch *Torch
	sink  FrameSink
}

func NewSession(hw Hardware, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.UI == nil {
		opts.UI = async.Immediate
	}
	cpu := -1
	if opts.PinWorker {
		cpu = opts.WorkerCPU
	}
	return &Session{
		hw:     hw,
		queue:  thread.NewQueue("capture-session", thread.WithCPU(cpu), thread.WithLogger(opts.Logger)),
		logger: opts.Logger,
		clock:  opts.Clock,
		ui:     opts.UI,
		level:  opts.TorchLevel,
	}
}

// submit runs fn on the queue. A released session rejects with releasedErr,
// both before fn runs and after it returns.
func submit[T any](s *Session, releasedErr error, fn func() (T, error)) *async.Result[T] {
	r := async.New[T]()
	ok := s.queue.Submit(func() {
		if s.released.Load() {
			r.Reject(releasedErr)
			return
		}
		v, err := fn()
		if err != nil {
			r.Reject(err)
			return
		}
		if s.released.Load() {
			r.Reject(releasedErr)
			return
		}
		r.Resolve(v)
	})
	if !ok {
		r.Reject(releasedErr)
	}
	return r
}

func toSetupResult[T any](r *async.Result[T]) *async.Result[SetupResult] {
	out := async.New[SetupResult]()
	r.Observe(async.Immediate, func(_ T, err error) {
		out.Resolve(SetupResult{Err: err})
	})
	return out
}

// Configure sets the session up. Once a configuration has started, every
// later call returns the same result regardless of cfg.
func (s *Session) Configure(cfg Configuration, sink FrameSink) *async.Result[SetupResult] {
	s.mu.Lock()
	if s.setup != nil {
		r := s.setup
		s.mu.Unlock()
		return r
	}
	if s.released.Load() {
		s.mu.Unlock()
		return async.Resolved(SetupResult{Err: configurationFailed("session", ErrSessionReleased)})
	}
	out := async.New[SetupResult]()
	s.setup = out
	s.state = StateConfiguring
	s.mu.Unlock()

	s.logger.Debug("Configuring capture session", "position", cfg.Position, "preset", cfg.Preset, "format", cfg.Output.PixelFormat)

	session := submit(s, configurationFailed("session", ErrSessionReleased), func() (struct{}, error) {
		s.configureSession(cfg.Preset)
		return struct{}{}, nil
	})
	input := async.Then(session, func(struct{}) *async.Result[Device] {
		return s.configureInput(cfg.Position)
	})
	output := async.Then(input, func(Device) *async.Result[struct{}] {
		return submit(s, configurationFailed("output", ErrSessionReleased), func() (struct{}, error) {
			return struct{}{}, s.configureOutput(cfg, sink)
		})
	})

	output.Observe(async.Immediate, func(_ struct{}, err error) {
		s.mu.Lock()
		s.setupOK = err == nil
		if s.state == StateConfiguring {
			s.state = StateConfigured
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("Capture session configuration failed", "error", err)
		} else {
			s.logger.Info("Capture session configured", "position", cfg.Position)
		}
		out.Resolve(SetupResult{Err: err})
	})
	return out
}

func (s *Session) configureSession(preset Preset) {
	s.hw.BeginConfiguration()
	defer s.hw.CommitConfiguration()

	if preset == "" {
		return
	}
	if err := s.hw.SetPreset(preset); err != nil {
		s.logger.Warn("Capture preset not applied", "preset", preset, "error", err)
	}
}

func (s *Session) configureInput(p Position) *async.Result[Device] {
	return submit(s, configurationFailed("input", ErrSessionReleased), func() (Device, error) {
		s.hw.BeginConfiguration()
		defer s.hw.CommitConfiguration()

		for _, in := range s.hw.Inputs() {
			s.hw.RemoveInput(in)
		}
		s.input = nil
		s.torch = nil

		dev := SelectDevice(s.hw.Devices(p), p)
		if dev == nil {
			return nil, errors.Wrapf(ErrCaptureDeviceNotFound, "No %s camera", p)
		}
		if err := s.hw.AddInput(dev); err != nil {
			return nil, configurationFailed("input", errors.Wrapf(err, "Can not attach %s", dev.ID()))
		}
		s.input = dev
		s.torch = NewTorch(dev, s.clock, s.level)
		s.logger.Debug("Capture input attached", "device", dev.ID(), "type", dev.Type(), "position", p)
		return dev, nil
	})
}

func (s *Session) configureOutput(cfg Configuration, sink FrameSink) error {
	s.hw.BeginConfiguration()
	defer s.hw.CommitConfiguration()

	settings := cfg.Output
	settings.DiscardLateFrames = true
	conn, err := s.hw.AddOutput(settings, s.deliver)
	if err != nil {
		return configurationFailed("output", errors.Wrap(err, "Can not attach frame output"))
	}
	s.sink = sink
	s.conn = conn
	conn.SetOrientation(cfg.Orientation)

	if cfg.FocusMode != FocusUnset && s.input != nil {
		if err := s.applyFocus(s.input, cfg.FocusMode, cfg.FocusPoint); err != nil {
			s.logger.Warn("Initial focus not applied", "mode", cfg.FocusMode, "error", err)
		}
	}
	return nil
}

// ToggleCamera rebinds the input to another position. The output is kept.
// The old input is detached first, so a failed toggle leaves the session
// without a camera until a later toggle succeeds; StartSession then fails
// with ErrSessionNotConfigured.
func (s *Session) ToggleCamera(p Position) *async.Result[SetupResult] {
	if !s.setupSucceeded() {
		return async.Resolved(SetupResult{Err: ErrSessionNotConfigured})
	}
	return toSetupResult(s.configureInput(p))
}

// SetFocus applies a focus mode and optional point of interest to the bound
// device.
func (s *Session) SetFocus(mode FocusMode, point *Point) *async.Result[struct{}] {
	return submit(s, ErrSessionReleased, func() (struct{}, error) {
		if s.input == nil {
			return struct{}{}, ErrSessionNotConfigured
		}
		return struct{}{}, s.applyFocus(s.input, mode, point)
	})
}

func (s *Session) applyFocus(dev Device, mode FocusMode, point *Point) error {
	defer dev.Unlock()
	if err := dev.Lock(); err != nil {
		return errors.Wrap(err, "Can not lock device for focus")
	}
	if point != nil && dev.IsFocusPointSupported() {
		if err := dev.SetFocusPoint(*point); err != nil {
			return errors.Wrap(err, "Can not set focus point")
		}
	}
	if mode != FocusUnset && dev.IsFocusModeSupported(mode) {
		if err := dev.SetFocusMode(mode); err != nil {
			return errors.Wrapf(err, "Can not set focus mode %s", mode)
		}
	}
	return nil
}

// SetVideoOrientation updates the output connection on the queue and the
// preview on the UI executor.
func (s *Session) SetVideoOrientation(o Orientation) *async.Result[struct{}] {
	s.ui.Execute(func() {
		if p := s.Preview(); p != nil {
			p.SetOrientation(o)
		}
	})
	return submit(s, ErrSessionReleased, func() (struct{}, error) {
		if s.conn != nil {
			s.conn.SetOrientation(o)
		}
		return struct{}{}, nil
	})
}

// ToggleTorch flips the flash and resolves with its new state. Hardware
// errors are logged and leave the state unchanged.
func (s *Session) ToggleTorch() *async.Result[bool] {
	return submit(s, ErrSessionReleased, func() (bool, error) {
		if s.torch == nil {
			s.logger.Debug("Torch not available")
			return false, nil
		}
		on, err := s.torch.Toggle()
		if err != nil {
			s.logger.Warn("Torch toggle failed", "error", err)
		}
		return on, nil
	})
}

// Torch returns the torch of the bound device. Only call it on the queue.
func (s *Session) Torch() *Torch {
	s.mustBeOnQueue("Torch")
	return s.torch
}

// DeviceProperties returns telemetry of the bound device. It must be called
// from the session queue, normally from within the FrameSink.
func (s *Session) DeviceProperties() (*DeviceProperties, bool) {
	s.mustBeOnQueue("DeviceProperties")
	if s.input == nil {
		return nil, false
	}
	p := s.input.Properties()
	return &p, true
}

func (s *Session) mustBeOnQueue(op string) {
	if !s.queue.IsCurrent() {
		panic("capture: " + op + " called outside the session queue")
	}
}

// StartSession starts streaming. It fails with ErrSessionNotConfigured unless
// setup succeeded and a camera is bound.
func (s *Session) StartSession() *async.Result[struct{}] {
	return submit(s, ErrSessionReleased, func() (struct{}, error) {
		if !s.setupSucceeded() {
			return struct{}{}, ErrSessionNotConfigured
		}
		if s.input == nil {
			return struct{}{}, errors.Wrap(ErrSessionNotConfigured, "No camera bound")
		}
		if err := s.hw.Start(); err != nil {
			return struct{}{}, errors.Wrap(err, "Can not start streaming")
		}
		s.setState(StateRunning)
		s.logger.Debug("Capture session started")
		return struct{}{}, nil
	})
}

// StopSession stops streaming. It does nothing unless setup succeeded.
func (s *Session) StopSession() *async.Result[struct{}] {
	return submit(s, ErrSessionReleased, func() (struct{}, error) {
		if !s.setupSucceeded() {
			return struct{}{}, nil
		}
		s.hw.Stop()
		s.setState(StateStopped)
		s.logger.Debug("Capture session stopped")
		return struct{}{}, nil
	})
}

// deliver is handed to the hardware. At most one frame waits on the queue;
// frames arriving meanwhile are dropped.
func (s *Session) deliver(f *Frame) {
	if s.released.Load() {
		return
	}
	if !s.pending.CompareAndSwap(false, true) {
		s.dropped.Add(1)
		return
	}
	ok := s.queue.Submit(func() {
		defer s.pending.Store(false)
		if s.released.Load() || s.sink == nil {
			return
		}
		s.delivered.Add(1)
		s.sink(f)
	})
	if !ok {
		s.pending.Store(false)
	}
}

// Close releases the hardware. Pending configuration steps fail with
// ErrConfigurationFailed. Close is idempotent.
func (s *Session) Close() error {
	if !s.released.CompareAndSwap(false, true) {
		return nil
	}
	s.setState(StateReleased)

	var closeErr error
	s.queue.Submit(func() {
		s.hw.Stop()
		s.hw.BeginConfiguration()
		for _, in := range s.hw.Inputs() {
			s.hw.RemoveInput(in)
		}
		s.hw.CommitConfiguration()
		s.input, s.conn, s.torch, s.sink = nil, nil, nil, nil
		closeErr = s.hw.Close()
	})
	onQueue := s.queue.IsCurrent()
	s.queue.Close()
	if onQueue {
		return nil
	}
	if closeErr != nil {
		return errors.Wrap(closeErr, "Can not close capture hardware")
	}
	s.logger.Debug("Capture session released")
	return nil
}

func (s *Session) setupSucceeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setupOK
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateReleased {
		return
	}
	s.state = st
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Preview() Preview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview
}

func (s *Session) SetPreview(p Preview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preview = p
}

func (s *Session) Stats() Stats {
	return Stats{
		DeliveredFrames: s.delivered.Load(),
		DroppedFrames:   s.dropped.Load(),
	}
}

// Queue exposes the session queue as an executor for completions that must
// run alongside frame delivery.
func (s *Session) Queue() async.Executor {
	return s.queue
}
