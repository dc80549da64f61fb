package capture

import (
	"time"

	"github.com/pkg/errors"

	"github.com/abihf/camgate/utils/clock"
)

// Torch tracks the flash of the bound device. A new Torch is built every
// time the session input changes.
type Torch struct {
	dev       Device
	clock     clock.Clock
	level     float64
	on        bool
	changedAt time.Time
}

// NewTorch returns nil when the device has no flash.
func NewTorch(dev Device, clk clock.Clock, level float64) *Torch {
	if dev == nil || !dev.HasTorch() {
		return nil
	}
	if level <= 0 || level > 1 {
		level = 1
	}
	return &Torch{dev: dev, clock: clk, level: level}
}

func (t *Torch) On() bool             { return t.on }
func (t *Torch) ChangedAt() time.Time { return t.changedAt }
func (t *Torch) Level() float64       { return t.level }

// Toggle flips the flash and returns the resulting state. On error the state
// is unchanged.
func (t *Torch) Toggle() (bool, error) {
	if err := t.dev.Lock(); err != nil {
		return t.on, errors.Wrap(err, "Can not lock device for torch")
	}
	defer t.dev.Unlock()

	next := !t.on
	if err := t.dev.SetTorch(next, t.level); err != nil {
		return t.on, errors.Wrapf(err, "Can not switch torch on %s", t.dev.ID())
	}
	t.on = next
	t.changedAt = t.clock.Now()
	return t.on, nil
}
