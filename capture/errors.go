package capture

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrCaptureDeviceNotFound = errors.New("capture device not found")
	ErrConfigurationFailed   = errors.New("configuration failed")
	ErrSessionNotConfigured  = errors.New("session not configured")
	ErrSessionReleased       = errors.New("session released")
)

// ConfigurationError reports a failed configuration step. It matches
// ErrConfigurationFailed and unwraps to its cause.
type ConfigurationError struct {
	Step string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s step: %v", ErrConfigurationFailed, e.Step, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfigurationFailed
}

func configurationFailed(step string, err error) error {
	return &ConfigurationError{Step: step, Err: err}
}
