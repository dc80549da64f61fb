// Package scanner turns a frame plus detector output into a typed per-frame
// evaluation.
package scanner

import (
	"github.com/abihf/camgate/async"
	"github.com/abihf/camgate/capture"
	"github.com/abihf/camgate/detect"
)

// Scanner evaluates frames of one capture attempt. Implementations keep
// temporal state and are driven from the capture session queue only.
type Scanner[O any] interface {
	// ScanImage evaluates a frame. props may be nil when telemetry is not
	// available.
	ScanImage(frame *capture.Frame, detections []detect.Detection, props *capture.DeviceProperties) *async.Result[O]
	// Reset clears temporal state before a new attempt.
	Reset()
}
