// Package detect defines the boundary to the external subject detector.
// Boxes are normalized to [0,1] with the origin at the top-left of the frame.
package detect

import (
	"context"
	"math"

	"github.com/abihf/camgate/capture"
)

// Rect is a normalized bounding box.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Left() float64   { return r.X }
func (r Rect) Top() float64    { return r.Y }
func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Area is the fraction of the frame covered by r.
func (r Rect) Area() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Intersect returns the overlapping region of r and o, or the zero Rect.
func (r Rect) Intersect(o Rect) Rect {
	left := math.Max(r.Left(), o.Left())
	top := math.Max(r.Top(), o.Top())
	right := math.Min(r.Right(), o.Right())
	bottom := math.Min(r.Bottom(), o.Bottom())
	if right <= left || bottom <= top {
		return Rect{}
	}
	return Rect{X: left, Y: top, Width: right - left, Height: bottom - top}
}

// IOU computes intersection-over-union of two boxes.
func IOU(a, b Rect) float64 {
	inter := a.Intersect(b).Area()
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Detection is one subject found in a frame.
type Detection struct {
	Box   Rect    `json:"box"`
	Score float64 `json:"score"`
}

// Detector finds subjects in a frame. Implementations are opaque to the
// capture pipeline.
type Detector interface {
	Detect(ctx context.Context, frame *capture.Frame) ([]Detection, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, frame *capture.Frame) ([]Detection, error)

func (f DetectorFunc) Detect(ctx context.Context, frame *capture.Frame) ([]Detection, error) {
	return f(ctx, frame)
}
