// Package quality holds the geometric acceptance gates applied to a
// detected subject.
package quality

import (
	"math"

	"github.com/abihf/camgate/detect"
)

// Thresholds bound where a face box may sit in the frame. All values are
// fractions of the frame.
type Thresholds struct {
	// CenterX and CenterY bound |1-(left+right)| and |1-(top+bottom)|.
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	// MinEdge is the least distance from any box edge to the frame border.
	MinEdge float64 `json:"min_edge"`
	// MinCoverage and MaxCoverage bound box area, both exclusive.
	MinCoverage float64 `json:"min_coverage"`
	MaxCoverage float64 `json:"max_coverage"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		CenterX:     0.2,
		CenterY:     0.2,
		MinEdge:     0.05,
		MinCoverage: 0.07,
		MaxCoverage: 0.8,
	}
}

// Verdict is the per-gate result for one box.
type Verdict struct {
	Centered      bool    `json:"centered"`
	AwayFromEdges bool    `json:"away_from_edges"`
	CoverageOK    bool    `json:"coverage_ok"`
	Coverage      float64 `json:"coverage"`
}

func (v Verdict) Valid() bool {
	return v.Centered && v.AwayFromEdges && v.CoverageOK
}

// Face evaluates box against t.
func Face(box detect.Rect, t Thresholds) Verdict {
	coverage := box.Area()
	return Verdict{
		Centered:      IsCentered(box, t),
		AwayFromEdges: IsAwayFromEdges(box, t.MinEdge),
		CoverageOK:    t.MinCoverage < coverage && coverage < t.MaxCoverage,
		Coverage:      coverage,
	}
}

func IsCentered(box detect.Rect, t Thresholds) bool {
	return math.Abs(1-(box.Top()+box.Bottom())) < t.CenterY &&
		math.Abs(1-(box.Left()+box.Right())) < t.CenterX
}

func IsAwayFromEdges(box detect.Rect, margin float64) bool {
	return box.Left() >= margin &&
		box.Top() >= margin &&
		box.Right() <= 1-margin &&
		box.Bottom() <= 1-margin
}
