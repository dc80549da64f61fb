package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIOU(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want float64
	}{
		{"identical", Rect{0.2, 0.2, 0.4, 0.4}, Rect{0.2, 0.2, 0.4, 0.4}, 1},
		{"disjoint", Rect{0, 0, 0.2, 0.2}, Rect{0.5, 0.5, 0.2, 0.2}, 0},
		{"touching edges", Rect{0, 0, 0.5, 0.5}, Rect{0.5, 0, 0.5, 0.5}, 0},
		{"half shifted", Rect{0, 0, 0.4, 0.4}, Rect{0.2, 0, 0.4, 0.4}, 0.08 / 0.24},
		{"contained", Rect{0, 0, 1, 1}, Rect{0.25, 0.25, 0.5, 0.5}, 0.25},
		{"empty", Rect{}, Rect{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IOU(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.want, IOU(tt.b, tt.a), 1e-9)
		})
	}
}

func TestRectEdges(t *testing.T) {
	r := Rect{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4}
	assert.InDelta(t, 0.1, r.Left(), 1e-9)
	assert.InDelta(t, 0.2, r.Top(), 1e-9)
	assert.InDelta(t, 0.4, r.Right(), 1e-9)
	assert.InDelta(t, 0.6, r.Bottom(), 1e-9)
	assert.InDelta(t, 0.12, r.Area(), 1e-9)
	assert.Zero(t, Rect{Width: -1, Height: 1}.Area())
}
