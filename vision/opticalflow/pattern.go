package opticalflow

import "github.com/CIFASIS/basalt-with-persistent-map/utils"

// Pattern is the set of 2D sample offsets defining a patch's shape. Patterns
// are built once per tracker and shared read-only by every patch.
type Pattern[S utils.Float] struct {
	offsets [][2]S
}

// Size returns the number of sample sites.
func (p *Pattern[S]) Size() int {
	return len(p.offsets)
}

// Offset returns the i-th sample offset.
func (p *Pattern[S]) Offset(i int) (S, S) {
	return p.offsets[i][0], p.offsets[i][1]
}

// DiscPattern returns the integer lattice points inside a disc of the given
// radius, in row-major order.
func DiscPattern[S utils.Float](radius float64) *Pattern[S] {
	r := int(radius)
	r2 := radius * radius
	offsets := make([][2]S, 0)
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if float64(x*x+y*y) <= r2 {
				offsets = append(offsets, [2]S{S(x), S(y)})
			}
		}
	}
	return &Pattern[S]{offsets: offsets}
}

// DefaultPattern is the 49-site disc of radius 4 used by the tracker unless
// callers provide their own.
func DefaultPattern[S utils.Float]() *Pattern[S] {
	return DiscPattern[S](4)
}

// SmallPattern is a 21-site disc for coarse or low-texture settings.
func SmallPattern[S utils.Float]() *Pattern[S] {
	return DiscPattern[S](2.5)
}
