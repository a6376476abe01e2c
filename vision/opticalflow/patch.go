package opticalflow

import (
	"math"

	"github.com/CIFASIS/basalt-with-persistent-map/rimage"
	"github.com/CIFASIS/basalt-with-persistent-map/utils"
)

// filterMargin is the interpolation guard band, in pixels, kept between any
// sample site and the image border.
const filterMargin = 2

// Patch holds the reference appearance of one keypoint at one pyramid level:
// mean-normalized intensities at the pattern sites and the precomputed
// (J^T J)^-1 J^T used by the inverse-compositional solver. A patch is
// immutable once constructed.
type Patch[S utils.Float] struct {
	Valid  bool
	Mean   S
	Values []S
	// HInvJT rows map a residual vector to the (vx, vy, omega) increment.
	HInvJT [3][]S
}

// NewPatch samples the image at the pattern sites centred on (cx, cy) and
// precomputes the solver matrices. The returned patch is invalid when a
// sample site is out of bounds or the mean intensity is zero.
func NewPatch[S utils.Float](img *rimage.Gray, pat *Pattern[S], cx, cy S) Patch[S] {
	n := pat.Size()
	p := Patch[S]{}

	vals := make([]S, n)
	gradX := make([]S, n)
	gradY := make([]S, n)

	var sum S
	for i := 0; i < n; i++ {
		ox, oy := pat.Offset(i)
		x, y := cx+ox, cy+oy
		if !img.InBounds(float64(x), float64(y), filterMargin) {
			return p
		}
		v, gx, gy := rimage.InterpGrad(img, x, y)
		vals[i] = v
		gradX[i] = gx
		gradY[i] = gy
		sum += v
	}

	mean := sum / S(n)
	if mean == 0 || math.IsNaN(float64(mean)) || math.IsInf(float64(mean), 0) {
		return p
	}
	meanInv := S(1) / mean

	// J is the Jacobian of the normalized intensities w.r.t. the SE(2)
	// increment (vx, vy, omega) at the reference pose.
	jt := [3][]S{make([]S, n), make([]S, n), make([]S, n)}
	var h [3][3]S
	for i := 0; i < n; i++ {
		ox, oy := pat.Offset(i)
		vals[i] *= meanInv
		j0 := gradX[i] * meanInv
		j1 := gradY[i] * meanInv
		j2 := (-oy*gradX[i] + ox*gradY[i]) * meanInv
		jt[0][i] = j0
		jt[1][i] = j1
		jt[2][i] = j2
		h[0][0] += j0 * j0
		h[0][1] += j0 * j1
		h[0][2] += j0 * j2
		h[1][1] += j1 * j1
		h[1][2] += j1 * j2
		h[2][2] += j2 * j2
	}
	h[1][0] = h[0][1]
	h[2][0] = h[0][2]
	h[2][1] = h[1][2]

	hInv, ok := invert3x3(h)
	if !ok {
		return p
	}

	p.HInvJT = [3][]S{make([]S, n), make([]S, n), make([]S, n)}
	for r := 0; r < 3; r++ {
		for i := 0; i < n; i++ {
			p.HInvJT[r][i] = hInv[r][0]*jt[0][i] + hInv[r][1]*jt[1][i] + hInv[r][2]*jt[2][i]
		}
	}

	p.Mean = mean
	p.Values = vals
	p.Valid = true
	return p
}

// Residual evaluates the normalized intensity residual of the patch against
// the target image at the given sample sites. It returns false when any site
// leaves the target image.
func (p *Patch[S]) Residual(img *rimage.Gray, sitesX, sitesY, res []S) bool {
	meanInv := S(1) / p.Mean
	for i := range p.Values {
		if !img.InBounds(float64(sitesX[i]), float64(sitesY[i]), filterMargin) {
			return false
		}
		res[i] = rimage.Interp(img, sitesX[i], sitesY[i])*meanInv - p.Values[i]
	}
	return true
}

// invert3x3 inverts a symmetric 3x3 matrix by adjugate. ok is false for a
// singular or non-finite matrix.
func invert3x3[S utils.Float](m [3][3]S) ([3][3]S, bool) {
	var inv [3][3]S
	c00 := m[1][1]*m[2][2] - m[1][2]*m[2][1]
	c01 := m[1][2]*m[2][0] - m[1][0]*m[2][2]
	c02 := m[1][0]*m[2][1] - m[1][1]*m[2][0]
	det := m[0][0]*c00 + m[0][1]*c01 + m[0][2]*c02
	if det == 0 || math.IsNaN(float64(det)) || math.IsInf(float64(det), 0) {
		return inv, false
	}
	detInv := S(1) / det
	inv[0][0] = c00 * detInv
	inv[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) * detInv
	inv[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) * detInv
	inv[1][0] = c01 * detInv
	inv[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) * detInv
	inv[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) * detInv
	inv[2][0] = c02 * detInv
	inv[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) * detInv
	inv[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) * detInv
	return inv, true
}
