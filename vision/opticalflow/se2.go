package opticalflow

import (
	"math"

	"github.com/CIFASIS/basalt-with-persistent-map/utils"
)

// AffineCompact2 is a 2D affine transform stored as a 2x2 linear part and a
// translation. Keypoint poses keep the linear part a rotation; the solver
// composes SE(2) increments into it.
type AffineCompact2[S utils.Float] struct {
	Linear      [2][2]S
	Translation [2]S
}

// IdentityAffine2 returns the identity transform.
func IdentityAffine2[S utils.Float]() AffineCompact2[S] {
	var a AffineCompact2[S]
	a.SetIdentity()
	return a
}

// SetIdentity resets the transform to identity.
func (a *AffineCompact2[S]) SetIdentity() {
	a.Linear = [2][2]S{{1, 0}, {0, 1}}
	a.Translation = [2]S{0, 0}
}

// Apply maps a point through the transform.
func (a *AffineCompact2[S]) Apply(x, y S) (S, S) {
	return a.Linear[0][0]*x + a.Linear[0][1]*y + a.Translation[0],
		a.Linear[1][0]*x + a.Linear[1][1]*y + a.Translation[1]
}

// RightMul composes b into the transform: a = a * b.
func (a *AffineCompact2[S]) RightMul(b AffineCompact2[S]) {
	l := a.Linear
	a.Linear[0][0] = l[0][0]*b.Linear[0][0] + l[0][1]*b.Linear[1][0]
	a.Linear[0][1] = l[0][0]*b.Linear[0][1] + l[0][1]*b.Linear[1][1]
	a.Linear[1][0] = l[1][0]*b.Linear[0][0] + l[1][1]*b.Linear[1][0]
	a.Linear[1][1] = l[1][0]*b.Linear[0][1] + l[1][1]*b.Linear[1][1]
	a.Translation[0] += l[0][0]*b.Translation[0] + l[0][1]*b.Translation[1]
	a.Translation[1] += l[1][0]*b.Translation[0] + l[1][1]*b.Translation[1]
}

// SE2Exp is the SE(2) exponential map. The tangent vector is (vx, vy, omega).
func SE2Exp[S utils.Float](v [3]S) AffineCompact2[S] {
	theta := float64(v[2])
	st := math.Sin(theta)
	ct := math.Cos(theta)

	var a1, a2 float64
	if math.Abs(theta) < 1e-10 {
		// second order Taylor expansion around zero
		a1 = 1 - theta*theta/6
		a2 = theta / 2
	} else {
		a1 = st / theta
		a2 = (1 - ct) / theta
	}

	var out AffineCompact2[S]
	out.Linear = [2][2]S{{S(ct), S(-st)}, {S(st), S(ct)}}
	out.Translation = [2]S{
		S(a1)*v[0] - S(a2)*v[1],
		S(a2)*v[0] + S(a1)*v[1],
	}
	return out
}
