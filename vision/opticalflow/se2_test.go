package opticalflow

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestSE2ExpZero(t *testing.T) {
	a := SE2Exp([3]float64{0, 0, 0})
	test.That(t, a.Linear[0][0], test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, a.Linear[0][1], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, a.Translation[0], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, a.Translation[1], test.ShouldAlmostEqual, 0, 1e-12)
}

func TestSE2ExpPureTranslation(t *testing.T) {
	a := SE2Exp([3]float64{2, -3, 0})
	test.That(t, a.Translation[0], test.ShouldAlmostEqual, 2, 1e-12)
	test.That(t, a.Translation[1], test.ShouldAlmostEqual, -3, 1e-12)
	test.That(t, a.Linear[0][0], test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, a.Linear[1][0], test.ShouldAlmostEqual, 0, 1e-12)
}

func TestSE2ExpPureRotation(t *testing.T) {
	theta := 0.3
	a := SE2Exp([3]float64{0, 0, theta})
	test.That(t, a.Linear[0][0], test.ShouldAlmostEqual, math.Cos(theta), 1e-12)
	test.That(t, a.Linear[0][1], test.ShouldAlmostEqual, -math.Sin(theta), 1e-12)
	test.That(t, a.Linear[1][0], test.ShouldAlmostEqual, math.Sin(theta), 1e-12)
	test.That(t, a.Translation[0], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, a.Translation[1], test.ShouldAlmostEqual, 0, 1e-12)
}

func TestSE2ExpInverse(t *testing.T) {
	v := [3]float64{1.5, -0.7, 0.4}
	a := SE2Exp(v)
	a.RightMul(SE2Exp([3]float64{-v[0], -v[1], -v[2]}))
	test.That(t, a.Linear[0][0], test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, a.Linear[0][1], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, a.Translation[0], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, a.Translation[1], test.ShouldAlmostEqual, 0, 1e-12)
}

func TestAffineApply(t *testing.T) {
	a := IdentityAffine2[float64]()
	a.Translation = [2]float64{10, 20}
	x, y := a.Apply(1, 2)
	test.That(t, x, test.ShouldAlmostEqual, 11, 1e-12)
	test.That(t, y, test.ShouldAlmostEqual, 22, 1e-12)

	r := SE2Exp([3]float64{0, 0, math.Pi / 2})
	x, y = r.Apply(1, 0)
	test.That(t, x, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, y, test.ShouldAlmostEqual, 1, 1e-12)
}

func TestRightMulComposesTranslations(t *testing.T) {
	a := IdentityAffine2[float64]()
	a.Translation = [2]float64{5, 5}
	b := SE2Exp([3]float64{1, 2, 0})
	a.RightMul(b)
	test.That(t, a.Translation[0], test.ShouldAlmostEqual, 6, 1e-12)
	test.That(t, a.Translation[1], test.ShouldAlmostEqual, 7, 1e-12)
}
