package opticalflow

import (
	"testing"

	"go.viam.com/test"

	"github.com/CIFASIS/basalt-with-persistent-map/rimage"
)

func TestDiscPatternSizes(t *testing.T) {
	test.That(t, DefaultPattern[float64]().Size(), test.ShouldEqual, 49)
	test.That(t, SmallPattern[float64]().Size(), test.ShouldEqual, 21)
}

func TestNewPatchValid(t *testing.T) {
	img := sinScene(128, 128, 0)
	pat := DefaultPattern[float64]()
	p := NewPatch(img, pat, 64, 64)
	test.That(t, p.Valid, test.ShouldBeTrue)
	test.That(t, p.Mean, test.ShouldBeGreaterThan, 0)
	test.That(t, len(p.Values), test.ShouldEqual, pat.Size())
	for r := 0; r < 3; r++ {
		test.That(t, len(p.HInvJT[r]), test.ShouldEqual, pat.Size())
	}
}

func TestNewPatchRejectedNearBorder(t *testing.T) {
	img := sinScene(128, 128, 0)
	pat := DefaultPattern[float64]()
	// the outermost sample site needs two pixels of interpolation margin
	test.That(t, NewPatch(img, pat, 3, 64).Valid, test.ShouldBeFalse)
	test.That(t, NewPatch(img, pat, 5, 64).Valid, test.ShouldBeFalse)
	test.That(t, NewPatch(img, pat, 6, 64).Valid, test.ShouldBeTrue)
	test.That(t, NewPatch(img, pat, 64, 124).Valid, test.ShouldBeFalse)
}

func TestNewPatchZeroMean(t *testing.T) {
	img := rimage.NewGray(64, 64)
	p := NewPatch(img, DefaultPattern[float64](), 32, 32)
	test.That(t, p.Valid, test.ShouldBeFalse)
}

func TestNewPatchConstantImage(t *testing.T) {
	img := rimage.NewGray(64, 64)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, 5000)
		}
	}
	// no gradient anywhere: the normal equations are singular
	p := NewPatch(img, DefaultPattern[float64](), 32, 32)
	test.That(t, p.Valid, test.ShouldBeFalse)
}

func TestPatchResidualIdentity(t *testing.T) {
	img := sinScene(128, 128, 0)
	pat := DefaultPattern[float64]()
	p := NewPatch(img, pat, 64, 64)
	test.That(t, p.Valid, test.ShouldBeTrue)

	n := pat.Size()
	sitesX := make([]float64, n)
	sitesY := make([]float64, n)
	res := make([]float64, n)
	for i := 0; i < n; i++ {
		ox, oy := pat.Offset(i)
		sitesX[i] = 64 + ox
		sitesY[i] = 64 + oy
	}
	test.That(t, p.Residual(img, sitesX, sitesY, res), test.ShouldBeTrue)
	for i := 0; i < n; i++ {
		test.That(t, res[i], test.ShouldAlmostEqual, 0, 1e-12)
	}
}

func TestPatchResidualOutOfBounds(t *testing.T) {
	img := sinScene(128, 128, 0)
	pat := DefaultPattern[float64]()
	p := NewPatch(img, pat, 64, 64)

	n := pat.Size()
	sitesX := make([]float64, n)
	sitesY := make([]float64, n)
	res := make([]float64, n)
	for i := 0; i < n; i++ {
		ox, oy := pat.Offset(i)
		sitesX[i] = 126 + ox
		sitesY[i] = 64 + oy
	}
	test.That(t, p.Residual(img, sitesX, sitesY, res), test.ShouldBeFalse)
}
