package transform

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func testIntrinsics() PinholeCameraIntrinsics {
	return PinholeCameraIntrinsics{
		Width: 640, Height: 480,
		Fx: 400, Fy: 400,
		Ppx: 320, Ppy: 240,
	}
}

func stereoCalibration(baseline float64) *Calibration {
	right := NewIdentityPose()
	right.Translation = r3.Vector{X: baseline}
	return &Calibration{
		Intrinsics: []PinholeCameraIntrinsics{testIntrinsics(), testIntrinsics()},
		CamToRig:   []CameraPose{NewIdentityPose(), right},
	}
}

func TestUnprojectProjectRoundTrip(t *testing.T) {
	intr := testIntrinsics()
	pt := r2.Point{X: 402.5, Y: 190.25}
	ray, ok := intr.UnprojectRay(pt)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, ray.Norm(), test.ShouldAlmostEqual, 1, 1e-12)
	back, ok := intr.ProjectPoint(ray.Mul(3.7))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, back.X, test.ShouldAlmostEqual, pt.X, 1e-9)
	test.That(t, back.Y, test.ShouldAlmostEqual, pt.Y, 1e-9)
}

func TestProjectBehindCameraFails(t *testing.T) {
	intr := testIntrinsics()
	_, ok := intr.ProjectPoint(r3.Vector{X: 1, Y: 1, Z: -2})
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = intr.ProjectPoint(r3.Vector{X: 1, Y: 1, Z: 0})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestUnprojectInvalidIntrinsics(t *testing.T) {
	intr := PinholeCameraIntrinsics{Width: 640, Height: 480}
	_, ok := intr.UnprojectRay(r2.Point{X: 10, Y: 10})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestRelativePoseRoundTrip(t *testing.T) {
	calib := stereoCalibration(0.2)
	rel := calib.RelativePose(0, 1)
	test.That(t, rel.Translation.X, test.ShouldAlmostEqual, 0.2, 1e-12)
	// composing with the inverse gives identity
	id := rel.Compose(calib.RelativePose(1, 0))
	test.That(t, id.Translation.Norm(), test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, id.Rotation.At(0, 0), test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, id.Rotation.At(0, 1), test.ShouldAlmostEqual, 0, 1e-12)
}

func TestEssentialMatrixEpipolarConstraint(t *testing.T) {
	calib := stereoCalibration(0.2)
	e := calib.EssentialMatrix(0, 1)

	// a scene point observed by both cameras satisfies the constraint
	p := r3.Vector{X: 0.3, Y: -0.1, Z: 2.5}
	ray0 := p.Normalize()
	pRight := p.Sub(r3.Vector{X: 0.2})
	ray1 := pRight.Normalize()
	test.That(t, EpipolarError(e, ray0, ray1), test.ShouldAlmostEqual, 0, 1e-12)

	// rays that do not correspond violate it
	bad := r3.Vector{X: 0.3, Y: 0.4, Z: 2.5}.Normalize()
	test.That(t, EpipolarError(e, ray0, bad), test.ShouldBeGreaterThan, 1e-3)
}

func TestEssentialMatrixNoBaseline(t *testing.T) {
	calib := stereoCalibration(0)
	e := calib.EssentialMatrix(0, 1)
	ray := r3.Vector{X: 0.1, Y: 0.2, Z: 1}.Normalize()
	test.That(t, EpipolarError(e, ray, ray), test.ShouldEqual, 0)
}

func TestViewOffsetIdentityRig(t *testing.T) {
	calib := stereoCalibration(0)
	off := calib.ViewOffset(r2.Point{X: 100, Y: 200}, 2.0, 0, 1)
	test.That(t, off.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, off.Y, test.ShouldAlmostEqual, 0, 1e-9)
}

func TestViewOffsetBaseline(t *testing.T) {
	calib := stereoCalibration(0.1)
	// principal point: the ray is the optical axis, depth d, so the right
	// camera sees it at ppx - fx*b/d
	off := calib.ViewOffset(r2.Point{X: 320, Y: 240}, 2.0, 0, 1)
	test.That(t, off.X, test.ShouldAlmostEqual, 400*0.1/2.0, 1e-9)
	test.That(t, off.Y, test.ShouldAlmostEqual, 0, 1e-9)
	// deeper scenes shrink the disparity
	offFar := calib.ViewOffset(r2.Point{X: 320, Y: 240}, 10.0, 0, 1)
	test.That(t, offFar.X, test.ShouldBeLessThan, off.X)
}

func TestCalibrationCheckValid(t *testing.T) {
	test.That(t, stereoCalibration(0.1).CheckValid(), test.ShouldBeNil)
	var nilCalib *Calibration
	test.That(t, nilCalib.CheckValid(), test.ShouldNotBeNil)
	bad := stereoCalibration(0.1)
	bad.CamToRig = bad.CamToRig[:1]
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
	noRot := stereoCalibration(0.1)
	noRot.CamToRig[1].Rotation = nil
	test.That(t, noRot.CheckValid(), test.ShouldNotBeNil)
}
