package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// CameraPose is a rigid transform between two frames: a point expressed in
// the child frame maps to the parent frame via R*p + t.
type CameraPose struct {
	Rotation    *mat.Dense
	Translation r3.Vector
}

// NewIdentityPose returns the identity rigid transform.
func NewIdentityPose() CameraPose {
	r := mat.NewDense(3, 3, nil)
	r.Set(0, 0, 1)
	r.Set(1, 1, 1)
	r.Set(2, 2, 1)
	return CameraPose{Rotation: r}
}

// rotate applies the rotation matrix to a vector without going through a
// gonum vector allocation.
func rotate(r *mat.Dense, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: r.At(0, 0)*v.X + r.At(0, 1)*v.Y + r.At(0, 2)*v.Z,
		Y: r.At(1, 0)*v.X + r.At(1, 1)*v.Y + r.At(1, 2)*v.Z,
		Z: r.At(2, 0)*v.X + r.At(2, 1)*v.Y + r.At(2, 2)*v.Z,
	}
}

// TransformPoint maps a point from the child frame into the parent frame.
func (p CameraPose) TransformPoint(v r3.Vector) r3.Vector {
	return rotate(p.Rotation, v).Add(p.Translation)
}

// Inverse returns the transform mapping parent-frame points into the child frame.
func (p CameraPose) Inverse() CameraPose {
	rt := mat.NewDense(3, 3, nil)
	rt.CloneFrom(p.Rotation.T())
	return CameraPose{
		Rotation:    rt,
		Translation: rotate(rt, p.Translation).Mul(-1),
	}
}

// Compose returns the transform p * q.
func (p CameraPose) Compose(q CameraPose) CameraPose {
	r := mat.NewDense(3, 3, nil)
	r.Mul(p.Rotation, q.Rotation)
	return CameraPose{
		Rotation:    r,
		Translation: rotate(p.Rotation, q.Translation).Add(p.Translation),
	}
}

// Calibration is the multi-camera rig description the tracker works with.
// CamToRig[i] expresses camera i's frame in the rig frame.
type Calibration struct {
	Intrinsics []PinholeCameraIntrinsics
	CamToRig   []CameraPose
}

// NumCameras returns the number of cameras in the rig.
func (c *Calibration) NumCameras() int {
	return len(c.Intrinsics)
}

// CheckValid checks the calibration for structural errors.
func (c *Calibration) CheckValid() error {
	if c == nil || len(c.Intrinsics) == 0 {
		return errors.New("calibration needs at least one camera")
	}
	if len(c.Intrinsics) != len(c.CamToRig) {
		return errors.Errorf("calibration has %d intrinsics but %d extrinsics",
			len(c.Intrinsics), len(c.CamToRig))
	}
	for i := range c.Intrinsics {
		if err := c.Intrinsics[i].CheckValid(); err != nil {
			return err
		}
		if c.CamToRig[i].Rotation == nil {
			return errors.Errorf("camera %d has no extrinsic rotation", i)
		}
	}
	return nil
}

// RelativePose returns the transform mapping points in camera c2's frame into
// camera c1's frame.
func (c *Calibration) RelativePose(c1, c2 int) CameraPose {
	return c.CamToRig[c1].Inverse().Compose(c.CamToRig[c2])
}

// EssentialMatrixFromPose builds the essential matrix of a relative pose
// T_c1_c2 so that ray1^T * E * ray2 == 0 for corresponding rays. The
// translation is normalized; a rig with no baseline yields the zero matrix.
func EssentialMatrixFromPose(p CameraPose) *mat.Dense {
	t := p.Translation
	norm := t.Norm()
	if norm > 0 {
		t = t.Mul(1 / norm)
	}
	skew := mat.NewDense(3, 3, []float64{
		0, -t.Z, t.Y,
		t.Z, 0, -t.X,
		-t.Y, t.X, 0,
	})
	e := mat.NewDense(3, 3, nil)
	e.Mul(skew, p.Rotation)
	return e
}

// EssentialMatrix returns the essential matrix between cameras c1 and c2.
func (c *Calibration) EssentialMatrix(c1, c2 int) *mat.Dense {
	return EssentialMatrixFromPose(c.RelativePose(c1, c2))
}

// EpipolarError evaluates |ray1^T * E * ray2| for two unit rays.
func EpipolarError(e *mat.Dense, ray1, ray2 r3.Vector) float64 {
	er2 := rotate(e, ray2)
	return math.Abs(ray1.Dot(er2))
}

// ViewOffset predicts how far a pixel observed in camera c1 moves when viewed
// from camera c2, assuming the scene point lies at the given depth along the
// observation ray. The returned offset is expressed so that the predicted
// location in c2 is the c1 pixel minus the offset. Failed unprojection or
// projection yields a zero offset.
func (c *Calibration) ViewOffset(pt r2.Point, depth float64, c1, c2 int) r2.Point {
	ray, ok := c.Intrinsics[c1].UnprojectRay(pt)
	if !ok {
		return r2.Point{}
	}
	p1 := ray.Mul(depth)
	p2 := c.RelativePose(c2, c1).TransformPoint(p1)
	proj, ok := c.Intrinsics[c2].ProjectPoint(p2)
	if !ok {
		return r2.Point{}
	}
	return pt.Sub(proj)
}
