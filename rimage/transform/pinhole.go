package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a
// 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return errors.Wrap(ErrNoIntrinsics, "intrinsics are nil")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid size (%#v, %#v)", params.Width, params.Height)
	}
	if params.Fx <= 0 || params.Fy <= 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid focal length (%#v, %#v)", params.Fx, params.Fy)
	}
	return nil
}

// UnprojectRay converts a pixel location into the unit ray through it in the
// camera frame. The second return is false when the intrinsics cannot
// unproject the point.
func (params *PinholeCameraIntrinsics) UnprojectRay(pt r2.Point) (r3.Vector, bool) {
	if params.Fx == 0 || params.Fy == 0 {
		return r3.Vector{}, false
	}
	ray := r3.Vector{
		X: (pt.X - params.Ppx) / params.Fx,
		Y: (pt.Y - params.Ppy) / params.Fy,
		Z: 1,
	}
	norm := ray.Norm()
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return r3.Vector{}, false
	}
	return ray.Mul(1 / norm), true
}

// ProjectPoint projects a 3D point in the camera frame onto the image plane.
// The second return is false for points at or behind the camera.
func (params *PinholeCameraIntrinsics) ProjectPoint(p r3.Vector) (r2.Point, bool) {
	if p.Z <= 0 {
		return r2.Point{}, false
	}
	return r2.Point{
		X: p.X/p.Z*params.Fx + params.Ppx,
		Y: p.Y/p.Z*params.Fy + params.Ppy,
	}, true
}
