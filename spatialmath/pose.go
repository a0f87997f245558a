package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// A Pose is a rigid transform in 3D space: a rotation followed by a
// translation. It doubles as the pose of a body in some frame, with Point
// being the body's origin and Orientation its rotation in that frame.
type Pose struct {
	Point       r3.Vector
	Orientation quat.Number
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return Pose{Orientation: quat.Number{Real: 1}}
}

// NewPose returns a pose with the given translation and orientation. The
// orientation is normalized to unit length.
func NewPose(pt r3.Vector, o quat.Number) Pose {
	return Pose{Point: pt, Orientation: Normalize(o)}
}

// NewPoseFromOrientation returns a pure rotation with zero translation.
func NewPoseFromOrientation(o quat.Number) Pose {
	return Pose{Orientation: Normalize(o)}
}

// Compose returns the transform equivalent to applying b, then a.
func Compose(a, b Pose) Pose {
	return Pose{
		Point:       a.Point.Add(RotateVec(a.Orientation, b.Point)),
		Orientation: Normalize(quat.Mul(a.Orientation, b.Orientation)),
	}
}

// Invert returns the transform that undoes p, so that Compose(p, Invert(p))
// is the identity.
func Invert(p Pose) Pose {
	inv := quat.Conj(Normalize(p.Orientation))
	return Pose{
		Point:       RotateVec(inv, p.Point).Mul(-1),
		Orientation: inv,
	}
}

// TransformPoint maps a point through the transform p.
func (p Pose) TransformPoint(pt r3.Vector) r3.Vector {
	return RotateVec(p.Orientation, pt).Add(p.Point)
}

// PoseAlmostEqual returns whether two poses coincide within tol, comparing
// translations componentwise and rotations by angular distance.
func PoseAlmostEqual(a, b Pose, tol float64) bool {
	diff := a.Point.Sub(b.Point)
	if diff.Norm() > tol {
		return false
	}
	return QuaternionAlmostEqual(a.Orientation, b.Orientation, tol)
}
