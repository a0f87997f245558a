// Package spatialmath defines the rigid-transform and quaternion primitives
// used by the pose fusion pipeline.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// If the rotation implied by a quaternion is below this angle in radians,
// treat it as no rotation for axis extraction purposes.
const angleEpsilon = 1e-6

// Norm returns the norm of the quaternion, i.e. the sqrt of the squares of the imaginary parts.
func Norm(q quat.Number) float64 {
	return math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}

// Flip multiplies a quaternion by -1, yielding the other double-cover
// representative of the same rotation.
func Flip(q quat.Number) quat.Number {
	return quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
}

// Dot returns the 4-space dot product of two quaternions.
func Dot(q1, q2 quat.Number) float64 {
	return q1.Real*q2.Real + q1.Imag*q2.Imag + q1.Jmag*q2.Jmag + q1.Kmag*q2.Kmag
}

// Normalize scales q to unit length. The zero quaternion normalizes to the
// identity rotation rather than NaN.
func Normalize(q quat.Number) quat.Number {
	length := quat.Abs(q)
	if length == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/length, q)
}

// SameHemisphere returns q, sign-flipped if necessary so that it lies in the
// same 4-space hemisphere as reference. Both signs represent the same
// rotation; picking the near one keeps difference math on the shortest arc.
func SameHemisphere(q, reference quat.Number) quat.Number {
	if Dot(q, reference) < 0 {
		return Flip(q)
	}
	return q
}

// QuaternionAlmostEqual returns whether two quaternions represent nearly the
// same rotation, accounting for the double cover.
func QuaternionAlmostEqual(q1, q2 quat.Number, tol float64) bool {
	q2 = SameHemisphere(q2, q1)
	diff := quat.Mul(q1, quat.Conj(q2))
	return 2*math.Atan2(Norm(diff), math.Abs(diff.Real)) < tol
}

// RotVecToQuat converts a rotation vector (axis scaled by angle in radians)
// to a unit quaternion. This is the exponential map from the rotation tangent
// space used for filter corrections.
func RotVecToQuat(v r3.Vector) quat.Number {
	angle := v.Norm()
	if angle < angleEpsilon {
		// First-order expansion of exp(v/2), renormalized.
		return Normalize(quat.Number{Real: 1, Imag: v.X / 2, Jmag: v.Y / 2, Kmag: v.Z / 2})
	}
	s := math.Sin(angle/2) / angle
	return quat.Number{Real: math.Cos(angle / 2), Imag: v.X * s, Jmag: v.Y * s, Kmag: v.Z * s}
}

// QuatToRotVec converts a quat to a rotation vector in the same way the C++ Eigen library does.
// https://eigen.tuxfamily.org/dox/AngleAxis_8h_source.html
func QuatToRotVec(q quat.Number) r3.Vector {
	denom := Norm(q)

	angle := 2 * math.Atan2(denom, math.Abs(q.Real))
	if q.Real < 0 {
		angle *= -1
	}

	if denom < angleEpsilon {
		return r3.Vector{}
	}
	return r3.Vector{X: angle * q.Imag / denom, Y: angle * q.Jmag / denom, Z: angle * q.Kmag / denom}
}

// RotateVec rotates the vector v by the unit quaternion q.
func RotateVec(q quat.Number, v r3.Vector) r3.Vector {
	qv := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	res := quat.Mul(quat.Mul(q, qv), quat.Conj(q))
	return r3.Vector{X: res.Imag, Y: res.Jmag, Z: res.Kmag}
}

// Slerp spherically interpolates from q1 to q2 by amount t in [0, 1], always
// taking the shortest arc between the two rotations.
func Slerp(q1, q2 quat.Number, t float64) quat.Number {
	q1 = Normalize(q1)
	q2 = SameHemisphere(Normalize(q2), q1)

	d := Dot(q1, q2)
	if d > 1-1e-9 {
		// Nearly parallel; linear blend avoids a degenerate sin in the
		// spherical formula.
		return Normalize(quat.Add(quat.Scale(1-t, q1), quat.Scale(t, q2)))
	}
	theta := math.Acos(d)
	sinTheta := math.Sin(theta)
	s1 := math.Sin((1-t)*theta) / sinTheta
	s2 := math.Sin(t*theta) / sinTheta
	return Normalize(quat.Add(quat.Scale(s1, q1), quat.Scale(s2, q2)))
}
