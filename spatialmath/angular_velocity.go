package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// AngularVelocity contains an angular velocity in rad/s across x/y/z axes.
type AngularVelocity r3.Vector

// R3 exposes the angular velocity as a plain r3 vector.
func (av AngularVelocity) R3() r3.Vector {
	return r3.Vector(av)
}

// Norm returns the angular speed, the magnitude of the angular velocity.
func (av AngularVelocity) Norm() float64 {
	return r3.Vector(av).Norm()
}

// QuatToAngVel calculates the angular velocity that rotates through diff,
// an orientation change expressed as a quaternion, over the interval dt.
func QuatToAngVel(diff quat.Number, dt float64) AngularVelocity {
	rv := QuatToRotVec(diff)
	return AngularVelocity{X: rv.X / dt, Y: rv.Y / dt, Z: rv.Z / dt}
}
