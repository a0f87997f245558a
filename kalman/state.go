// Package kalman implements an extended Kalman filter over a rigid-body pose
// state. Orientation is kept as a unit quaternion outside the linear error
// state ("externalized"), avoiding a singular parameterization of rotation;
// corrections reach it multiplicatively through a 3-dimensional tangent-space
// term.
package kalman

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/poselink/videoimufusion/spatialmath"
)

// StateDim is the dimension of the linear error state.
const StateDim = 12

// Offsets of the blocks within the linear error state.
const (
	posOffset    = 0
	oriOffset    = 3
	velOffset    = 6
	angVelOffset = 9
)

// PoseState is the filter's state: a 12-dimensional linear state over
// position, incremental orientation, velocity and angular velocity, plus the
// external orientation quaternion. The incremental orientation entries stay
// zero between corrections; their uncertainty lives in the covariance and the
// value itself is folded into the quaternion as soon as a correction lands.
type PoseState struct {
	x *mat.VecDense // linear state, StateDim entries
	q quat.Number   // external orientation, unit length
	p *mat.Dense    // StateDim x StateDim error covariance
}

// NewPoseState returns a zeroed state with identity orientation and zero
// covariance.
func NewPoseState() *PoseState {
	return &PoseState{
		x: mat.NewVecDense(StateDim, nil),
		q: quat.Number{Real: 1},
		p: mat.NewDense(StateDim, StateDim, nil),
	}
}

// Position returns the estimated position in the room frame.
func (s *PoseState) Position() r3.Vector {
	return r3.Vector{X: s.x.AtVec(posOffset), Y: s.x.AtVec(posOffset + 1), Z: s.x.AtVec(posOffset + 2)}
}

// SetPosition overwrites the estimated position.
func (s *PoseState) SetPosition(p r3.Vector) {
	s.x.SetVec(posOffset, p.X)
	s.x.SetVec(posOffset+1, p.Y)
	s.x.SetVec(posOffset+2, p.Z)
}

// Velocity returns the estimated linear velocity in the room frame.
func (s *PoseState) Velocity() r3.Vector {
	return r3.Vector{X: s.x.AtVec(velOffset), Y: s.x.AtVec(velOffset + 1), Z: s.x.AtVec(velOffset + 2)}
}

// AngularVelocity returns the estimated angular velocity.
func (s *PoseState) AngularVelocity() spatialmath.AngularVelocity {
	return spatialmath.AngularVelocity{
		X: s.x.AtVec(angVelOffset),
		Y: s.x.AtVec(angVelOffset + 1),
		Z: s.x.AtVec(angVelOffset + 2),
	}
}

// Orientation returns the external orientation quaternion.
func (s *PoseState) Orientation() quat.Number {
	return s.q
}

// SetOrientation overwrites the external orientation, normalizing it.
func (s *PoseState) SetOrientation(q quat.Number) {
	s.q = spatialmath.Normalize(q)
}

// Pose returns the position and orientation as a single rigid transform.
func (s *PoseState) Pose() spatialmath.Pose {
	return spatialmath.Pose{Point: s.Position(), Orientation: s.q}
}

// SetErrorCovarianceDiagonal resets the covariance to a diagonal of the given
// variances. diag must have StateDim entries.
func (s *PoseState) SetErrorCovarianceDiagonal(diag []float64) {
	s.p.Zero()
	for i, v := range diag {
		s.p.Set(i, i, v)
	}
}

// ErrorCovariance returns a copy of the error covariance matrix.
func (s *PoseState) ErrorCovariance() *mat.Dense {
	return mat.DenseCopyOf(s.p)
}

// applyCorrection folds the error-state update dx into the state. The linear
// blocks add directly; the incremental-orientation block composes onto the
// external quaternion and is then conceptually reset to zero (it is never
// stored).
func (s *PoseState) applyCorrection(dx *mat.VecDense) {
	for _, off := range []int{posOffset, velOffset, angVelOffset} {
		for i := 0; i < 3; i++ {
			s.x.SetVec(off+i, s.x.AtVec(off+i)+dx.AtVec(off+i))
		}
	}
	dq := spatialmath.RotVecToQuat(r3.Vector{
		X: dx.AtVec(oriOffset),
		Y: dx.AtVec(oriOffset + 1),
		Z: dx.AtVec(oriOffset + 2),
	})
	s.q = spatialmath.Normalize(quat.Mul(dq, s.q))
}

// resymmetrize averages the covariance with its transpose, countering the
// floating-point drift that predict/correct cycles accumulate.
func (s *PoseState) resymmetrize() {
	for i := 0; i < StateDim; i++ {
		for j := i + 1; j < StateDim; j++ {
			avg := 0.5 * (s.p.At(i, j) + s.p.At(j, i))
			s.p.Set(i, j, avg)
			s.p.Set(j, i, avg)
		}
	}
}
