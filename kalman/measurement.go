package kalman

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/poselink/videoimufusion/spatialmath"
)

// A Measurement projects the filter state into sensor space and supplies the
// residual, Jacobian and noise needed to fold one observation into the state.
// The engine dispatches over this capability, so new measurement shapes do
// not require engine changes.
type Measurement interface {
	// Residual returns observed minus predicted, in the measurement's own
	// tangent space for rotational quantities.
	Residual(s *PoseState) *mat.VecDense
	// Jacobian linearizes the predicted measurement about the current state.
	Jacobian(s *PoseState) *mat.Dense
	// NoiseCovariance returns the caller-supplied measurement noise.
	NoiseCovariance() *mat.Dense
}

// AbsoluteOrientationMeasurement is a direct observation of the state's
// orientation, such as an IMU's fused absolute orientation output. Position
// is ignored entirely.
type AbsoluteOrientationMeasurement struct {
	Orientation quat.Number
	// Variance holds per-axis tangent-space variances in rad².
	Variance r3.Vector
}

// Residual is the tangent-space rotation from the predicted orientation to
// the observed one, taken along the shortest arc so that either double-cover
// sign of the observation yields the same answer.
func (m *AbsoluteOrientationMeasurement) Residual(s *PoseState) *mat.VecDense {
	rv := orientationResidual(m.Orientation, s.Orientation())
	return mat.NewVecDense(3, []float64{rv.X, rv.Y, rv.Z})
}

// Jacobian selects the incremental-orientation block of the error state.
func (m *AbsoluteOrientationMeasurement) Jacobian(*PoseState) *mat.Dense {
	h := mat.NewDense(3, StateDim, nil)
	for i := 0; i < 3; i++ {
		h.Set(i, oriOffset+i, 1)
	}
	return h
}

// NoiseCovariance returns the diagonal variance matrix.
func (m *AbsoluteOrientationMeasurement) NoiseCovariance() *mat.Dense {
	r := mat.NewDense(3, 3, nil)
	r.Set(0, 0, m.Variance.X)
	r.Set(1, 1, m.Variance.Y)
	r.Set(2, 2, m.Variance.Z)
	return r
}

// AbsolutePoseMeasurement is a full rigid-pose observation, such as a visual
// tracker report already re-expressed in the room frame.
type AbsolutePoseMeasurement struct {
	Position    r3.Vector
	Orientation quat.Number
	// PositionVariance holds per-axis variances in the room frame;
	// OrientationVariance holds tangent-space variances in rad².
	PositionVariance    r3.Vector
	OrientationVariance r3.Vector
}

// Residual stacks the position error and the tangent-space rotation error
// into a 6-vector.
func (m *AbsolutePoseMeasurement) Residual(s *PoseState) *mat.VecDense {
	dp := m.Position.Sub(s.Position())
	rv := orientationResidual(m.Orientation, s.Orientation())
	return mat.NewVecDense(6, []float64{dp.X, dp.Y, dp.Z, rv.X, rv.Y, rv.Z})
}

// Jacobian selects the position and incremental-orientation blocks.
func (m *AbsolutePoseMeasurement) Jacobian(*PoseState) *mat.Dense {
	h := mat.NewDense(6, StateDim, nil)
	for i := 0; i < 3; i++ {
		h.Set(i, posOffset+i, 1)
		h.Set(3+i, oriOffset+i, 1)
	}
	return h
}

// NoiseCovariance returns the stacked diagonal variance matrix.
func (m *AbsolutePoseMeasurement) NoiseCovariance() *mat.Dense {
	r := mat.NewDense(6, 6, nil)
	r.Set(0, 0, m.PositionVariance.X)
	r.Set(1, 1, m.PositionVariance.Y)
	r.Set(2, 2, m.PositionVariance.Z)
	r.Set(3, 3, m.OrientationVariance.X)
	r.Set(4, 4, m.OrientationVariance.Y)
	r.Set(5, 5, m.OrientationVariance.Z)
	return r
}

// orientationResidual returns the rotation vector taking predicted to
// observed, with the observation sign-canonicalized onto the predicted
// hemisphere first.
func orientationResidual(observed, predicted quat.Number) r3.Vector {
	obs := spatialmath.SameHemisphere(spatialmath.Normalize(observed), predicted)
	diff := quat.Mul(obs, quat.Conj(predicted))
	return spatialmath.QuatToRotVec(diff)
}
