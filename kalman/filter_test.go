package kalman

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/poselink/videoimufusion/spatialmath"
)

func testNoise() []float64 {
	// no direct noise on position/orientation; their uncertainty grows
	// through the velocity coupling
	n := make([]float64, StateDim)
	for i := velOffset; i < StateDim; i++ {
		n[i] = 2
	}
	return n
}

func newTestFilter(t *testing.T) *Filter {
	t.Helper()
	model, err := NewDampedConstantVelocityModel(0.5, testNoise())
	test.That(t, err, test.ShouldBeNil)
	f := NewFilter(model)
	diag := make([]float64, StateDim)
	for i := range diag {
		diag[i] = 1
	}
	f.State().SetErrorCovarianceDiagonal(diag)
	return f
}

func TestModelValidation(t *testing.T) {
	_, err := NewDampedConstantVelocityModel(0, testNoise())
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewDampedConstantVelocityModel(1.5, testNoise())
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewDampedConstantVelocityModel(0.5, []float64{1, 2, 3})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewDampedConstantVelocityModel(0.5, make([]float64, StateDim))
	test.That(t, err, test.ShouldBeNil)
}

func TestPredictGrowsUncertainty(t *testing.T) {
	f := newTestFilter(t)
	for step := 0; step < 50; step++ {
		before := f.State().ErrorCovariance()
		f.Predict(0.01)
		after := f.State().ErrorCovariance()
		for i := 0; i < StateDim; i++ {
			test.That(t, after.At(i, i), test.ShouldBeGreaterThanOrEqualTo, before.At(i, i))
		}
	}
}

func TestPredictIntegratesVelocity(t *testing.T) {
	f := newTestFilter(t)
	f.State().x.SetVec(velOffset, 2) // 2 units/s along x
	startOri := f.State().Orientation()
	f.Predict(0.5)
	test.That(t, f.State().Position().X, test.ShouldAlmostEqual, 1, 1e-9)
	// velocity decays by damping^dt
	test.That(t, f.State().Velocity().X, test.ShouldAlmostEqual, 2*math.Pow(0.5, 0.5), 1e-9)
	// the external quaternion is untouched by prediction
	test.That(t, f.State().Orientation(), test.ShouldResemble, startOri)
}

func TestCorrectReducesTrace(t *testing.T) {
	f := newTestFilter(t)
	meas := &AbsoluteOrientationMeasurement{
		Orientation: spatialmath.RotVecToQuat(r3.Vector{X: 0.1}),
		Variance:    r3.Vector{X: 1, Y: 1.5, Z: 1},
	}
	before := mat.Trace(f.State().ErrorCovariance())
	test.That(t, f.Correct(meas), test.ShouldBeNil)
	after := mat.Trace(f.State().ErrorCovariance())
	test.That(t, after, test.ShouldBeLessThan, before)

	poseMeas := &AbsolutePoseMeasurement{
		Position:            r3.Vector{X: 1, Y: -1, Z: 0.5},
		Orientation:         spatialmath.RotVecToQuat(r3.Vector{Z: 0.2}),
		PositionVariance:    r3.Vector{X: 1, Y: 1, Z: 1},
		OrientationVariance: r3.Vector{X: 1.1, Y: 1.1, Z: 1.1},
	}
	before = after
	test.That(t, f.Correct(poseMeas), test.ShouldBeNil)
	after = mat.Trace(f.State().ErrorCovariance())
	test.That(t, after, test.ShouldBeLessThan, before)
}

func TestOrientationStaysUnit(t *testing.T) {
	f := newTestFilter(t)
	for i := 0; i < 100; i++ {
		f.Predict(0.01)
		meas := &AbsoluteOrientationMeasurement{
			Orientation: spatialmath.RotVecToQuat(r3.Vector{X: 0.02 * float64(i), Z: -0.01 * float64(i)}),
			Variance:    r3.Vector{X: 1, Y: 1.5, Z: 1},
		}
		test.That(t, f.Correct(meas), test.ShouldBeNil)
		test.That(t, math.Abs(quat.Abs(f.State().Orientation())-1), test.ShouldBeLessThan, 1e-9)
	}
}

func TestCorrectMovesTowardMeasurement(t *testing.T) {
	f := newTestFilter(t)
	target := spatialmath.RotVecToQuat(r3.Vector{X: 0.5})
	meas := &AbsoluteOrientationMeasurement{Orientation: target, Variance: r3.Vector{X: 1, Y: 1, Z: 1}}

	angleTo := func() float64 {
		diff := quat.Mul(target, quat.Conj(f.State().Orientation()))
		return spatialmath.QuatToRotVec(diff).Norm()
	}

	prev := angleTo()
	for i := 0; i < 5; i++ {
		test.That(t, f.Correct(meas), test.ShouldBeNil)
		cur := angleTo()
		test.That(t, cur, test.ShouldBeLessThan, prev)
		prev = cur
	}
}

func TestSingularInnovationSkipsCorrection(t *testing.T) {
	model, err := NewDampedConstantVelocityModel(0.5, testNoise())
	test.That(t, err, test.ShouldBeNil)
	f := NewFilter(model)
	// zero covariance and zero measurement noise make S exactly singular
	f.State().SetErrorCovarianceDiagonal(make([]float64, StateDim))
	f.State().SetOrientation(spatialmath.RotVecToQuat(r3.Vector{Y: 0.3}))

	beforePose := f.State().Pose()
	beforeCov := f.State().ErrorCovariance()

	meas := &AbsoluteOrientationMeasurement{Orientation: quat.Number{Real: 1}}
	err = f.Correct(meas)
	test.That(t, errors.Is(err, ErrSingularInnovation), test.ShouldBeTrue)

	test.That(t, f.State().Pose(), test.ShouldResemble, beforePose)
	test.That(t, mat.Equal(f.State().ErrorCovariance(), beforeCov), test.ShouldBeTrue)
}

func TestCovarianceStaysSymmetric(t *testing.T) {
	f := newTestFilter(t)
	for i := 0; i < 20; i++ {
		f.Predict(0.016)
		meas := &AbsolutePoseMeasurement{
			Position:            r3.Vector{X: float64(i) * 0.1},
			Orientation:         spatialmath.RotVecToQuat(r3.Vector{Z: float64(i) * 0.05}),
			PositionVariance:    r3.Vector{X: 1, Y: 1, Z: 1},
			OrientationVariance: r3.Vector{X: 1.1, Y: 1.1, Z: 1.1},
		}
		test.That(t, f.Correct(meas), test.ShouldBeNil)
	}
	p := f.State().ErrorCovariance()
	for i := 0; i < StateDim; i++ {
		for j := 0; j < StateDim; j++ {
			test.That(t, p.At(i, j), test.ShouldAlmostEqual, p.At(j, i), 1e-12)
		}
	}
}
