package filters

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/poselink/videoimufusion/spatialmath"
)

func TestParamsValidate(t *testing.T) {
	test.That(t, DefaultOneEuroParams().Validate(), test.ShouldBeNil)
	test.That(t, OneEuroParams{MinCutoff: 0, Beta: 0.5, DerivativeCutoff: 1}.Validate(), test.ShouldNotBeNil)
	test.That(t, OneEuroParams{MinCutoff: 1, Beta: -1, DerivativeCutoff: 1}.Validate(), test.ShouldNotBeNil)
	test.That(t, OneEuroParams{MinCutoff: 1, Beta: 0.5, DerivativeCutoff: 0}.Validate(), test.ShouldNotBeNil)
}

func TestScalarSeedsFromFirstSample(t *testing.T) {
	f := NewOneEuro(DefaultOneEuroParams())
	out := f.Filter(0.01, 42)
	test.That(t, out, test.ShouldEqual, 42)
	test.That(t, f.Derivative(), test.ShouldEqual, 0)
}

func TestScalarConstantConverges(t *testing.T) {
	f := NewOneEuro(DefaultOneEuroParams())
	var out float64
	for i := 0; i < 200; i++ {
		out = f.Filter(0.01, 5)
	}
	test.That(t, out, test.ShouldAlmostEqual, 5, 1e-9)
	test.That(t, f.Derivative(), test.ShouldAlmostEqual, 0, 1e-9)
}

func TestScalarTracksStep(t *testing.T) {
	f := NewOneEuro(DefaultOneEuroParams())
	f.Filter(0.01, 0)
	var out float64
	for i := 0; i < 500; i++ {
		out = f.Filter(0.01, 10)
	}
	test.That(t, out, test.ShouldAlmostEqual, 10, 1e-6)
}

func TestVectorConstantConverges(t *testing.T) {
	f := NewVectorOneEuro(DefaultOneEuroParams())
	sample := r3.Vector{X: 1, Y: -2, Z: 0.5}
	var out r3.Vector
	for i := 0; i < 200; i++ {
		out = f.Filter(0.01, sample)
	}
	test.That(t, out.X, test.ShouldAlmostEqual, sample.X, 1e-9)
	test.That(t, out.Y, test.ShouldAlmostEqual, sample.Y, 1e-9)
	test.That(t, out.Z, test.ShouldAlmostEqual, sample.Z, 1e-9)
	test.That(t, f.State(), test.ShouldResemble, out)
}

func TestQuaternionConstantConverges(t *testing.T) {
	f := NewQuaternionOneEuro(DefaultOneEuroParams())
	sample := spatialmath.RotVecToQuat(r3.Vector{X: 0.3, Z: -0.6})
	for i := 0; i < 200; i++ {
		f.Filter(0.01, sample)
	}
	test.That(t, spatialmath.QuaternionAlmostEqual(f.State(), sample, 1e-9), test.ShouldBeTrue)
	test.That(t, f.DerivativeMagnitude(), test.ShouldAlmostEqual, 0, 1e-9)
}

func TestQuaternionHandlesSignFlips(t *testing.T) {
	f := NewQuaternionOneEuro(DefaultOneEuroParams())
	sample := spatialmath.RotVecToQuat(r3.Vector{Y: 0.4})
	for i := 0; i < 200; i++ {
		// alternate double-cover signs on every sample
		s := sample
		if i%2 == 1 {
			s = spatialmath.Flip(sample)
		}
		f.Filter(0.01, s)
	}
	test.That(t, spatialmath.QuaternionAlmostEqual(f.State(), sample, 1e-9), test.ShouldBeTrue)
}

func TestQuaternionSmoothsNoise(t *testing.T) {
	f := NewQuaternionOneEuro(DefaultOneEuroParams())
	center := spatialmath.RotVecToQuat(r3.Vector{Z: 0.5})
	// deterministic wobble around the center orientation
	for i := 0; i < 400; i++ {
		wobble := 0.05 * math.Sin(float64(i))
		f.Filter(0.01, spatialmath.RotVecToQuat(r3.Vector{Z: 0.5 + wobble, X: wobble / 2}))
	}
	// the filtered orientation sits near the center, closer than the wobble amplitude
	test.That(t, spatialmath.QuaternionAlmostEqual(f.State(), center, 0.05), test.ShouldBeTrue)
}
