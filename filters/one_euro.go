// Package filters contains the adaptive low-pass filters used while the
// fusion pipeline bootstraps its camera calibration.
package filters

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/poselink/videoimufusion/spatialmath"
)

// OneEuroParams configures a One-Euro filter: an adaptive low-pass filter
// whose cutoff frequency scales with the estimated rate of change of the
// signal, trading lag for noise rejection when the signal is steady.
type OneEuroParams struct {
	// MinCutoff is the cutoff frequency in Hz applied when the signal is not
	// moving.
	MinCutoff float64 `json:"min_cutoff"`
	// Beta scales how much the estimated derivative raises the cutoff.
	Beta float64 `json:"beta"`
	// DerivativeCutoff is the fixed cutoff in Hz used to smooth the
	// derivative estimate itself.
	DerivativeCutoff float64 `json:"derivative_cutoff"`
}

// DefaultOneEuroParams returns the tuning the fusion pipeline ships with.
func DefaultOneEuroParams() OneEuroParams {
	return OneEuroParams{MinCutoff: 1.15, Beta: 0.5, DerivativeCutoff: 1.2}
}

// Validate checks the parameters are usable.
func (p OneEuroParams) Validate() error {
	if p.MinCutoff <= 0 {
		return errors.New("min cutoff must be positive")
	}
	if p.Beta < 0 {
		return errors.New("beta must be non-negative")
	}
	if p.DerivativeCutoff <= 0 {
		return errors.New("derivative cutoff must be positive")
	}
	return nil
}

// alpha converts a cutoff frequency into a low-pass blend factor for a sample
// arriving dt seconds after the previous one.
func alpha(dt, cutoff float64) float64 {
	tau := 1 / (2 * math.Pi * cutoff)
	return 1 / (1 + tau/dt)
}

func lowPass(prev, sample, a float64) float64 {
	return prev + a*(sample-prev)
}

// OneEuro smooths a scalar signal.
type OneEuro struct {
	params OneEuroParams
	x, dx  float64
	seeded bool
}

// NewOneEuro returns a scalar One-Euro filter.
func NewOneEuro(params OneEuroParams) *OneEuro {
	return &OneEuro{params: params}
}

// Filter folds in one sample taken dt seconds after the previous one and
// returns the smoothed value. The first call seeds the filter from the
// sample with a zero derivative. Requires dt > 0.
func (f *OneEuro) Filter(dt, sample float64) float64 {
	if !f.seeded {
		f.x = sample
		f.seeded = true
		return f.x
	}
	rate := (sample - f.x) / dt
	f.dx = lowPass(f.dx, rate, alpha(dt, f.params.DerivativeCutoff))
	cutoff := f.params.MinCutoff + f.params.Beta*math.Abs(f.dx)
	f.x = lowPass(f.x, sample, alpha(dt, cutoff))
	return f.x
}

// State returns the current smoothed value.
func (f *OneEuro) State() float64 {
	return f.x
}

// Derivative returns the current smoothed derivative estimate.
func (f *OneEuro) Derivative() float64 {
	return f.dx
}

// VectorOneEuro smooths each component of a 3-vector signal independently.
type VectorOneEuro struct {
	x, y, z OneEuro
}

// NewVectorOneEuro returns a vector One-Euro filter.
func NewVectorOneEuro(params OneEuroParams) *VectorOneEuro {
	return &VectorOneEuro{
		x: OneEuro{params: params},
		y: OneEuro{params: params},
		z: OneEuro{params: params},
	}
}

// Filter folds in one sample and returns the smoothed vector. Requires dt > 0.
func (f *VectorOneEuro) Filter(dt float64, sample r3.Vector) r3.Vector {
	return r3.Vector{
		X: f.x.Filter(dt, sample.X),
		Y: f.y.Filter(dt, sample.Y),
		Z: f.z.Filter(dt, sample.Z),
	}
}

// State returns the current smoothed vector.
func (f *VectorOneEuro) State() r3.Vector {
	return r3.Vector{X: f.x.State(), Y: f.y.State(), Z: f.z.State()}
}

// QuaternionOneEuro smooths an orientation signal. Blending is done by
// spherical interpolation and the derivative is estimated in rotation
// (logarithm) space, so it is well-defined across the quaternion double
// cover.
type QuaternionOneEuro struct {
	params OneEuroParams
	q      quat.Number
	dv     r3.Vector // smoothed angular rate estimate, rad/s
	seeded bool
}

// NewQuaternionOneEuro returns a quaternion One-Euro filter.
func NewQuaternionOneEuro(params OneEuroParams) *QuaternionOneEuro {
	return &QuaternionOneEuro{params: params}
}

// Filter folds in one orientation sample and returns the smoothed
// orientation. Requires dt > 0.
func (f *QuaternionOneEuro) Filter(dt float64, sample quat.Number) quat.Number {
	sample = spatialmath.Normalize(sample)
	if !f.seeded {
		f.q = sample
		f.seeded = true
		return f.q
	}
	sample = spatialmath.SameHemisphere(sample, f.q)

	diff := quat.Mul(sample, quat.Conj(f.q))
	rate := spatialmath.QuatToAngVel(diff, dt)
	aD := alpha(dt, f.params.DerivativeCutoff)
	f.dv = r3.Vector{
		X: lowPass(f.dv.X, rate.X, aD),
		Y: lowPass(f.dv.Y, rate.Y, aD),
		Z: lowPass(f.dv.Z, rate.Z, aD),
	}

	cutoff := f.params.MinCutoff + f.params.Beta*f.dv.Norm()
	f.q = spatialmath.Slerp(f.q, sample, alpha(dt, cutoff))
	return f.q
}

// State returns the current smoothed orientation.
func (f *QuaternionOneEuro) State() quat.Number {
	return f.q
}

// DerivativeMagnitude returns the smoothed angular speed estimate in rad/s.
func (f *QuaternionOneEuro) DerivativeMagnitude() float64 {
	return f.dv.Norm()
}
