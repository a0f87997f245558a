package kalman

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrSingularInnovation reports that a correction was skipped because the
// innovation covariance could not be inverted. The filter state is left at
// its pre-correction value; the condition is recoverable and the next
// measurement is processed normally.
var ErrSingularInnovation = errors.New("innovation covariance is singular, correction skipped")

// Filter is an extended Kalman filter composing one PoseState with one
// process model. Correct is generic over the Measurement capability rather
// than a fixed set of sensor shapes.
type Filter struct {
	state *PoseState
	model *DampedConstantVelocityModel
}

// NewFilter returns a filter with a freshly zeroed state. Callers seed the
// state (position, orientation, covariance) before the first predict.
func NewFilter(model *DampedConstantVelocityModel) *Filter {
	return &Filter{state: NewPoseState(), model: model}
}

// State returns the filter's owned state for seeding and readback.
func (f *Filter) State() *PoseState {
	return f.state
}

// Predict advances the state by dt seconds, the elapsed time since the last
// predict-or-correct call. Callers must ensure dt > 0.
func (f *Filter) Predict(dt float64) {
	f.model.Predict(f.state, dt)
}

// Correct fuses one measurement into the state:
//
//	S = H P Hᵗ + R,  K = P Hᵗ S⁻¹,  Δx = K·residual,
//	P ← (I − K H) P, then resymmetrized.
//
// The linear part of Δx adds onto the state directly; the rotational part
// composes onto the external quaternion, which is then renormalized. A
// singular S leaves the state untouched and returns ErrSingularInnovation.
func (f *Filter) Correct(m Measurement) error {
	h := m.Jacobian(f.state)
	r := m.NoiseCovariance()
	residual := m.Residual(f.state)

	var pht, s mat.Dense
	pht.Mul(f.state.p, h.T())
	s.Mul(h, &pht)
	s.Add(&s, r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return errors.Wrap(ErrSingularInnovation, err.Error())
	}

	var k mat.Dense
	k.Mul(&pht, &sInv)

	var dx mat.VecDense
	dx.MulVec(&k, residual)
	f.state.applyCorrection(&dx)

	var kh, khp mat.Dense
	kh.Mul(&k, h)
	khp.Mul(&kh, f.state.p)
	f.state.p.Sub(f.state.p, &khp)
	f.state.resymmetrize()
	return nil
}
