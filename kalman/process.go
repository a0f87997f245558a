package kalman

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DampedConstantVelocityModel is a motion model assuming linear and angular
// velocity persist but decay toward zero in the absence of new information.
// The decay keeps sparse measurements from producing runaway extrapolation.
type DampedConstantVelocityModel struct {
	damping float64
	noise   []float64
}

// NewDampedConstantVelocityModel builds a process model. damping is the
// velocity persistence per second and must be in (0, 1); noise is the
// per-second covariance growth for each of the StateDim error-state entries.
func NewDampedConstantVelocityModel(damping float64, noise []float64) (*DampedConstantVelocityModel, error) {
	if damping <= 0 || damping >= 1 {
		return nil, errors.Errorf("damping must be in (0, 1), got %f", damping)
	}
	if len(noise) != StateDim {
		return nil, errors.Errorf("noise autocorrelation must have %d entries, got %d", StateDim, len(noise))
	}
	for i, v := range noise {
		if v < 0 {
			return nil, errors.Errorf("noise autocorrelation entry %d is negative", i)
		}
	}
	return &DampedConstantVelocityModel{damping: damping, noise: append([]float64(nil), noise...)}, nil
}

// TransitionJacobian returns the linearized state transition over dt:
// velocities integrate into position and incremental orientation, and are
// themselves attenuated by damping^dt.
func (m *DampedConstantVelocityModel) TransitionJacobian(dt float64) *mat.Dense {
	a := mat.NewDense(StateDim, StateDim, nil)
	for i := 0; i < StateDim; i++ {
		a.Set(i, i, 1)
	}
	att := math.Pow(m.damping, dt)
	for i := 0; i < 3; i++ {
		a.Set(posOffset+i, velOffset+i, dt)
		a.Set(oriOffset+i, angVelOffset+i, dt)
		a.Set(velOffset+i, velOffset+i, att)
		a.Set(angVelOffset+i, angVelOffset+i, att)
	}
	return a
}

// Predict advances the state mean and covariance by dt. Assumes dt > 0.
// The external quaternion is not advanced here; orientation moves only
// through corrections, while its uncertainty still grows via the
// angular-velocity coupling in the Jacobian.
func (m *DampedConstantVelocityModel) Predict(s *PoseState, dt float64) {
	a := m.TransitionJacobian(dt)

	var nx mat.VecDense
	nx.MulVec(a, s.x)
	s.x.CopyVec(&nx)
	for i := 0; i < 3; i++ {
		s.x.SetVec(oriOffset+i, 0)
	}

	// P = A P Aᵗ + Q dt
	var ap, apat mat.Dense
	ap.Mul(a, s.p)
	apat.Mul(&ap, a.T())
	for i, q := range m.noise {
		apat.Set(i, i, apat.At(i, i)+q*dt)
	}
	s.p.Copy(&apat)
	s.resymmetrize()
}
