package fusion

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/poselink/videoimufusion/filters"
	"github.com/poselink/videoimufusion/kalman"
)

// Config parameterizes the fusion pipeline. The noise tables here were fixed
// constants in earlier trackers; exposing them lets deployments tune them
// without code changes. Start from DefaultConfig and override fields.
type Config struct {
	// RequiredSamples is how many paired video/IMU samples the acquisition
	// phase collects before it locks in the camera transform.
	RequiredSamples int `json:"required_samples"`

	// Damping is the per-second velocity persistence of the motion model,
	// in (0, 1).
	Damping float64 `json:"damping"`

	// ProcessNoise is the per-second covariance growth for each of the
	// twelve error-state entries.
	ProcessNoise []float64 `json:"process_noise"`

	// ProcessNoiseScale multiplies ProcessNoise when the running filter is
	// built.
	ProcessNoiseScale float64 `json:"process_noise_scale"`

	// InitialStateError is the covariance diagonal the running filter
	// starts from.
	InitialStateError []float64 `json:"initial_state_error"`

	// IMUOrientationVariance is the per-axis tangent-space variance, in
	// rad², assumed for IMU orientation reports.
	IMUOrientationVariance r3.Vector `json:"imu_orientation_variance"`

	// CameraPositionVariance and CameraOrientationVariance are the
	// per-axis variances assumed for video tracker reports.
	CameraPositionVariance    r3.Vector `json:"camera_position_variance"`
	CameraOrientationVariance r3.Vector `json:"camera_orientation_variance"`

	// PositionSmoothing and OrientationSmoothing tune the One-Euro filters
	// used during acquisition.
	PositionSmoothing    filters.OneEuroParams `json:"position_smoothing"`
	OrientationSmoothing filters.OneEuroParams `json:"orientation_smoothing"`
}

// DefaultConfig returns the tuning the pipeline ships with.
func DefaultConfig() Config {
	processNoise := make([]float64, kalman.StateDim)
	initialError := make([]float64, kalman.StateDim)
	for i := 0; i < kalman.StateDim; i++ {
		initialError[i] = 1
		if i >= 6 {
			// noise enters on the velocity terms; position and orientation
			// uncertainty grow through the velocity coupling
			processNoise[i] = 4
		}
	}
	return Config{
		RequiredSamples:           10,
		Damping:                   0.5,
		ProcessNoise:              processNoise,
		ProcessNoiseScale:         0.5,
		InitialStateError:         initialError,
		IMUOrientationVariance:    r3.Vector{X: 1, Y: 1.5, Z: 1},
		CameraPositionVariance:    r3.Vector{X: 1, Y: 1, Z: 1},
		CameraOrientationVariance: r3.Vector{X: 1.1, Y: 1.1, Z: 1.1},
		PositionSmoothing:         filters.DefaultOneEuroParams(),
		OrientationSmoothing:      filters.DefaultOneEuroParams(),
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.RequiredSamples <= 0 {
		return errors.New("required samples must be positive")
	}
	if c.Damping <= 0 || c.Damping >= 1 {
		return errors.Errorf("damping must be in (0, 1), got %f", c.Damping)
	}
	if len(c.ProcessNoise) != kalman.StateDim {
		return errors.Errorf("process noise must have %d entries, got %d", kalman.StateDim, len(c.ProcessNoise))
	}
	if c.ProcessNoiseScale <= 0 {
		return errors.New("process noise scale must be positive")
	}
	if len(c.InitialStateError) != kalman.StateDim {
		return errors.Errorf("initial state error must have %d entries, got %d", kalman.StateDim, len(c.InitialStateError))
	}
	for _, v := range []r3.Vector{c.IMUOrientationVariance, c.CameraPositionVariance, c.CameraOrientationVariance} {
		if v.X <= 0 || v.Y <= 0 || v.Z <= 0 {
			return errors.New("measurement variances must be strictly positive")
		}
	}
	if err := c.PositionSmoothing.Validate(); err != nil {
		return errors.Wrap(err, "position smoothing")
	}
	if err := c.OrientationSmoothing.Validate(); err != nil {
		return errors.Wrap(err, "orientation smoothing")
	}
	return nil
}
