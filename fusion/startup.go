package fusion

import (
	"time"

	"gonum.org/v1/gonum/num/quat"

	"github.com/poselink/videoimufusion/filters"
	"github.com/poselink/videoimufusion/spatialmath"
)

// startupData estimates the static camera-to-room transform while the
// pipeline bootstraps. Each accepted sample implies one noisy observation of
// the transform; One-Euro filters smooth those into a stable estimate.
type startupData struct {
	required    int
	reports     int
	last        time.Time
	position    *filters.VectorOneEuro
	orientation *filters.QuaternionOneEuro
}

func newStartupData(cfg Config, now time.Time) *startupData {
	return &startupData{
		required:    cfg.RequiredSamples,
		last:        now,
		position:    filters.NewVectorOneEuro(cfg.PositionSmoothing),
		orientation: filters.NewQuaternionOneEuro(cfg.OrientationSmoothing),
	}
}

// handleReport folds in one video report paired with the IMU's current
// orientation. videoPose is the tracked device's pose in the camera frame;
// imu is the device's absolute orientation in the room frame. Together they
// pin down where the camera sits in the room.
func (s *startupData) handleReport(t time.Time, videoPose spatialmath.Pose, imu quat.Number) {
	dt := t.Sub(s.last).Seconds()
	if dt <= 0 {
		dt = 1 // in case of timestamp weirdness, avoid dividing by zero
	}
	observed := spatialmath.Compose(spatialmath.Invert(videoPose), spatialmath.NewPoseFromOrientation(imu))
	s.position.Filter(dt, observed.Point)
	s.orientation.Filter(dt, observed.Orientation)
	s.reports++
	s.last = t
}

func (s *startupData) finished() bool {
	return s.reports >= s.required
}

// cameraToRoom returns the smoothed static transform mapping camera-frame
// poses into the room frame.
func (s *startupData) cameraToRoom() spatialmath.Pose {
	return spatialmath.NewPose(s.position.State(), s.orientation.State())
}
