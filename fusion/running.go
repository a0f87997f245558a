package fusion

import (
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/poselink/videoimufusion/kalman"
	"github.com/poselink/videoimufusion/spatialmath"
)

// runningData owns the Kalman filter once the camera transform is known. It
// converts sensor reports into predict/correct calls and serves the fused
// pose back out.
type runningData struct {
	filter       *kalman.Filter
	cameraToRoom spatialmath.Pose

	imuVariance               r3.Vector
	cameraPositionVariance    r3.Vector
	cameraOrientationVariance r3.Vector

	lastIMU   time.Time
	lastVideo time.Time
}

// newRunningData seeds a filter from the camera transform and the last
// reports each sensor produced before the transition.
func newRunningData(cfg Config, cameraToRoom spatialmath.Pose, video PoseReport, imu OrientationReport) (*runningData, error) {
	noise := make([]float64, len(cfg.ProcessNoise))
	for i, v := range cfg.ProcessNoise {
		noise[i] = v * cfg.ProcessNoiseScale
	}
	model, err := kalman.NewDampedConstantVelocityModel(cfg.Damping, noise)
	if err != nil {
		return nil, errors.Wrap(err, "building process model")
	}

	filter := kalman.NewFilter(model)
	roomPose := spatialmath.Compose(cameraToRoom, video.Pose)
	filter.State().SetPosition(roomPose.Point)
	filter.State().SetOrientation(roomPose.Orientation)
	filter.State().SetErrorCovarianceDiagonal(cfg.InitialStateError)

	return &runningData{
		filter:                    filter,
		cameraToRoom:              cameraToRoom,
		imuVariance:               cfg.IMUOrientationVariance,
		cameraPositionVariance:    cfg.CameraPositionVariance,
		cameraOrientationVariance: cfg.CameraOrientationVariance,
		lastIMU:                   imu.Timestamp,
		lastVideo:                 video.Timestamp,
	}, nil
}

// handleIMUReport folds one absolute orientation report into the filter.
// The orientation source is trusted as-is; gyro drift is not corrected for.
// Returns whether the filter state changed.
func (r *runningData) handleIMUReport(report OrientationReport, logger golog.Logger) bool {
	if !r.preReport(report.Timestamp, &r.lastIMU) {
		return false
	}
	meas := &kalman.AbsoluteOrientationMeasurement{
		Orientation: report.Orientation,
		Variance:    r.imuVariance,
	}
	if err := r.filter.Correct(meas); err != nil {
		logger.Debugw("orientation correction skipped", "error", err)
		return false
	}
	return true
}

// handleVideoReport folds one pose report, re-expressed in room coordinates,
// into the filter. Returns whether the filter state changed.
func (r *runningData) handleVideoReport(report PoseReport, logger golog.Logger) bool {
	if !r.preReport(report.Timestamp, &r.lastVideo) {
		return false
	}
	roomPose := r.cameraPoseToRoom(report.Pose)
	meas := &kalman.AbsolutePoseMeasurement{
		Position:            roomPose.Point,
		Orientation:         roomPose.Orientation,
		PositionVariance:    r.cameraPositionVariance,
		OrientationVariance: r.cameraOrientationVariance,
	}
	if err := r.filter.Correct(meas); err != nil {
		logger.Debugw("pose correction skipped", "error", err)
		return false
	}
	return true
}

// preReport advances the filter to the report's time. Returns false when the
// report is stale (non-positive dt); stale reports are expected jitter and
// are dropped without prediction or correction.
func (r *runningData) preReport(t time.Time, last *time.Time) bool {
	dt := t.Sub(*last).Seconds()
	if dt <= 0 {
		return false
	}
	*last = t
	r.filter.Predict(dt)
	return true
}

func (r *runningData) fusedPose() spatialmath.Pose {
	return r.filter.State().Pose()
}

// cameraPoseToRoom re-expresses a camera-frame pose in the room frame using
// the static transform estimated during acquisition.
func (r *runningData) cameraPoseToRoom(p spatialmath.Pose) spatialmath.Pose {
	return spatialmath.Compose(r.cameraToRoom, p)
}
