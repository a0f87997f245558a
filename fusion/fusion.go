// Package fusion fuses absolute orientation reports from an IMU with pose
// reports from a visual tracker into a single smooth room-frame pose, while
// estimating the static transform between the camera's and the room's
// reference frames without external calibration input.
package fusion

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/poselink/videoimufusion/spatialmath"
)

// Output channels for published poses.
const (
	// FusedChannel carries the primary fused pose.
	FusedChannel = 0
	// TransformedVideoChannel carries the raw visual pose re-expressed in
	// room coordinates, independent of filtering. Debug output.
	TransformedVideoChannel = 1
)

// OrientationReport is one timestamped absolute orientation observation.
type OrientationReport struct {
	Timestamp   time.Time
	Orientation quat.Number
}

// PoseReport is one timestamped pose observation, in the reporting sensor's
// own frame.
type PoseReport struct {
	Timestamp time.Time
	Pose      spatialmath.Pose
}

// OrientationHandler consumes orientation reports as they arrive.
type OrientationHandler interface {
	HandleOrientation(report OrientationReport)
}

// PoseHandler consumes pose reports as they arrive.
type PoseHandler interface {
	HandlePose(report PoseReport)
}

// OrientationSource delivers timestamped orientation reports to registered
// handlers and answers queries for the most recent report it has produced.
type OrientationSource interface {
	RegisterOrientationHandler(h OrientationHandler)
	LastOrientation() (OrientationReport, bool)
}

// PoseSource delivers timestamped pose reports to registered handlers and
// answers queries for the most recent report it has produced.
type PoseSource interface {
	RegisterPoseHandler(h PoseHandler)
	LastPose() (PoseReport, bool)
}

// Reporter accepts timestamped poses destined for one of the output
// channels.
type Reporter interface {
	ReportPose(channel int, t time.Time, pose spatialmath.Pose) error
}

// State is the fusion pipeline's phase.
type State int

// The two phases. Acquisition always runs first; there is no way back from
// Running.
const (
	StateAcquiringCameraPose State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateAcquiringCameraPose:
		return "AcquiringCameraPose"
	case StateRunning:
		return "Running"
	default:
		return "Unknown"
	}
}

// Fusion is the two-phase fusion state machine. It owns either a bootstrap
// estimator (acquisition) or a running filter, never both. All report
// handling is serialized behind one mutex; sources may deliver from any
// goroutine.
type Fusion struct {
	mu     sync.Mutex
	logger golog.Logger
	cfg    Config
	clk    clock.Clock

	imu   OrientationSource
	video PoseSource
	out   Reporter

	state   State
	startup *startupData
	running *runningData
}

// New builds a fusion pipeline, registers it with both sources, and enters
// the camera pose acquisition phase.
func New(imu OrientationSource, video PoseSource, out Reporter, cfg Config, logger golog.Logger) (*Fusion, error) {
	return NewWithClock(imu, video, out, cfg, logger, clock.New())
}

// NewWithClock is New with an injected clock, for tests and offline replay.
func NewWithClock(
	imu OrientationSource,
	video PoseSource,
	out Reporter,
	cfg Config,
	logger golog.Logger,
	clk clock.Clock,
) (*Fusion, error) {
	if imu == nil || video == nil || out == nil {
		return nil, errors.New("orientation source, pose source, and reporter are all required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid fusion config")
	}
	f := &Fusion{
		logger: logger,
		cfg:    cfg,
		clk:    clk,
		imu:    imu,
		video:  video,
		out:    out,
		state:  StateAcquiringCameraPose,
	}
	f.startup = newStartupData(cfg, clk.Now())
	imu.RegisterOrientationHandler(f)
	video.RegisterPoseHandler(f)
	logger.Infow("acquiring camera pose", "required_samples", cfg.RequiredSamples)
	return f, nil
}

// State returns the current phase.
func (f *Fusion) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// CameraToRoom returns the estimated static camera-to-room transform. The
// second return is false until acquisition has completed.
func (f *Fusion) CameraToRoom() (spatialmath.Pose, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateRunning {
		return spatialmath.NewZeroPose(), false
	}
	return f.running.cameraToRoom, true
}

// FusedPose returns the filter's current pose estimate. The second return is
// false until acquisition has completed.
func (f *Fusion) FusedPose() (spatialmath.Pose, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateRunning {
		return spatialmath.NewZeroPose(), false
	}
	return f.running.fusedPose(), true
}

// HandleOrientation implements OrientationHandler. During acquisition the
// IMU is only consulted through the source's last-known query, so reports
// are absorbed without effect here.
func (f *Fusion) HandleOrientation(report OrientationReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateRunning {
		return
	}
	if !f.running.handleIMUReport(report, f.logger) {
		return
	}
	f.report(FusedChannel, report.Timestamp, f.running.fusedPose())
}

// HandlePose implements PoseHandler.
func (f *Fusion) HandlePose(report PoseReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateAcquiringCameraPose {
		f.handlePoseDuringAcquisition(report)
		return
	}
	if !f.running.handleVideoReport(report, f.logger) {
		return
	}
	f.report(FusedChannel, report.Timestamp, f.running.fusedPose())
	f.report(TransformedVideoChannel, report.Timestamp, f.running.cameraPoseToRoom(report.Pose))
}

func (f *Fusion) handlePoseDuringAcquisition(report PoseReport) {
	imuReport, ok := f.imu.LastOrientation()
	if !ok {
		// no orientation report yet; wait for the next video report
		return
	}
	f.startup.handleReport(report.Timestamp, report.Pose, imuReport.Orientation)
	if !f.startup.finished() {
		return
	}
	if err := f.enterRunningState(f.startup.cameraToRoom()); err != nil {
		f.logger.Errorw("failed to enter running state", "error", err)
	}
}

// enterRunningState seeds the running filter from the estimated transform
// and the latest known report of each sensor, then discards the bootstrap
// estimator.
func (f *Fusion) enterRunningState(cameraToRoom spatialmath.Pose) error {
	imuReport, ok := f.imu.LastOrientation()
	if !ok {
		return errors.New("orientation source has no state to seed the filter")
	}
	videoReport, ok := f.video.LastPose()
	if !ok {
		return errors.New("pose source has no state to seed the filter")
	}
	running, err := newRunningData(f.cfg, cameraToRoom, videoReport, imuReport)
	if err != nil {
		return err
	}
	f.running = running
	f.startup = nil
	f.state = StateRunning
	f.logger.Infow("camera pose acquired",
		"position", cameraToRoom.Point,
		"orientation", cameraToRoom.Orientation,
	)
	return nil
}

func (f *Fusion) report(channel int, t time.Time, pose spatialmath.Pose) {
	if err := f.out.ReportPose(channel, t, pose); err != nil {
		f.logger.Errorw("failed to publish pose", "channel", channel, "error", err)
	}
}
