package transport

import (
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/poselink/videoimufusion/spatialmath"
)

func TestTopicsValidate(t *testing.T) {
	test.That(t, DefaultTopics().Validate(), test.ShouldBeNil)
	topics := DefaultTopics()
	topics.Pose = ""
	test.That(t, topics.Validate(), test.ShouldNotBeNil)
}

func TestDecodeOrientationReport(t *testing.T) {
	report, err := decodeOrientationReport([]byte(`{"t":1000.25,"qw":1,"qx":0,"qy":0,"qz":0}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Timestamp, test.ShouldResemble, time.Unix(1000, 250000000))
	test.That(t, report.Orientation.Real, test.ShouldEqual, 1)

	// non-unit quaternions are normalized on decode
	report, err = decodeOrientationReport([]byte(`{"t":1,"qw":2,"qx":0,"qy":2,"qz":0}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Orientation.Real, test.ShouldAlmostEqual, math.Sqrt2/2)
	test.That(t, report.Orientation.Jmag, test.ShouldAlmostEqual, math.Sqrt2/2)

	_, err = decodeOrientationReport([]byte(`{"t":1}`))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = decodeOrientationReport([]byte(`not json`))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPoseRoundTrip(t *testing.T) {
	ts := time.Unix(2000, 500000000)
	pose := spatialmath.NewPose(
		r3.Vector{X: 1.5, Y: -2, Z: 0.25},
		spatialmath.RotVecToQuat(r3.Vector{Z: 0.7}),
	)

	payload, err := encodePose(ts, pose)
	test.That(t, err, test.ShouldBeNil)

	report, err := decodePoseReport(payload)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Timestamp.Unix(), test.ShouldEqual, ts.Unix())
	test.That(t, report.Timestamp.Nanosecond(), test.ShouldAlmostEqual, ts.Nanosecond(), 1000)
	test.That(t, spatialmath.PoseAlmostEqual(report.Pose, pose, 1e-9), test.ShouldBeTrue)
}

func TestDecodePoseRejectsZeroQuaternion(t *testing.T) {
	_, err := decodePoseReport([]byte(`{"t":1,"x":1,"y":2,"z":3}`))
	test.That(t, err, test.ShouldNotBeNil)
}
