// Package transport connects the fusion pipeline to an MQTT broker: it
// decodes timestamped sensor reports arriving on subscribed topics and
// publishes fused poses back out. It is thin glue with no algorithmic
// content.
package transport

import (
	"encoding/json"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/poselink/videoimufusion/fusion"
	"github.com/poselink/videoimufusion/spatialmath"
)

// Topics names the broker topics the pipeline uses.
type Topics struct {
	// Orientation and Pose are the inbound sensor report topics.
	Orientation string `json:"orientation"`
	Pose        string `json:"pose"`
	// Fused and TransformedVideo are the outbound pose topics.
	Fused            string `json:"fused"`
	TransformedVideo string `json:"transformed_video"`
}

// DefaultTopics returns the topic layout the daemon ships with.
func DefaultTopics() Topics {
	return Topics{
		Orientation:      "tracker/imu/orientation",
		Pose:             "tracker/video/pose",
		Fused:            "tracker/fused/pose",
		TransformedVideo: "tracker/fused/video_in_room",
	}
}

// Validate checks that all topics are set.
func (t Topics) Validate() error {
	for _, topic := range []string{t.Orientation, t.Pose, t.Fused, t.TransformedVideo} {
		if topic == "" {
			return errors.New("all MQTT topics must be set")
		}
	}
	return nil
}

// orientationMessage is the wire form of one orientation report: seconds
// since the Unix epoch plus a unit quaternion.
type orientationMessage struct {
	Timestamp float64 `json:"t"`
	QW        float64 `json:"qw"`
	QX        float64 `json:"qx"`
	QY        float64 `json:"qy"`
	QZ        float64 `json:"qz"`
}

// poseMessage is the wire form of one pose report.
type poseMessage struct {
	Timestamp float64 `json:"t"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	QW        float64 `json:"qw"`
	QX        float64 `json:"qx"`
	QY        float64 `json:"qy"`
	QZ        float64 `json:"qz"`
}

func timestampToTime(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

func timeToTimestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func decodeOrientationReport(payload []byte) (fusion.OrientationReport, error) {
	var msg orientationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fusion.OrientationReport{}, errors.Wrap(err, "decoding orientation report")
	}
	q := quat.Number{Real: msg.QW, Imag: msg.QX, Jmag: msg.QY, Kmag: msg.QZ}
	if quat.Abs(q) == 0 {
		return fusion.OrientationReport{}, errors.New("orientation report has a zero quaternion")
	}
	return fusion.OrientationReport{
		Timestamp:   timestampToTime(msg.Timestamp),
		Orientation: spatialmath.Normalize(q),
	}, nil
}

func decodePoseReport(payload []byte) (fusion.PoseReport, error) {
	var msg poseMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fusion.PoseReport{}, errors.Wrap(err, "decoding pose report")
	}
	q := quat.Number{Real: msg.QW, Imag: msg.QX, Jmag: msg.QY, Kmag: msg.QZ}
	if quat.Abs(q) == 0 {
		return fusion.PoseReport{}, errors.New("pose report has a zero quaternion")
	}
	return fusion.PoseReport{
		Timestamp: timestampToTime(msg.Timestamp),
		Pose:      spatialmath.NewPose(r3.Vector{X: msg.X, Y: msg.Y, Z: msg.Z}, q),
	}, nil
}

func encodePose(t time.Time, pose spatialmath.Pose) ([]byte, error) {
	msg := poseMessage{
		Timestamp: timeToTimestamp(t),
		X:         pose.Point.X,
		Y:         pose.Point.Y,
		Z:         pose.Point.Z,
		QW:        pose.Orientation.Real,
		QX:        pose.Orientation.Imag,
		QY:        pose.Orientation.Jmag,
		QZ:        pose.Orientation.Kmag,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "encoding pose")
	}
	return payload, nil
}
