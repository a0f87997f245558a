package transport

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/poselink/videoimufusion/fusion"
	"github.com/poselink/videoimufusion/spatialmath"
)

// Source subscribes to the orientation and pose report topics, caches the
// most recent report per sensor, and fans each report out to the registered
// handlers. Handlers run on the MQTT client's delivery goroutine; consumers
// needing serialization (the fusion state machine does) provide their own.
type Source struct {
	mu     sync.Mutex
	logger golog.Logger
	client mqtt.Client
	topics Topics

	orientationHandlers []fusion.OrientationHandler
	poseHandlers        []fusion.PoseHandler
	lastOrientation     *fusion.OrientationReport
	lastPose            *fusion.PoseReport
}

// NewSource subscribes to the report topics on an already connected client.
func NewSource(client mqtt.Client, topics Topics, logger golog.Logger) (*Source, error) {
	if err := topics.Validate(); err != nil {
		return nil, err
	}
	s := &Source{logger: logger, client: client, topics: topics}
	if token := client.Subscribe(topics.Orientation, 0, s.onOrientation); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "subscribing to %q", topics.Orientation)
	}
	if token := client.Subscribe(topics.Pose, 0, s.onPose); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "subscribing to %q", topics.Pose)
	}
	return s, nil
}

// RegisterOrientationHandler implements fusion.OrientationSource.
func (s *Source) RegisterOrientationHandler(h fusion.OrientationHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orientationHandlers = append(s.orientationHandlers, h)
}

// RegisterPoseHandler implements fusion.PoseSource.
func (s *Source) RegisterPoseHandler(h fusion.PoseHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poseHandlers = append(s.poseHandlers, h)
}

// LastOrientation implements fusion.OrientationSource.
func (s *Source) LastOrientation() (fusion.OrientationReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastOrientation == nil {
		return fusion.OrientationReport{}, false
	}
	return *s.lastOrientation, true
}

// LastPose implements fusion.PoseSource.
func (s *Source) LastPose() (fusion.PoseReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPose == nil {
		return fusion.PoseReport{}, false
	}
	return *s.lastPose, true
}

// Close unsubscribes from the report topics.
func (s *Source) Close() error {
	var err error
	if token := s.client.Unsubscribe(s.topics.Orientation); token.Wait() && token.Error() != nil {
		err = multierr.Append(err, token.Error())
	}
	if token := s.client.Unsubscribe(s.topics.Pose); token.Wait() && token.Error() != nil {
		err = multierr.Append(err, token.Error())
	}
	return err
}

func (s *Source) onOrientation(_ mqtt.Client, msg mqtt.Message) {
	report, err := decodeOrientationReport(msg.Payload())
	if err != nil {
		s.logger.Debugw("dropping malformed orientation report", "topic", msg.Topic(), "error", err)
		return
	}
	s.mu.Lock()
	s.lastOrientation = &report
	handlers := append([]fusion.OrientationHandler(nil), s.orientationHandlers...)
	s.mu.Unlock()
	for _, h := range handlers {
		h.HandleOrientation(report)
	}
}

func (s *Source) onPose(_ mqtt.Client, msg mqtt.Message) {
	report, err := decodePoseReport(msg.Payload())
	if err != nil {
		s.logger.Debugw("dropping malformed pose report", "topic", msg.Topic(), "error", err)
		return
	}
	s.mu.Lock()
	s.lastPose = &report
	handlers := append([]fusion.PoseHandler(nil), s.poseHandlers...)
	s.mu.Unlock()
	for _, h := range handlers {
		h.HandlePose(report)
	}
}

// Sink publishes fused poses to the outbound topics. It implements
// fusion.Reporter.
type Sink struct {
	client mqtt.Client
	topics map[int]string
}

// NewSink builds a Reporter over an already connected client.
func NewSink(client mqtt.Client, topics Topics) (*Sink, error) {
	if err := topics.Validate(); err != nil {
		return nil, err
	}
	return &Sink{
		client: client,
		topics: map[int]string{
			fusion.FusedChannel:            topics.Fused,
			fusion.TransformedVideoChannel: topics.TransformedVideo,
		},
	}, nil
}

// ReportPose implements fusion.Reporter.
func (s *Sink) ReportPose(channel int, t time.Time, pose spatialmath.Pose) error {
	topic, ok := s.topics[channel]
	if !ok {
		return errors.Errorf("no topic for output channel %d", channel)
	}
	payload, err := encodePose(t, pose)
	if err != nil {
		return err
	}
	if token := s.client.Publish(topic, 0, false, payload); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "publishing to %q", topic)
	}
	return nil
}
