package services

import (
	"context"
	"fmt"
	"time"

	"haven/models"

	"github.com/sirupsen/logrus"
)

// EventPublisher fans a message out to every connection of a device scope.
type EventPublisher interface {
	Publish(scope string, message models.WSMessage)
}

// Feedback plays audio cues and haptic patterns on the user's device.
// Implementations may fail; callers treat failures as non-fatal.
type Feedback interface {
	PlayCue(ctx context.Context, scope string, cue Cue) error
	Vibrate(ctx context.Context, scope string, pattern []time.Duration) error
}

// DeviceFeedback forwards cues to connected clients over the websocket hub.
type DeviceFeedback struct {
	publisher EventPublisher
}

func NewDeviceFeedback(publisher EventPublisher) *DeviceFeedback {
	return &DeviceFeedback{publisher: publisher}
}

func (df *DeviceFeedback) PlayCue(ctx context.Context, scope string, cue Cue) error {
	df.publisher.Publish(scope, models.WSMessage{
		Type:      models.WSTypeCue,
		Data:      models.WSCue{Cue: string(cue)},
		Scope:     scope,
		Timestamp: time.Now(),
	})
	return nil
}

func (df *DeviceFeedback) Vibrate(ctx context.Context, scope string, pattern []time.Duration) error {
	ms := make([]int64, len(pattern))
	for i, d := range pattern {
		ms[i] = d.Milliseconds()
	}
	df.publisher.Publish(scope, models.WSMessage{
		Type:      models.WSTypeHaptic,
		Data:      models.WSHaptic{PatternMs: ms},
		Scope:     scope,
		Timestamp: time.Now(),
	})
	return nil
}

// LogFeedback only logs; used when no client channel is configured.
type LogFeedback struct{}

func (LogFeedback) PlayCue(ctx context.Context, scope string, cue Cue) error {
	logrus.WithField("scope", scope).Debugf("Cue: %s", cue)
	return nil
}

func (LogFeedback) Vibrate(ctx context.Context, scope string, pattern []time.Duration) error {
	logrus.WithField("scope", scope).Debugf("Vibrate: %v", pattern)
	return nil
}

// playSafely runs a feedback call and swallows both errors and panics.
func playSafely(scope string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("scope", scope).Debugf("Feedback panicked: %v", r)
		}
	}()
	if err := fn(); err != nil {
		logrus.WithField("scope", scope).Debugf("Feedback failed: %v", err)
	}
}

// LocationProvider resolves the user's current location.
type LocationProvider interface {
	CurrentLocation(ctx context.Context) (models.Location, error)
}

// StaticLocator always reports the configured location.
type StaticLocator struct {
	Location models.Location
}

func NewStaticLocator(address, shortCode string) StaticLocator {
	return StaticLocator{Location: models.Location{Address: address, ShortCode: shortCode}}
}

func (sl StaticLocator) CurrentLocation(ctx context.Context) (models.Location, error) {
	if sl.Location.Address == "" {
		return models.Location{}, fmt.Errorf("no location configured")
	}
	return sl.Location, nil
}
