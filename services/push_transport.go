package services

import (
	"context"
	"strings"

	"haven/utils"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

type pushSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushTransport wakes the user's device with a high-priority data message that
// carries the delivery directive, for when the app is not in the foreground.
type PushTransport struct {
	sender   pushSender
	registry *DeviceRegistry
}

func NewPushTransport(ctx context.Context, credentialsFile string, registry *DeviceRegistry) (*PushTransport, error) {
	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, utils.NewServiceErrorWithCause(utils.ErrCodeInternal, "Failed to initialize Firebase", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, utils.NewServiceErrorWithCause(utils.ErrCodeInternal, "Failed to initialize FCM client", err)
	}

	return &PushTransport{sender: client, registry: registry}, nil
}

func (pt *PushTransport) Name() string {
	return "push"
}

func (pt *PushTransport) Deliver(ctx context.Context, req DispatchRequest) error {
	token, ok := pt.registry.PushToken(req.Scope)
	if !ok {
		logrus.WithField("scope", req.Scope).Debug("No push token registered, skipping push")
		return nil
	}

	d := req.Alert.Directive
	message := &messaging.Message{
		Token: token,
		Data: map[string]string{
			"type":      "delivery_directive",
			"sessionId": req.SessionID,
			"mode":      string(d.Mode),
			"uri":       d.URI(),
			"targets":   strings.Join(d.Targets, ","),
			"body":      req.Alert.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": "5",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
				},
			},
		},
	}

	id, err := pt.sender.Send(ctx, message)
	if err != nil {
		return utils.NewTransportError("Failed to send push directive", err)
	}
	logrus.WithField("scope", req.Scope).Debugf("Push directive sent: %s", id)
	return nil
}
