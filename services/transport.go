package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"haven/models"

	"github.com/sirupsen/logrus"
)

// DispatchRequest is one composed alert on its way out.
type DispatchRequest struct {
	Scope     string
	SessionID string
	Alert     models.AlertPayload

	// Transport, when set, limits delivery to the transport with that name.
	Transport string
}

// Narrow returns the request cut down to the part f left undelivered.
func (req DispatchRequest) Narrow(f DeliveryFailure) DispatchRequest {
	req.Transport = f.Transport
	if f.Targets != nil {
		req.Alert.Directive.Targets = append([]string(nil), f.Targets...)
	}
	return req
}

// DeliveryFailure is what one transport could not deliver. Nil Targets means
// nothing went out through it.
type DeliveryFailure struct {
	Transport string
	Targets   []string
	Err       error
}

// DeliveryError reports the undelivered parts of an alert so a retry can
// resend only those.
type DeliveryError struct {
	Failures []DeliveryFailure
}

func (e *DeliveryError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msg := f.Transport + ": " + f.Err.Error()
		if f.Targets != nil {
			msg += " (to " + strings.Join(f.Targets, ",") + ")"
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}

func (e *DeliveryError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// AlertDispatcher accepts an alert for delivery. It must not block the caller
// on the external transport.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) error
}

// Transport performs the actual delivery of one alert.
type Transport interface {
	Name() string
	Deliver(ctx context.Context, req DispatchRequest) error
}

// MultiTransport hands the alert to every transport and reports all failures.
type MultiTransport struct {
	transports []Transport
}

func NewMultiTransport(transports ...Transport) *MultiTransport {
	return &MultiTransport{transports: transports}
}

func (mt *MultiTransport) Name() string {
	return "multi"
}

// Deliver returns a *DeliveryError naming each transport that failed.
func (mt *MultiTransport) Deliver(ctx context.Context, req DispatchRequest) error {
	var failures []DeliveryFailure
	for _, t := range mt.transports {
		if req.Transport != "" && req.Transport != t.Name() {
			continue
		}
		err := t.Deliver(ctx, req)
		if err == nil {
			continue
		}
		logrus.WithFields(logrus.Fields{
			"scope":     req.Scope,
			"transport": t.Name(),
		}).Errorf("Alert delivery failed: %v", err)

		var de *DeliveryError
		if errors.As(err, &de) {
			failures = append(failures, de.Failures...)
		} else {
			failures = append(failures, DeliveryFailure{Transport: t.Name(), Err: err})
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &DeliveryError{Failures: failures}
}

type LogTransport struct{}

func (LogTransport) Name() string {
	return "log"
}

func (LogTransport) Deliver(ctx context.Context, req DispatchRequest) error {
	logrus.WithFields(logrus.Fields{
		"scope":   req.Scope,
		"session": req.SessionID,
		"mode":    req.Alert.Directive.Mode,
		"targets": req.Alert.Directive.Targets,
	}).Infof("Alert directive: %s", req.Alert.Directive.URI())
	return nil
}

// DeviceTransport hands the directive to the user's own device, which opens
// its native messaging or dialer with it.
type DeviceTransport struct {
	publisher EventPublisher
}

func NewDeviceTransport(publisher EventPublisher) *DeviceTransport {
	return &DeviceTransport{publisher: publisher}
}

func (dt *DeviceTransport) Name() string {
	return "device"
}

func (dt *DeviceTransport) Deliver(ctx context.Context, req DispatchRequest) error {
	d := req.Alert.Directive
	dt.publisher.Publish(req.Scope, models.WSMessage{
		Type: models.WSTypeDirective,
		Data: models.WSDirective{
			Mode:    d.Mode,
			URI:     d.URI(),
			Targets: d.Targets,
			Body:    d.Body,
		},
		Scope:     req.Scope,
		SessionID: req.SessionID,
		Timestamp: time.Now(),
	})
	return nil
}

// DeviceRegistry remembers the push token each device scope registered with.
type DeviceRegistry struct {
	tokens map[string]string
	mutex  sync.RWMutex
}

func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{tokens: make(map[string]string)}
}

func (dr *DeviceRegistry) Register(scope, pushToken string) {
	if scope == "" || pushToken == "" {
		return
	}
	dr.mutex.Lock()
	defer dr.mutex.Unlock()
	dr.tokens[scope] = pushToken
}

func (dr *DeviceRegistry) PushToken(scope string) (string, bool) {
	dr.mutex.RLock()
	defer dr.mutex.RUnlock()
	token, ok := dr.tokens[scope]
	return token, ok
}
