package services

import (
	"context"
	"errors"
	"fmt"
	"html"

	"haven/models"
	"haven/utils"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// twilioAPI is the subset of the Twilio REST client the transport calls.
type twilioAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
}

// TwilioTransport sends text alerts and places voice calls from the service number.
type TwilioTransport struct {
	api        twilioAPI
	fromNumber string
}

func NewTwilioTransport(accountSID, authToken, fromNumber string) *TwilioTransport {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioTransport{api: client.Api, fromNumber: fromNumber}
}

func (tt *TwilioTransport) Name() string {
	return "twilio"
}

func (tt *TwilioTransport) Deliver(ctx context.Context, req DispatchRequest) error {
	d := req.Alert.Directive
	if len(d.Targets) == 0 {
		logrus.WithField("scope", req.Scope).Info("Alert has no recipients, nothing to send")
		return nil
	}

	if d.Mode == models.DeliveryModeVoice {
		return tt.call(d.Targets[0], req.Alert.Body)
	}

	var failed []string
	var errs []error
	for i, to := range d.Targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			failed = append(failed, d.Targets[i:]...)
			break
		}
		if err := tt.sendSMS(to, d.Body); err != nil {
			errs = append(errs, fmt.Errorf("sms to %s: %w", to, err))
			failed = append(failed, to)
		}
	}
	if len(failed) > 0 {
		return &DeliveryError{Failures: []DeliveryFailure{{
			Transport: tt.Name(),
			Targets:   failed,
			Err:       utils.NewTransportError("Failed to send alert SMS", errors.Join(errs...)),
		}}}
	}
	return nil
}

func (tt *TwilioTransport) sendSMS(to, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(tt.fromNumber)
	params.SetBody(body)

	resp, err := tt.api.CreateMessage(params)
	if err != nil {
		return err
	}
	if resp != nil && resp.Sid != nil {
		logrus.Debugf("Alert SMS queued: %s", *resp.Sid)
	}
	return nil
}

func (tt *TwilioTransport) call(to, body string) error {
	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(tt.fromNumber)
	params.SetTwiml(voiceTwiml(body))

	resp, err := tt.api.CreateCall(params)
	if err != nil {
		return utils.NewTransportError("Failed to place alert call", err)
	}
	if resp != nil && resp.Sid != nil {
		logrus.Debugf("Alert call placed: %s", *resp.Sid)
	}
	return nil
}

func voiceTwiml(body string) string {
	if body == "" {
		body = "This is an automated safety alert. Please call back as soon as possible."
	}
	return "<Response><Say>" + html.EscapeString(body) + "</Say></Response>"
}
