package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"haven/models"
	"haven/utils"

	"firebase.google.com/go/v4/messaging"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeTwilio struct {
	messages []*twilioApi.CreateMessageParams
	calls    []*twilioApi.CreateCallParams
	failTo   string
}

func (f *fakeTwilio) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	if params.To != nil && *params.To == f.failTo {
		return nil, errors.New("unreachable")
	}
	f.messages = append(f.messages, params)
	sid := "SM1"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func (f *fakeTwilio) CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error) {
	f.calls = append(f.calls, params)
	return &twilioApi.ApiV2010Call{}, nil
}

func smsRequest(targets ...string) DispatchRequest {
	return DispatchRequest{
		Scope:     testScope,
		SessionID: "s-1",
		Alert: models.AlertPayload{
			Body: "Overdose suspected.",
			Directive: models.DeliveryDirective{
				Mode:    models.DeliveryModeSMS,
				Targets: targets,
				Body:    "Overdose suspected.",
			},
		},
	}
}

func TestTwilioTransportSMS(t *testing.T) {
	api := &fakeTwilio{}
	tt := &TwilioTransport{api: api, fromNumber: "+15005550006"}

	if err := tt.Deliver(context.Background(), smsRequest("111", "222")); err != nil {
		t.Fatal(err)
	}
	if len(api.messages) != 2 {
		t.Fatalf("sent %d messages, want 2", len(api.messages))
	}
	if *api.messages[1].To != "222" || *api.messages[1].From != "+15005550006" || *api.messages[1].Body != "Overdose suspected." {
		t.Errorf("unexpected params: to=%s from=%s", *api.messages[1].To, *api.messages[1].From)
	}
}

func TestTwilioTransportNoTargets(t *testing.T) {
	api := &fakeTwilio{}
	tt := &TwilioTransport{api: api}
	if err := tt.Deliver(context.Background(), smsRequest()); err != nil {
		t.Fatal(err)
	}
	if len(api.messages)+len(api.calls) != 0 {
		t.Errorf("sent something with no recipients")
	}
}

func TestTwilioTransportPartialFailure(t *testing.T) {
	api := &fakeTwilio{failTo: "111"}
	tt := &TwilioTransport{api: api}

	err := tt.Deliver(context.Background(), smsRequest("111", "222"))
	se, ok := utils.GetServiceError(err)
	if !ok || se.Code != utils.ErrCodeTransport {
		t.Fatalf("err = %v, want transport error", err)
	}
	if len(api.messages) != 1 {
		t.Errorf("remaining recipient not attempted")
	}

	var de *DeliveryError
	if !errors.As(err, &de) || len(de.Failures) != 1 {
		t.Fatalf("err = %#v, want one delivery failure", err)
	}
	if f := de.Failures[0]; f.Transport != "twilio" || len(f.Targets) != 1 || f.Targets[0] != "111" {
		t.Errorf("failure = %+v, want twilio to 111", f)
	}
}

func TestTwilioTransportCancelledLeavesRestUndelivered(t *testing.T) {
	api := &fakeTwilio{}
	tt := &TwilioTransport{api: api}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tt.Deliver(ctx, smsRequest("111", "222"))
	var de *DeliveryError
	if !errors.As(err, &de) || len(de.Failures[0].Targets) != 2 {
		t.Fatalf("err = %v, want both targets undelivered", err)
	}
	if len(api.messages) != 0 {
		t.Errorf("sent after cancellation")
	}
}

func TestTwilioTransportVoiceCallsFirstTarget(t *testing.T) {
	api := &fakeTwilio{}
	tt := &TwilioTransport{api: api}

	req := smsRequest("111")
	req.Alert.Directive.Mode = models.DeliveryModeVoice
	req.Alert.Body = "Help <now>"

	if err := tt.Deliver(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if len(api.calls) != 1 || *api.calls[0].To != "111" {
		t.Fatalf("calls = %d", len(api.calls))
	}
	if twiml := *api.calls[0].Twiml; twiml != "<Response><Say>Help &lt;now&gt;</Say></Response>" {
		t.Errorf("twiml = %s", twiml)
	}
}

type fakeSender struct {
	sent []*messaging.Message
}

func (f *fakeSender) Send(ctx context.Context, message *messaging.Message) (string, error) {
	f.sent = append(f.sent, message)
	return "projects/haven/messages/1", nil
}

func TestPushTransport(t *testing.T) {
	registry := NewDeviceRegistry()
	sender := &fakeSender{}
	pt := &PushTransport{sender: sender, registry: registry}

	if err := pt.Deliver(context.Background(), smsRequest("111")); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("pushed without a registered token")
	}

	registry.Register(testScope, "fcm-token")
	if err := pt.Deliver(context.Background(), smsRequest("111", "222")); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d pushes", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.Token != "fcm-token" || msg.Data["targets"] != "111,222" || msg.Data["sessionId"] != "s-1" {
		t.Errorf("message = %#v", msg.Data)
	}
	if !strings.HasPrefix(msg.Data["uri"], "sms:111,222?body=") {
		t.Errorf("uri = %s", msg.Data["uri"])
	}
}

type failingTransport struct{}

func (failingTransport) Name() string { return "failing" }

func (failingTransport) Deliver(ctx context.Context, req DispatchRequest) error {
	return errors.New("down")
}

func TestMultiTransportDeliversToAll(t *testing.T) {
	publisher := &recordingPublisher{}
	mt := NewMultiTransport(failingTransport{}, NewDeviceTransport(publisher), LogTransport{})

	err := mt.Deliver(context.Background(), smsRequest("111"))
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Errorf("err = %v", err)
	}
	if publisher.count(models.WSTypeDirective) != 1 {
		t.Errorf("device transport skipped after earlier failure")
	}
}

func TestMultiTransportReportsEachFailure(t *testing.T) {
	api := &fakeTwilio{failTo: "222"}
	mt := NewMultiTransport(failingTransport{}, &TwilioTransport{api: api}, LogTransport{})

	err := mt.Deliver(context.Background(), smsRequest("111", "222"))
	var de *DeliveryError
	if !errors.As(err, &de) || len(de.Failures) != 2 {
		t.Fatalf("err = %v, want two failures", err)
	}
	if f := de.Failures[0]; f.Transport != "failing" || f.Targets != nil {
		t.Errorf("first failure = %+v", f)
	}
	if f := de.Failures[1]; f.Transport != "twilio" || len(f.Targets) != 1 || f.Targets[0] != "222" {
		t.Errorf("second failure = %+v", f)
	}
	if se, ok := utils.GetServiceError(err); !ok || se.Code != utils.ErrCodeTransport {
		t.Errorf("transport error not reachable through %v", err)
	}
}

func TestMultiTransportNarrowedRequest(t *testing.T) {
	publisher := &recordingPublisher{}
	api := &fakeTwilio{}
	mt := NewMultiTransport(NewDeviceTransport(publisher), &TwilioTransport{api: api})

	req := smsRequest("111", "222").Narrow(DeliveryFailure{Transport: "twilio", Targets: []string{"222"}})
	if err := mt.Deliver(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if publisher.count(models.WSTypeDirective) != 0 {
		t.Errorf("device transport used for a twilio-only retry")
	}
	if len(api.messages) != 1 || *api.messages[0].To != "222" {
		t.Errorf("messages = %d, want one to 222", len(api.messages))
	}
}
