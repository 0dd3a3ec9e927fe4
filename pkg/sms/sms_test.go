package sms

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/noah-isme/tuition-api/pkg/config"
)

type fakeCreator struct {
	params *twilioApi.CreateMessageParams
	resp   *twilioApi.ApiV2010Message
	err    error
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	return f.resp, f.err
}

func TestTwilioSenderWithoutCredentials(t *testing.T) {
	sender := NewTwilioSender(config.SMSConfig{AccountSID: "AC1"})
	_, err := sender.Send(context.Background(), Message{To: "+15550001111", Body: "hi"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTwilioSenderSendsFormFields(t *testing.T) {
	sid := "SM123"
	fake := &fakeCreator{resp: &twilioApi.ApiV2010Message{Sid: &sid}}
	sender := &TwilioSender{from: "+15559990000", configured: true, api: fake}

	receipt, err := sender.Send(context.Background(), Message{To: "+15550001111", Body: "Fee due"})
	require.NoError(t, err)
	assert.Equal(t, "SM123", receipt.SID)
	require.NotNil(t, fake.params)
	assert.Equal(t, "+15550001111", *fake.params.To)
	assert.Equal(t, "+15559990000", *fake.params.From)
	assert.Equal(t, "Fee due", *fake.params.Body)
}

func TestTwilioSenderMapsCarrierRejection(t *testing.T) {
	fake := &fakeCreator{err: &twilioClient.TwilioRestError{Status: 400, Code: 21211, Message: "invalid To"}}
	sender := &TwilioSender{from: "+15559990000", configured: true, api: fake}

	_, err := sender.Send(context.Background(), Message{To: "+1", Body: "x"})
	var delivery *DeliveryError
	require.True(t, errors.As(err, &delivery))
	assert.Equal(t, 400, delivery.Status)
	assert.Equal(t, 21211, delivery.Code)
}

func TestConsoleSenderRecordsMessages(t *testing.T) {
	sender := NewConsoleSender(nil)
	receipt, err := sender.Send(context.Background(), Message{To: "+15550001111", Body: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.SID)
	assert.Equal(t, []Message{{To: "+15550001111", Body: "hello"}}, sender.Sent())
}

func TestNewSenderSelectsProvider(t *testing.T) {
	_, ok := NewSender(config.SMSConfig{Provider: config.SMSProviderConsole}, nil).(*ConsoleSender)
	assert.True(t, ok)
	_, ok = NewSender(config.SMSConfig{Provider: config.SMSProviderTwilio}, nil).(*TwilioSender)
	assert.True(t, ok)
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"919876543210":      "+919876543210",
		"+91 98765-43210":   "+919876543210",
		" (555) 000.1111 1": "+55500011111",
	}
	for in, want := range cases {
		got, err := NormalizePhone(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "12345", "98a7654321", "++919876543210"} {
		_, err := NormalizePhone(bad)
		assert.ErrorIs(t, err, ErrInvalidPhone, bad)
	}
}
