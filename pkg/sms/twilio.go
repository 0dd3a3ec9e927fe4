package sms

import (
	"context"
	"errors"
	"net/http"

	"github.com/twilio/twilio-go"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/noah-isme/tuition-api/pkg/config"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender posts messages to the Twilio Messages API.
type TwilioSender struct {
	from       string
	configured bool
	api        messageCreator
}

// NewTwilioSender builds a sender from account credentials. Missing
// credentials are not an error here; Send reports ErrNotConfigured.
func NewTwilioSender(cfg config.SMSConfig) *TwilioSender {
	s := &TwilioSender{from: cfg.FromNumber, configured: cfg.Configured()}
	if s.configured {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
		s.api = client.Api
	}
	return s
}

// Send submits one message.
func (s *TwilioSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	if !s.configured || s.api == nil {
		return Receipt{}, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(s.from)
	params.SetBody(msg.Body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		var restErr *twilioClient.TwilioRestError
		if errors.As(err, &restErr) {
			return Receipt{}, &DeliveryError{Status: restErr.Status, Code: restErr.Code, Message: restErr.Message}
		}
		return Receipt{}, &DeliveryError{Status: http.StatusBadGateway, Message: err.Error()}
	}

	receipt := Receipt{}
	if resp != nil && resp.Sid != nil {
		receipt.SID = *resp.Sid
	}
	return receipt, nil
}
