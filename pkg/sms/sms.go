// Package sms delivers short text messages through a carrier.
package sms

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/pkg/config"
)

// ErrNotConfigured is returned when carrier credentials are missing.
var ErrNotConfigured = errors.New("sms carrier credentials are not configured")

// Message is a single outbound text.
type Message struct {
	To   string
	Body string
}

// Receipt identifies an accepted message at the carrier.
type Receipt struct {
	SID string
}

// Sender delivers messages. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// DeliveryError carries the carrier's rejection details.
type DeliveryError struct {
	Status  int
	Code    int
	Message string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("carrier rejected message: status=%d code=%d %s", e.Status, e.Code, e.Message)
}

// NewSender picks the configured implementation.
func NewSender(cfg config.SMSConfig, logger *zap.Logger) Sender {
	if cfg.Provider == config.SMSProviderConsole {
		return NewConsoleSender(logger)
	}
	return NewTwilioSender(cfg)
}
