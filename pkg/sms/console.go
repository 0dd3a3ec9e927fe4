package sms

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConsoleSender logs messages instead of delivering them. Used in development.
type ConsoleSender struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []Message
}

// NewConsoleSender builds a logging sender.
func NewConsoleSender(logger *zap.Logger) *ConsoleSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSender{logger: logger}
}

// Send records msg and writes it to the log.
func (s *ConsoleSender) Send(_ context.Context, msg Message) (Receipt, error) {
	sid := "console-" + uuid.NewString()
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.logger.Info("sms message", zap.String("sid", sid), zap.String("to", msg.To), zap.String("body", msg.Body))
	return Receipt{SID: sid}, nil
}

// Sent returns a copy of every message sent so far.
func (s *ConsoleSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}
