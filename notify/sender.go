package notify

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNoRecipient is returned when a code is addressed to an empty email.
var ErrNoRecipient = errors.New("notify: recipient required")

// Sender delivers a one-time code to a user's email address.
type Sender interface {
	SendCode(ctx context.Context, email, code string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, email, code string) error

func (f SenderFunc) SendCode(ctx context.Context, email, code string) error {
	return f(ctx, email, code)
}

// LogSender writes codes to a logger instead of delivering them. Development only.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) SendCode(ctx context.Context, email, code string) error {
	if email == "" {
		return ErrNoRecipient
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "verification code not delivered, log sender active", "email", email, "code", code)
	return nil
}
