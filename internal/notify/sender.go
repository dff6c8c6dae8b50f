// Package notify delivers verification codes to account owners.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Verification is the payload of a verification email.
type Verification struct {
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Sender hands a verification code to the delivery channel. A nil error means
// the message was accepted for delivery.
type Sender interface {
	SendVerification(ctx context.Context, v Verification) error
}

// LogSender writes verification codes to the log instead of delivering them.
// It is meant for local development.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendVerification(ctx context.Context, v Verification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("verification code issued",
		zap.String("email", v.Email),
		zap.String("username", v.Username),
		zap.String("code", v.Code),
		zap.Time("expires_at", v.ExpiresAt))
	return nil
}
