// Package notification delivers OTP codes. Delivery is an external
// collaborator: the orchestrator only needs a Sender and treats any failure
// as a non-advancing error the caller may retry within rate limits.
package notification

import (
	"context"
	"log/slog"
	"time"
)

// Sender dispatches a verification code to an email address. ttl is how long
// the code stays valid and is included in the message body.
type Sender interface {
	SendOTP(ctx context.Context, email, code string, ttl time.Duration) error
}

// LogSender writes the code to the log instead of sending mail. Development
// fallback when no mail API key is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	s.logger.InfoContext(ctx, "otp dispatch (log sender)",
		"email", email,
		"code", code,
		"expires_in", ttl.String(),
	)
	return nil
}
