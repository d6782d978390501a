package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"onboard/internal/platform/config"
	"onboard/pkg/platform/sentinel"
)

// Mailer sends OTP emails through a transactional mail HTTP API
// (sendgrid-shaped v3 payload). Calls are bounded by the configured timeout.
type Mailer struct {
	http   *http.Client
	cfg    config.MailConfig
	logger *slog.Logger
}

// NewMailer builds a Mailer from mail configuration.
func NewMailer(cfg config.MailConfig, logger *slog.Logger) *Mailer {
	return &Mailer{
		http:   &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
}

type mailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailPersonalization struct {
	To []mailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailRequest struct {
	Personalizations []mailPersonalization `json:"personalizations"`
	From             mailAddress           `json:"from"`
	Subject          string                `json:"subject"`
	Content          []mailContent         `json:"content"`
}

func (m *Mailer) SendOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	minutes := int(ttl.Minutes())
	body := mailRequest{
		Personalizations: []mailPersonalization{{To: []mailAddress{{Email: email}}}},
		From:             mailAddress{Email: m.cfg.FromEmail, Name: m.cfg.FromName},
		Subject:          "Your verification code",
		Content: []mailContent{{
			Type: "text/plain",
			Value: fmt.Sprintf(
				"Your verification code is: %s\n\n"+
					"This code will expire in %d minutes.\n\n"+
					"If you didn't request this code, please ignore this email.",
				code, minutes),
		}},
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("send otp email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("mail API returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mail API returned %d", resp.StatusCode)
	}

	m.logger.InfoContext(ctx, "otp email dispatched",
		"message_id", resp.Header.Get("X-Message-Id"),
	)
	return nil
}
