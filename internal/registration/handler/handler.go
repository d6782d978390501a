// Package handler exposes the registration sequence over HTTP for the chat
// layer. Every response uses the shared envelope; failures carry a stable
// error code so the bot can branch without parsing messages.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"onboard/internal/platform/metrics"
	"onboard/internal/ratelimit"
	"onboard/internal/registration/models"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/platform/httputil"
)

type registrationService interface {
	CheckPhone(ctx context.Context, phone string) (*models.Result, error)
	CheckEmail(ctx context.Context, phone, email string) (*models.Result, error)
	CreateAccount(ctx context.Context, req models.CreateAccountRequest) (*models.Result, error)
	SendEmailOTP(ctx context.Context, phone, email string) (*models.Result, error)
	VerifyEmail(ctx context.Context, email, code string) (*models.Result, error)
	Status(ctx context.Context, phone string) (*models.Result, error)
}

// Handler serves the registration endpoints.
type Handler struct {
	service registrationService
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(service registrationService, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{service: service, metrics: m, logger: logger}
}

// Routes mounts the registration surface on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/check-phone", h.CheckPhone)
	r.Post("/check-email", h.CheckEmail)
	r.Post("/create-account", h.CreateAccount)
	r.Post("/send-email-otp", h.SendEmailOTP)
	r.Post("/verify-email", h.VerifyEmail)
	r.Get("/status", h.Status)
}

func (h *Handler) CheckPhone(w http.ResponseWriter, r *http.Request) {
	var req models.CheckPhoneRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.CheckPhone(r.Context(), req.PhoneNumber)
	h.respond(w, r, result, err)
}

func (h *Handler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	var req models.CheckEmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.CheckEmail(r.Context(), req.PhoneNumber, req.Email)
	h.respond(w, r, result, err)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.CreateAccount(r.Context(), req)
	h.respond(w, r, result, err)
}

func (h *Handler) SendEmailOTP(w http.ResponseWriter, r *http.Request) {
	var req models.SendEmailOTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.SendEmailOTP(r.Context(), req.PhoneNumber, req.Email)
	h.respond(w, r, result, err)
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyEmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.VerifyEmail(r.Context(), req.Email, req.OTP)
	h.respond(w, r, result, err)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone_number")
	result, err := h.service.Status(r.Context(), phone)
	h.respond(w, r, result, err)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, dErrors.Wrap(dErrors.CodeInvalidData, "invalid request body", err))
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, result *models.Result, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result.Message, result.NextAction, result.Data)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var limited *ratelimit.LimitExceededError
	if errors.As(err, &limited) {
		res := limited.Result
		retryAfter := res.RetryAfter
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		h.metrics.SequenceErrors.WithLabelValues(string(dErrors.CodeRateLimit)).Inc()
		httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Envelope{
			Status:     httputil.StatusFailed,
			Message:    fmt.Sprintf("too many %s requests; retry in %d seconds", limited.Operation, retryAfter),
			ErrorCode:  string(dErrors.CodeRateLimit),
			RetryAfter: retryAfter,
		})
		return
	}

	code := dErrors.CodeOf(err)
	h.metrics.SequenceErrors.WithLabelValues(string(code)).Inc()
	if dErrors.ToHTTPStatus(code) >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "registration request failed",
			"path", r.URL.Path, "code", string(code), "error", err)
	}
	httputil.WriteError(w, err)
}
