// Package models holds the registration sequence domain types shared by the
// orchestrator, its stores, and the HTTP handler.
package models

import (
	"regexp"
	"time"

	"github.com/asaskevich/govalidator"

	dErrors "onboard/pkg/domain-errors"
)

// Step is the last completed step of a registration sequence. Steps are
// strictly ordered; a request for step N must find the sequence at step N-1.
type Step string

const (
	StepPhoneChecked   Step = "PHONE_CHECKED"
	StepEmailChecked   Step = "EMAIL_CHECKED"
	StepAccountCreated Step = "ACCOUNT_CREATED"
	StepOTPSent        Step = "OTP_SENT"
)

var stepRank = map[Step]int{
	StepPhoneChecked:   1,
	StepEmailChecked:   2,
	StepAccountCreated: 3,
	StepOTPSent:        4,
}

// Rank returns the step's position in the sequence, 0 for unknown values.
func (s Step) Rank() int {
	return stepRank[s]
}

// AtLeast reports whether s is other or a later step.
func (s Step) AtLeast(other Step) bool {
	return s.Rank() >= other.Rank()
}

// Next action names returned in the response envelope.
const (
	NextCheckEmail    = "check_email"
	NextCreateAccount = "create_account"
	NextSendEmailOTP  = "send_email_otp"
	NextVerifyEmail   = "verify_email"
)

// SequenceState is the short-lived in-flight record of one registration,
// keyed by phone number. UserID is set once an existing or new identity
// record is attached; Email once collected at the email-check step.
type SequenceState struct {
	PhoneNumber string    `json:"phone_number"`
	Step        Step      `json:"step_completed"`
	UserID      string    `json:"user_id,omitempty"`
	Email       string    `json:"email,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CheckPhoneRequest starts or restarts a sequence.
type CheckPhoneRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type CheckEmailRequest struct {
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

type CreateAccountRequest struct {
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Gender      string `json:"gender"`
	Country     string `json:"country"`
}

type SendEmailOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

type VerifyEmailRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// StatusRequest asks for the current state of an in-flight sequence.
type StatusRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// Result is what each sequence operation hands back to the transport layer.
type Result struct {
	Message    string
	NextAction string
	Data       map[string]any
}

var phoneRE = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// ValidatePhone checks canonical E.164 form.
func ValidatePhone(phone string) error {
	if !phoneRE.MatchString(phone) {
		return dErrors.New(dErrors.CodeInvalidData, "phone_number must be in E.164 format")
	}
	return nil
}

// ValidateEmail checks format and a sane length bound.
func ValidateEmail(email string) error {
	if !govalidator.StringLength(email, "3", "255") || !govalidator.IsEmail(email) {
		return dErrors.New(dErrors.CodeInvalidData, "invalid email address")
	}
	return nil
}

var otpRE = regexp.MustCompile(`^[0-9]{6}$`)

// ValidateOTP checks the 6-digit numeric form before touching any state.
func ValidateOTP(code string) error {
	if !otpRE.MatchString(code) {
		return dErrors.New(dErrors.CodeInvalidData, "otp must be a 6-digit code")
	}
	return nil
}
