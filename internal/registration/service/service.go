// Package service implements the registration sequence orchestrator: the
// state machine that walks a WhatsApp user through phone check, email check,
// account creation, OTP dispatch, and OTP verification, reconciling existing
// identity records along the way.
//
// Step ordering is enforced against the sequence store. Re-entry policy
// (deliberate, applied consistently): check_phone is always accepted and
// restarts the sequence; send_email_otp may be repeated while the sequence
// sits at OTP_SENT (resend, still rate-limited); every other step strictly
// requires the exact predecessor state and fails as a sequence violation
// otherwise. That keeps account creation at-most-once: after it succeeds the
// sequence has moved past EMAIL_CHECKED, so a duplicate delivery cannot
// create a second record.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"onboard/internal/identity"
	"onboard/internal/notification"
	"onboard/internal/platform/metrics"
	"onboard/internal/ratelimit"
	"onboard/internal/registration/models"
	"onboard/internal/registration/store/otp"
	"onboard/internal/registration/store/sequence"
	dErrors "onboard/pkg/domain-errors"
	emailutil "onboard/pkg/email"
	"onboard/pkg/platform/sentinel"
)

// Service is the registration orchestrator. It is the only writer of
// sequence and OTP state; identity records are owned by the gateway and only
// transitioned through it.
type Service struct {
	sequences sequence.Store
	otps      otp.Store
	identity  identity.Gateway
	sender    notification.Sender
	limiter   *ratelimit.Limiter
	metrics   *metrics.Metrics
	logger    *slog.Logger

	sequenceTTL time.Duration
	otpTTL      time.Duration
}

type Option func(*Service)

// WithSequenceTTL overrides how long in-flight sequence state lives.
func WithSequenceTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.sequenceTTL = ttl
	}
}

// WithOTPTTL overrides the advertised OTP validity included in emails. The
// OTP store's own TTL must be configured to match.
func WithOTPTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.otpTTL = ttl
	}
}

// New wires the orchestrator.
func New(
	sequences sequence.Store,
	otps otp.Store,
	gateway identity.Gateway,
	sender notification.Sender,
	limiter *ratelimit.Limiter,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		sequences:   sequences,
		otps:        otps,
		identity:    gateway,
		sender:      sender,
		limiter:     limiter,
		metrics:     m,
		logger:      logger,
		sequenceTTL: time.Hour,
		otpTTL:      otp.DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// upstreamError classifies identity/notification gateway failures. Deadline
// overruns get their own category so callers can distinguish a slow
// dependency from a broken one.
func upstreamError(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(dErrors.CodeTimeout, message+" timed out", err)
	}
	return dErrors.Wrap(dErrors.CodeUpstreamError, message+" failed", err)
}

// CheckPhone starts (or restarts) a registration sequence for phone. It
// reports whether an account already exists and what the caller should do
// next.
func (s *Service) CheckPhone(ctx context.Context, phone string) (*models.Result, error) {
	if err := models.ValidatePhone(phone); err != nil {
		return nil, err
	}
	if _, err := s.limiter.Allow(ctx, ratelimit.OpCheckPhone, phone); err != nil {
		return nil, err
	}

	user, err := s.identity.FindByPhone(ctx, phone)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, upstreamError(err, "identity lookup")
	}

	state := &models.SequenceState{
		PhoneNumber: phone,
		Step:        models.StepPhoneChecked,
		UpdatedAt:   time.Now().UTC(),
	}

	if user != nil {
		state.UserID = user.ID
		if user.Email != "" {
			// Fully registered already; record the checked step so duplicate
			// webhook deliveries stay harmless, but there is nothing to do.
			if err := s.sequences.Put(ctx, state, s.sequenceTTL); err != nil {
				return nil, dErrors.Wrap(dErrors.CodeSystemError, "failed to record sequence state", err)
			}
			return &models.Result{
				Message: "account already registered",
				Data: map[string]any{
					"user_id": user.ID,
					"email":   user.Email,
				},
			}, nil
		}
	}

	if err := s.sequences.Put(ctx, state, s.sequenceTTL); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeSystemError, "failed to record sequence state", err)
	}
	s.metrics.SequencesStarted.Inc()

	result := &models.Result{
		Message:    "phone number checked",
		NextAction: models.NextCheckEmail,
	}
	if user != nil {
		result.Message = "account found without email"
		result.Data = map[string]any{"user_id": user.ID}
	}
	return result, nil
}

// CheckEmail reconciles the collected email against existing identity
// records. Depending on what exists it merges accounts, attaches attributes,
// or advances the sequence toward account creation.
func (s *Service) CheckEmail(ctx context.Context, phone, email string) (*models.Result, error) {
	if err := models.ValidatePhone(phone); err != nil {
		return nil, err
	}
	if err := models.ValidateEmail(email); err != nil {
		return nil, err
	}
	if _, err := s.limiter.Allow(ctx, ratelimit.OpCheckEmail, email); err != nil {
		return nil, err
	}

	state, err := s.getState(ctx, phone)
	if err != nil {
		return nil, err
	}
	if state.Step != models.StepPhoneChecked {
		return nil, dErrors.New(dErrors.CodeSequenceViolation, "check_email must follow check_phone")
	}

	emailUser, err := s.identity.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, upstreamError(err, "identity lookup")
	}

	switch {
	case emailUser != nil && state.UserID != "":
		return s.mergeAccounts(ctx, state, emailUser)

	case emailUser != nil:
		// Email account exists, no separate phone account: attach the phone
		// to it and the flow is done.
		emailUser.SetAttr(identity.AttrPhoneNumber, phone)
		emailUser.SetAttr(identity.AttrPhoneType, identity.PhoneTypeWhatsApp)
		emailUser.SetAttr(identity.AttrPhoneNumberVerified, "true")
		if err := s.identity.Update(ctx, emailUser); err != nil {
			return nil, upstreamError(err, "identity update")
		}
		if err := s.sequences.Clear(ctx, phone); err != nil {
			s.logger.WarnContext(ctx, "failed to clear sequence state", "error", err)
		}
		return &models.Result{
			Message: "phone number linked to existing account",
			Data:    map[string]any{"user_id": emailUser.ID},
		}, nil

	case state.UserID != "":
		// Phone-only account exists, email is free: claim the email for it
		// and the flow is done.
		phoneUser, err := s.identity.FindByID(ctx, state.UserID)
		if err != nil {
			return nil, upstreamError(err, "identity lookup")
		}
		phoneUser.Email = email
		if err := s.identity.Update(ctx, phoneUser); err != nil {
			return nil, upstreamError(err, "identity update")
		}
		if err := s.sequences.Clear(ctx, phone); err != nil {
			s.logger.WarnContext(ctx, "failed to clear sequence state", "error", err)
		}
		return &models.Result{
			Message: "email linked to existing account",
			Data:    map[string]any{"user_id": phoneUser.ID},
		}, nil

	default:
		state.Email = email
		state.Step = models.StepEmailChecked
		state.UpdatedAt = time.Now().UTC()
		if err := s.sequences.Put(ctx, state, s.sequenceTTL); err != nil {
			return nil, dErrors.Wrap(dErrors.CodeSystemError, "failed to record sequence state", err)
		}
		return &models.Result{
			Message:    "email checked",
			NextAction: models.NextCreateAccount,
		}, nil
	}
}

// mergeAccounts reconciles a phone-only account with an existing email
// account. The email account is authoritative (business rule): phone
// attributes are copied onto it and the phone-only account is disabled,
// never deleted. Running the merge again is a no-op against already-merged
// data, so duplicate deliveries converge on the same result.
func (s *Service) mergeAccounts(ctx context.Context, state *models.SequenceState, emailUser *identity.User) (*models.Result, error) {
	if emailUser.ID == state.UserID {
		// Same record on both lookups; nothing to merge.
		if err := s.sequences.Clear(ctx, state.PhoneNumber); err != nil {
			s.logger.WarnContext(ctx, "failed to clear sequence state", "error", err)
		}
		return &models.Result{
			Message: "account already registered",
			Data:    map[string]any{"user_id": emailUser.ID},
		}, nil
	}

	phoneUser, err := s.identity.FindByID(ctx, state.UserID)
	if err != nil {
		return nil, upstreamError(err, "identity lookup")
	}

	emailUser.SetAttr(identity.AttrPhoneNumber, state.PhoneNumber)
	emailUser.SetAttr(identity.AttrPhoneType, identity.PhoneTypeWhatsApp)
	emailUser.SetAttr(identity.AttrPhoneNumberVerified, "true")
	for _, name := range []string{identity.AttrGender, identity.AttrCountry} {
		if emailUser.Attr(name) == "" {
			if value := phoneUser.Attr(name); value != "" {
				emailUser.SetAttr(name, value)
			}
		}
	}
	if err := s.identity.Update(ctx, emailUser); err != nil {
		return nil, upstreamError(err, "identity update")
	}

	if phoneUser.Enabled {
		phoneUser.Enabled = false
		if err := s.identity.Update(ctx, phoneUser); err != nil {
			return nil, upstreamError(err, "identity update")
		}
		s.metrics.AccountsMerged.Inc()
	}

	if err := s.sequences.Clear(ctx, state.PhoneNumber); err != nil {
		s.logger.WarnContext(ctx, "failed to clear sequence state", "error", err)
	}

	s.logger.InfoContext(ctx, "accounts merged",
		"primary_user_id", emailUser.ID,
		"disabled_user_id", phoneUser.ID,
	)
	return &models.Result{
		Message: "accounts merged",
		Data: map[string]any{
			"user_id":          emailUser.ID,
			"merged_from":      phoneUser.ID,
			"disabled_account": true,
		},
	}, nil
}

// CreateAccount creates the identity record for a phone/email pair that
// matched nothing. The email must be the one stored at the check_email step;
// a different one is a sequence violation, which closes the door on smuggling
// an unchecked address into the account.
func (s *Service) CreateAccount(ctx context.Context, req models.CreateAccountRequest) (*models.Result, error) {
	if err := models.ValidatePhone(req.PhoneNumber); err != nil {
		return nil, err
	}
	if err := models.ValidateEmail(req.Email); err != nil {
		return nil, err
	}

	state, err := s.getState(ctx, req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if state.Step != models.StepEmailChecked {
		return nil, dErrors.New(dErrors.CodeSequenceViolation, "create_account must follow check_email")
	}
	if state.Email != req.Email {
		return nil, dErrors.New(dErrors.CodeSequenceViolation, "email does not match the checked email")
	}

	firstName, lastName := req.FirstName, req.LastName
	if firstName == "" || lastName == "" {
		derivedFirst, derivedLast := emailutil.DeriveNameFromEmail(req.Email)
		if firstName == "" {
			firstName = derivedFirst
		}
		if lastName == "" {
			lastName = derivedLast
		}
	}

	user := &identity.User{
		Username:        req.PhoneNumber,
		Email:           req.Email,
		FirstName:       firstName,
		LastName:        lastName,
		Enabled:         true,
		EmailVerified:   false,
		RequiredActions: []string{identity.RequiredActionUpdatePassword},
	}
	user.SetAttr(identity.AttrPhoneNumber, req.PhoneNumber)
	user.SetAttr(identity.AttrPhoneType, identity.PhoneTypeWhatsApp)
	user.SetAttr(identity.AttrPhoneNumberVerified, "true")
	user.SetAttr(identity.AttrVerificationRoute, identity.VerificationRouteEmailOTP)
	if req.Gender != "" {
		user.SetAttr(identity.AttrGender, req.Gender)
	}
	if req.Country != "" {
		user.SetAttr(identity.AttrCountry, req.Country)
	}

	userID, err := s.identity.Create(ctx, user)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeInvalidData, "an account already exists for this phone or email")
		}
		return nil, upstreamError(err, "identity create")
	}

	state.UserID = userID
	state.Step = models.StepAccountCreated
	state.UpdatedAt = time.Now().UTC()
	if err := s.sequences.Put(ctx, state, s.sequenceTTL); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeSystemError, "failed to record sequence state", err)
	}
	s.metrics.AccountsCreated.Inc()

	return &models.Result{
		Message:    "account created",
		NextAction: models.NextSendEmailOTP,
		Data:       map[string]any{"user_id": userID},
	}, nil
}

// SendEmailOTP generates a fresh code and dispatches it. A dispatch failure
// does not advance the sequence; the caller may retry within the rate limit.
func (s *Service) SendEmailOTP(ctx context.Context, phone, email string) (*models.Result, error) {
	if err := models.ValidatePhone(phone); err != nil {
		return nil, err
	}
	if err := models.ValidateEmail(email); err != nil {
		return nil, err
	}
	if _, err := s.limiter.Allow(ctx, ratelimit.OpSendEmailOTP, email); err != nil {
		return nil, err
	}

	state, err := s.getState(ctx, phone)
	if err != nil {
		return nil, err
	}
	if state.Step != models.StepAccountCreated && state.Step != models.StepOTPSent {
		return nil, dErrors.New(dErrors.CodeSequenceViolation, "send_email_otp must follow create_account")
	}
	if state.Email != email {
		return nil, dErrors.New(dErrors.CodeSequenceViolation, "email does not match the checked email")
	}

	code, err := s.otps.Generate(ctx, email)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeSystemError, "failed to generate verification code", err)
	}
	if err := s.sender.SendOTP(ctx, email, code, s.otpTTL); err != nil {
		return nil, upstreamError(err, "otp dispatch")
	}

	state.Step = models.StepOTPSent
	state.UpdatedAt = time.Now().UTC()
	if err := s.sequences.Put(ctx, state, s.sequenceTTL); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeSystemError, "failed to record sequence state", err)
	}
	s.metrics.OTPSent.Inc()

	return &models.Result{
		Message:    "verification code sent",
		NextAction: models.NextVerifyEmail,
	}, nil
}

// VerifyEmail checks the submitted code. The sequence is keyed by phone but
// this call arrives keyed by email, so the store's email index resolves the
// in-flight record. On success the identity record's email is marked
// verified and the sequence is cleared; on an exhausted attempt budget the
// sequence rolls back to ACCOUNT_CREATED so the caller restarts from
// send_email_otp, not from check_phone.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (*models.Result, error) {
	if err := models.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := models.ValidateOTP(code); err != nil {
		return nil, err
	}

	phone, err := s.sequences.PhoneByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeSequenceViolation, "no registration in progress for this email")
		}
		return nil, dErrors.Wrap(dErrors.CodeSystemError, "failed to resolve sequence state", err)
	}

	state, err := s.getState(ctx, phone)
	if err != nil {
		return nil, err
	}
	// ACCOUNT_CREATED is also accepted: an exhausted attempt budget rolls the
	// sequence back there, and a stale client retrying then gets the OTP
	// store's not-found answer instead of a misleading ordering error.
	if state.Step != models.StepOTPSent && state.Step != models.StepAccountCreated {
		return nil, dErrors.New(dErrors.CodeSequenceViolation, "verify_email must follow send_email_otp")
	}

	outcome, err := s.otps.Verify(ctx, email, code)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeSystemError, "failed to verify code", err)
	}

	switch outcome {
	case otp.OutcomeValid:
		return s.finishVerification(ctx, state)

	case otp.OutcomeMismatch:
		return nil, dErrors.New(dErrors.CodeInvalidData, "incorrect verification code")

	case otp.OutcomeExhausted:
		// Roll back so the caller can request a fresh code; the account
		// itself already exists.
		state.Step = models.StepAccountCreated
		state.UpdatedAt = time.Now().UTC()
		if err := s.sequences.Put(ctx, state, s.sequenceTTL); err != nil {
			s.logger.WarnContext(ctx, "failed to roll back sequence state", "error", err)
		}
		return nil, dErrors.New(dErrors.CodeMaxAttemptsExceeded, "too many incorrect codes; request a new one")

	default:
		return nil, dErrors.New(dErrors.CodeDataNotFound, "verification code expired or not found")
	}
}

// finishVerification marks the identity record verified and clears the
// sequence, making VERIFIED terminal.
func (s *Service) finishVerification(ctx context.Context, state *models.SequenceState) (*models.Result, error) {
	if state.UserID == "" {
		return nil, dErrors.New(dErrors.CodeSystemError, "sequence state is missing the account reference")
	}

	user, err := s.identity.FindByID(ctx, state.UserID)
	if err != nil {
		return nil, upstreamError(err, "identity lookup")
	}
	user.Enabled = true
	user.EmailVerified = true
	user.RequiredActions = nil
	if err := s.identity.Update(ctx, user); err != nil {
		return nil, upstreamError(err, "identity update")
	}

	if err := s.sequences.Clear(ctx, state.PhoneNumber); err != nil {
		s.logger.WarnContext(ctx, "failed to clear sequence state", "error", err)
	}
	s.metrics.OTPVerified.Inc()

	return &models.Result{
		Message: "email verified",
		Data: map[string]any{
			"verified": true,
			"user_id":  user.ID,
		},
	}, nil
}

// Status reports the current step of an in-flight sequence, used by the chat
// layer to resume an interrupted flow.
func (s *Service) Status(ctx context.Context, phone string) (*models.Result, error) {
	if err := models.ValidatePhone(phone); err != nil {
		return nil, err
	}

	state, err := s.sequences.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeDataNotFound, "no registration in progress for this phone")
		}
		return nil, dErrors.Wrap(dErrors.CodeSystemError, "failed to read sequence state", err)
	}

	data := map[string]any{
		"step_completed": string(state.Step),
		"updated_at":     state.UpdatedAt,
	}
	if state.UserID != "" {
		data["user_id"] = state.UserID
	}
	if state.Email != "" {
		data["email"] = state.Email
	}
	return &models.Result{
		Message: "registration in progress",
		Data:    data,
	}, nil
}

// getState loads the in-flight sequence or fails with a sequence violation;
// an expired or absent record means no prerequisite step was recorded.
func (s *Service) getState(ctx context.Context, phone string) (*models.SequenceState, error) {
	state, err := s.sequences.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeSequenceViolation, "no registration in progress; start with check_phone")
		}
		return nil, dErrors.Wrap(dErrors.CodeSystemError, "failed to read sequence state", err)
	}
	return state, nil
}
