package stepauth

import (
	"context"
	"errors"

	"github.com/patientprogress/stepauth/captcha"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLoginSlowed        = "login_slowed"
	auditEventCaptchaRejected    = "captcha_rejected"
	auditEventChallengeIssued    = "challenge_issued"
	auditEventChallengePending   = "challenge_pending"
	auditEventChallengeConfirmed = "challenge_confirmed"
	auditEventChallengeFailed    = "challenge_failed"
	auditEventResetRequested     = "password_reset_requested"
	auditEventResetUnknownEmail  = "password_reset_unknown_email"
	auditEventResetCompleted     = "password_reset_completed"
	auditEventResetRejected      = "password_reset_rejected"
)

// AuditErrorCode defines a public type used by stepauth APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrCaptchaMissing     AuditErrorCode = "captcha_missing"
	auditErrCaptchaFailed      AuditErrorCode = "captcha_failed"
	auditErrCaptchaUnavailable AuditErrorCode = "captcha_unavailable"
	auditErrChallengeInvalid   AuditErrorCode = "challenge_invalid"
	auditErrInvalidLink        AuditErrorCode = "invalid_link"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	// EventID and Timestamp are stamped by the dispatcher.
	event := AuditEvent{
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, captcha.ErrMissing):
		return auditErrCaptchaMissing
	case errors.Is(err, captcha.ErrFailed):
		return auditErrCaptchaFailed
	case errors.Is(err, captcha.ErrUnavailable):
		return auditErrCaptchaUnavailable
	case errors.Is(err, ErrChallengeInvalid):
		return auditErrChallengeInvalid
	case errors.Is(err, ErrInvalidLink):
		return auditErrInvalidLink
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrStepUpUnavailable),
		errors.Is(err, ErrDirectoryUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
