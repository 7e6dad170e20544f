package stepauth

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/patientprogress/stepauth/mailer"
)

// Forgot starts a password reset. The outcome is identical for known and
// unknown addresses so the endpoint cannot be used to enumerate accounts;
// only the audit stream records which case occurred.
func (e *Engine) Forgot(ctx context.Context, email, captchaToken string) error {
	if e == nil || e.tokens == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	if err := e.applySlowDown(ctx); err != nil {
		return err
	}
	if err := e.verifyCaptcha(ctx, captchaToken); err != nil {
		return err
	}

	user, err := e.directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventResetUnknownEmail, true, "", nil, func() map[string]string {
				return map[string]string{
					"identifier": email,
				}
			})
			return nil
		}
		return ErrDirectoryUnavailable
	}

	grant, err := e.tokens.IssueResetGrant(user.UserID, user.Email, user.PasswordHash)
	if err != nil {
		e.emitAudit(ctx, auditEventResetRequested, false, user.UserID, err, nil)
		return err
	}

	e.sendResetMail(ctx, user, grant)

	e.metricInc(MetricResetRequested)
	e.emitAudit(ctx, auditEventResetRequested, true, user.UserID, nil, nil)
	return nil
}

func (e *Engine) sendResetMail(ctx context.Context, user *UserRecord, grant string) {
	if e.mail == nil {
		return
	}

	resetURL := strings.TrimRight(e.config.Mail.ResetBaseURL, "/") +
		"/forgot/" + user.UserID + "/" + grant
	subject, html := mailer.ResetEmail(resetURL, e.config.Mail.ProductName)

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Mail.SendTimeout)
	defer cancel()

	if err := e.mail.Send(sendCtx, mailer.Message{
		To:      user.Email,
		Subject: subject,
		HTML:    html,
	}); err != nil {
		e.metricInc(MetricMailDispatchFailed)
		log.Print("stepauth: reset mail dispatch failed for user " + user.UserID)
	}
}

// ResetPassword redeems a reset grant and installs a new password hash. The
// grant is signed with a key derived from the hash it was issued against, so
// it dies the moment the password changes, including by a previous use of the
// same grant. Every verification failure collapses to [ErrInvalidLink].
func (e *Engine) ResetPassword(ctx context.Context, userID, grant, newPassword, captchaToken string) error {
	if e == nil || e.tokens == nil || e.passwords == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	if err := e.applySlowDown(ctx); err != nil {
		return err
	}
	if err := e.verifyCaptcha(ctx, captchaToken); err != nil {
		return err
	}

	if len(newPassword) < e.config.Password.MinLength {
		e.emitAudit(ctx, auditEventResetRejected, false, userID, ErrPasswordPolicy, nil)
		return ErrPasswordPolicy
	}

	user, err := e.directory.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return e.rejectReset(ctx, userID, "user_not_found")
		}
		return ErrDirectoryUnavailable
	}

	if _, err := e.tokens.VerifyResetGrant(grant, user.UserID, user.Email, user.PasswordHash); err != nil {
		return e.rejectReset(ctx, userID, "grant_invalid")
	}

	hash, err := e.passwords.Hash(newPassword)
	if err != nil {
		return e.rejectReset(ctx, userID, "hash_failed")
	}
	newPassword = ""

	if err := e.directory.UpdatePasswordHash(ctx, user.UserID, hash); err != nil {
		return e.rejectReset(ctx, userID, "update_failed")
	}

	// A changed password also withdraws standing step-up state. Both are
	// best effort; leftovers expire on their own TTLs.
	if _, err := e.trust.RevokeAll(ctx, user.UserID); err != nil {
		log.Print("stepauth: could not revoke trusted addresses for user " + user.UserID)
	}
	if _, err := e.challenges.Delete(ctx, user.UserID); err != nil {
		log.Print("stepauth: could not clear pending challenge for user " + user.UserID)
	}

	e.metricInc(MetricResetCompleted)
	e.emitAudit(ctx, auditEventResetCompleted, true, user.UserID, nil, nil)
	return nil
}

func (e *Engine) rejectReset(ctx context.Context, userID, reason string) error {
	e.metricInc(MetricResetRejected)
	e.emitAudit(ctx, auditEventResetRejected, false, userID, ErrInvalidLink, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
	return ErrInvalidLink
}
