package stepauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"time"

	"github.com/patientprogress/stepauth/internal"
	"github.com/patientprogress/stepauth/mailer"
)

// issueChallenge is the untrusted-address branch of a professional login.
// The store's check-and-set decides a single winner among concurrent logins;
// only the winner sends mail, every later caller sees alreadySent.
func (e *Engine) issueChallenge(ctx context.Context, user *UserRecord) (*LoginResult, error) {
	code, err := internal.NewChallengeCode(e.config.StepUp.CodeDigits)
	if err != nil {
		e.emitAudit(ctx, auditEventChallengeFailed, false, user.UserID, err, nil)
		return nil, ErrStepUpUnavailable
	}

	created, err := e.challenges.Create(ctx, user.UserID, &challengeRecord{
		Code:     code,
		IssuedAt: time.Now().Unix(),
	}, e.config.StepUp.ChallengeTTL)
	if err != nil {
		e.emitAudit(ctx, auditEventChallengeFailed, false, user.UserID, ErrStepUpUnavailable, nil)
		return nil, ErrStepUpUnavailable
	}
	if !created {
		e.metricInc(MetricChallengePending)
		e.emitAudit(ctx, auditEventChallengePending, true, user.UserID, nil, nil)
		return &LoginResult{
			Status: LoginChallengePending,
			UserID: user.UserID,
			Role:   user.Role,
		}, nil
	}

	e.sendChallengeMail(ctx, user, code)

	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, auditEventChallengeIssued, true, user.UserID, nil, nil)

	return &LoginResult{
		Status: LoginChallengeSent,
		UserID: user.UserID,
		Role:   user.Role,
	}, nil
}

// sendChallengeMail delivers the one-time code in the recipient's preferred
// language. Delivery failure is logged but never fails the login; the
// challenge mark already exists and the code can be re-requested after it
// expires.
func (e *Engine) sendChallengeMail(ctx context.Context, user *UserRecord, code string) {
	if e.mail == nil {
		return
	}

	language := ""
	if profile, err := e.directory.ProfessionalProfile(ctx, user.UserID); err == nil && profile != nil {
		language = profile.Language
	}

	subject, html := mailer.ChallengeEmail(language, code, e.config.Mail.ProductName)

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Mail.SendTimeout)
	defer cancel()

	if err := e.mail.Send(sendCtx, mailer.Message{
		To:      user.Email,
		Subject: subject,
		HTML:    html,
	}); err != nil {
		e.metricInc(MetricMailDispatchFailed)
		log.Print("stepauth: challenge mail dispatch failed for user " + user.UserID)
	}
}

// ConfirmStepUp redeems an emailed challenge code. Credentials are verified
// again in full, so a stolen code alone is worthless. On success the calling
// address is marked trusted, the challenge is consumed, and a session token
// is issued exactly as for a trusted login.
//
// A wrong code returns [ErrChallengeInvalid] and leaves the pending challenge
// in place until its TTL lapses.
func (e *Engine) ConfirmStepUp(ctx context.Context, email, plaintext, code, captchaToken string) (*LoginResult, error) {
	if e == nil || e.tokens == nil || e.passwords == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.applySlowDown(ctx); err != nil {
		return nil, err
	}
	if err := e.verifyCaptcha(ctx, captchaToken); err != nil {
		return nil, err
	}

	user, err := e.verifyCredentials(ctx, email, plaintext)
	if err != nil {
		return nil, err
	}
	plaintext = ""

	stored, err := e.challenges.Get(ctx, user.UserID)
	if err != nil {
		if errors.Is(err, errChallengeNotFound) {
			return nil, e.failChallenge(ctx, user.UserID, "challenge_expired")
		}
		e.emitAudit(ctx, auditEventChallengeFailed, false, user.UserID, ErrStepUpUnavailable, nil)
		return nil, ErrStepUpUnavailable
	}

	if subtle.ConstantTimeCompare([]byte(stored.Code), []byte(code)) != 1 {
		return nil, e.failChallenge(ctx, user.UserID, "code_mismatch")
	}

	// Without a client address there is nothing to remember; the session is
	// still issued and the next login re-challenges.
	ip := clientIPFromContext(ctx)
	if ip != "" {
		if err := e.trust.Add(ctx, user.UserID, ip, e.config.StepUp.TrustTTL); err != nil {
			e.emitAudit(ctx, auditEventChallengeFailed, false, user.UserID, ErrStepUpUnavailable, nil)
			return nil, ErrStepUpUnavailable
		}
	}

	// Best effort. An orphaned challenge mark only expires on its own TTL.
	if _, err := e.challenges.Delete(ctx, user.UserID); err != nil {
		log.Print("stepauth: could not clear redeemed challenge for user " + user.UserID)
	}

	e.metricInc(MetricChallengeConfirmed)
	e.emitAudit(ctx, auditEventChallengeConfirmed, true, user.UserID, nil, func() map[string]string {
		return map[string]string{
			"trusted_ip": ip,
		}
	})

	return e.issueSession(ctx, user)
}

func (e *Engine) failChallenge(ctx context.Context, userID, reason string) error {
	e.metricInc(MetricChallengeFailed)
	e.emitAudit(ctx, auditEventChallengeFailed, false, userID, ErrChallengeInvalid, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
	return ErrChallengeInvalid
}
