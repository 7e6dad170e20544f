package stepauth

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/patientprogress/stepauth/captcha"
	"github.com/patientprogress/stepauth/internal/rate"
	"github.com/patientprogress/stepauth/password"
	"github.com/patientprogress/stepauth/token"
)

// Engine defines a public type used by stepauth APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config     Config
	tokens     *token.Issuer
	passwords  *password.Hasher
	limiter    *rate.Limiter
	bot        BotVerifier
	mail       MailSender
	challenges *challengeStore
	trust      *trustStore
	directory  UserDirectory
	audit      *auditDispatcher
	metrics    *Metrics
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters: map[MetricID]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login runs the full decision chain for one credential submission: sliding
// penalty, bot check, credential verification, then role routing. Patients,
// admins, and unlisted roles receive a session token directly. Professionals
// only do so from a trusted address; otherwise the result is one of the
// advisory challenge statuses and no token.
//
// An unknown email and a wrong password both return [ErrInvalidCredentials];
// the distinction is recorded in the audit stream only.
func (e *Engine) Login(ctx context.Context, email, plaintext, captchaToken string) (*LoginResult, error) {
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

	return e.routeByRole(ctx, user)
}

// CurrentUser resolves a bearer session token to the live directory record.
// Any parse or lookup failure is [ErrUnauthorized]; directory outages are
// reported separately so the HTTP layer can answer 500 instead of 401.
func (e *Engine) CurrentUser(ctx context.Context, sessionToken string) (*UserRecord, error) {
	if e == nil || e.tokens == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseSession(sessionToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	user, err := e.directory.FindByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, ErrDirectoryUnavailable
	}

	return user, nil
}

// SessionResult is the token-only view of an authenticated caller, produced
// without touching the directory.
type SessionResult struct {
	UserID string
	Role   Role
}

// ValidateSession checks a bearer token signature and expiry. It is the hot
// path for route guards and performs no I/O.
func (e *Engine) ValidateSession(sessionToken string) (*SessionResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseSession(sessionToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	return &SessionResult{
		UserID: claims.ID,
		Role:   Role(claims.Type),
	}, nil
}

// applySlowDown serves the sliding penalty before any backend work. The
// limiter never rejects; a Redis outage fails open with a log line because
// delaying is mitigation, not a gate.
func (e *Engine) applySlowDown(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}

	ip := clientIPFromContext(ctx)
	delay, err := e.limiter.Reserve(ctx, ip)
	if err != nil {
		log.Print("stepauth: slow-down counter unavailable, proceeding without delay")
		return nil
	}
	if delay <= 0 {
		return nil
	}

	e.metricInc(MetricLoginSlowed)
	e.emitAudit(ctx, auditEventLoginSlowed, true, "", nil, func() map[string]string {
		return map[string]string{
			"delay_ms": strconv.FormatInt(delay.Milliseconds(), 10),
		}
	})

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) verifyCaptcha(ctx context.Context, clientToken string) error {
	if e.bot == nil {
		return ErrEngineNotReady
	}

	if err := e.bot.Verify(ctx, clientToken); err != nil {
		if isCaptchaOutage(err) {
			e.metricInc(MetricCaptchaUnavailable)
		} else {
			e.metricInc(MetricCaptchaRejected)
		}
		e.emitAudit(ctx, auditEventCaptchaRejected, false, "", err, nil)
		return err
	}
	return nil
}

func isCaptchaOutage(err error) bool {
	return errors.Is(err, captcha.ErrUnavailable)
}

func (e *Engine) verifyCredentials(ctx context.Context, email, plaintext string) (*UserRecord, error) {
	if email == "" || plaintext == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": email,
				"reason":     "empty_input",
			}
		})
		return nil, ErrInvalidCredentials
	}

	user, err := e.directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{
					"identifier": email,
					"reason":     "user_not_found",
				}
			})
			return nil, ErrInvalidCredentials
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrDirectoryUnavailable, func() map[string]string {
			return map[string]string{
				"identifier": email,
				"reason":     "directory_unavailable",
			}
		})
		return nil, ErrDirectoryUnavailable
	}

	ok, err := e.passwords.Verify(plaintext, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": email,
				"reason":     "password_mismatch",
			}
		})
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func (e *Engine) routeByRole(ctx context.Context, user *UserRecord) (*LoginResult, error) {
	if user.Role == RoleProfessional {
		trusted, err := e.trust.Contains(ctx, user.UserID, clientIPFromContext(ctx))
		if err != nil {
			e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, ErrStepUpUnavailable, nil)
			return nil, ErrStepUpUnavailable
		}
		if !trusted {
			return e.issueChallenge(ctx, user)
		}
	}

	return e.issueSession(ctx, user)
}

func (e *Engine) issueSession(ctx context.Context, user *UserRecord) (*LoginResult, error) {
	signed, err := e.tokens.IssueSession(string(user.Role), user.UserID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, err, func() map[string]string {
			return map[string]string{
				"reason": "token_signing_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricSessionIssued)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, nil, nil)

	return &LoginResult{
		Status: LoginAuthenticated,
		Token:  signed,
		UserID: user.UserID,
		Role:   user.Role,
	}, nil
}
