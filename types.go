package stepauth

import (
	"context"

	"github.com/patientprogress/stepauth/mailer"
)

// Role represents the account type carried in session claims and used to
// route the login decision.
//
//	Docs: docs/login.md
type Role string

const (
	// RolePatient is an exported constant or variable used by the authentication engine.
	RolePatient Role = "patient"
	// RoleProfessional is an exported constant or variable used by the authentication engine.
	RoleProfessional Role = "professional"
	// RoleAdmin is an exported constant or variable used by the authentication engine.
	RoleAdmin Role = "admin"
)

// UserRecord is the credential-store view of an account. It is owned by the
// integrator's [UserDirectory]; the engine only ever mutates the password
// hash, and only through [UserDirectory.UpdatePasswordHash].
type UserRecord struct {
	UserID       string
	Email        string
	PasswordHash string
	Role         Role
	Name         string
}

// ProfessionalProfile carries the professional-only attributes the engine
// reads. Language localizes the step-up challenge email ("en" or "fr";
// anything else falls back to English).
type ProfessionalProfile struct {
	UserID   string
	Language string
}

// LoginStatus defines a public type used by stepauth APIs.
//
// LoginStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LoginStatus string

const (
	// LoginAuthenticated is an exported constant or variable used by the authentication engine.
	LoginAuthenticated LoginStatus = "authenticated"
	// LoginChallengeSent is an exported constant or variable used by the authentication engine.
	LoginChallengeSent LoginStatus = "emailSent"
	// LoginChallengePending is an exported constant or variable used by the authentication engine.
	LoginChallengePending LoginStatus = "alreadySent"
)

// LoginResult is returned by [Engine.Login] and [Engine.ConfirmStepUp].
// Token is populated only when Status is [LoginAuthenticated]; the challenge
// statuses are advisory terminal states and carry no token.
type LoginResult struct {
	Status LoginStatus
	Token  string
	UserID string
	Role   Role
}

// UserDirectory is the injected credential store. Implementations are
// expected to be safe for concurrent use; the engine never caches records
// across requests.
//
// FindByEmail and FindByID return [ErrUserNotFound] for unknown accounts.
// The engine collapses that into [ErrInvalidCredentials] or [ErrInvalidLink]
// before it reaches a caller.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)
	FindByID(ctx context.Context, userID string) (*UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	ProfessionalProfile(ctx context.Context, userID string) (*ProfessionalProfile, error)
}

// BotVerifier is the injected bot-mitigation check. The captcha package
// provides the production implementation; tests inject stubs.
type BotVerifier interface {
	Verify(ctx context.Context, clientToken string) error
}

// MailSender dispatches outbound mail. The mailer package provides the SMTP
// implementation. Send is expected to honor context deadlines; the engine
// imposes one per dispatch.
type MailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}
