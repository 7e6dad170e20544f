package stepauth

import "errors"

var (
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	// The message is identical whether the email is unknown or the password is
	// wrong; callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is an exported constant or variable used by the authentication engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnauthorized is an exported constant or variable used by the authentication engine.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrChallengeInvalid is an exported constant or variable used by the authentication engine.
	ErrChallengeInvalid = errors.New("invalid verification code")
	// ErrStepUpUnavailable is an exported constant or variable used by the authentication engine.
	ErrStepUpUnavailable = errors.New("step-up backend unavailable")
	// ErrInvalidLink is an exported constant or variable used by the authentication engine.
	// Signature mismatch, expiry, identity mismatch, missing user, and persist
	// failures during password reset all collapse here.
	ErrInvalidLink = errors.New("invalid reset link")
	// ErrPasswordPolicy is an exported constant or variable used by the authentication engine.
	ErrPasswordPolicy = errors.New("password must be at least 6 characters")
	// ErrDirectoryUnavailable is an exported constant or variable used by the authentication engine.
	ErrDirectoryUnavailable = errors.New("user directory unavailable")
)
