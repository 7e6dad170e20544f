package token

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSessionInvalid is returned for any session token that fails to
	// verify: bad signature, expiry, malformed claims.
	ErrSessionInvalid = errors.New("invalid session token")
	// ErrResetGrantInvalid is returned for any reset grant that fails to
	// verify. Signature mismatch (including a password change since
	// issuance), expiry, and identity mismatch all collapse here so callers
	// cannot learn which check failed.
	ErrResetGrantInvalid = errors.New("invalid reset grant")
)

// Config defines a public type used by stepauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret     []byte
	SessionTTL time.Duration
	ResetTTL   time.Duration
	Issuer     string
}

// Issuer mints and verifies the two claim shapes the engine needs: session
// tokens signed with the process-wide secret, and reset grants signed with a
// key derived from the secret and the target user's current password hash.
// Because the hash participates in the key, changing the password invalidates
// every outstanding grant without a revocation list.
type Issuer struct {
	config Config
}

// SessionClaims defines a public type used by stepauth APIs.
//
// SessionClaims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionClaims struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	jwt.RegisteredClaims
}

// ResetClaims defines a public type used by stepauth APIs.
//
// ResetClaims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ResetClaims struct {
	Email string `json:"email"`
	ID    string `json:"id"`
	jwt.RegisteredClaims
}

// NewIssuer describes the newissuer operation and its observable behavior.
//
// NewIssuer may return an error when input validation, dependency calls, or security checks fail.
// NewIssuer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("invalid session TTL configuration")
	}
	if cfg.ResetTTL <= 0 {
		return nil, errors.New("invalid reset TTL configuration")
	}

	return &Issuer{config: cfg}, nil
}

// IssueSession describes the issuesession operation and its observable behavior.
//
// IssueSession may return an error when input validation, dependency calls, or security checks fail.
// IssueSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (i *Issuer) IssueSession(role, userID string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Type: role,
		ID:   userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.config.SessionTTL)),
			Issuer:    i.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.config.Secret)
}

// ParseSession describes the parsesession operation and its observable behavior.
//
// ParseSession may return an error when input validation, dependency calls, or security checks fail.
// ParseSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (i *Issuer) ParseSession(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return i.config.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, ErrSessionInvalid
	}
	if claims.ID == "" {
		return nil, ErrSessionInvalid
	}

	return claims, nil
}

// IssueResetGrant describes the issueresetgrant operation and its observable behavior.
//
// IssueResetGrant may return an error when input validation, dependency calls, or security checks fail.
// IssueResetGrant does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (i *Issuer) IssueResetGrant(userID, email, passwordHash string) (string, error) {
	now := time.Now()
	claims := ResetClaims{
		Email: email,
		ID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.config.ResetTTL)),
			Issuer:    i.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.resetKey(passwordHash))
}

// VerifyResetGrant checks a reset grant against the target user. Three
// independent conditions are verified — signature under the hash-bound key,
// expiry, and claim identity against the user id and email — and every
// failure is reported as [ErrResetGrantInvalid].
func (i *Issuer) VerifyResetGrant(tokenStr, userID, email, passwordHash string) (*ResetClaims, error) {
	claims := &ResetClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return i.resetKey(passwordHash), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, ErrResetGrantInvalid
	}

	idOK := subtle.ConstantTimeCompare([]byte(claims.ID), []byte(userID)) == 1
	emailOK := subtle.ConstantTimeCompare([]byte(claims.Email), []byte(email)) == 1
	if !idOK || !emailOK {
		return nil, ErrResetGrantInvalid
	}

	return claims, nil
}

// resetKey derives the grant signing key from the base secret and the
// password hash current at issuance time. The separator keeps the
// concatenation unambiguous.
func (i *Issuer) resetKey(passwordHash string) []byte {
	key := make([]byte, 0, len(i.config.Secret)+1+len(passwordHash))
	key = append(key, i.config.Secret...)
	key = append(key, '-')
	key = append(key, passwordHash...)
	return key
}
