package stepauth

import (
	"errors"
	"time"
)

// Config defines a public type used by stepauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token    TokenConfig
	StepUp   StepUpConfig
	SlowDown SlowDownConfig
	Password PasswordConfig
	Mail     MailConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by stepauth APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	Secret     []byte
	SessionTTL time.Duration
	ResetTTL   time.Duration
	Issuer     string
}

/*
====================================
STEP-UP CONFIG
====================================
*/

// StepUpConfig defines a public type used by stepauth APIs.
//
// StepUpConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StepUpConfig struct {
	CodeDigits   int
	ChallengeTTL time.Duration
	TrustTTL     time.Duration

	// Key prefixes are joined to the user id with "_", matching the cache
	// layout other services already read: email_code_<userID>,
	// trusted_ips_<userID>.
	ChallengePrefix string
	TrustPrefix     string
}

/*
====================================
SLOW-DOWN CONFIG
====================================
*/

// SlowDownConfig tunes the sliding request penalty. Requests are never
// rejected; above DelayAfter hits per Window, each request waits
// (hits - DelayAfter) × DelayIncrement before proceeding.
type SlowDownConfig struct {
	Window         time.Duration
	DelayAfter     int
	DelayIncrement time.Duration
	KeyPrefix      string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by stepauth APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Cost      int
	MinLength int
}

/*
====================================
MAIL CONFIG
====================================
*/

// MailConfig defines a public type used by stepauth APIs.
//
// MailConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MailConfig struct {
	// ResetBaseURL is the public origin reset links are built on; the final
	// URL is <ResetBaseURL>/forgot/<userID>/<token>.
	ResetBaseURL string
	ProductName  string
	SendTimeout  time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by stepauth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by stepauth APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the production defaults: 10-hour sessions, 1-hour
// reset grants, 6-digit challenge codes held for 15 minutes, 30-day trust
// marks, and the 15-minute/100-request/500ms slow-down curve.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SessionTTL: 36000 * time.Second,
			ResetTTL:   3600 * time.Second,
			Issuer:     "stepauth",
		},
		StepUp: StepUpConfig{
			CodeDigits:      6,
			ChallengeTTL:    15 * time.Minute,
			TrustTTL:        30 * 24 * time.Hour,
			ChallengePrefix: "email_code",
			TrustPrefix:     "trusted_ips",
		},
		SlowDown: SlowDownConfig{
			Window:         15 * time.Minute,
			DelayAfter:     100,
			DelayIncrement: 500 * time.Millisecond,
			KeyPrefix:      "login_slow",
		},
		Password: PasswordConfig{
			Cost:      10,
			MinLength: 6,
		},
		Mail: MailConfig{
			ProductName: "PatientProgress",
			SendTimeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = append([]byte(nil), cfg.Token.Secret...)
	return out
}

func validateConfig(cfg Config) error {
	if len(cfg.Token.Secret) == 0 {
		return errors.New("token secret is required")
	}
	if cfg.Token.SessionTTL <= 0 || cfg.Token.ResetTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if cfg.StepUp.CodeDigits < 4 || cfg.StepUp.CodeDigits > 10 {
		return errors.New("challenge code digits must be between 4 and 10")
	}
	if cfg.StepUp.ChallengeTTL <= 0 {
		return errors.New("challenge TTL must be positive")
	}
	if cfg.StepUp.TrustTTL <= 0 {
		return errors.New("trust TTL must be positive")
	}
	if cfg.StepUp.ChallengePrefix == "" || cfg.StepUp.TrustPrefix == "" {
		return errors.New("step-up key prefixes are required")
	}
	if cfg.SlowDown.Window <= 0 {
		return errors.New("slow-down window must be positive")
	}
	if cfg.SlowDown.DelayAfter < 0 || cfg.SlowDown.DelayIncrement < 0 {
		return errors.New("slow-down thresholds must not be negative")
	}
	if cfg.Password.MinLength < 6 {
		return errors.New("password minimum length must be >= 6")
	}
	if cfg.Mail.SendTimeout <= 0 {
		return errors.New("mail send timeout must be positive")
	}
	return nil
}
