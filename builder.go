package stepauth

import (
	"errors"

	"github.com/patientprogress/stepauth/internal/rate"
	"github.com/patientprogress/stepauth/password"
	"github.com/patientprogress/stepauth/token"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by stepauth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client

	directory UserDirectory
	bot       BotVerifier
	mail      MailSender
	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithUserDirectory describes the withuserdirectory operation and its observable behavior.
//
// WithUserDirectory may return an error when input validation, dependency calls, or security checks fail.
// WithUserDirectory does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithUserDirectory(dir UserDirectory) *Builder {
	b.directory = dir
	return b
}

// WithBotVerifier describes the withbotverifier operation and its observable behavior.
//
// WithBotVerifier may return an error when input validation, dependency calls, or security checks fail.
// WithBotVerifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithBotVerifier(v BotVerifier) *Builder {
	b.bot = v
	return b
}

// WithMailSender describes the withmailsender operation and its observable behavior.
//
// WithMailSender may return an error when input validation, dependency calls, or security checks fail.
// WithMailSender does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMailSender(m MailSender) *Builder {
	b.mail = m
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.directory == nil {
		return nil, errors.New("user directory required")
	}
	if b.bot == nil {
		return nil, errors.New("bot verifier required")
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	issuer, err := token.NewIssuer(token.Config{
		Secret:     cfg.Token.Secret,
		SessionTTL: cfg.Token.SessionTTL,
		ResetTTL:   cfg.Token.ResetTTL,
		Issuer:     cfg.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.Password.Cost)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		tokens:     issuer,
		passwords:  hasher,
		bot:        b.bot,
		mail:       b.mail,
		directory:  b.directory,
		challenges: newChallengeStore(b.redis, cfg.StepUp.ChallengePrefix),
		trust:      newTrustStore(b.redis, cfg.StepUp.TrustPrefix),
		metrics:    newMetrics(cfg.Metrics),
	}

	engine.limiter = rate.New(b.redis, rate.Config{
		Window:         cfg.SlowDown.Window,
		DelayAfter:     cfg.SlowDown.DelayAfter,
		DelayIncrement: cfg.SlowDown.DelayIncrement,
		KeyPrefix:      cfg.SlowDown.KeyPrefix,
	})

	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = NoOpSink{}
		}
		engine.audit = newAuditDispatcher(cfg.Audit, sink)
	}

	b.built = true
	return engine, nil
}
