package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	stepauth "github.com/patientprogress/stepauth"
)

const (
	userKeyPrefix  = "users:"
	emailKeyPrefix = "users:email:"

	fieldEmail    = "email"
	fieldHash     = "password_hash"
	fieldRole     = "role"
	fieldName     = "name"
	fieldLanguage = "language"
)

var errBackend = errors.New("directory: redis unavailable")

// Redis is a user directory kept in Redis hashes, one hash per user plus an
// email index key. It satisfies stepauth.UserDirectory.
type Redis struct {
	redis *redis.Client
}

// NewRedis describes the newredis operation and its observable behavior.
//
// NewRedis may return an error when input validation, dependency calls, or security checks fail.
// NewRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{redis: client}
}

// Put stores or replaces a user record and its email index entry. The
// Language field only applies to professionals and may be empty.
func (d *Redis) Put(ctx context.Context, user stepauth.UserRecord, language string) error {
	if user.UserID == "" || user.Email == "" {
		return errors.New("directory: user id and email are required")
	}

	_, err := d.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, userKeyPrefix+user.UserID, map[string]any{
			fieldEmail:    user.Email,
			fieldHash:     user.PasswordHash,
			fieldRole:     string(user.Role),
			fieldName:     user.Name,
			fieldLanguage: language,
		})
		pipe.Set(ctx, emailKeyPrefix+user.Email, user.UserID, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errBackend, err)
	}
	return nil
}

// FindByEmail describes the findbyemail operation and its observable behavior.
//
// FindByEmail may return an error when input validation, dependency calls, or security checks fail.
// FindByEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Redis) FindByEmail(ctx context.Context, email string) (*stepauth.UserRecord, error) {
	userID, err := d.redis.Get(ctx, emailKeyPrefix+email).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, stepauth.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", errBackend, err)
	}

	return d.FindByID(ctx, userID)
}

// FindByID describes the findbyid operation and its observable behavior.
//
// FindByID may return an error when input validation, dependency calls, or security checks fail.
// FindByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Redis) FindByID(ctx context.Context, userID string) (*stepauth.UserRecord, error) {
	fields, err := d.redis.HGetAll(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBackend, err)
	}
	if len(fields) == 0 {
		return nil, stepauth.ErrUserNotFound
	}

	return &stepauth.UserRecord{
		UserID:       userID,
		Email:        fields[fieldEmail],
		PasswordHash: fields[fieldHash],
		Role:         stepauth.Role(fields[fieldRole]),
		Name:         fields[fieldName],
	}, nil
}

// UpdatePasswordHash describes the updatepasswordhash operation and its observable behavior.
//
// UpdatePasswordHash may return an error when input validation, dependency calls, or security checks fail.
// UpdatePasswordHash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Redis) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	exists, err := d.redis.Exists(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errBackend, err)
	}
	if exists == 0 {
		return stepauth.ErrUserNotFound
	}

	if err := d.redis.HSet(ctx, userKeyPrefix+userID, fieldHash, newHash).Err(); err != nil {
		return fmt.Errorf("%w: %v", errBackend, err)
	}
	return nil
}

// ProfessionalProfile describes the professionalprofile operation and its observable behavior.
//
// ProfessionalProfile may return an error when input validation, dependency calls, or security checks fail.
// ProfessionalProfile does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Redis) ProfessionalProfile(ctx context.Context, userID string) (*stepauth.ProfessionalProfile, error) {
	fields, err := d.redis.HGetAll(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBackend, err)
	}
	if len(fields) == 0 {
		return nil, stepauth.ErrUserNotFound
	}

	return &stepauth.ProfessionalProfile{
		UserID:   userID,
		Language: fields[fieldLanguage],
	}, nil
}
