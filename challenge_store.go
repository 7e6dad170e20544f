package stepauth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeRecordVersion1 = 1

var (
	errChallengeNotFound = errors.New("challenge record not found")
	errChallengeBackend  = errors.New("challenge backend unavailable")
)

// challengeRecord is the pending step-up state for one user. At most one
// exists per user at a time; creation is check-and-set so concurrent logins
// cannot both issue a code.
type challengeRecord struct {
	Code     string
	IssuedAt int64
}

type challengeStore struct {
	redis  *redis.Client
	prefix string
}

func newChallengeStore(redisClient *redis.Client, prefix string) *challengeStore {
	return &challengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Key layout matches the cache entries other services already read:
// email_code_<userID>.
func (s *challengeStore) key(userID string) string {
	return s.prefix + "_" + userID
}

// Create persists a challenge only if none is pending for the user. The
// returned bool reports whether this call won the slot; losing the race (or
// finding an existing code) returns false with no error.
func (s *challengeStore) Create(
	ctx context.Context,
	userID string,
	record *challengeRecord,
	ttl time.Duration,
) (bool, error) {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return false, err
	}

	created, err := s.redis.SetNX(ctx, s.key(userID), encoded, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return created, nil
}

func (s *challengeStore) Get(ctx context.Context, userID string) (*challengeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}

	return decodeChallengeRecord(data)
}

func (s *challengeStore) Delete(ctx context.Context, userID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return n > 0, nil
}

func encodeChallengeRecord(record *challengeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}

	if len(record.Code) > 255 {
		return nil, errors.New("challenge code length exceeded")
	}
	buf.WriteByte(byte(len(record.Code)))
	buf.WriteString(record.Code)

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*challengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersion1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &challengeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}

	codeLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	code := make([]byte, codeLen)
	if _, err := io.ReadFull(reader, code); err != nil {
		return nil, err
	}
	record.Code = string(code)

	return record, nil
}
