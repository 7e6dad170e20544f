package stepauth

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/patientprogress/stepauth/captcha"
	"github.com/patientprogress/stepauth/mailer"
	"github.com/patientprogress/stepauth/password"
)

type mockDirectory struct {
	users     map[string]UserRecord
	byEmail   map[string]string
	languages map[string]string
	updateErr error
	mu        sync.Mutex

	findByEmailCalls    int
	findByIDCalls       int
	updatePasswordCalls int
	profileCalls        int
}

func (m *mockDirectory) FindByEmail(_ context.Context, email string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findByEmailCalls++

	userID, ok := m.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}

	user, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	return &user, nil
}

func (m *mockDirectory) FindByID(_ context.Context, userID string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findByIDCalls++

	user, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	return &user, nil
}

func (m *mockDirectory) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatePasswordCalls++

	if m.updateErr != nil {
		return m.updateErr
	}

	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}

	user.PasswordHash = newHash
	m.users[userID] = user
	return nil
}

func (m *mockDirectory) ProfessionalProfile(_ context.Context, userID string) (*ProfessionalProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profileCalls++

	if _, ok := m.users[userID]; !ok {
		return nil, ErrUserNotFound
	}

	return &ProfessionalProfile{
		UserID:   userID,
		Language: m.languages[userID],
	}, nil
}

// stubCaptcha treats any non-empty token as human and can be forced to fail.
type stubCaptcha struct {
	err error
}

func (s stubCaptcha) Verify(_ context.Context, clientToken string) error {
	if s.err != nil {
		return s.err
	}
	if clientToken == "" {
		return captcha.ErrMissing
	}
	return nil
}

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestHasher(t *testing.T) *password.Hasher {
	t.Helper()

	h, err := password.NewHasher(4)
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	return h
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("test-secret-0123456789")
	cfg.Password.Cost = 4
	cfg.Mail.ResetBaseURL = "https://app.example.com"
	cfg.Audit.Enabled = false
	return cfg
}

func newTestEngine(t *testing.T, rdb *redis.Client, dir UserDirectory, mail MailSender) *Engine {
	t.Helper()

	return newTestEngineWithConfig(t, rdb, dir, mail, testConfig())
}

func newTestEngineWithConfig(
	t *testing.T,
	rdb *redis.Client,
	dir UserDirectory,
	mail MailSender,
	cfg Config,
) *Engine {
	t.Helper()

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(dir).
		WithBotVerifier(stubCaptcha{})
	if mail != nil {
		builder = builder.WithMailSender(mail)
	}

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func seedDirectory(t *testing.T, users ...UserRecord) *mockDirectory {
	t.Helper()

	dir := &mockDirectory{
		users:     make(map[string]UserRecord, len(users)),
		byEmail:   make(map[string]string, len(users)),
		languages: make(map[string]string),
	}
	for _, user := range users {
		dir.users[user.UserID] = user
		dir.byEmail[user.Email] = user.UserID
	}
	return dir
}

func hashPassword(t *testing.T, plaintext string) string {
	t.Helper()

	hash, err := newTestHasher(t).Hash(plaintext)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	return hash
}
