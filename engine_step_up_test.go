package stepauth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func seedProfessional(t *testing.T) *mockDirectory {
	t.Helper()

	return seedDirectory(t, UserRecord{
		UserID:       "p1",
		Email:        "dr@example.com",
		PasswordHash: hashPassword(t, "correct-horse"),
		Role:         RoleProfessional,
	})
}

func TestProfessionalLoginSendsSingleChallenge(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	mail := &captureMailer{}
	dir := seedProfessional(t)
	engine := newTestEngine(t, rdb, dir, mail)
	ctx := WithClientIP(context.Background(), "203.0.113.9")

	first, err := engine.Login(ctx, "dr@example.com", "correct-horse", "human")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	if first.Status != LoginChallengeSent {
		t.Fatalf("expected emailSent, got %q", first.Status)
	}
	if first.Token != "" {
		t.Fatal("a challenge response must not carry a session token")
	}

	second, err := engine.Login(ctx, "dr@example.com", "correct-horse", "human")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if second.Status != LoginChallengePending {
		t.Fatalf("expected alreadySent, got %q", second.Status)
	}

	messages := mail.messages()
	if len(messages) != 1 {
		t.Fatalf("expected exactly one challenge mail, got %d", len(messages))
	}

	record, err := engine.challenges.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("reading pending challenge failed: %v", err)
	}
	if !strings.Contains(messages[0].HTML, record.Code) {
		t.Fatal("challenge mail must carry the stored code")
	}
}

func TestChallengeMailUsesProfileLanguage(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	mail := &captureMailer{}
	dir := seedProfessional(t)
	dir.languages["p1"] = "fr"
	engine := newTestEngine(t, rdb, dir, mail)

	if _, err := engine.Login(context.Background(), "dr@example.com", "correct-horse", "human"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	messages := mail.messages()
	if len(messages) != 1 {
		t.Fatalf("expected one challenge mail, got %d", len(messages))
	}
	if messages[0].Subject != "Code de Vérification" {
		t.Fatalf("expected French subject, got %q", messages[0].Subject)
	}
}

func TestChallengeMailFailureDoesNotFailLogin(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	mail := &captureMailer{err: errors.New("smtp down")}
	dir := seedProfessional(t)
	engine := newTestEngine(t, rdb, dir, mail)

	result, err := engine.Login(context.Background(), "dr@example.com", "correct-horse", "human")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if result.Status != LoginChallengeSent {
		t.Fatalf("expected emailSent despite mail failure, got %q", result.Status)
	}
	if got := engine.MetricsSnapshot().Counters[MetricMailDispatchFailed]; got != 1 {
		t.Fatalf("expected mail failure counter 1, got %d", got)
	}
}

func TestConfirmStepUpIssuesTokenAndMarksTrust(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	mail := &captureMailer{}
	dir := seedProfessional(t)
	engine := newTestEngine(t, rdb, dir, mail)
	ctx := WithClientIP(context.Background(), "203.0.113.9")

	if _, err := engine.Login(ctx, "dr@example.com", "correct-horse", "human"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	record, err := engine.challenges.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("reading pending challenge failed: %v", err)
	}

	result, err := engine.ConfirmStepUp(ctx, "dr@example.com", "correct-horse", record.Code, "human")
	if err != nil {
		t.Fatalf("ConfirmStepUp failed: %v", err)
	}
	if result.Status != LoginAuthenticated || result.Token == "" {
		t.Fatalf("expected session token, got %+v", result)
	}

	trusted, err := engine.trust.Contains(ctx, "p1", "203.0.113.9")
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if !trusted {
		t.Fatal("expected the confirming address to be trusted")
	}

	if _, err := engine.challenges.Get(ctx, "p1"); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("expected redeemed challenge to be cleared, got %v", err)
	}

	// The trusted address now logs in without a new challenge.
	again, err := engine.Login(ctx, "dr@example.com", "correct-horse", "human")
	if err != nil {
		t.Fatalf("post-confirmation login failed: %v", err)
	}
	if again.Status != LoginAuthenticated {
		t.Fatalf("expected direct session after confirmation, got %q", again.Status)
	}
	if len(mail.messages()) != 1 {
		t.Fatal("no further challenge mail expected after confirmation")
	}
}

func TestConfirmStepUpWrongCodeKeepsChallenge(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	mail := &captureMailer{}
	dir := seedProfessional(t)
	engine := newTestEngine(t, rdb, dir, mail)
	ctx := WithClientIP(context.Background(), "203.0.113.9")

	if _, err := engine.Login(ctx, "dr@example.com", "correct-horse", "human"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := engine.ConfirmStepUp(ctx, "dr@example.com", "correct-horse", "000000", "human"); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid, got %v", err)
	}

	// The pending code survives a failed redemption until its TTL lapses.
	if _, err := engine.challenges.Get(ctx, "p1"); err != nil {
		t.Fatalf("expected pending challenge to remain, got %v", err)
	}

	trusted, err := engine.trust.Contains(ctx, "p1", "203.0.113.9")
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if trusted {
		t.Fatal("a failed redemption must not mark the address trusted")
	}
}

func TestConfirmStepUpWithoutChallenge(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	dir := seedProfessional(t)
	engine := newTestEngine(t, rdb, dir, nil)
	ctx := context.Background()

	if _, err := engine.ConfirmStepUp(ctx, "dr@example.com", "correct-horse", "123456", "human"); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid, got %v", err)
	}
}

func TestConfirmStepUpExpiredChallenge(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	dir := seedProfessional(t)
	engine := newTestEngine(t, rdb, dir, &captureMailer{})
	ctx := context.Background()

	if _, err := engine.Login(ctx, "dr@example.com", "correct-horse", "human"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	record, err := engine.challenges.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("reading pending challenge failed: %v", err)
	}

	mr.FastForward(engine.config.StepUp.ChallengeTTL + 1)

	if _, err := engine.ConfirmStepUp(ctx, "dr@example.com", "correct-horse", record.Code, "human"); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid after expiry, got %v", err)
	}
}

func TestConfirmStepUpRequiresValidCredentials(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	dir := seedProfessional(t)
	engine := newTestEngine(t, rdb, dir, &captureMailer{})
	ctx := context.Background()

	if _, err := engine.Login(ctx, "dr@example.com", "correct-horse", "human"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	record, err := engine.challenges.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("reading pending challenge failed: %v", err)
	}

	// A stolen code without the password is worthless.
	if _, err := engine.ConfirmStepUp(ctx, "dr@example.com", "wrong-password", record.Code, "human"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
