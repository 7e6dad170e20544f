package stepauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func extractResetGrant(t *testing.T, html string) (userID, grant string) {
	t.Helper()

	const marker = "https://app.example.com/forgot/"
	start := strings.Index(html, marker)
	if start < 0 {
		t.Fatalf("reset mail does not carry a reset link: %q", html)
	}

	rest := html[start+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		t.Fatalf("unterminated reset link in %q", html)
	}

	parts := strings.SplitN(rest[:end], "/", 2)
	if len(parts) != 2 {
		t.Fatalf("malformed reset link path %q", rest[:end])
	}
	return parts[0], parts[1]
}

func TestForgotAndResetRoundTrip(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	mail := &captureMailer{}
	dir := seedDirectory(t, UserRecord{
		UserID:       "u1",
		Email:        "alice@example.com",
		PasswordHash: hashPassword(t, "old-password"),
		Role:         RolePatient,
	})
	engine := newTestEngine(t, rdb, dir, mail)
	ctx := context.Background()

	if err := engine.Forgot(ctx, "alice@example.com", "human"); err != nil {
		t.Fatalf("Forgot failed: %v", err)
	}

	messages := mail.messages()
	if len(messages) != 1 {
		t.Fatalf("expected one reset mail, got %d", len(messages))
	}
	userID, grant := extractResetGrant(t, messages[0].HTML)
	if userID != "u1" {
		t.Fatalf("reset link names user %q, want u1", userID)
	}

	if err := engine.ResetPassword(ctx, userID, grant, "new-password", "human"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	ok, err := newTestHasher(t).Verify("new-password", dir.users["u1"].PasswordHash)
	if err != nil || !ok {
		t.Fatalf("expected new password to verify, ok=%v err=%v", ok, err)
	}

	// The grant was keyed to the old hash; replay must fail.
	if err := engine.ResetPassword(ctx, userID, grant, "newer-password", "human"); !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("expected replayed grant to fail with ErrInvalidLink, got %v", err)
	}
}

func TestForgotUnknownEmailStaysSilent(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	mail := &captureMailer{}
	dir := seedDirectory(t)
	engine := newTestEngine(t, rdb, dir, mail)

	if err := engine.Forgot(context.Background(), "nobody@example.com", "human"); err != nil {
		t.Fatalf("expected success for unknown email, got %v", err)
	}
	if len(mail.messages()) != 0 {
		t.Fatal("no mail may be sent for an unknown address")
	}
}

func TestResetPasswordTooShort(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	dir := seedDirectory(t, UserRecord{
		UserID:       "u1",
		Email:        "alice@example.com",
		PasswordHash: hashPassword(t, "old-password"),
		Role:         RolePatient,
	})
	engine := newTestEngine(t, rdb, dir, nil)

	err := engine.ResetPassword(context.Background(), "u1", "whatever", "short", "human")
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
}

func TestResetGrantDiesWithPasswordChange(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	mail := &captureMailer{}
	dir := seedDirectory(t, UserRecord{
		UserID:       "u1",
		Email:        "alice@example.com",
		PasswordHash: hashPassword(t, "old-password"),
		Role:         RolePatient,
	})
	engine := newTestEngine(t, rdb, dir, mail)
	ctx := context.Background()

	if err := engine.Forgot(ctx, "alice@example.com", "human"); err != nil {
		t.Fatalf("Forgot failed: %v", err)
	}
	userID, grant := extractResetGrant(t, mail.messages()[0].HTML)

	// Password changes out of band before the link is used.
	if err := dir.UpdatePasswordHash(ctx, "u1", hashPassword(t, "changed-meanwhile")); err != nil {
		t.Fatalf("UpdatePasswordHash failed: %v", err)
	}

	if err := engine.ResetPassword(ctx, userID, grant, "new-password", "human"); !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("expected stale grant to fail with ErrInvalidLink, got %v", err)
	}
}

func TestResetPasswordUnknownUser(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	dir := seedDirectory(t)
	engine := newTestEngine(t, rdb, dir, nil)

	err := engine.ResetPassword(context.Background(), "ghost", "grant", "new-password", "human")
	if !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("expected ErrInvalidLink, got %v", err)
	}
}

func TestResetPasswordRevokesStepUpState(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	mail := &captureMailer{}
	dir := seedDirectory(t, UserRecord{
		UserID:       "p1",
		Email:        "dr@example.com",
		PasswordHash: hashPassword(t, "old-password"),
		Role:         RoleProfessional,
	})
	engine := newTestEngine(t, rdb, dir, mail)
	ctx := WithClientIP(context.Background(), "203.0.113.9")

	if err := engine.trust.Add(ctx, "p1", "203.0.113.9", time.Hour); err != nil {
		t.Fatalf("seeding trust failed: %v", err)
	}

	if err := engine.Forgot(ctx, "dr@example.com", "human"); err != nil {
		t.Fatalf("Forgot failed: %v", err)
	}
	userID, grant := extractResetGrant(t, mail.messages()[0].HTML)

	if err := engine.ResetPassword(ctx, userID, grant, "new-password", "human"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	trusted, err := engine.trust.Contains(ctx, "p1", "203.0.113.9")
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if trusted {
		t.Fatal("trusted addresses must be withdrawn after a password reset")
	}
}

func TestForgotMailFailureStaysSilent(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	mail := &captureMailer{err: errors.New("smtp down")}
	dir := seedDirectory(t, UserRecord{
		UserID:       "u1",
		Email:        "alice@example.com",
		PasswordHash: hashPassword(t, "old-password"),
		Role:         RolePatient,
	})
	engine := newTestEngine(t, rdb, dir, mail)

	if err := engine.Forgot(context.Background(), "alice@example.com", "human"); err != nil {
		t.Fatalf("expected success despite mail failure, got %v", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricMailDispatchFailed]; got != 1 {
		t.Fatalf("expected mail failure counter 1, got %d", got)
	}
}
