package stepauth

import (
	"context"
	"sync"
	"testing"
)

func TestMetricsDisabledStaysZero(t *testing.T) {
	metrics := newMetrics(MetricsConfig{Enabled: false})

	metrics.Inc(MetricLoginSuccess)
	metrics.Inc(MetricLoginSuccess)

	snap := metrics.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 0 {
		t.Fatalf("disabled metrics must not count, got %d", snap.Counters[MetricLoginSuccess])
	}
}

func TestMetricsConcurrentIncrements(t *testing.T) {
	metrics := newMetrics(MetricsConfig{Enabled: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				metrics.Inc(MetricLoginFailure)
			}
		}()
	}
	wg.Wait()

	if got := metrics.Snapshot().Counters[MetricLoginFailure]; got != 8000 {
		t.Fatalf("expected 8000 increments, got %d", got)
	}
}

func TestMetricsIgnoreOutOfRangeIDs(t *testing.T) {
	metrics := newMetrics(MetricsConfig{Enabled: true})

	metrics.Inc(MetricID(10000))

	for id, count := range metrics.Snapshot().Counters {
		if count != 0 {
			t.Fatalf("unexpected counter %d=%d", id, count)
		}
	}
}

func TestEngineCountsDecisions(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	dir := seedDirectory(t, UserRecord{
		UserID:       "u1",
		Email:        "alice@example.com",
		PasswordHash: hashPassword(t, "correct-horse"),
		Role:         RolePatient,
	})
	engine := newTestEngine(t, rdb, dir, nil)
	ctx := context.Background()

	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse", "human"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	_, _ = engine.Login(ctx, "alice@example.com", "wrong", "human")
	_, _ = engine.Login(ctx, "alice@example.com", "correct-horse", "")

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected one success, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("expected one failure, got %d", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricCaptchaRejected] != 1 {
		t.Fatalf("expected one captcha rejection, got %d", snap.Counters[MetricCaptchaRejected])
	}
	if snap.Counters[MetricSessionIssued] != 1 {
		t.Fatalf("expected one issued session, got %d", snap.Counters[MetricSessionIssued])
	}
}
