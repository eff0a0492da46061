package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]*HealthCheck)}
}

func TestHealthCheckerAggregation(t *testing.T) {
	hc := newTestChecker()
	hc.RegisterCheck(PingCheck())

	resp := hc.Check(context.Background())
	if resp.Status != HealthStatusHealthy {
		t.Fatalf("Check() status = %s, want %s", resp.Status, HealthStatusHealthy)
	}

	// A failing critical storage check takes the whole service down.
	hc.RegisterCheck(StorageCheck(func(ctx context.Context) error {
		return errors.New("connection refused")
	}))
	resp = hc.Check(context.Background())
	if resp.Status != HealthStatusUnhealthy {
		t.Fatalf("Check() status = %s, want %s", resp.Status, HealthStatusUnhealthy)
	}
	if got := resp.Checks["channel_storage"].Status; got != HealthStatusUnhealthy {
		t.Errorf("channel_storage status = %s, want %s", got, HealthStatusUnhealthy)
	}
}

func TestHealthCheckerNonCriticalDegrades(t *testing.T) {
	hc := newTestChecker()
	hc.RegisterCheck(AgentRegistryCheck(func() int { return 0 }, 1))

	resp := hc.Check(context.Background())
	if resp.Status != HealthStatusDegraded {
		t.Fatalf("Check() status = %s, want %s", resp.Status, HealthStatusDegraded)
	}
}

func TestAgentRegistryCheck(t *testing.T) {
	check := AgentRegistryCheck(func() int { return 1 }, 2)
	if err := check.CheckFunc(context.Background()); err == nil {
		t.Fatal("CheckFunc() passed with fewer agents than required")
	}

	check = AgentRegistryCheck(func() int { return 3 }, 2)
	if err := check.CheckFunc(context.Background()); err != nil {
		t.Fatalf("CheckFunc() error = %v", err)
	}
}

func TestHealthCheckTimeout(t *testing.T) {
	hc := newTestChecker()
	hc.RegisterCheck(&HealthCheck{
		Name: "slow",
		CheckFunc: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Timeout: 20 * time.Millisecond,
	})

	resp := hc.Check(context.Background())
	if got := resp.Checks["slow"].Status; got != HealthStatusDegraded {
		t.Errorf("slow check status = %s, want %s", got, HealthStatusDegraded)
	}
}
