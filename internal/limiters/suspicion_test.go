package limiters

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestTracker(t *testing.T, clock *fakeClock) *SuspicionTracker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewSuspicionTracker(rdb, SuspicionConfig{
		Enabled:        true,
		Window:         10 * time.Minute,
		MaxDistinctIPs: 3,
		Now:            clock.Now,
	})
}

func TestSuspicionThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tr := newTestTracker(t, clock)
	ctx := context.Background()

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.1"} {
		if err := tr.Observe(ctx, "u1", ip); err != nil {
			t.Fatalf("Observe: %v", err)
		}
	}
	rep, err := tr.Check(ctx, "u1", nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if rep.Suspicious || rep.DistinctIPs != 3 {
		t.Fatalf("three distinct IPs should not be suspicious: %+v", rep)
	}

	rep, err = tr.Check(ctx, "u1", []string{"192.168.1.9"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !rep.Suspicious || rep.DistinctIPs != 4 {
		t.Fatalf("expected suspicious with 4 IPs: %+v", rep)
	}
}

func TestSuspicionWindowExpires(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tr := newTestTracker(t, clock)
	ctx := context.Background()

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		_ = tr.Observe(ctx, "u1", ip)
	}
	clock.Advance(11 * time.Minute)
	_ = tr.Observe(ctx, "u1", "10.0.0.4")

	rep, err := tr.Check(ctx, "u1", nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if rep.DistinctIPs != 1 || rep.IPs[0] != "10.0.0.4" {
		t.Fatalf("expected only the fresh IP, got %+v", rep)
	}
}

func TestSuspicionWithoutRedisUsesRecentIPs(t *testing.T) {
	tr := NewSuspicionTracker(nil, SuspicionConfig{Enabled: true, Window: time.Minute, MaxDistinctIPs: 1})
	rep, err := tr.Check(context.Background(), "u1", []string{"a", "b", "a"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !rep.Suspicious || rep.DistinctIPs != 2 {
		t.Fatalf("unexpected report %+v", rep)
	}
}
