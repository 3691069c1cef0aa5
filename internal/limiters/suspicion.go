package limiters

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const suspicionKeyPrefix = "ja:sip:"

// SuspicionConfig configures multi-IP detection. An account is suspicious when more
// than MaxDistinctIPs addresses attempted it within Window.
type SuspicionConfig struct {
	Enabled        bool
	Window         time.Duration
	MaxDistinctIPs int
	Now            func() time.Time
}

// SuspicionReport is the result of one check.
type SuspicionReport struct {
	UserID      string        `json:"userId"`
	IPs         []string      `json:"ips"`
	DistinctIPs int           `json:"distinctIps"`
	Threshold   int           `json:"threshold"`
	Window      time.Duration `json:"window"`
	Suspicious  bool          `json:"suspicious"`
}

// SuspicionTracker records recent client IPs per account in a Redis sorted set scored
// by observation time.
type SuspicionTracker struct {
	redis redis.UniversalClient
	cfg   SuspicionConfig
}

// NewSuspicionTracker returns a tracker. A nil client limits checks to the IPs passed
// in by the caller.
func NewSuspicionTracker(redisClient redis.UniversalClient, cfg SuspicionConfig) *SuspicionTracker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SuspicionTracker{redis: redisClient, cfg: cfg}
}

func (t *SuspicionTracker) enabled() bool {
	return t != nil && t.cfg.Enabled && t.cfg.Window > 0 && t.cfg.MaxDistinctIPs > 0
}

// Observe records ip as having attempted userID now and trims entries older than the window.
func (t *SuspicionTracker) Observe(ctx context.Context, userID, ip string) error {
	if !t.enabled() || t.redis == nil || userID == "" || ip == "" {
		return nil
	}
	now := t.cfg.Now()
	key := suspicionKeyPrefix + userID
	floor := now.Add(-t.cfg.Window).UnixMilli()

	_, err := t.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: ip})
		p.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(floor, 10))
		p.Expire(ctx, key, t.cfg.Window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("suspicion: observe: %w", err)
	}
	return nil
}

// Check merges the tracked IPs for userID with recentIPs and reports whether the
// distinct count exceeds the threshold.
func (t *SuspicionTracker) Check(ctx context.Context, userID string, recentIPs []string) (SuspicionReport, error) {
	rep := SuspicionReport{UserID: userID}
	if !t.enabled() {
		return rep, nil
	}
	rep.Threshold = t.cfg.MaxDistinctIPs
	rep.Window = t.cfg.Window

	seen := make(map[string]struct{}, len(recentIPs))
	for _, ip := range recentIPs {
		if ip != "" {
			seen[ip] = struct{}{}
		}
	}

	if t.redis != nil && userID != "" {
		floor := t.cfg.Now().Add(-t.cfg.Window).UnixMilli()
		tracked, err := t.redis.ZRangeByScore(ctx, suspicionKeyPrefix+userID, &redis.ZRangeBy{
			Min: strconv.FormatInt(floor, 10),
			Max: "+inf",
		}).Result()
		if err != nil {
			return rep, fmt.Errorf("suspicion: check: %w", err)
		}
		for _, ip := range tracked {
			seen[ip] = struct{}{}
		}
	}

	rep.IPs = make([]string, 0, len(seen))
	for ip := range seen {
		rep.IPs = append(rep.IPs, ip)
	}
	sort.Strings(rep.IPs)
	rep.DistinctIPs = len(rep.IPs)
	rep.Suspicious = rep.DistinctIPs > rep.Threshold
	return rep, nil
}

// Forget drops the tracked IPs of userID.
func (t *SuspicionTracker) Forget(ctx context.Context, userID string) error {
	if t == nil || t.redis == nil || userID == "" {
		return nil
	}
	if err := t.redis.Del(ctx, suspicionKeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("suspicion: forget: %w", err)
	}
	return nil
}
