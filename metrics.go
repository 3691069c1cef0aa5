package jobAuth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterDuplicate
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginLocked
	MetricLoginRateLimited
	MetricLoginResetRequired
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshCSRFMismatch
	MetricLogout
	MetricSessionCreated
	MetricSessionsRevoked
	MetricEmailVerificationRequest
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricPasswordResetSameRejected
	MetricAccountLocked
	MetricAccountUnlocked
	MetricForcedPasswordReset
	MetricSuspiciousActivity
	MetricOAuthLogin
	MetricEmailSendFailure
	MetricRateLimitHit
	// MetricRefreshLatency is the only histogram.
	MetricRefreshLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricRegisterSuccess:           "register_success",
	MetricRegisterDuplicate:         "register_duplicate",
	MetricLoginSuccess:              "login_success",
	MetricLoginFailure:              "login_failure",
	MetricLoginLocked:               "login_locked",
	MetricLoginRateLimited:          "login_rate_limited",
	MetricLoginResetRequired:        "login_reset_required",
	MetricRefreshSuccess:            "refresh_success",
	MetricRefreshFailure:            "refresh_failure",
	MetricRefreshCSRFMismatch:       "refresh_csrf_mismatch",
	MetricLogout:                    "logout",
	MetricSessionCreated:            "session_created",
	MetricSessionsRevoked:           "sessions_revoked",
	MetricEmailVerificationRequest:  "email_verification_request",
	MetricEmailVerificationSuccess:  "email_verification_success",
	MetricEmailVerificationFailure:  "email_verification_failure",
	MetricPasswordResetRequest:      "password_reset_request",
	MetricPasswordResetSuccess:      "password_reset_success",
	MetricPasswordResetFailure:      "password_reset_failure",
	MetricPasswordResetSameRejected: "password_reset_same_rejected",
	MetricAccountLocked:             "account_locked",
	MetricAccountUnlocked:           "account_unlocked",
	MetricForcedPasswordReset:       "forced_password_reset",
	MetricSuspiciousActivity:        "suspicious_activity",
	MetricOAuthLogin:                "oauth_login",
	MetricEmailSendFailure:          "email_send_failure",
	MetricRateLimitHit:              "rate_limit_hit",
	MetricRefreshLatency:            "refresh_latency",
}

// String returns the snake_case name used in statistics and exporters.
func (id MetricID) String() string {
	if id < metricIDCount {
		return metricNames[id]
	}
	return "unknown"
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters indexed by MetricID.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg. A disabled Metrics ignores writes.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add adds n to id.
func (m *Metrics) Add(id MetricID, n int) {
	if m == nil || !m.enabled || id >= metricIDCount || n <= 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, uint64(n))
}

// Observe records d in the histogram of id. Only MetricRefreshLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricRefreshLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Histograms are included only when latency
// tracking is on.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricRefreshLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRefreshLatency].buckets[i])
		}
		s.Histograms[MetricRefreshLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
