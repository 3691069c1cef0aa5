package internaldefs

import (
	jobAuth "github.com/MrEthical07/jobAuth"
)

// Prefix is prepended to every exported series.
const Prefix = "jobauth_"

// CounterDef maps one engine counter to an exported series.
type CounterDef struct {
	ID   jobAuth.MetricID
	Name string
	Help string
}

// HistogramDef maps one engine histogram to an exported series.
type HistogramDef struct {
	ID   jobAuth.MetricID
	Name string
	Help string
}

func counter(id jobAuth.MetricID, help string) CounterDef {
	return CounterDef{ID: id, Name: Prefix + id.String() + "_total", Help: help}
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	counter(jobAuth.MetricRegisterSuccess, "Accounts registered."),
	counter(jobAuth.MetricRegisterDuplicate, "Registrations rejected because the email is taken."),
	counter(jobAuth.MetricLoginSuccess, "Successful logins."),
	counter(jobAuth.MetricLoginFailure, "Logins rejected for bad credentials."),
	counter(jobAuth.MetricLoginLocked, "Logins rejected because the account is locked."),
	counter(jobAuth.MetricLoginRateLimited, "Logins rejected by the IP or email throttle."),
	counter(jobAuth.MetricLoginResetRequired, "Logins rejected pending a forced password reset."),
	counter(jobAuth.MetricRefreshSuccess, "Refresh token rotations."),
	counter(jobAuth.MetricRefreshFailure, "Refresh attempts with no usable session."),
	counter(jobAuth.MetricRefreshCSRFMismatch, "Refresh attempts with a wrong CSRF token."),
	counter(jobAuth.MetricLogout, "Sessions ended by logout."),
	counter(jobAuth.MetricSessionCreated, "Sessions created."),
	counter(jobAuth.MetricSessionsRevoked, "Sessions revoked by password reset or admin action."),
	counter(jobAuth.MetricEmailVerificationRequest, "Verification tokens issued."),
	counter(jobAuth.MetricEmailVerificationSuccess, "Email addresses verified."),
	counter(jobAuth.MetricEmailVerificationFailure, "Verification attempts with an unusable token."),
	counter(jobAuth.MetricPasswordResetRequest, "Password reset tokens issued."),
	counter(jobAuth.MetricPasswordResetSuccess, "Passwords reset."),
	counter(jobAuth.MetricPasswordResetFailure, "Reset attempts with an unusable token."),
	counter(jobAuth.MetricPasswordResetSameRejected, "Resets rejected because the password did not change."),
	counter(jobAuth.MetricAccountLocked, "Accounts locked by failed logins."),
	counter(jobAuth.MetricAccountUnlocked, "Accounts unlocked by an administrator."),
	counter(jobAuth.MetricForcedPasswordReset, "Password resets forced by an administrator."),
	counter(jobAuth.MetricSuspiciousActivity, "Failed logins flagged as multi-IP suspicious."),
	counter(jobAuth.MetricOAuthLogin, "Logins through an OAuth provider."),
	counter(jobAuth.MetricEmailSendFailure, "Outbound emails that failed to send."),
	counter(jobAuth.MetricRateLimitHit, "Requests denied by any throttle."),
}

// HistogramDefs lists the exported histograms.
var HistogramDefs = []HistogramDef{
	{ID: jobAuth.MetricRefreshLatency, Name: Prefix + "refresh_latency_seconds", Help: "Refresh latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's eight buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form usable inside instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
