package internaldefs

import (
	"github.com/MrEthical07/sessionauth"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   sessionauth.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   sessionauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: sessionauth.MetricLoginSuccess, Name: "sessionauth_login_success_total", Help: "Successful password logins."},
	{ID: sessionauth.MetricLoginFailure, Name: "sessionauth_login_failure_total", Help: "Failed password logins."},
	{ID: sessionauth.MetricLoginLocked, Name: "sessionauth_login_locked_total", Help: "Logins rejected or causing a lockout."},
	{ID: sessionauth.MetricRefreshSuccess, Name: "sessionauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: sessionauth.MetricRefreshFailure, Name: "sessionauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: sessionauth.MetricRefreshReuseDetected, Name: "sessionauth_refresh_reuse_detected_total", Help: "Revoked refresh tokens presented again."},
	{ID: sessionauth.MetricLogout, Name: "sessionauth_logout_total", Help: "Single-session logouts."},
	{ID: sessionauth.MetricLogoutAll, Name: "sessionauth_logout_all_total", Help: "Revoke-all operations."},
	{ID: sessionauth.MetricSignupSuccess, Name: "sessionauth_signup_success_total", Help: "Accounts created by signup."},
	{ID: sessionauth.MetricSignupDuplicate, Name: "sessionauth_signup_duplicate_total", Help: "Signups rejected as duplicate."},
	{ID: sessionauth.MetricPasswordResetRequest, Name: "sessionauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: sessionauth.MetricPasswordResetRateLimited, Name: "sessionauth_password_reset_rate_limited_total", Help: "Password reset requests over the limit."},
	{ID: sessionauth.MetricPasswordResetConfirmSuccess, Name: "sessionauth_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: sessionauth.MetricPasswordResetConfirmFailure, Name: "sessionauth_password_reset_confirm_failure_total", Help: "Rejected password resets."},
	{ID: sessionauth.MetricPasswordChangeSuccess, Name: "sessionauth_password_change_success_total", Help: "Completed password changes."},
	{ID: sessionauth.MetricPasswordChangeFailure, Name: "sessionauth_password_change_failure_total", Help: "Rejected password changes."},
	{ID: sessionauth.MetricEmailVerificationSuccess, Name: "sessionauth_email_verification_success_total", Help: "Successful email verifications."},
	{ID: sessionauth.MetricEmailVerificationFailure, Name: "sessionauth_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: sessionauth.MetricOAuthStart, Name: "sessionauth_oauth_start_total", Help: "OAuth authorization redirects issued."},
	{ID: sessionauth.MetricOAuthSuccess, Name: "sessionauth_oauth_success_total", Help: "Completed OAuth logins."},
	{ID: sessionauth.MetricOAuthFailure, Name: "sessionauth_oauth_failure_total", Help: "Failed OAuth callbacks."},
	{ID: sessionauth.MetricOAuthStateRejected, Name: "sessionauth_oauth_state_rejected_total", Help: "OAuth callbacks with missing, unknown or expired state."},
	{ID: sessionauth.MetricRateLimitHit, Name: "sessionauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

var HistogramDefs = []HistogramDef{
	{ID: sessionauth.MetricLoginLatency, Name: "sessionauth_login_latency_seconds", Help: "Login latency."},
	{ID: sessionauth.MetricRefreshLatency, Name: "sessionauth_refresh_latency_seconds", Help: "Refresh latency."},
	{ID: sessionauth.MetricValidateLatency, Name: "sessionauth_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramBounds are the upper bounds of the engine buckets in seconds.
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

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
