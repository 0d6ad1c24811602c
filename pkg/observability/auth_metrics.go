package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuthMetrics holds the security counters of the auth service.
// A nil *AuthMetrics is valid and records nothing.
type AuthMetrics struct {
	loginFailures metric.Int64Counter
	lockouts      metric.Int64Counter
	refreshReuse  metric.Int64Counter
	otpIssued     metric.Int64Counter
	emailFailures metric.Int64Counter
}

// NewAuthMetrics registers the auth counters on the given meter
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	var (
		m   AuthMetrics
		err error
	)

	if m.loginFailures, err = meter.Int64Counter("auth_login_failures",
		metric.WithDescription("Failed password checks")); err != nil {
		return nil, fmt.Errorf("failed to create login failures counter: %w", err)
	}
	if m.lockouts, err = meter.Int64Counter("auth_lockouts",
		metric.WithDescription("Accounts locked after repeated failures")); err != nil {
		return nil, fmt.Errorf("failed to create lockouts counter: %w", err)
	}
	if m.refreshReuse, err = meter.Int64Counter("auth_refresh_reuse",
		metric.WithDescription("Refresh attempts with revoked or unknown tokens")); err != nil {
		return nil, fmt.Errorf("failed to create refresh reuse counter: %w", err)
	}
	if m.otpIssued, err = meter.Int64Counter("auth_otp_issued",
		metric.WithDescription("One-time codes issued")); err != nil {
		return nil, fmt.Errorf("failed to create otp issued counter: %w", err)
	}
	if m.emailFailures, err = meter.Int64Counter("auth_email_failures",
		metric.WithDescription("Notification emails that could not be delivered")); err != nil {
		return nil, fmt.Errorf("failed to create email failures counter: %w", err)
	}

	return &m, nil
}

func (m *AuthMetrics) LoginFailed(ctx context.Context) {
	if m != nil {
		m.loginFailures.Add(ctx, 1)
	}
}

func (m *AuthMetrics) AccountLocked(ctx context.Context) {
	if m != nil {
		m.lockouts.Add(ctx, 1)
	}
}

func (m *AuthMetrics) RefreshReused(ctx context.Context) {
	if m != nil {
		m.refreshReuse.Add(ctx, 1)
	}
}

func (m *AuthMetrics) OTPIssued(ctx context.Context) {
	if m != nil {
		m.otpIssued.Add(ctx, 1)
	}
}

// EmailFailed records an undelivered email of the given kind (otp, password_reset)
func (m *AuthMetrics) EmailFailed(ctx context.Context, kind string) {
	if m != nil {
		m.emailFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}
