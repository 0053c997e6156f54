package policy

import (
	"testing"
	"time"

	"github.com/updraft-sys/updraft/internal/config"
)

func TestFreshnessGuard(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	policy := config.IntegrityPolicy{
		RequireTimestampValidation: true,
		MaxTimestampSkew:           5 * time.Minute,
		MaxTimestampAge:            24 * time.Hour,
	}
	guard := NewFreshnessGuard(policy)

	tests := []struct {
		name     string
		ts       time.Time
		wantErr  bool
		wantWarn bool
	}{
		{name: "fresh", ts: now.Add(-time.Minute)},
		{name: "at_skew_boundary", ts: now.Add(-5 * time.Minute)},
		{name: "past_skew_warns", ts: now.Add(-time.Hour), wantWarn: true},
		{name: "future_within_skew", ts: now.Add(2 * time.Minute)},
		{name: "future_past_skew_warns", ts: now.Add(time.Hour), wantWarn: true},
		{name: "stale_fails", ts: now.Add(-25 * time.Hour), wantErr: true},
		{name: "far_future_fails", ts: now.Add(25 * time.Hour), wantErr: true},
		{name: "zero_timestamp_fails", ts: time.Time{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warning, err := guard.Check(tt.ts, now)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if (warning != "") != tt.wantWarn {
				t.Errorf("warning = %q, wantWarn %v", warning, tt.wantWarn)
			}
		})
	}
}

func TestFreshnessGuardDisabled(t *testing.T) {
	guard := NewFreshnessGuard(config.IntegrityPolicy{RequireTimestampValidation: false})

	warning, err := guard.Check(time.Time{}, time.Now())
	if err != nil || warning != "" {
		t.Errorf("disabled guard flagged timestamp: warning=%q err=%v", warning, err)
	}
}
