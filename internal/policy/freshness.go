// Package policy holds the verification policies that sit above pure
// cryptography: descriptor freshness, rollback protection, and the optional
// Lua policy hook.
package policy

import (
	"fmt"
	"time"

	"github.com/updraft-sys/updraft/internal/config"
)

// FreshnessGuard rejects descriptors whose timestamp is too old or too far
// in the future. Replayed descriptors fail the age bound; moderate clock
// skew only warns.
type FreshnessGuard struct {
	policy config.IntegrityPolicy
}

// NewFreshnessGuard creates a guard from the integrity policy.
func NewFreshnessGuard(policy config.IntegrityPolicy) *FreshnessGuard {
	return &FreshnessGuard{policy: policy}
}

// Check evaluates a descriptor timestamp against now. A drift beyond the
// configured maximum age is a hard failure in either direction; a drift
// beyond the skew tolerance but within the age bound is a warning.
func (g *FreshnessGuard) Check(ts, now time.Time) (warning string, err error) {
	if !g.policy.RequireTimestampValidation {
		return "", nil
	}
	if ts.IsZero() {
		return "", fmt.Errorf("descriptor has no timestamp")
	}

	drift := now.Sub(ts)
	abs := drift
	if abs < 0 {
		abs = -abs
	}

	if abs > g.policy.MaxTimestampAge {
		if drift > 0 {
			return "", fmt.Errorf("descriptor is stale: issued %s ago, limit %s", drift.Round(time.Second), g.policy.MaxTimestampAge)
		}
		return "", fmt.Errorf("descriptor timestamp is %s in the future, limit %s", abs.Round(time.Second), g.policy.MaxTimestampAge)
	}

	if abs > g.policy.MaxTimestampSkew {
		return fmt.Sprintf("descriptor timestamp drifts %s from local clock", abs.Round(time.Second)), nil
	}

	return "", nil
}
