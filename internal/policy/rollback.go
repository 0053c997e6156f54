package policy

import (
	"fmt"

	"github.com/updraft-sys/updraft/internal/config"
	"github.com/updraft-sys/updraft/internal/version"
)

// RollbackGuard enforces monotonic version installs. Downgrades are a hard
// failure unless the policy explicitly allows them, in which case they
// still warn.
type RollbackGuard struct {
	policy config.RollbackPolicy
}

// NewRollbackGuard creates a guard from the rollback policy.
func NewRollbackGuard(policy config.RollbackPolicy) *RollbackGuard {
	return &RollbackGuard{policy: policy}
}

// Check compares the candidate version against the currently installed one.
// An empty current version means nothing is installed yet and anything is
// acceptable.
func (g *RollbackGuard) Check(current, candidate string) (warning string, err error) {
	if !g.policy.Enabled || current == "" {
		return "", nil
	}

	switch cmp := version.Compare(candidate, current); {
	case cmp < 0:
		if !g.policy.AllowDowngrade {
			return "", fmt.Errorf("downgrade from %s to %s blocked by rollback protection", current, candidate)
		}
		return fmt.Sprintf("downgrading from %s to %s", current, candidate), nil
	case cmp == 0:
		return fmt.Sprintf("version %s is already installed", current), nil
	default:
		return "", nil
	}
}
