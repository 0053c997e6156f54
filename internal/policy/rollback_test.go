package policy

import (
	"testing"

	"github.com/updraft-sys/updraft/internal/config"
)

func TestRollbackGuard(t *testing.T) {
	tests := []struct {
		name      string
		policy    config.RollbackPolicy
		current   string
		candidate string
		wantErr   bool
		wantWarn  bool
	}{
		{
			name:      "upgrade_allowed",
			policy:    config.RollbackPolicy{Enabled: true},
			current:   "1.2.3",
			candidate: "1.3.0",
		},
		{
			name:      "downgrade_blocked",
			policy:    config.RollbackPolicy{Enabled: true},
			current:   "2.0.0",
			candidate: "1.9.9",
			wantErr:   true,
		},
		{
			name:      "downgrade_warns_when_permitted",
			policy:    config.RollbackPolicy{Enabled: true, AllowDowngrade: true},
			current:   "2.0.0",
			candidate: "1.9.9",
			wantWarn:  true,
		},
		{
			name:      "reinstall_warns",
			policy:    config.RollbackPolicy{Enabled: true},
			current:   "1.2.0",
			candidate: "1.2",
			wantWarn:  true,
		},
		{
			name:      "first_install",
			policy:    config.RollbackPolicy{Enabled: true},
			current:   "",
			candidate: "1.0.0",
		},
		{
			name:      "guard_disabled",
			policy:    config.RollbackPolicy{Enabled: false},
			current:   "2.0.0",
			candidate: "1.0.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := NewRollbackGuard(tt.policy)
			warning, err := guard.Check(tt.current, tt.candidate)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if (warning != "") != tt.wantWarn {
				t.Errorf("warning = %q, wantWarn %v", warning, tt.wantWarn)
			}
		})
	}
}
