package approval

import (
	"time"

	"go-approval/internal/config"
	"go-approval/internal/features/workflow"
)

// Settings is the engine policy threaded in at construction.
type Settings struct {
	// RequestDelegationTTL bounds delegations created by a delegate decision.
	RequestDelegationTTL time.Duration
	// DefaultEscalation applies when no rule of the workflow claims a step
	// timeout or a manual escalation.
	DefaultEscalation workflow.EscalationType
}

func NewSettings(cfg *config.Config) Settings {
	s := Settings{
		RequestDelegationTTL: cfg.RequestDelegationTTL,
		DefaultEscalation:    workflow.EscalateNextLevel,
	}
	if s.RequestDelegationTTL <= 0 {
		s.RequestDelegationTTL = 72 * time.Hour
	}
	return s
}
