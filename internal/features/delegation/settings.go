package delegation

import (
	"go-approval/internal/config"
)

// Settings is the delegation policy of one registry instance.
type Settings struct {
	AllowMultipleDelegations bool
	DefaultApprovalType      ApprovalType
}

func NewSettings(cfg *config.Config) Settings {
	s := Settings{
		AllowMultipleDelegations: cfg.AllowMultipleDelegations,
		DefaultApprovalType:      ApprovalType(cfg.DelegationApproval),
	}
	if !s.DefaultApprovalType.Valid() {
		s.DefaultApprovalType = ApprovalDirect
	}
	return s
}
