package auth

import (
	"context"
	"errors"
	"fmt"

	common_models "go-approval/internal/common/models"
	"go-approval/internal/config"
	"go-approval/internal/features/audit"
	"go-approval/internal/features/org"
	"go-approval/pkg/utils"
)

var ErrInactiveUser = errors.New("user is not active")

// AuthService issues bearer tokens for directory users. Password handling
// lives with the identity provider; tokens carry the directory roles.
type AuthService interface {
	IssueToken(ctx context.Context, userID, issuedBy string) (string, error)
}

type AuthServiceImpl struct {
	directory    org.Directory
	auditService audit.AuditService
}

func NewAuthService(cfg *config.Config, directory org.Directory, auditService audit.AuditService) AuthService {
	utils.SetSecret(cfg.JWTSecret)
	return &AuthServiceImpl{
		directory:    directory,
		auditService: auditService,
	}
}

func (s *AuthServiceImpl) IssueToken(ctx context.Context, userID, issuedBy string) (string, error) {
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if !user.IsActive() {
		return "", fmt.Errorf("%w: %s", ErrInactiveUser, userID)
	}

	token, err := utils.GenerateToken(user.ID, user.Roles)
	if err != nil {
		return "", err
	}
	_ = s.auditService.LogAction(ctx, issuedBy, common_models.AuditActionAuth, "auth", user.ID, map[string]common_models.Change{
		"token": {New: "issued"},
	})
	return token, nil
}
