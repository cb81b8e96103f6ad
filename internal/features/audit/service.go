package audit

import (
	"context"

	"go-approval/internal/clock"
	common_models "go-approval/internal/common/models"
	"go-approval/internal/idgen"
	"go-approval/pkg/utils"
)

type AuditService interface {
	// LogChange records a mutation made by the caller found in ctx, or by
	// the system when ctx carries no claims.
	LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error
	// LogAction records a mutation made by an explicit actor.
	LogAction(ctx context.Context, actorID string, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error
	ListLogs(ctx context.Context, filter LogFilter, page, limit int64) ([]common_models.AuditLog, error)
	ExportLogs(ctx context.Context, filter LogFilter) ([]byte, string, error)
}

type AuditServiceImpl struct {
	Repo  AuditRepository
	Clock clock.Clock
}

func NewAuditService(repo AuditRepository, clk clock.Clock) AuditService {
	return &AuditServiceImpl{
		Repo:  repo,
		Clock: clk,
	}
}

func (s *AuditServiceImpl) LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	actorID := common_models.SystemActor
	if claims, ok := utils.ClaimsFromContext(ctx); ok {
		actorID = claims.UserID
	}
	return s.LogAction(ctx, actorID, action, module, recordID, changes)
}

func (s *AuditServiceImpl) LogAction(ctx context.Context, actorID string, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	if actorID == "" {
		actorID = common_models.SystemActor
	}
	log := common_models.AuditLog{
		ID:        idgen.New(),
		Action:    action,
		Module:    module,
		RecordID:  recordID,
		ActorID:   actorID,
		Changes:   changes,
		Timestamp: s.Clock.Now(),
	}
	return s.Repo.Create(ctx, log)
}

func (s *AuditServiceImpl) ListLogs(ctx context.Context, filter LogFilter, page, limit int64) ([]common_models.AuditLog, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit
	return s.Repo.List(ctx, filter, limit, offset)
}

func (s *AuditServiceImpl) ExportLogs(ctx context.Context, filter LogFilter) ([]byte, string, error) {
	logs, err := s.Repo.List(ctx, filter, 0, 0)
	if err != nil {
		return nil, "", err
	}
	data, err := exportToExcel(logs)
	if err != nil {
		return nil, "", err
	}
	name := "audit-logs"
	if filter.RecordID != "" {
		name += "-" + filter.RecordID
	}
	return data, name + ".xlsx", nil
}
