package workflow

import (
	"context"
	"errors"
	"fmt"

	"go-approval/internal/clock"
	common_models "go-approval/internal/common/models"
	"go-approval/internal/features/audit"
	"go-approval/internal/idgen"
	"go-approval/pkg/utils"

	"go.uber.org/zap"
)

var ErrNoActiveWorkflow = errors.New("no active workflow for request type")

const auditModule = "workflows"

type WorkflowService interface {
	CreateWorkflow(ctx context.Context, workflow *ApprovalWorkflow) error
	// UpdateWorkflow stores the definition as the next version of id.
	UpdateWorkflow(ctx context.Context, id string, workflow *ApprovalWorkflow) error
	GetWorkflow(ctx context.Context, id string) (*ApprovalWorkflow, error)
	GetWorkflowVersion(ctx context.Context, id string, version int) (*ApprovalWorkflow, error)
	ListWorkflows(ctx context.Context) ([]ApprovalWorkflow, error)
	SetActive(ctx context.Context, id string, active bool) error
	// GetActiveForType picks the active workflow with the lowest priority
	// value for requestType.
	GetActiveForType(ctx context.Context, requestType RequestType) (*ApprovalWorkflow, error)
}

type WorkflowServiceImpl struct {
	repo         WorkflowRepository
	auditService audit.AuditService
	clock        clock.Clock
	logger       *zap.Logger
}

func NewWorkflowService(repo WorkflowRepository, auditService audit.AuditService, clk clock.Clock, logger *zap.Logger) WorkflowService {
	return &WorkflowServiceImpl{
		repo:         repo,
		auditService: auditService,
		clock:        clk,
		logger:       logger.Named("workflow"),
	}
}

func (s *WorkflowServiceImpl) CreateWorkflow(ctx context.Context, workflow *ApprovalWorkflow) error {
	if workflow.ID == "" {
		workflow.ID = idgen.New()
	} else if _, err := s.repo.FindLatest(ctx, workflow.ID); err == nil {
		return fmt.Errorf("%w: workflow %s already exists", ErrInvalidWorkflow, workflow.ID)
	}
	if err := workflow.Validate(); err != nil {
		return err
	}
	s.assignStepIDs(workflow)

	now := s.clock.Now()
	workflow.Version = 1
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	if claims, ok := utils.ClaimsFromContext(ctx); ok {
		workflow.CreatedBy = claims.UserID
	}

	if err := s.repo.Insert(ctx, workflow); err != nil {
		return err
	}
	s.logger.Info("Workflow created",
		zap.String("workflow_id", workflow.ID),
		zap.String("request_type", string(workflow.RequestType)))
	_ = s.auditService.LogChange(ctx, common_models.AuditActionWorkflow, auditModule, workflow.ID, map[string]common_models.Change{
		"version": {New: workflow.Version},
	})
	return nil
}

func (s *WorkflowServiceImpl) UpdateWorkflow(ctx context.Context, id string, workflow *ApprovalWorkflow) error {
	current, err := s.repo.FindLatest(ctx, id)
	if err != nil {
		return err
	}
	workflow.ID = id
	if err := workflow.Validate(); err != nil {
		return err
	}
	s.assignStepIDs(workflow)

	workflow.Version = current.Version + 1
	workflow.CreatedAt = current.CreatedAt
	workflow.CreatedBy = current.CreatedBy
	workflow.UpdatedAt = s.clock.Now()

	if err := s.repo.Insert(ctx, workflow); err != nil {
		return err
	}
	s.logger.Info("Workflow updated",
		zap.String("workflow_id", id),
		zap.Int("version", workflow.Version))
	_ = s.auditService.LogChange(ctx, common_models.AuditActionWorkflow, auditModule, id, map[string]common_models.Change{
		"version": {Old: current.Version, New: workflow.Version},
	})
	return nil
}

func (s *WorkflowServiceImpl) assignStepIDs(workflow *ApprovalWorkflow) {
	for i := range workflow.Steps {
		if workflow.Steps[i].ID == "" {
			workflow.Steps[i].ID = idgen.New()
		}
	}
	for i := range workflow.EscalationRules {
		if workflow.EscalationRules[i].ID == "" {
			workflow.EscalationRules[i].ID = idgen.New()
		}
	}
}

func (s *WorkflowServiceImpl) GetWorkflow(ctx context.Context, id string) (*ApprovalWorkflow, error) {
	return s.repo.FindLatest(ctx, id)
}

func (s *WorkflowServiceImpl) GetWorkflowVersion(ctx context.Context, id string, version int) (*ApprovalWorkflow, error) {
	return s.repo.FindVersion(ctx, id, version)
}

func (s *WorkflowServiceImpl) ListWorkflows(ctx context.Context) ([]ApprovalWorkflow, error) {
	return s.repo.ListLatest(ctx)
}

func (s *WorkflowServiceImpl) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	_ = s.auditService.LogChange(ctx, common_models.AuditActionWorkflow, auditModule, id, map[string]common_models.Change{
		"active": {Old: !active, New: active},
	})
	return nil
}

func (s *WorkflowServiceImpl) GetActiveForType(ctx context.Context, requestType RequestType) (*ApprovalWorkflow, error) {
	workflows, err := s.repo.ListActiveByType(ctx, requestType)
	if err != nil {
		return nil, err
	}
	if len(workflows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveWorkflow, requestType)
	}
	return &workflows[0], nil
}
