package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go-approval/internal/clock"
	"go-approval/internal/config"
	"go-approval/internal/database"
	"go-approval/internal/features/audit"
	"go-approval/internal/features/org"
	"go-approval/internal/features/workflow"
	"go-approval/internal/logger"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	orgPath       = "cmd/seed/data/org.json"
	workflowsPath = "cmd/seed/data/workflows.json"
)

type orgFile struct {
	Groups []org.Group `json:"groups"`
	Users  []org.User  `json:"users"`
}

func readJSON(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Seed loads the directory and the workflow definitions from JSON. Existing
// users and groups are overwritten; existing workflows are left untouched.
func Seed(
	lc fx.Lifecycle,
	cfg *config.Config,
	orgService org.OrgService,
	workflowService workflow.WorkflowService,
	logger *zap.Logger,
	shutdowner fx.Shutdowner,
) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if cfg.Store == config.StoreMemory {
				return errors.New("seeding requires STORE=mongo")
			}
			go func() {
				exitCode := 0
				defer func() {
					if err := shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
						logger.Error("Failed to shutdown", zap.Error(err))
					}
				}()
				if err := run(context.Background(), orgService, workflowService, logger); err != nil {
					logger.Error("Seeding failed", zap.Error(err))
					exitCode = 1
					return
				}
				logger.Info("Seeding completed")
			}()
			return nil
		},
	})
}

func run(ctx context.Context, orgService org.OrgService, workflowService workflow.WorkflowService, logger *zap.Logger) error {
	var directory orgFile
	if err := readJSON(orgPath, &directory); err != nil {
		return fmt.Errorf("failed to read %s: %w", orgPath, err)
	}
	// Parents before children so hierarchy checks see them.
	for i := range directory.Groups {
		if err := orgService.SaveGroup(ctx, &directory.Groups[i]); err != nil {
			return fmt.Errorf("group %s: %w", directory.Groups[i].ID, err)
		}
	}
	for i := range directory.Users {
		if err := orgService.SaveUser(ctx, &directory.Users[i]); err != nil {
			return fmt.Errorf("user %s: %w", directory.Users[i].ID, err)
		}
	}
	logger.Info("Directory seeded",
		zap.Int("groups", len(directory.Groups)),
		zap.Int("users", len(directory.Users)))

	var workflows []workflow.ApprovalWorkflow
	if err := readJSON(workflowsPath, &workflows); err != nil {
		return fmt.Errorf("failed to read %s: %w", workflowsPath, err)
	}
	created := 0
	for i := range workflows {
		wf := &workflows[i]
		if _, err := workflowService.GetWorkflow(ctx, wf.ID); err == nil {
			logger.Info("Workflow exists, skipping", zap.String("workflow_id", wf.ID))
			continue
		}
		if err := workflowService.CreateWorkflow(ctx, wf); err != nil {
			return fmt.Errorf("workflow %s: %w", wf.ID, err)
		}
		created++
	}
	logger.Info("Workflows seeded", zap.Int("created", created), zap.Int("total", len(workflows)))
	return nil
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			database.NewDatabase,
			clock.New,
			org.NewOrgRepository,
			audit.NewAuditRepository,
			workflow.NewWorkflowRepository,
			audit.NewAuditService,
			org.NewOrgService,
			workflow.NewWorkflowService,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(Seed),
	)

	app.Run()
}
