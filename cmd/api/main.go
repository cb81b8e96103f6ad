package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go-approval/internal/clock"
	common_api "go-approval/internal/common/api"
	"go-approval/internal/config"
	"go-approval/internal/database"
	"go-approval/internal/features/approval"
	"go-approval/internal/features/audit"
	"go-approval/internal/features/auth"
	"go-approval/internal/features/delegation"
	"go-approval/internal/features/escalation"
	"go-approval/internal/features/notification"
	"go-approval/internal/features/org"
	"go-approval/internal/features/resolver"
	"go-approval/internal/features/system"
	"go-approval/internal/features/workflow"
	"go-approval/internal/logger"
	"go-approval/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute tags the constructor so Fx adds it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes calls Setup() on every member of the "routes" group.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route, logger *zap.Logger) {
	logger.Info("Registering routes", zap.Int("count", len(routes)))
	for _, route := range routes {
		logger.Debug("Setting up route", zap.String("api", fmt.Sprintf("%T", route)))
		route.Setup(app)
	}
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`, ``),
)

// StartServer starts Fiber in a goroutine and shuts it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				logger.Info("HTTP server listening", zap.String("port", cfg.Port), zap.String("store", cfg.Store))
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.ShutdownWithContext(ctx)
		},
	})
}

// InitializeIndexes ensures that necessary database indexes are created
func InitializeIndexes(
	lc fx.Lifecycle,
	workflowRepo workflow.WorkflowRepository,
	delegationRepo delegation.DelegationRepository,
	requestRepo approval.RequestRepository,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := workflowRepo.EnsureIndexes(ctx); err != nil {
					logger.Error("Failed to ensure workflow indexes", zap.Error(err))
				}
				if err := delegationRepo.EnsureIndexes(ctx); err != nil {
					logger.Error("Failed to ensure delegation indexes", zap.Error(err))
				}
				if err := requestRepo.EnsureIndexes(ctx); err != nil {
					logger.Error("Failed to ensure approval request indexes", zap.Error(err))
				}
			}()
			return nil
		},
	})
}

// @title           Approval Workflow API
// @version         1.0
// @description     Multi-step approval workflows with delegation and escalation.

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// @BasePath        /
func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			NewFiberServer,
			database.NewDatabase,
			clock.New,

			provideOrgRepository,
			provideAuditRepository,
			provideWorkflowRepository,
			provideDelegationRepository,
			provideRequestRepository,
			provideNotificationRepository,

			delegation.NewSettings,
			approval.NewSettings,

			notification.NewBus,
			audit.NewAuditService,
			org.NewOrgService,
			workflow.NewWorkflowService,
			delegation.NewDelegationService,
			resolver.NewResolver,
			approval.NewApprovalService,
			notification.NewNotificationService,
			auth.NewAuthService,
			escalation.NewScheduler,

			func(s org.OrgService) org.Directory { return s },
			func(b *notification.Bus) notification.Publisher { return b },
			func(s delegation.DelegationService) resolver.DelegationLookup { return s },
			func(s approval.ApprovalService) escalation.Processor { return s },

			auth.NewAuthController,
			org.NewOrgController,
			audit.NewAuditController,
			workflow.NewWorkflowController,
			delegation.NewDelegationController,
			approval.NewApprovalController,
			notification.NewNotificationController,
			notification.NewWebSocketController,
			escalation.NewEscalationController,
			system.NewDebugController,
			system.NewHealthController,

			AsRoute(auth.NewAuthApi),
			AsRoute(org.NewOrgApi),
			AsRoute(audit.NewAuditApi),
			AsRoute(workflow.NewWorkflowApi),
			AsRoute(delegation.NewDelegationApi),
			AsRoute(approval.NewApprovalApi),
			AsRoute(notification.NewNotificationApi),
			AsRoute(escalation.NewEscalationApi),
			AsRoute(system.NewDebugApi),
			AsRoute(system.NewHealthApi),
			AsRoute(system.NewSwaggerApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			RegisterAllRoutesWithAnnotation,
			InitializeIndexes,
			notification.RegisterInbox,
			escalation.RegisterScheduler,
			StartServer,
		),
	)

	app.Run()
}
