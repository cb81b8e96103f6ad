package workflow

import (
	"go-approval/internal/config"
	"go-approval/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type WorkflowApi struct {
	controller *WorkflowController
	config     *config.Config
}

func NewWorkflowApi(controller *WorkflowController, config *config.Config) *WorkflowApi {
	return &WorkflowApi{
		controller: controller,
		config:     config,
	}
}

func (h *WorkflowApi) Setup(app *fiber.App) {
	workflows := app.Group("/api/workflows", middleware.AuthMiddleware(h.config.SkipAuth))

	workflows.Get("/", h.controller.ListWorkflows)
	workflows.Get("/type/:type", h.controller.GetActiveForType)
	workflows.Get("/:id", h.controller.GetWorkflow)

	workflows.Post("/", middleware.AdminMiddleware(), h.controller.CreateWorkflow)
	workflows.Put("/:id", middleware.AdminMiddleware(), h.controller.UpdateWorkflow)
	workflows.Post("/:id/activate", middleware.AdminMiddleware(), h.controller.Activate)
	workflows.Post("/:id/deactivate", middleware.AdminMiddleware(), h.controller.Deactivate)
}
