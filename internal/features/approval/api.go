package approval

import (
	"go-approval/internal/config"
	"go-approval/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ApprovalApi struct {
	controller *ApprovalController
	config     *config.Config
}

func NewApprovalApi(controller *ApprovalController, config *config.Config) *ApprovalApi {
	return &ApprovalApi{
		controller: controller,
		config:     config,
	}
}

func (h *ApprovalApi) Setup(app *fiber.App) {
	approvals := app.Group("/api/approvals", middleware.AuthMiddleware(h.config.SkipAuth))

	approvals.Post("/", h.controller.Submit)
	approvals.Get("/mine", h.controller.ListMine)
	approvals.Get("/pending", h.controller.ListPending)
	approvals.Get("/:id", h.controller.GetRequest)
	approvals.Get("/:id/history", h.controller.GetHistory)
	approvals.Post("/:id/decision", h.controller.Decide)
	approvals.Post("/:id/cancel", h.controller.Cancel)

	admin := app.Group("/api/admin/approvals", middleware.AuthMiddleware(h.config.SkipAuth), middleware.AdminMiddleware())
	admin.Get("/parked", h.controller.ListParked)
	admin.Post("/:id/escalate", h.controller.Escalate)
	admin.Post("/:id/reresolve", h.controller.Reresolve)
}
