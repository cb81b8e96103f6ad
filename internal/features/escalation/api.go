package escalation

import (
	"go-approval/internal/config"
	"go-approval/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type EscalationApi struct {
	controller *EscalationController
	config     *config.Config
}

func NewEscalationApi(controller *EscalationController, config *config.Config) *EscalationApi {
	return &EscalationApi{
		controller: controller,
		config:     config,
	}
}

func (h *EscalationApi) Setup(app *fiber.App) {
	admin := app.Group("/api/admin/escalation", middleware.AuthMiddleware(h.config.SkipAuth), middleware.AdminMiddleware())

	admin.Get("/", h.controller.Status)
	admin.Post("/run", h.controller.RunNow)
}
