package delegation

import (
	"go-approval/internal/config"
	"go-approval/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type DelegationApi struct {
	controller *DelegationController
	config     *config.Config
}

func NewDelegationApi(controller *DelegationController, config *config.Config) *DelegationApi {
	return &DelegationApi{
		controller: controller,
		config:     config,
	}
}

func (h *DelegationApi) Setup(app *fiber.App) {
	delegations := app.Group("/api/delegations", middleware.AuthMiddleware(h.config.SkipAuth))

	delegations.Post("/", h.controller.CreateDelegation)
	delegations.Get("/", h.controller.ListMine)
	delegations.Get("/:id", h.controller.GetDelegation)
	delegations.Post("/:id/approve", h.controller.Approve)
	delegations.Post("/:id/reject", h.controller.Reject)
	delegations.Post("/:id/revoke", h.controller.Revoke)
}
