package org

import (
	"go-approval/internal/config"
	"go-approval/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type OrgApi struct {
	controller *OrgController
	config     *config.Config
}

func NewOrgApi(controller *OrgController, config *config.Config) *OrgApi {
	return &OrgApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers directory routes. Reads are open to any caller, writes
// are admin only.
func (h *OrgApi) Setup(app *fiber.App) {
	orgs := app.Group("/api/org", middleware.AuthMiddleware(h.config.SkipAuth))

	orgs.Get("/users", h.controller.ListUsers)
	orgs.Get("/users/:id", h.controller.GetUser)
	orgs.Put("/users/:id", middleware.AdminMiddleware(), h.controller.SaveUser)
	orgs.Put("/users/:id/status", middleware.AdminMiddleware(), h.controller.SetUserStatus)

	orgs.Get("/groups", h.controller.ListGroups)
	orgs.Get("/groups/:id", h.controller.GetGroup)
	orgs.Put("/groups/:id", middleware.AdminMiddleware(), h.controller.SaveGroup)
}
