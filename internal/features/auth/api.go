package auth

import (
	"go-approval/internal/config"
	"go-approval/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type AuthApi struct {
	controller *AuthController
	config     *config.Config
}

func NewAuthApi(controller *AuthController, config *config.Config) *AuthApi {
	return &AuthApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers all auth-related routes
func (h *AuthApi) Setup(app *fiber.App) {
	if !h.config.IsProduction() {
		app.Post("/api/auth/dev-login", h.controller.DevLogin)
	}
	app.Post("/api/admin/tokens", middleware.AuthMiddleware(h.config.SkipAuth), middleware.AdminMiddleware(), h.controller.IssueToken)
}
