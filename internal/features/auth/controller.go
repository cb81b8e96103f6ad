package auth

import (
	"errors"

	"go-approval/internal/features/org"
	"go-approval/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type AuthController struct {
	AuthService AuthService
}

func NewAuthController(authService AuthService) *AuthController {
	return &AuthController{AuthService: authService}
}

type TokenRequest struct {
	UserID string `json:"user_id"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

func (ctrl *AuthController) issue(c *fiber.Ctx, issuedBy func(userID string) string) error {
	var req TokenRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	token, err := ctrl.AuthService.IssueToken(c.UserContext(), req.UserID, issuedBy(req.UserID))
	switch {
	case errors.Is(err, org.ErrUserNotFound), errors.Is(err, ErrInactiveUser):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(AuthResponse{Token: token})
}

// DevLogin godoc
// @Summary      Issue a token for a directory user without credentials (non-production only)
// @Tags         auth
// @Router       /api/auth/dev-login [post]
func (ctrl *AuthController) DevLogin(c *fiber.Ctx) error {
	return ctrl.issue(c, func(userID string) string { return userID })
}

// IssueToken godoc
// @Summary      Issue a token for a directory user on an admin's behalf
// @Tags         admin
// @Router       /api/admin/tokens [post]
func (ctrl *AuthController) IssueToken(c *fiber.Ctx) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	return ctrl.issue(c, func(string) string { return claims.UserID })
}
