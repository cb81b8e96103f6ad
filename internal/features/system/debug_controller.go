package system

import (
	"context"
	"time"

	"go-approval/internal/config"
	"go-approval/internal/database"
	"go-approval/internal/features/escalation"
	"go-approval/internal/features/org"
	"go-approval/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type DebugController struct {
	directory org.Directory
}

func NewDebugController(directory org.Directory) *DebugController {
	return &DebugController{directory: directory}
}

// GetCurrentUser godoc
// @Summary      Get the caller's token claims and directory entry
// @Tags         debug
// @Produce      json
// @Router       /api/debug/me [get]
func (c *DebugController) GetCurrentUser(ctx *fiber.Ctx) error {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	resp := fiber.Map{
		"user_id": claims.UserID,
		"roles":   claims.Roles,
	}
	if user, err := c.directory.GetUser(ctx.UserContext(), claims.UserID); err == nil {
		resp["user"] = user
	}
	return ctx.JSON(resp)
}

type HealthController struct {
	config    *config.Config
	mongodb   *database.MongodbDB
	scheduler *escalation.Scheduler
}

func NewHealthController(cfg *config.Config, mongodb *database.MongodbDB, scheduler *escalation.Scheduler) *HealthController {
	return &HealthController{config: cfg, mongodb: mongodb, scheduler: scheduler}
}

// HealthCheck godoc
// @Summary      Liveness and store reachability
// @Tags         health
// @Produce      json
// @Router       /health [get]
func (c *HealthController) HealthCheck(ctx *fiber.Ctx) error {
	resp := fiber.Map{
		"status":    "ok",
		"store":     c.config.Store,
		"scheduler": c.scheduler.Running(),
	}
	if c.mongodb.Enabled() {
		pingCtx, cancel := context.WithTimeout(ctx.UserContext(), 2*time.Second)
		defer cancel()
		if err := c.mongodb.DB.Client().Ping(pingCtx, nil); err != nil {
			resp["status"] = "degraded"
			resp["error"] = err.Error()
			return ctx.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
	}
	return ctx.JSON(resp)
}
