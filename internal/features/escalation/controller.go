package escalation

import (
	"github.com/gofiber/fiber/v2"
)

type EscalationController struct {
	Scheduler *Scheduler
}

func NewEscalationController(scheduler *Scheduler) *EscalationController {
	return &EscalationController{Scheduler: scheduler}
}

// Status godoc
// @Summary Scheduler state and the stats of its last tick
// @Tags admin
// @Router /api/admin/escalation [get]
func (c *EscalationController) Status(ctx *fiber.Ctx) error {
	resp := fiber.Map{"running": c.Scheduler.Running()}
	if last, ok := c.Scheduler.LastRun(); ok {
		resp["last_run"] = last
	}
	return ctx.JSON(resp)
}

// RunNow godoc
// @Summary Run one escalation tick immediately
// @Tags admin
// @Router /api/admin/escalation/run [post]
func (c *EscalationController) RunNow(ctx *fiber.Ctx) error {
	stats, err := c.Scheduler.Tick(ctx.UserContext())
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error(), "stats": stats})
	}
	return ctx.JSON(stats)
}
