package workflow

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

type WorkflowController struct {
	Service WorkflowService
}

func NewWorkflowController(service WorkflowService) *WorkflowController {
	return &WorkflowController{Service: service}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrWorkflowNotFound), errors.Is(err, ErrNoActiveWorkflow):
		return fiber.StatusNotFound
	case errors.Is(err, ErrInvalidWorkflow):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// CreateWorkflow godoc
// @Summary Create a new approval workflow
// @Tags workflows
// @Router /api/workflows [post]
func (c *WorkflowController) CreateWorkflow(ctx *fiber.Ctx) error {
	var input ApprovalWorkflow
	if err := ctx.BodyParser(&input); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := c.Service.CreateWorkflow(ctx.UserContext(), &input); err != nil {
		return ctx.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.Status(fiber.StatusCreated).JSON(input)
}

// UpdateWorkflow godoc
// @Summary Publish a new version of an approval workflow
// @Tags workflows
// @Router /api/workflows/{id} [put]
func (c *WorkflowController) UpdateWorkflow(ctx *fiber.Ctx) error {
	var input ApprovalWorkflow
	if err := ctx.BodyParser(&input); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := c.Service.UpdateWorkflow(ctx.UserContext(), ctx.Params("id"), &input); err != nil {
		return ctx.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(input)
}

// GetWorkflow godoc
// @Summary Get the latest version of a workflow, or ?version=N
// @Tags workflows
// @Router /api/workflows/{id} [get]
func (c *WorkflowController) GetWorkflow(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	var (
		workflow *ApprovalWorkflow
		err      error
	)
	if v := ctx.Query("version"); v != "" {
		version, convErr := strconv.Atoi(v)
		if convErr != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid version"})
		}
		workflow, err = c.Service.GetWorkflowVersion(ctx.UserContext(), id, version)
	} else {
		workflow, err = c.Service.GetWorkflow(ctx.UserContext(), id)
	}
	if err != nil {
		return ctx.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(workflow)
}

// ListWorkflows godoc
func (c *WorkflowController) ListWorkflows(ctx *fiber.Ctx) error {
	workflows, err := c.Service.ListWorkflows(ctx.UserContext())
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(workflows)
}

// GetActiveForType godoc
func (c *WorkflowController) GetActiveForType(ctx *fiber.Ctx) error {
	workflow, err := c.Service.GetActiveForType(ctx.UserContext(), RequestType(ctx.Params("type")))
	if err != nil {
		return ctx.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(workflow)
}

// Activate godoc
func (c *WorkflowController) Activate(ctx *fiber.Ctx) error {
	return c.setActive(ctx, true)
}

// Deactivate godoc
func (c *WorkflowController) Deactivate(ctx *fiber.Ctx) error {
	return c.setActive(ctx, false)
}

func (c *WorkflowController) setActive(ctx *fiber.Ctx, active bool) error {
	if err := c.Service.SetActive(ctx.UserContext(), ctx.Params("id"), active); err != nil {
		return ctx.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}
