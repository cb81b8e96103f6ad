package delegation

import (
	"errors"

	"go-approval/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type DelegationController struct {
	Service DelegationService
}

func NewDelegationController(service DelegationService) *DelegationController {
	return &DelegationController{Service: service}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrDelegationNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrNotApprover), errors.Is(err, ErrNotDelegator):
		return fiber.StatusForbidden
	case errors.Is(err, ErrDuplicateDelegation), errors.Is(err, ErrDelegationInactive):
		return fiber.StatusConflict
	case errors.Is(err, ErrInvalidDelegation):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func fail(ctx *fiber.Ctx, err error) error {
	return ctx.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

// CreateDelegation godoc
// @Summary Grant a delegation. Admins may grant on behalf of another user.
// @Tags delegations
// @Router /api/delegations [post]
func (c *DelegationController) CreateDelegation(ctx *fiber.Ctx) error {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var input CreateInput
	if err := ctx.BodyParser(&input); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if input.DelegatorID == "" || !claims.HasRole("admin") {
		input.DelegatorID = claims.UserID
	}

	d, err := c.Service.CreateDelegation(ctx.UserContext(), input)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(d)
}

// GetDelegation godoc
func (c *DelegationController) GetDelegation(ctx *fiber.Ctx) error {
	d, err := c.Service.GetDelegation(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(d)
}

// ListMine godoc
// @Summary List the caller's delegations. ?direction=incoming lists grants received.
// @Tags delegations
// @Router /api/delegations [get]
func (c *DelegationController) ListMine(ctx *fiber.Ctx) error {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var (
		list []Delegation
		err  error
	)
	switch ctx.Query("direction", "outgoing") {
	case "incoming":
		list, err = c.Service.ListIncoming(ctx.UserContext(), claims.UserID)
	case "approvals":
		list, err = c.Service.ListAwaitingApproval(ctx.UserContext(), claims.UserID)
	default:
		list, err = c.Service.ListOutgoing(ctx.UserContext(), claims.UserID)
	}
	if err != nil {
		return fail(ctx, err)
	}
	if list == nil {
		list = []Delegation{}
	}
	return ctx.JSON(list)
}

// Approve godoc
func (c *DelegationController) Approve(ctx *fiber.Ctx) error {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	d, err := c.Service.ApproveDelegation(ctx.UserContext(), ctx.Params("id"), claims.UserID)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(d)
}

// Reject godoc
func (c *DelegationController) Reject(ctx *fiber.Ctx) error {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = ctx.BodyParser(&body)

	d, err := c.Service.RejectDelegation(ctx.UserContext(), ctx.Params("id"), claims.UserID, body.Reason)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(d)
}

// Revoke godoc
func (c *DelegationController) Revoke(ctx *fiber.Ctx) error {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	d, err := c.Service.RevokeDelegation(ctx.UserContext(), ctx.Params("id"), claims.UserID, claims.HasRole("admin"))
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(d)
}
