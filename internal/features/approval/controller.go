package approval

import (
	"errors"

	"go-approval/internal/features/delegation"
	"go-approval/internal/features/workflow"
	"go-approval/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ApprovalController struct {
	Service ApprovalService
}

func NewApprovalController(service ApprovalService) *ApprovalController {
	return &ApprovalController{Service: service}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, workflow.ErrWorkflowNotFound), errors.Is(err, workflow.ErrNoActiveWorkflow):
		return fiber.StatusNotFound
	case errors.Is(err, ErrNotEligible), errors.Is(err, ErrNotRequester):
		return fiber.StatusForbidden
	case errors.Is(err, ErrAlreadyTerminal), errors.Is(err, ErrNotParked), errors.Is(err, ErrEscalationExhausted),
		errors.Is(err, delegation.ErrDuplicateDelegation), errors.Is(err, delegation.ErrDelegationInactive):
		return fiber.StatusConflict
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrActionNotAllowed), errors.Is(err, delegation.ErrInvalidDelegation):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func fail(ctx *fiber.Ctx, err error) error {
	return ctx.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

func unauthorized(ctx *fiber.Ctx) error {
	return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
}

// ParkedRequest is the admin view of a request waiting on approver resolution.
type ParkedRequest struct {
	*ApprovalRequest
	ResolutionError string `json:"resolution_error"`
}

func emptyIfNil(list []ApprovalRequest) []ApprovalRequest {
	if list == nil {
		return []ApprovalRequest{}
	}
	return list
}

// Submit godoc
// @Summary Submit a request against the active workflow for its type
// @Tags approvals
// @Router /api/approvals [post]
func (c *ApprovalController) Submit(ctx *fiber.Ctx) error {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		return unauthorized(ctx)
	}

	var input SubmitInput
	if err := ctx.BodyParser(&input); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if input.RequesterID == "" || !claims.HasRole("admin") {
		input.RequesterID = claims.UserID
	}

	req, err := c.Service.Submit(ctx.UserContext(), input)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(req)
}

// GetRequest godoc
// @Summary Get a request. Visible to its requester, current candidates and admins.
// @Tags approvals
// @Router /api/approvals/{id} [get]
func (c *ApprovalController) GetRequest(ctx *fiber.Ctx) error {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		return unauthorized(ctx)
	}
	req, err := c.Service.Get(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return fail(ctx, err)
	}
	if !canView(req, claims.UserID, claims.HasRole("admin")) {
		return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}
	return ctx.JSON(req)
}

// GetHistory godoc
// @Summary Audit trail of an approval request
// @Tags approvals
// @Router /api/approvals/{id}/history [get]
func (c *ApprovalController) GetHistory(ctx *fiber.Ctx) error {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		return unauthorized(ctx)
	}
	req, err := c.Service.Get(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return fail(ctx, err)
	}
	if !canView(req, claims.UserID, claims.HasRole("admin")) {
		return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}
	history := req.History
	if history == nil {
		history = []HistoryEntry{}
	}
	return ctx.JSON(history)
}

func canView(req *ApprovalRequest, userID string, admin bool) bool {
	if admin || req.RequesterID == userID {
		return true
	}
	for _, h := range req.History {
		if h.ActorID == userID {
			return true
		}
	}
	if req.Step == nil {
		return false
	}
	for _, id := range req.Step.Candidates {
		if id == userID {
			return true
		}
	}
	return false
}

// ListMine godoc
// @Summary List requests the caller submitted, newest first
// @Tags approvals
// @Router /api/approvals/mine [get]
func (c *ApprovalController) ListMine(ctx *fiber.Ctx) error {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		return unauthorized(ctx)
	}
	list, err := c.Service.ListByRequester(ctx.UserContext(), claims.UserID)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(emptyIfNil(list))
}

// ListPending godoc
// @Summary List requests the caller can act on, directly or as a delegate
// @Tags approvals
// @Router /api/approvals/pending [get]
func (c *ApprovalController) ListPending(ctx *fiber.Ctx) error {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		return unauthorized(ctx)
	}
	list, err := c.Service.ListPendingFor(ctx.UserContext(), claims.UserID)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(emptyIfNil(list))
}

// Decide godoc
// @Summary Approve, reject, delegate, escalate or ask for more information
// @Tags approvals
// @Router /api/approvals/{id}/decision [post]
func (c *ApprovalController) Decide(ctx *fiber.Ctx) error {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		return unauthorized(ctx)
	}

	var input DecisionInput
	if err := ctx.BodyParser(&input); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	input.RequestID = ctx.Params("id")
	input.ActorID = claims.UserID

	req, err := c.Service.Decide(ctx.UserContext(), input)
	if errors.Is(err, ErrEscalationExhausted) && req != nil {
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "request": req})
	}
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(req)
}

// Cancel godoc
// @Summary Cancel a pending request
// @Tags approvals
// @Router /api/approvals/{id}/cancel [post]
func (c *ApprovalController) Cancel(ctx *fiber.Ctx) error {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		return unauthorized(ctx)
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = ctx.BodyParser(&body)

	req, err := c.Service.Cancel(ctx.UserContext(), ctx.Params("id"), claims.UserID, body.Reason)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(req)
}

// Escalate godoc
// @Summary Force a manual escalation of the current step
// @Tags admin
// @Router /api/admin/approvals/{id}/escalate [post]
func (c *ApprovalController) Escalate(ctx *fiber.Ctx) error {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		return unauthorized(ctx)
	}
	req, err := c.Service.Escalate(ctx.UserContext(), ctx.Params("id"), workflow.TriggerManual, claims.UserID)
	if errors.Is(err, ErrEscalationExhausted) && req != nil {
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "request": req})
	}
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(req)
}

// Reresolve godoc
// @Summary Retry approver resolution of a parked request
// @Tags admin
// @Router /api/admin/approvals/{id}/reresolve [post]
func (c *ApprovalController) Reresolve(ctx *fiber.Ctx) error {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		return unauthorized(ctx)
	}
	req, err := c.Service.Reresolve(ctx.UserContext(), ctx.Params("id"), claims.UserID)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(ParkedRequest{ApprovalRequest: req, ResolutionError: req.ResolutionError})
}

// ListParked godoc
// @Summary List requests whose approvers could not be resolved
// @Tags admin
// @Router /api/admin/approvals/parked [get]
func (c *ApprovalController) ListParked(ctx *fiber.Ctx) error {
	list, err := c.Service.ListParked(ctx.UserContext())
	if err != nil {
		return fail(ctx, err)
	}
	out := make([]ParkedRequest, len(list))
	for i := range list {
		out[i] = ParkedRequest{ApprovalRequest: &list[i], ResolutionError: list[i].ResolutionError}
	}
	return ctx.JSON(out)
}
