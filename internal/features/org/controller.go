package org

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type OrgController struct {
	Service OrgService
}

func NewOrgController(service OrgService) *OrgController {
	return &OrgController{Service: service}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrGroupNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrInvalidUser), errors.Is(err, ErrInvalidGroup), errors.Is(err, ErrHierarchy):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// ListUsers godoc
func (c *OrgController) ListUsers(ctx *fiber.Ctx) error {
	users, err := c.Service.ListUsers(ctx.UserContext())
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(users)
}

// GetUser godoc
func (c *OrgController) GetUser(ctx *fiber.Ctx) error {
	user, err := c.Service.GetUser(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(user)
}

// SaveUser godoc
func (c *OrgController) SaveUser(ctx *fiber.Ctx) error {
	var user User
	if err := ctx.BodyParser(&user); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if id := ctx.Params("id"); id != "" {
		user.ID = id
	}
	if err := c.Service.SaveUser(ctx.UserContext(), &user); err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(user)
}

// SetUserStatus godoc
func (c *OrgController) SetUserStatus(ctx *fiber.Ctx) error {
	var body struct {
		Status UserStatus `json:"status"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := c.Service.SetUserStatus(ctx.UserContext(), ctx.Params("id"), body.Status); err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

// ListGroups godoc
func (c *OrgController) ListGroups(ctx *fiber.Ctx) error {
	groups, err := c.Service.ListGroups(ctx.UserContext())
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(groups)
}

// GetGroup godoc
func (c *OrgController) GetGroup(ctx *fiber.Ctx) error {
	group, err := c.Service.GetGroup(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(group)
}

// SaveGroup godoc
func (c *OrgController) SaveGroup(ctx *fiber.Ctx) error {
	var group Group
	if err := ctx.BodyParser(&group); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if id := ctx.Params("id"); id != "" {
		group.ID = id
	}
	if err := c.Service.SaveGroup(ctx.UserContext(), &group); err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(group)
}
