package notification

import (
	"go-approval/internal/config"
	"go-approval/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type NotificationApi struct {
	controller *NotificationController
	ws         *WebSocketController
	config     *config.Config
}

func NewNotificationApi(controller *NotificationController, ws *WebSocketController, config *config.Config) *NotificationApi {
	return &NotificationApi{
		controller: controller,
		ws:         ws,
		config:     config,
	}
}

func (h *NotificationApi) Setup(app *fiber.App) {
	group := app.Group("/api/notifications", middleware.AuthMiddleware(h.config.SkipAuth))

	group.Get("/", h.controller.List)
	group.Get("/unread-count", h.controller.GetUnreadCount)
	group.Put("/:id/read", h.controller.MarkAsRead)
	group.Post("/mark-all-read", h.controller.MarkAllAsRead)

	app.Get("/api/events/ws",
		middleware.AuthMiddleware(h.config.SkipAuth),
		h.ws.Upgrade,
		websocket.New(h.ws.HandleWebSocket),
	)
}
