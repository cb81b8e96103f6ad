package notification

import (
	"time"

	"go-approval/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	localUserID  = "ws_user_id"
	localIsAdmin = "ws_is_admin"
	pingInterval = 30 * time.Second
)

// WebSocketController streams bus events to connected users. Admins
// receive every event, everyone else only events naming them.
type WebSocketController struct {
	bus    *Bus
	logger *zap.Logger
}

func NewWebSocketController(bus *Bus, logger *zap.Logger) *WebSocketController {
	return &WebSocketController{bus: bus, logger: logger.Named("ws")}
}

// Upgrade copies the caller identity into string-keyed locals that survive
// the websocket handover.
func (h *WebSocketController) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	claims, ok := middleware.Claims(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	c.Locals(localUserID, claims.UserID)
	c.Locals(localIsAdmin, claims.HasRole("admin"))
	return c.Next()
}

func (h *WebSocketController) HandleWebSocket(c *websocket.Conn) {
	userID, _ := c.Locals(localUserID).(string)
	isAdmin, _ := c.Locals(localIsAdmin).(bool)

	sub := h.bus.Subscribe(func(e Event) bool {
		return isAdmin || e.For(userID)
	})
	defer sub.Close()

	// Reader goroutine only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := c.WriteJSON(event); err != nil {
				h.logger.Debug("write failed", zap.String("user_id", userID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
