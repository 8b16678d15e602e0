package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"

	"github.com/linguaverse/messaging-service/internal/apperr"
	"github.com/linguaverse/messaging-service/internal/config"
	"github.com/linguaverse/messaging-service/internal/presence"
	"github.com/linguaverse/messaging-service/internal/service"
	wsgw "github.com/linguaverse/messaging-service/internal/ws"
)

type Server struct {
	pipeline *service.MessagePipeline
	resolver *service.ConversationResolver
	tracker  *presence.Tracker
}

// NewServer mounts the websocket upgrade route plus the REST surface the
// messaging core owns: message lifecycle, group management, presence listing.
func NewServer(cfg *config.Config, gw *wsgw.Gateway, pipeline *service.MessagePipeline, resolver *service.ConversationResolver, tracker *presence.Tracker) *fiber.App {
	app := fiber.New()
	app.Use(fiberlogger.New())
	s := &Server{pipeline: pipeline, resolver: resolver, tracker: tracker}

	v1 := app.Group("/v1")

	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1.Get("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	v1.Get("/ws", websocket.New(gw.Handle))

	authed := v1.Group("/", jwtAuth(cfg.JWT.Secret))
	authed.Get("/presence/online", s.onlineUsers)

	authed.Get("/conversations/:conversation_id/messages", s.history)
	authed.Get("/conversations/:conversation_id/unread", s.unreadCount)
	authed.Post("/conversations/groups", s.createGroup)
	authed.Patch("/conversations/:conversation_id", s.renameGroup)
	authed.Post("/conversations/:conversation_id/participants", s.addParticipants)
	authed.Delete("/conversations/:conversation_id/participants", s.removeParticipants)

	authed.Get("/messages/search", s.search)
	authed.Get("/messages/stats", s.stats)
	authed.Patch("/messages/:message_id", s.editMessage)
	authed.Delete("/messages/:message_id", s.deleteMessage)
	authed.Post("/messages/:message_id/pin", s.pinMessage)
	authed.Delete("/messages/:message_id/pin", s.unpinMessage)
	authed.Post("/messages/:message_id/reactions", s.addReaction)
	authed.Delete("/messages/:message_id/reactions", s.removeReaction)
	authed.Post("/messages/:message_id/forward", s.forwardMessage)

	return app
}

func (s *Server) onlineUsers(c *fiber.Ctx) error {
	records, err := s.tracker.Online(c.Context())
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"online": records})
}

func (s *Server) history(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	convID := c.Params("conversation_id")
	limit := int64(c.QueryInt("limit", 50))

	var before time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "before must be RFC3339"})
		}
		before = t
	}

	msgs, err := s.pipeline.History(c.Context(), convID, userID, limit, before)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

func (s *Server) search(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	msgs, err := s.pipeline.Search(
		c.Context(),
		userID,
		c.Query("q"),
		c.Query("conversation_id"),
		c.Query("type"),
		int64(c.QueryInt("limit", 50)),
	)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

func (s *Server) stats(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	stats, err := s.pipeline.UserStats(c.Context(), userID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(stats)
}

func respondErr(c *fiber.Ctx, err error) error {
	var de *apperr.Error
	if errors.As(err, &de) {
		status := http.StatusInternalServerError
		switch de.Kind {
		case apperr.KindValidation:
			status = http.StatusBadRequest
		case apperr.KindAuthorization:
			status = http.StatusForbidden
		case apperr.KindNotFound:
			status = http.StatusNotFound
		}
		body := fiber.Map{"error": de.Message}
		if len(de.Missing) > 0 {
			body["missing"] = de.Missing
		}
		return c.Status(status).JSON(body)
	}
	return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
