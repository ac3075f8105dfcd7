package api

import (
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/gatherly/chatkit/internal/auth"
	"github.com/gatherly/chatkit/internal/events"
	"github.com/gatherly/chatkit/internal/media"
	"github.com/gatherly/chatkit/internal/service"
)

// Server exposes the chat core over HTTP and a websocket event stream.
type Server struct {
	svc      *service.ChatService
	feed     events.Feed
	uploader *media.Uploader // optional
	log      *zap.SugaredLogger
}

func NewServer(svc *service.ChatService, feed events.Feed, uploader *media.Uploader, verifier *auth.Verifier, log *zap.SugaredLogger) *fiber.App {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{svc: svc, feed: feed, uploader: uploader, log: log}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	api := app.Group("/v1")
	api.Use(JWTAuth(verifier))

	api.Post("/conversations", s.openConversation)
	api.Get("/conversations", s.listConversations)
	api.Get("/conversations/:conversation_id/messages", s.listMessages)
	api.Post("/conversations/:conversation_id/messages", s.sendMessage)
	api.Post("/conversations/:conversation_id/read", s.markRead)
	api.Get("/users/:user_id/presence", s.getPresence)
	api.Post("/media", s.uploadMedia)
	api.Get("/ws", websocket.New(s.streamEvents))

	return app
}

func JWTAuth(verifier *auth.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if h == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization"})
		}
		const pref = "Bearer "
		if len(h) <= len(pref) || h[:len(pref)] != pref {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization"})
		}
		sub, err := verifier.Validate(h[len(pref):])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals("user_id", sub)
		return c.Next()
	}
}
