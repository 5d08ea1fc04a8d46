package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	api.Get("/round", s.getRoundHandler)
	api.Get("/history", s.getHistoryHandler)
	api.Get("/next-tick", s.getNextTickHandler)
	api.Get("/user", s.getUserHandler)
	api.Get("/rounds/disputed", s.getDisputedHandler)
	api.Get("/rounds/:id", s.getArchivedRoundHandler)

	api.Post("/bet", s.placeBetHandler)
	api.Post("/cashout", s.cashoutHandler)
	api.Post("/auto-cashout", s.autoCashoutHandler)

	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws", websocket.New(s.notificationsWebSocketHandler))
}
