package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"shiba/internal/cache"
	"shiba/internal/database"
	"shiba/internal/game"
)

// Game is the client surface the HTTP API reads from and commands.
type Game interface {
	Round() *game.Round
	History() []*game.Round
	NextTick() (game.NextTick, bool)
	TimeTillStart() time.Duration
	UserState() game.UserState
	Username() string
	Balance() int64
	LastVerdict() game.Verdict
	IsConnected() bool

	PlaceBet(amount, autoCashout int64) error
	CashOut() error
	SetAutoCashout(at int64) error
}

// RoundReader serves finished rounds from long term storage.
type RoundReader interface {
	Get(ctx context.Context, id int64) (*game.Round, error)
	Disputed(ctx context.Context, limit int) ([]*game.Round, error)
}

type Deps struct {
	Game   Game
	Hub    *Hub
	DB     database.Service
	Cache  cache.Service
	Rounds RoundReader
}

type FiberServer struct {
	*fiber.App

	game   Game
	hub    *Hub
	db     database.Service
	cache  cache.Service
	rounds RoundReader
}

func New(deps Deps) *FiberServer {
	hub := deps.Hub
	if hub == nil {
		hub = NewHub()
	}

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:          "shiba",
			AppName:               "shiba",
			ReadTimeout:           10 * time.Second,
			WriteTimeout:          10 * time.Second,
			IdleTimeout:           120 * time.Second,
			DisableStartupMessage: true,
		}),

		game:   deps.Game,
		hub:    hub,
		db:     deps.DB,
		cache:  deps.Cache,
		rounds: deps.Rounds,
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/ws"
		},
	}))

	return server
}

func (s *FiberServer) Hub() *Hub {
	return s.hub
}

// Shutdown stops the HTTP server and closes the storage connections it was
// given.
func (s *FiberServer) Shutdown() error {
	log.Info().Msg("shutting down http server")

	err := s.App.ShutdownWithTimeout(5 * time.Second)

	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return err
}
