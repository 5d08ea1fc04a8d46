package server

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"shiba/internal/database"
	"shiba/internal/game"
)

type betRequest struct {
	Amount      int64 `json:"amount"`
	AutoCashout int64 `json:"auto_cashout"`
}

type autoCashoutRequest struct {
	At int64 `json:"at"`
}

type userInfo struct {
	Username    string         `json:"username"`
	Balance     int64          `json:"balance"`
	UserState   game.UserState `json:"user_state"`
	LastVerdict game.Verdict   `json:"last_verdict"`
	Connected   bool           `json:"connected"`
}

func (s *FiberServer) user() userInfo {
	return userInfo{
		Username:    s.game.Username(),
		Balance:     s.game.Balance(),
		UserState:   s.game.UserState(),
		LastVerdict: s.game.LastVerdict(),
		Connected:   s.game.IsConnected(),
	}
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	status := "up"
	if !s.game.IsConnected() {
		status = "degraded"
	}

	health := fiber.Map{
		"status": status,
		"client": s.user(),
		"websocket": fiber.Map{
			"connected_clients": s.hub.GetClientCount(),
		},
	}
	if s.db != nil {
		health["database"] = s.db.Health()
	}
	if s.cache != nil {
		health["cache"] = s.cache.Health()
	}
	return c.JSON(health)
}

func (s *FiberServer) getRoundHandler(c *fiber.Ctx) error {
	round := s.game.Round()
	if round == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No round joined yet",
		})
	}
	return c.JSON(round)
}

func (s *FiberServer) getHistoryHandler(c *fiber.Ctx) error {
	rounds := s.game.History()
	return c.JSON(fiber.Map{
		"count":  len(rounds),
		"rounds": rounds,
	})
}

func (s *FiberServer) getNextTickHandler(c *fiber.Ctx) error {
	next, ok := s.game.NextTick()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No round in progress",
		})
	}
	return c.JSON(next)
}

func (s *FiberServer) getUserHandler(c *fiber.Ctx) error {
	return c.JSON(s.user())
}

func (s *FiberServer) getArchivedRoundHandler(c *fiber.Ctx) error {
	if s.rounds == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Round archive not configured",
		})
	}
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid round id",
		})
	}

	round, err := s.rounds.Get(c.Context(), int64(id))
	if errors.Is(err, database.ErrRoundNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		log.Error().Err(err).Int("game_id", id).Msg("load archived round")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load round",
		})
	}
	return c.JSON(round)
}

func (s *FiberServer) getDisputedHandler(c *fiber.Ctx) error {
	if s.rounds == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Round archive not configured",
		})
	}
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rounds, err := s.rounds.Disputed(c.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("load disputed rounds")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load rounds",
		})
	}
	return c.JSON(fiber.Map{
		"count":  len(rounds),
		"rounds": rounds,
	})
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var req betRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	return s.commandResult(c, s.game.PlaceBet(req.Amount, req.AutoCashout))
}

func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	return s.commandResult(c, s.game.CashOut())
}

func (s *FiberServer) autoCashoutHandler(c *fiber.Ctx) error {
	var req autoCashoutRequest
	if err := c.BodyParser(&req); err != nil || req.At < 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	return s.commandResult(c, s.game.SetAutoCashout(req.At))
}

// commandResult maps a command error to a status. Accepted commands are
// settled later by server events, so success is 202.
func (s *FiberServer) commandResult(c *fiber.Ctx, err error) error {
	if err == nil {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"user_state": s.game.UserState(),
		})
	}

	return c.Status(commandStatus(err)).JSON(fiber.Map{
		"error":      err.Error(),
		"user_state": s.game.UserState(),
	})
}

func commandStatus(err error) int {
	switch {
	case errors.Is(err, game.ErrInvalidBet):
		return fiber.StatusBadRequest
	case errors.Is(err, game.ErrInvalidState):
		return fiber.StatusConflict
	default:
		return fiber.StatusServiceUnavailable
	}
}

type clientMessage struct {
	Type        string `json:"type"`
	Amount      int64  `json:"amount"`
	AutoCashout int64  `json:"auto_cashout"`
	At          int64  `json:"at"`
}

type commandReply struct {
	Action    string         `json:"action"`
	OK        bool           `json:"ok"`
	Error     string         `json:"error,omitempty"`
	UserState game.UserState `json:"user_state"`
}

// notificationsWebSocketHandler streams notifications and accepts the same
// commands as the REST API.
func (s *FiberServer) notificationsWebSocketHandler(conn *websocket.Conn) {
	sub := s.hub.subscribe(conn, Message{
		Type: "initial_state",
		Data: fiber.Map{
			"round": s.game.Round(),
			"user":  s.user(),
		},
	})
	if sub == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sub.writePump()
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		var cmdErr error
		switch msg.Type {
		case "ping":
			s.hub.sendTo(sub, Message{Type: "pong"})
			continue
		case "place_bet":
			cmdErr = s.game.PlaceBet(msg.Amount, msg.AutoCashout)
		case "cash_out":
			cmdErr = s.game.CashOut()
		case "set_auto_cash_out":
			cmdErr = s.game.SetAutoCashout(msg.At)
		default:
			continue
		}

		reply := commandReply{Action: msg.Type, OK: cmdErr == nil, UserState: s.game.UserState()}
		if cmdErr != nil {
			reply.Error = cmdErr.Error()
		}
		s.hub.sendTo(sub, Message{Type: "result", Data: reply})
	}

	s.hub.unsubscribe(sub)
	<-done
}
