package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"shiba/internal/game"
)

var (
	ErrNotConnected = errors.New("not connected to game server")
	ErrClosed       = errors.New("connection closed before ack")
)

type Config struct {
	// URL of the game server socket, e.g. ws://localhost:3842/socket.
	URL string
	// WebserverURL is where the one time token for an authenticated join is
	// requested. Unused without a Session.
	WebserverURL string
	// Session cookie value. Empty joins as an anonymous watcher.
	Session string

	ReconnectWait    time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int64
}

func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:3842/socket",
		ReconnectWait:    2 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		MaxMessageSize:   1 << 20,
	}
}

type ackFunc func(data json.RawMessage, err error)

// Socket is the game server transport. It pushes decoded server events onto
// the events channel in arrival order and sends the local user's commands.
type Socket struct {
	cfg    Config
	log    zerolog.Logger
	dialer *websocket.Dialer
	events chan<- game.Event

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]ackFunc

	writeMu sync.Mutex
}

var _ game.Commander = (*Socket)(nil)

func New(cfg Config, events chan<- game.Event, logger *zerolog.Logger) *Socket {
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	def := DefaultConfig()
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}

	return &Socket{
		cfg: cfg,
		log: l.With().Str("component", "socket").Logger(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		events:  events,
		pending: make(map[string]ackFunc),
	}
}

// Run keeps a connection to the game server open until ctx is done,
// reconnecting after ReconnectWait whenever it drops.
func (s *Socket) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn().Err(err).Dur("retry_in", s.cfg.ReconnectWait).Msg("game server connection lost")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReconnectWait):
		}
	}
}

func (s *Socket) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *Socket) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		s.emit(ctx, game.TransportError{Err: fmt.Errorf("dial %s: %w", s.cfg.URL, err)})
		return err
	}
	conn.SetReadLimit(s.cfg.MaxMessageSize)

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	s.log.Info().Str("url", s.cfg.URL).Msg("connected to game server")
	s.emit(ctx, game.Connected{})

	if err := s.join(ctx); err != nil {
		s.log.Error().Err(err).Msg("join failed")
	}

	err = s.readLoop(ctx, conn)
	s.teardown(conn)

	reason := "transport close"
	if err != nil {
		reason = err.Error()
	}
	s.emit(ctx, game.Disconnected{Reason: reason})
	return err
}

func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			s.log.Warn().Err(err).Msg("malformed frame")
			s.emit(ctx, game.TransportError{Err: fmt.Errorf("malformed frame: %w", err)})
			continue
		}

		if env.Type == TypeAck {
			s.resolve(env)
			continue
		}

		ev, err := decode(env)
		if errors.Is(err, errIgnored) {
			continue
		}
		if err != nil {
			s.log.Warn().Err(err).Str("type", env.Type).Msg("undecodable frame")
			s.emit(ctx, game.TransportError{Err: err})
			continue
		}
		s.emit(ctx, ev)
	}
}

// teardown drops the connection and fails every outstanding ack.
func (s *Socket) teardown(conn *websocket.Conn) {
	conn.Close()

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	pending := s.pending
	s.pending = make(map[string]ackFunc)
	s.mu.Unlock()

	for _, ack := range pending {
		ack(nil, ErrClosed)
	}
}

func (s *Socket) emit(ctx context.Context, ev game.Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

func (s *Socket) join(ctx context.Context) error {
	req := joinRequest{}
	if s.cfg.Session != "" {
		ott, err := s.oneTimeToken()
		if err != nil {
			s.log.Error().Err(err).Msg("one time token request failed, joining as watcher")
		} else {
			s.log.Debug().Msg("received one time token")
			req.OTT = ott
		}
	}

	return s.request(TypeJoin, req, func(data json.RawMessage, err error) {
		if err != nil {
			s.log.Error().Err(err).Msg("error when joining the game")
			return
		}
		var joined game.Joined
		if err := json.Unmarshal(data, &joined); err != nil {
			s.log.Error().Err(err).Msg("undecodable join snapshot")
			s.emit(ctx, game.TransportError{Err: fmt.Errorf("decode join: %w", err)})
			return
		}
		s.emit(ctx, joined)
	})
}

// oneTimeToken trades the session cookie for a join token.
func (s *Socket) oneTimeToken() (string, error) {
	agent := fiber.Post(strings.TrimRight(s.cfg.WebserverURL, "/") + "/ott")
	agent.Cookie("id", s.cfg.Session).
		ContentType("text/plain").
		Timeout(s.cfg.HandshakeTimeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	if code != fiber.StatusOK {
		return "", fmt.Errorf("one time token: status %d", code)
	}
	return strings.TrimSpace(string(body)), nil
}

// PlaceBet sends a bet for the next round. A zero autoCashout means none.
func (s *Socket) PlaceBet(amount, autoCashout int64, ack func(error)) error {
	return s.request(TypePlaceBet, placeBetRequest{Amount: amount, AutoCashout: autoCashout}, ackOnly(ack))
}

func (s *Socket) CashOut(ack func(error)) error {
	return s.request(TypeCashOut, nil, ackOnly(ack))
}

// SetAutoCashout is fire and forget; the server never acknowledges it.
func (s *Socket) SetAutoCashout(at int64) error {
	env, err := newEnvelope(TypeSetAutoCashOut, "", autoCashoutRequest{At: at})
	if err != nil {
		return err
	}
	return s.write(env)
}

func ackOnly(ack func(error)) ackFunc {
	return func(_ json.RawMessage, err error) {
		if ack != nil {
			ack(err)
		}
	}
}

func (s *Socket) request(typ string, data any, ack ackFunc) error {
	id := uuid.New().String()
	env, err := newEnvelope(typ, id, data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.pending[id] = ack
	s.mu.Unlock()

	if err := s.write(env); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Socket) resolve(env Envelope) {
	s.mu.Lock()
	ack, ok := s.pending[env.ID]
	delete(s.pending, env.ID)
	s.mu.Unlock()

	if !ok {
		s.log.Warn().Str("id", env.ID).Msg("ack for unknown request")
		return
	}

	var err error
	if env.Error != "" {
		err = errors.New(env.Error)
	}
	ack(env.Data, err)
}

func (s *Socket) write(env Envelope) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write %s: %w", env.Type, err)
	}
	return nil
}
