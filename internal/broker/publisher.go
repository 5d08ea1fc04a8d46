package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"shiba/internal/game"
)

type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "shiba",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher forwards client notifications to NATS on
// <prefix>.<notification type>.
type Publisher struct {
	conn   Conn
	nc     *nats.Conn
	prefix string
}

// Message is the payload published for every notification.
type Message struct {
	Type      game.NotificationType `json:"type"`
	GameID    int64                 `json:"game_id,omitempty"`
	Phase     game.Phase            `json:"state,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
	Data      any                   `json:"data,omitempty"`
}

func Connect(cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("shiba"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	p := NewPublisher(nc, cfg.SubjectPrefix)
	p.nc = nc
	return p, nil
}

func NewPublisher(conn Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultConfig().SubjectPrefix
	}
	return &Publisher{conn: conn, prefix: prefix}
}

func (p *Publisher) Name() string { return "nats" }

func (p *Publisher) Subject(t game.NotificationType) string {
	return fmt.Sprintf("%s.%s", p.prefix, t)
}

func (p *Publisher) Handle(_ context.Context, n game.Notification) error {
	msg := Message{
		Type:      n.Type,
		Timestamp: time.Now().UTC(),
		Data:      n.Data,
	}
	if n.Round != nil {
		msg.GameID = n.Round.ID
		msg.Phase = n.Round.Phase
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", n.Type, err)
	}
	if err := p.conn.Publish(p.Subject(n.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", n.Type, err)
	}
	return nil
}

// Close drains the connection when the publisher owns it.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
