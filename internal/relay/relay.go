package relay

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"shiba/internal/game"
)

// Sink consumes client notifications. Handle is called from a single
// goroutine, in the order the client emitted them.
type Sink interface {
	Name() string
	Handle(ctx context.Context, n game.Notification) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, n game.Notification) error
}

func (f SinkFunc) Name() string { return f.SinkName }

func (f SinkFunc) Handle(ctx context.Context, n game.Notification) error {
	return f.Fn(ctx, n)
}

// Relay is the only reader of the client's notification channel. It fans
// every notification out to the registered sinks.
type Relay struct {
	mu    sync.RWMutex
	sinks []Sink
	log   zerolog.Logger
}

func New(logger *zerolog.Logger) *Relay {
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	return &Relay{log: l.With().Str("component", "relay").Logger()}
}

func (r *Relay) RegisterSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
	r.log.Info().Str("sink", s.Name()).Msg("registered sink")
}

func (r *Relay) Sinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sinks))
	for _, s := range r.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Run delivers notifications until ctx is done or the channel is closed.
// A failing sink is logged and does not stop delivery to the others.
func (r *Relay) Run(ctx context.Context, notifications <-chan game.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			r.Deliver(ctx, n)
		}
	}
}

func (r *Relay) Deliver(ctx context.Context, n game.Notification) {
	r.mu.RLock()
	sinks := r.sinks
	r.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Handle(ctx, n); err != nil {
			r.log.Error().Err(err).Str("sink", s.Name()).Str("type", string(n.Type)).Msg("sink failed")
		}
	}
}
