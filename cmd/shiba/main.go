package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"shiba/internal/broker"
	"shiba/internal/cache"
	"shiba/internal/config"
	"shiba/internal/database"
	"shiba/internal/game"
	"shiba/internal/relay"
	"shiba/internal/server"
	"shiba/internal/socket"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := make(chan game.Event, 64)
	sock := socket.New(socket.Config{
		URL:           cfg.GameServerURL,
		WebserverURL:  cfg.WebServerURL,
		Session:       cfg.Session,
		ReconnectWait: cfg.ReconnectWait,
	}, events, nil)

	client := game.NewClient(game.Options{
		Commander:    sock,
		NotifyBuffer: cfg.NotifyBuffer,
		HistorySize:  cfg.HistorySize,
	})

	hub := server.NewHub()
	rl := relay.New(nil)
	rl.RegisterSink(hub)

	deps := server.Deps{Game: client, Hub: hub}

	if cfg.Archive {
		if svc := cache.New(); svc != nil {
			deps.Cache = svc
			rl.RegisterSink(svc.Archiver())
		}

		db := database.New()
		if err := database.RunMigrations(db.DB(), cfg.Migrations); err != nil {
			log.Warn().Err(err).Msg("postgres unavailable, running without round store")
			db.Close()
		} else {
			store := database.NewRoundStore(db.DB())
			deps.DB = db
			deps.Rounds = store
			rl.RegisterSink(store)
		}
	}

	if cfg.NatsURL != "" {
		natsCfg := broker.DefaultConfig()
		natsCfg.URL = cfg.NatsURL
		pub, err := broker.Connect(natsCfg)
		if err != nil {
			log.Warn().Err(err).Msg("nats unavailable, not publishing notifications")
		} else {
			defer pub.Close()
			rl.RegisterSink(pub)
		}
	}

	srv := server.New(deps)
	srv.RegisterFiberRoutes()

	log.Info().
		Str("gameserver", cfg.GameServerURL).
		Bool("authenticated", cfg.Session != "").
		Int("port", cfg.HTTPPort).
		Strs("sinks", rl.Sinks()).
		Msg("starting shiba")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return rl.Run(gctx, client.Notifications())
	})
	g.Go(func() error {
		return client.Run(gctx, events)
	})
	g.Go(func() error {
		return sock.Run(gctx)
	})
	g.Go(func() error {
		return srv.Listen(fmt.Sprintf(":%d", cfg.HTTPPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("shiba stopped")
	}
	log.Info().Msg("bye")
}
