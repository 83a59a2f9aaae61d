package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/chatter/internal/config"
	"github.com/weiawesome/chatter/internal/handler"
	"github.com/weiawesome/chatter/internal/ident"
	"github.com/weiawesome/chatter/internal/realtime"
	"github.com/weiawesome/chatter/internal/store"
	"github.com/weiawesome/chatter/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.L().Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Init(log.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "chatter",
	})

	logger := log.L()
	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting chatter")

	// Identifier generators
	roomCodes, err := ident.NewGenerator(cfg.Room.CodeLength, cfg.Room.CodeAlphabet)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid room code settings")
	}
	entryIDs := ident.EntryIDs()

	// Realtime broker
	broker := realtime.NewBroker()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Identity store, plus the cross-instance relay when Redis is enabled
	var identities store.IdentityStore
	if cfg.Redis.Enabled {
		identities, err = store.NewRedisStore(store.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.IdentityPrefix,
			TTL:       cfg.Redis.IdentityTTL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize Redis identity store")
		}

		relay, err := realtime.NewRedisRelay(realtime.RedisRelayConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.RelayChannel,
		}, broker)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize Redis relay")
		}
		defer relay.Close()
		g.Go(func() error {
			relay.Run(ctx)
			return nil
		})
		logger.Info().Str("address", cfg.Redis.Address).Msg("connected to Redis")
	} else {
		identities = store.NewMemoryStore()
	}
	defer identities.Close()

	// HTTP routes
	wsHandler := handler.NewWSHandler(broker, roomCodes, entryIDs, identities, cfg.WebSocket)
	httpHandler := handler.NewHTTPHandler(roomCodes)

	router := mux.NewRouter()
	wsHandler.RegisterRoutes(router)
	httpHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("chatter listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("chatter stopped")
}
