package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/go-portfolio/chat-relay/config"
	"github.com/go-portfolio/chat-relay/internal/chat"
	"github.com/go-portfolio/chat-relay/internal/store"
	"github.com/go-portfolio/chat-relay/internal/web"
)

// App собирает все части сервера: хранилище, Hub и HTTP-маршруты.
type App struct {
	Config  *config.Config
	Store   store.MessageStore
	Hub     *chat.Hub
	Handler http.Handler
}

func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	// Хранилище сообщений
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init %s store: %w", cfg.StoreDriver, err)
	}
	st = store.Instrument(st, cfg.StoreDriver)
	log.Info().Str("driver", cfg.StoreDriver).Msg("message store ready")

	// ChatHub
	hub := chat.NewHub(st,
		chat.WithLogger(log.With().Str("component", "hub").Logger()),
		chat.WithStoreTimeout(cfg.StoreTimeout),
	)

	// Роуты
	srv := web.NewServer(hub, st, log.With().Str("component", "http").Logger(), web.Options{
		HistoryLimit:   cfg.HistoryLimit,
		StoreTimeout:   cfg.StoreTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	return &App{
		Config:  cfg,
		Store:   st,
		Hub:     hub,
		Handler: srv.Router(),
	}, nil
}

// Close освобождает хранилище. Hub к этому моменту должен быть остановлен.
func (a *App) Close() error {
	return a.Store.Close()
}

func openStore(ctx context.Context, cfg *config.Config) (store.MessageStore, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	case config.DriverPostgres:
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	case config.DriverSQLite:
		return store.NewSQLiteStore(ctx, cfg.SQLitePath)
	case config.DriverRedis:
		return store.NewRedisStore(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
