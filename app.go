package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/repositories/memory"
)

// stores groups the repositories behind the configured driver.
type stores struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	unread        repositories.UnreadRepository
	users         repositories.UserDirectory
	close         func() error
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using in-memory store, data is lost on restart")
		store := memory.NewStore()
		return stores{
			conversations: store,
			messages:      store,
			unread:        store,
			users:         store,
			close:         func() error { return nil },
		}, nil
	}

	database, err := db.Connect(ctx, cfg.DatabaseDSN, log)
	if err != nil {
		return stores{}, fmt.Errorf("failed to connect to db: %w", err)
	}
	return postgresStores(database), nil
}

func postgresStores(database *sqlx.DB) stores {
	return stores{
		conversations: repositories.NewConversationRepo(database),
		messages:      repositories.NewMessageRepo(database),
		unread:        repositories.NewUnreadRepo(database),
		users:         repositories.NewUserRepo(database),
		close:         database.Close,
	}
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log := observability.NewLogger(cfg.LogLevel, cfg.ServiceName, cfg.Environment)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}
