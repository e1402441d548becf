// Command authdb creates the tables and indexes of the configured session and
// user stores, then exits. It reads the same environment as the service.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/todoapp/auth-service/internal/config"
	"github.com/todoapp/auth-service/internal/storage"
	"github.com/todoapp/auth-service/pkg/logger"
)

type schemaStore interface {
	EnsureSchema(ctx context.Context) error
	Close(ctx context.Context) error
}

type opener func(ctx context.Context, cfg *config.Config) (schemaStore, error)

func openStorage(ctx context.Context, cfg *config.Config) (schemaStore, error) {
	return storage.Open(ctx, cfg)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Configure(cfg.Server.LogLevel, cfg.Server.Environment)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	err = run(ctx, cfg, openStorage)
	cancel()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	logger.Infof("schema ready: sessions=%s users=%s", cfg.Storage.SessionBackend, cfg.Storage.UserBackend)
}

// run returns only after the stores have been closed.
func run(ctx context.Context, cfg *config.Config, open opener) (err error) {
	store, err := open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if cerr := store.Close(context.Background()); cerr != nil {
			logger.Errorf("failed to close storage: %v", cerr)
			if err == nil {
				err = fmt.Errorf("failed to close storage: %w", cerr)
			}
		}
	}()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("schema setup failed: %w", err)
	}
	return nil
}
