package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/todoapp/auth-service/internal/config"
	"github.com/todoapp/auth-service/internal/database"
	"github.com/todoapp/auth-service/internal/sessions"
	"github.com/todoapp/auth-service/internal/users"
	"github.com/todoapp/auth-service/pkg/logger"
)

const (
	mongoConnectAttempts = 5
	redisSessionPrefix   = "session:"
)

// Backends holds the connections opened for the configured stores and the
// repositories built on top of them.
type Backends struct {
	Sessions sessions.Repository
	Users    users.Repository
	// Redis is also used for access token revocations and rate limiting. It is
	// nil when REDIS_HOST is unset or unreachable and sessions live elsewhere.
	Redis *redis.Client

	mongo *mongo.Client
	sql   *bun.DB
}

// Open connects to every backend cfg selects and builds the session and user
// repositories.
func Open(ctx context.Context, cfg *config.Config) (*Backends, error) {
	b := &Backends{}
	sessionBackend := cfg.Storage.SessionBackend
	userBackend := cfg.Storage.UserBackend

	if cfg.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			if sessionBackend == config.BackendRedis {
				return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr(), err)
			}
			logger.Warnf("redis %s unreachable, revocations and redis rate limiting disabled: %v", cfg.Redis.Addr(), err)
		} else {
			b.Redis = client
			logger.Infof("connected to Redis: %s", cfg.Redis.Addr())
		}
	}

	if sessionBackend == config.BackendMongo || userBackend == config.BackendMongo {
		client, err := connectMongo(ctx, cfg.MongoDB)
		if err != nil {
			b.Close(ctx)
			return nil, err
		}
		b.mongo = client
	}

	if sessionBackend == config.BackendSQL || userBackend == config.BackendSQL {
		db, err := database.OpenSQL(ctx, cfg.SQL.DSN)
		if err != nil {
			b.Close(ctx)
			return nil, err
		}
		b.sql = db
		logger.Infof("connected to %s database", database.DetectDialect(cfg.SQL.DSN))
	}

	switch sessionBackend {
	case config.BackendRedis:
		b.Sessions = sessions.NewRedisRepository(b.Redis, redisSessionPrefix)
	case config.BackendMongo:
		b.Sessions = sessions.NewMongoRepository(b.mongo.Database(cfg.MongoDB.Database).Collection("sessions"))
	case config.BackendSQL:
		b.Sessions = sessions.NewSQLRepository(b.sql)
	case config.BackendMemory:
		logger.Warnf("sessions are kept in memory and lost on restart")
		b.Sessions = sessions.NewMemoryRepository()
	default:
		b.Close(ctx)
		return nil, fmt.Errorf("unknown session backend %q", sessionBackend)
	}

	switch userBackend {
	case config.BackendMongo:
		b.Users = users.NewMongoRepository(b.mongo.Database(cfg.MongoDB.Database).Collection("users"))
	case config.BackendSQL:
		b.Users = users.NewSQLRepository(b.sql)
	case config.BackendMemory:
		logger.Warnf("users are kept in memory and lost on restart")
		b.Users = users.NewMemoryRepository()
	default:
		b.Close(ctx)
		return nil, fmt.Errorf("unknown user backend %q", userBackend)
	}

	logger.Infof("storage: sessions=%s users=%s", sessionBackend, userBackend)
	return b, nil
}

// connectMongo retries with backoff to tolerate startup races with the database container.
func connectMongo(ctx context.Context, cfg config.MongoDBConfig) (*mongo.Client, error) {
	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= mongoConnectAttempts; attempt++ {
		client, err := database.ConnectMongo(ctx, cfg.URI, cfg.Timeout)
		if err == nil {
			logger.Infof("connected to MongoDB (database=%s)", cfg.Database)
			return client, nil
		}
		lastErr = err
		logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, mongoConnectAttempts, err)
		if attempt < mongoConnectAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("could not connect to MongoDB after %d attempts: %w", mongoConnectAttempts, lastErr)
}

type sqlSchema interface {
	CreateSchema(ctx context.Context) error
}

type mongoIndexes interface {
	EnsureIndexes(ctx context.Context) error
}

// EnsureSchema creates tables and indexes for the selected repositories.
// It is idempotent.
func (b *Backends) EnsureSchema(ctx context.Context) error {
	for name, repo := range map[string]interface{}{"users": b.Users, "sessions": b.Sessions} {
		switch r := repo.(type) {
		case sqlSchema:
			if err := r.CreateSchema(ctx); err != nil {
				return fmt.Errorf("create %s schema: %w", name, err)
			}
		case mongoIndexes:
			if err := r.EnsureIndexes(ctx); err != nil {
				return fmt.Errorf("ensure %s indexes: %w", name, err)
			}
		}
	}
	return nil
}

// Ready pings every open connection and reports the result per dependency.
func (b *Backends) Ready(ctx context.Context) map[string]bool {
	deps := map[string]bool{}
	if b.Redis != nil {
		deps["redis"] = b.Redis.Ping(ctx).Err() == nil
	}
	if b.mongo != nil {
		deps["mongodb"] = b.mongo.Ping(ctx, nil) == nil
	}
	if b.sql != nil {
		deps["sql"] = b.sql.PingContext(ctx) == nil
	}
	return deps
}

// Close releases every connection. It is safe to call on a partially opened value.
func (b *Backends) Close(ctx context.Context) error {
	var errs []error
	if b.Redis != nil {
		errs = append(errs, b.Redis.Close())
	}
	if b.mongo != nil {
		errs = append(errs, b.mongo.Disconnect(ctx))
	}
	if b.sql != nil {
		errs = append(errs, b.sql.Close())
	}
	return errors.Join(errs...)
}
