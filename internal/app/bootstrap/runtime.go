package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/cardio-intake/internal/compliance"
	appconfig "github.com/wolfman30/cardio-intake/internal/config"
	"github.com/wolfman30/cardio-intake/internal/draft"
	"github.com/wolfman30/cardio-intake/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildDraftStore prefers Redis, then DynamoDB when a table is configured,
// and falls back to process memory. Drafts expire with the session.
func BuildDraftStore(redisClient *redis.Client, dynamo draft.DynamoAPI, cfg *appconfig.Config, logger *logging.Logger) draft.Store {
	if logger == nil {
		logger = logging.Default()
	}
	ttl := draft.DefaultTTL
	if cfg != nil && cfg.SessionTTL > 0 {
		ttl = cfg.SessionTTL
	}
	switch {
	case redisClient != nil:
		logger.Info("drafts stored in redis", "ttl", ttl.String())
		return draft.NewRedisStore(redisClient, ttl)
	case dynamo != nil && cfg != nil && strings.TrimSpace(cfg.DraftTable) != "":
		logger.Info("drafts stored in dynamodb", "table", cfg.DraftTable, "ttl", ttl.String())
		return draft.NewDynamoStore(dynamo, strings.TrimSpace(cfg.DraftTable), ttl)
	default:
		logger.Warn("drafts kept in memory; they will not survive a restart", "ttl", ttl.String())
		return draft.NewMemoryStore(draft.WithTTL(ttl))
	}
}

// BuildAuditService opens the audit database. It returns (nil, nil, nil)
// when DATABASE_URL is unset; a nil *AuditService is a valid no-op.
func BuildAuditService(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*compliance.AuditService, *sql.DB, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: open audit db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping audit db: %w", err)
	}
	db.SetMaxOpenConns(5)
	logger.Info("compliance audit trail enabled")
	return compliance.NewAuditService(db), db, nil
}
