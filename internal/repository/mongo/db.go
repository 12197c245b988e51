package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"alcyxob/gym-notifier/internal/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	pingTimeout           = 5 * time.Second
	appName               = "gym-notifier"
)

// clientOptions builds the driver options for cfg.
func clientOptions(cfg config.DatabaseConfig) *options.ClientOptions {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(appName).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	return opts
}

// ConnectDB connects to the configured MongoDB deployment, pings the primary
// and returns the client with the pipeline database. The caller owns the
// client and must release it with DisconnectDB.
func ConnectDB(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*mongo.Client, *mongo.Database, error) {
	if cfg.Name == "" {
		return nil, nil, fmt.Errorf("mongo: database name is required")
	}
	opts := clientOptions(cfg)

	connectCtx, cancel := context.WithTimeout(ctx, *opts.ConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo: connect: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, pingTimeout)
	defer pingCancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = DisconnectDB(client)
		return nil, nil, fmt.Errorf("mongo: ping primary: %w", err)
	}

	log.Info("connected to MongoDB", zap.String("database", cfg.Name))
	return client, client.Database(cfg.Name), nil
}

// DisconnectDB gracefully disconnects the MongoDB client.
func DisconnectDB(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	return client.Disconnect(ctx)
}
