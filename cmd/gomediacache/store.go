package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	gomediacache "github.com/dgduncan/go-media-cache"
	dynamostore "github.com/dgduncan/go-media-cache/caches/dynamodb"
	"github.com/dgduncan/go-media-cache/caches/local"
	mongostore "github.com/dgduncan/go-media-cache/caches/mongodb"
	"github.com/dgduncan/go-media-cache/caches/postgres"
	redisstore "github.com/dgduncan/go-media-cache/caches/redis"
	"github.com/dgduncan/go-media-cache/caches/sqlite"
	"github.com/dgduncan/go-media-cache/config"
)

// openStore builds the configured backend. The returned func releases its
// connections and is never nil.
func openStore(ctx context.Context, c config.StoreConfig, logger *slog.Logger) (gomediacache.Cache, func(), error) {
	noop := func() {}

	switch c.Backend {
	case config.StoreMemory:
		return local.NewBasicCache(), noop, nil

	case config.StoreSQLite:
		db, err := sqlite.Open(c.Path)
		if err != nil {
			return nil, noop, err
		}
		cache, err := sqlite.New(ctx, db)
		if err != nil {
			db.Close()
			return nil, noop, err
		}
		return cache, func() { db.Close() }, nil

	case config.StorePostgres:
		db, err := sql.Open("postgres", c.URL)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open postgres: %w", err)
		}
		cache, err := postgres.New(ctx, db, &postgres.Config{
			DeleteExpiredItems: true,
			ExpiredTaskTimer:   c.CleanupInterval,
			ItemExpiration:     c.Retention,
			Logger:             logger,
		})
		if err != nil {
			db.Close()
			return nil, noop, err
		}
		return cache, func() { db.Close() }, nil

	case config.StoreRedis:
		client, err := redisstore.Connect(ctx, c.URL)
		if err != nil {
			return nil, noop, err
		}
		cache, err := redisstore.New(client, &redisstore.Config{
			Prefix:         c.Prefix,
			ItemExpiration: c.Retention,
		})
		if err != nil {
			client.Close()
			return nil, noop, err
		}
		return cache, func() { client.Close() }, nil

	case config.StoreDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if c.URL != "" {
				o.BaseEndpoint = aws.String(c.URL)
			}
		})
		if err := dynamostore.CreateTable(ctx, client, c.Table); err != nil {
			return nil, noop, err
		}
		cache, err := dynamostore.New(ctx, client, &dynamostore.Config{
			Table:          c.Table,
			ItemExpiration: c.Retention,
		})
		if err != nil {
			return nil, noop, err
		}
		return cache, noop, nil

	case config.StoreMongoDB:
		client, err := mongostore.Connect(ctx, c.URL)
		if err != nil {
			return nil, noop, err
		}
		release := func() { client.Disconnect(context.Background()) }
		cache, err := mongostore.New(ctx, client.Database(c.Database), &mongostore.Config{
			ItemExpiration: c.Retention,
		})
		if err != nil {
			release()
			return nil, noop, err
		}
		return cache, release, nil
	}

	return nil, noop, fmt.Errorf("%w: unknown store %q", config.ErrInvalidConfig, c.Backend)
}
