package main

import (
	"context"
	"errors"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/opengs/xmlsplit/config"
	"github.com/opengs/xmlsplit/storage"
	"github.com/opengs/xmlsplit/storage/memory"
	"github.com/opengs/xmlsplit/storage/postgres"
	"github.com/opengs/xmlsplit/storage/s3store"
)

// openStore connects the configured store. The returned function releases it.
func openStore(ctx context.Context, cfg config.Store, logger *slog.Logger) (storage.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		connConfig, err := pgx.ParseConfig(cfg.Postgres.URL)
		if err != nil {
			return nil, nil, errors.Join(errors.New("invalid postgres URL"), err)
		}
		db := stdlib.OpenDB(*connConfig)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, errors.Join(errors.New("failed to connect to postgres"), err)
		}

		store := postgres.NewPostgresStore(db,
			postgres.WithDatabaseName(connConfig.Database),
			postgres.WithDatabaseSchema(cfg.Postgres.Schema),
			postgres.WithDatabasePrefix(cfg.Postgres.Prefix),
		)
		if err := store.Install(ctx); err != nil {
			db.Close()
			return nil, nil, errors.Join(errors.New("failed to install postgres schema"), err)
		}
		logger.Info("using postgres store", "database", connConfig.Database, "schema", cfg.Postgres.Schema)
		return store, func() { db.Close() }, nil

	case config.DriverS3:
		awsConfig, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, errors.Join(errors.New("failed to load AWS configuration"), err)
		}
		client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			if cfg.S3.Endpoint != "" {
				o.BaseEndpoint = &cfg.S3.Endpoint
			}
			o.UsePathStyle = cfg.S3.UsePathStyle
		})
		logger.Info("using s3 store", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
		return s3store.NewS3Store(client, cfg.S3.Bucket, s3store.WithPrefix(cfg.S3.Prefix)), func() {}, nil

	default:
		logger.Info("using in-memory store, chunks are lost on exit")
		return memory.New(), func() {}, nil
	}
}
