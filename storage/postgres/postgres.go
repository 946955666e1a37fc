// Package postgres stores chunks in a PostgreSQL table.
package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/opengs/xmlsplit/query"
	"github.com/opengs/xmlsplit/splitter"
	"github.com/opengs/xmlsplit/storage"
	"github.com/opengs/xmlsplit/storage/postgres/migrations"
)

type PostgresStore struct {
	db *sql.DB

	databaseName   string
	databaseSchema string
	databasePrefix string

	chunkTable string
}

var _ storage.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB, options ...PostgresOption) *PostgresStore {
	store := &PostgresStore{
		db:             db,
		databaseName:   "postgres",
		databaseSchema: "public",
		databasePrefix: "xmlsplit_",
	}

	for _, option := range options {
		option(store)
	}

	store.chunkTable = fmt.Sprintf("%s.%schunk", store.databaseSchema, store.databasePrefix)

	return store
}

func (s *PostgresStore) migrator() (*migrate.Migrate, error) {
	migrationFiles, err := migrations.PrepareMigrations(s.databaseSchema, s.databasePrefix)
	if err != nil {
		return nil, errors.Join(errors.New("failed to prepare migration files"), err)
	}

	driver, err := migratepostgres.WithInstance(s.db, &migratepostgres.Config{
		SchemaName:      s.databaseSchema,
		MigrationsTable: fmt.Sprintf("%smigrations", s.databasePrefix),
	})
	if err != nil {
		return nil, errors.Join(errors.New("failed to create postgres migration driver"), err)
	}

	migrationsSource, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return nil, errors.Join(errors.New("failed to open postgres migrations source"), err)
	}

	migrator, err := migrate.NewWithInstance("migrations", migrationsSource, s.databaseName, driver)
	if err != nil {
		return nil, errors.Join(errors.New("failed to create migrator"), err)
	}
	return migrator, nil
}

// Install creates the chunk table. Running it on an installed database is a
// no-op.
func (s *PostgresStore) Install(ctx context.Context) error {
	migrator, err := s.migrator()
	if err != nil {
		return err
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Join(errors.New("error while performing migration on the database"), err)
	}

	return nil
}

// UnInstall drops every table created by Install, stored chunks included.
func (s *PostgresStore) UnInstall(ctx context.Context) error {
	migrator, err := s.migrator()
	if err != nil {
		return err
	}

	if err := migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Join(errors.New("error while performing migration on the database"), err)
	}

	if _, err := s.db.ExecContext(ctx, "DROP TABLE "+fmt.Sprintf("%s.%smigrations", s.databaseSchema, s.databasePrefix)); err != nil {
		return errors.Join(errors.New("failed to drop migrations table"), err)
	}

	return nil
}

func (s *PostgresStore) Add(ctx context.Context, chunk []byte, meta splitter.ChunkMeta, layer string, correlationID string) (string, error) {
	layer = storage.NormalizeLayer(layer)
	path := storage.NewChunkPath(layer, correlationID)

	encodedMeta, err := storage.EncodeMeta(meta)
	if err != nil {
		return "", err
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (path, layer, correlation_id, meta, content)
		VALUES ($1, $2, $3, $4, $5)
	`, s.chunkTable)
	if _, err := s.db.ExecContext(ctx, stmt, path, layer, correlationID, string(encodedMeta), chunk); err != nil {
		return "", errors.Join(errors.New("failed to insert chunk in the database"), err)
	}

	return path, nil
}

func (s *PostgresStore) GetOne(ctx context.Context, path string) (io.ReadCloser, error) {
	stmt := fmt.Sprintf(`
		SELECT content
		FROM %s
		WHERE path = $1
	`, s.chunkTable)
	var content []byte
	if err := s.db.QueryRowContext(ctx, stmt, path).Scan(&content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrChunkNotFound
		}

		return nil, errors.Join(errors.New("failed to get chunk from the database"), err)
	}

	return io.NopCloser(bytes.NewReader(content)), nil
}

// Get streams the chunks of the layer from the database and filters them with
// the compiled search. Only the chunk being inspected is held in memory.
func (s *PostgresStore) Get(ctx context.Context, search string, layer string) (storage.Cursor, error) {
	matcher, err := query.Compile(search)
	if err != nil {
		return nil, err
	}

	contentColumn := "content"
	if matcher.MatchAll() {
		contentColumn = "''::bytea"
	}

	stmt := fmt.Sprintf(`
		SELECT path, layer, correlation_id, meta, %s, imported_at
		FROM %s
		WHERE starts_with(layer, $1)
		ORDER BY chunk_id
	`, contentColumn, s.chunkTable)
	rows, err := s.db.QueryContext(ctx, stmt, storage.NormalizeLayer(layer))
	if err != nil {
		return nil, errors.Join(errors.New("failed to get chunks from the database"), err)
	}

	return &rowCursor{rows: rows, matcher: matcher}, nil
}

func (s *PostgresStore) Delete(ctx context.Context, search string, layer string) (int, error) {
	matcher, err := query.Compile(search)
	if err != nil {
		return 0, err
	}

	if matcher.MatchAll() {
		stmt := fmt.Sprintf(`
			DELETE FROM %s
			WHERE starts_with(layer, $1)
		`, s.chunkTable)
		result, err := s.db.ExecContext(ctx, stmt, storage.NormalizeLayer(layer))
		if err != nil {
			return 0, errors.Join(errors.New("failed to delete chunks from the database"), err)
		}
		affected, _ := result.RowsAffected()
		return int(affected), nil
	}

	cursor, err := s.Get(ctx, search, layer)
	if err != nil {
		return 0, err
	}
	var paths []string
	for cursor.Next(ctx) {
		paths = append(paths, cursor.Current().Path)
	}
	cursor.Close()
	if err := cursor.Err(); err != nil {
		return 0, err
	}
	if len(paths) == 0 {
		return 0, nil
	}

	stmt := fmt.Sprintf(`
		DELETE FROM %s
		WHERE path = ANY($1)
	`, s.chunkTable)
	result, err := s.db.ExecContext(ctx, stmt, paths)
	if err != nil {
		return 0, errors.Join(errors.New("failed to delete chunks from the database"), err)
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

type rowCursor struct {
	rows    *sql.Rows
	matcher *query.Matcher

	current storage.Item
	err     error
}

func (c *rowCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}

	for c.rows.Next() {
		if err := ctx.Err(); err != nil {
			c.err = err
			return false
		}

		var item storage.Item
		var rawMeta []byte
		var content []byte
		var importedAt time.Time
		if err := c.rows.Scan(&item.Path, &item.Layer, &item.CorrelationID, &rawMeta, &content, &importedAt); err != nil {
			c.err = errors.Join(errors.New("failed to scan chunk row from the database"), err)
			return false
		}
		item.ImportedAt = importedAt

		meta, err := storage.DecodeMeta(rawMeta)
		if err != nil {
			c.err = err
			return false
		}
		item.Meta = meta

		ok, err := c.matcher.Match(content, meta)
		if err != nil {
			c.err = err
			return false
		}
		if ok {
			c.current = item
			return true
		}
	}

	if err := c.rows.Err(); err != nil {
		c.err = errors.Join(errors.New("errors while reading response from the database"), err)
	}
	return false
}

func (c *rowCursor) Current() storage.Item {
	return c.current
}

func (c *rowCursor) Err() error {
	return c.err
}

func (c *rowCursor) Close() error {
	return c.rows.Close()
}
