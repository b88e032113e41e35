package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	defaultDocumentName = "products"
	pgUndefinedTable    = "42P01"
)

type PostgresStore struct {
	db   *sql.DB
	name string
	log  *zap.Logger
}

// OpenPostgres opens a database/sql handle backed by the pgx driver.
func OpenPostgres(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewPostgresStore(db *sql.DB, log *zap.Logger) *PostgresStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresStore{db: db, name: defaultDocumentName, log: log}
}

func (s *PostgresStore) Init(ctx context.Context) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS inventory_documents (
				name       TEXT PRIMARY KEY,
				body       JSONB NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)
		`)
		if err != nil {
			return err
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO inventory_documents (name, body)
			VALUES ($1, '{"products": []}'::jsonb)
			ON CONFLICT (name) DO NOTHING
		`, s.name)
		return err
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresStore) Load(ctx context.Context) (Document, error) {
	var raw []byte

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT body
			FROM inventory_documents
			WHERE name = $1
		`, s.name).Scan(&raw)
	})

	if errors.Is(err, sql.ErrNoRows) || isUndefinedTable(err) {
		return Document{Products: Collection{}}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("load document: %w", err)
	}

	doc, ok := decodeDocument(raw)
	if !ok {
		s.log.Warn("malformed document, using empty collection", zap.String("name", s.name))
	}
	return doc, nil
}

func (s *PostgresStore) Save(ctx context.Context, doc Document) error {
	raw, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO inventory_documents (name, body, updated_at)
			VALUES ($1, $2::jsonb, now())
			ON CONFLICT (name) DO UPDATE
			SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
		`, s.name, string(raw))
		return err
	})
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}
