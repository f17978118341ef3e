// Package postgres provides a PostgreSQL implementation of storage.RequestLog
// using pgx/v5 connection pooling.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/rabbithole/pkg/storage"
)

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

// Store is a PostgreSQL-backed RequestLog.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.RequestLog = (*Store)(nil)

// New creates a PostgreSQL request log. If MigrateOnStart is set, schema
// migrations are applied before the store is returned.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Save inserts a request record.
func (s *Store) Save(ctx context.Context, rec *storage.RequestRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO request_log (
			id, request_id, subject, tenant_id, model, stream,
			messages, status, duration_ms, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rec.ID, rec.RequestID, rec.Subject, rec.Tenant, rec.Model, rec.Stream,
		rec.Messages, rec.Status, rec.DurationMS, nullString(rec.Error), rec.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting request record: %w", err)
	}
	return nil
}

// List returns the newest records first, scoped to the caller's tenant
// when one is set.
func (s *Store) List(ctx context.Context, limit int) ([]*storage.RequestRecord, error) {
	limit = storage.ClampLimit(limit)
	tenant := storage.CallerFromContext(ctx).Tenant

	query := `
		SELECT id, request_id, subject, tenant_id, model, stream,
		       messages, status, duration_ms, error, created_at
		FROM request_log
	`
	args := []any{}
	if tenant != "" {
		query += " WHERE tenant_id = $1"
		args = append(args, tenant)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying request log: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*storage.RequestRecord, error) {
		var rec storage.RequestRecord
		var errText *string
		if err := row.Scan(
			&rec.ID, &rec.RequestID, &rec.Subject, &rec.Tenant, &rec.Model, &rec.Stream,
			&rec.Messages, &rec.Status, &rec.DurationMS, &errText, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if errText != nil {
			rec.Error = *errText
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		return &rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning request log: %w", err)
	}
	return records, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// nullString converts an empty string to nil for nullable TEXT columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
