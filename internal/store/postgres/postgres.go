// Package postgres implements the chat store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/johndosdos/skillxchange/internal/model"
	"github.com/johndosdos/skillxchange/internal/store"
	"github.com/johndosdos/skillxchange/internal/store/migrations"
)

const uniqueViolation = "23505"

var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL backend. A store built with New leaves the pool to
// its caller; one from Open closes it.
type Store struct {
	pool       *pgxpool.Pool
	maxContent int
	ownsPool   bool
}

func New(pool *pgxpool.Pool, maxContent int) *Store {
	if maxContent <= 0 {
		maxContent = model.DefaultMaxContentLength
	}
	return &Store{pool: pool, maxContent: maxContent}
}

// Open connects to dbURL and applies pending migrations.
func Open(ctx context.Context, dbURL string, maxContent int) (*Store, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("internal/store: connect: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	s := New(pool, maxContent)
	s.ownsPool = true
	return s, nil
}

func (s *Store) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

// Migrate applies every embedded goose migration that has not run yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("internal/store: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("internal/store: goose up: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
