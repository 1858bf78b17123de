package store

import (
	"context"
	"fmt"
	"time"

	"market-service/internal/pushkey"
	"market-service/internal/repository"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var (
	_ repository.ItemStore        = (*Store)(nil)
	_ repository.TransactionStore = (*Store)(nil)
	_ repository.MessageStore     = (*Store)(nil)
	_ repository.ReviewStore      = (*Store)(nil)
)

type Store struct {
	db   *sqlx.DB
	keys *pushkey.Generator
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, keys: pushkey.NewGenerator(nil)}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
