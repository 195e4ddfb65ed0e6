package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/katatrina/schoolhub-BE/internal/notification"
)

//go:embed schema.sql
var schema string

// UserStore is the subset of queries the API needs for accounts.
type UserStore interface {
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
}

// Store provides all functions to execute db queries and transactions.
type Store interface {
	UserStore
	notification.Repository
	ExecTx(ctx context.Context, fn func(*Queries) error) error
	EnsureUser(ctx context.Context, arg CreateUserParams) (bool, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
}

type SQLStore struct {
	*Queries
	connPool *pgxpool.Pool
}

// NewStore creates a new Store.
func NewStore(db *pgxpool.Pool) Store {
	return &SQLStore{
		Queries:  New(db),
		connPool: db,
	}
}

// Ping checks if the database connection is alive.
func (store *SQLStore) Ping(ctx context.Context) error {
	return store.connPool.Ping(ctx)
}

// ExecTx runs fn within a database transaction.
func (store *SQLStore) ExecTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := store.connPool.Begin(ctx)
	if err != nil {
		return err
	}

	if err = fn(store.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

// Migrate creates the tables if they do not exist yet.
func (store *SQLStore) Migrate(ctx context.Context) error {
	_, err := store.connPool.Exec(ctx, schema)
	return err
}

// EnsureUser creates the user unless one with the same email exists.
// It reports whether a row was inserted.
func (store *SQLStore) EnsureUser(ctx context.Context, arg CreateUserParams) (bool, error) {
	created := false
	err := store.ExecTx(ctx, func(q *Queries) error {
		_, err := q.GetUserByEmail(ctx, arg.Email)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to look up user %s: %w", arg.Email, err)
		}

		if _, err = q.CreateUser(ctx, arg); err != nil {
			return fmt.Errorf("failed to create user %s: %w", arg.Email, err)
		}
		created = true
		return nil
	})
	return created, err
}
