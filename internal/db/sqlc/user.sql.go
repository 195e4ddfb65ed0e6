package db

import (
	"context"

	"github.com/katatrina/schoolhub-BE/internal/notification"
)

const createUser = `-- name: CreateUser :one
INSERT INTO users (id, full_name, email, hashed_password, role)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, full_name, email, hashed_password, role, created_at
`

type CreateUserParams struct {
	ID             string            `json:"id"`
	FullName       string            `json:"full_name"`
	Email          string            `json:"email"`
	HashedPassword string            `json:"hashed_password"`
	Role           notification.Role `json:"role"`
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser,
		arg.ID,
		arg.FullName,
		arg.Email,
		arg.HashedPassword,
		string(arg.Role),
	)
	return scanUser(row)
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT id, full_name, email, hashed_password, role, created_at FROM users
WHERE email = $1
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByEmail, email)
	return scanUser(row)
}

const getUserByID = `-- name: GetUserByID :one
SELECT id, full_name, email, hashed_password, role, created_at FROM users
WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, id)
	return scanUser(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (User, error) {
	var i User
	var role string
	err := row.Scan(
		&i.ID,
		&i.FullName,
		&i.Email,
		&i.HashedPassword,
		&role,
		&i.CreatedAt,
	)
	i.Role = notification.Role(role)
	return i, err
}
