package db

import (
	"time"

	"github.com/katatrina/schoolhub-BE/internal/notification"
)

type User struct {
	ID             string            `json:"id"`
	FullName       string            `json:"full_name"`
	Email          string            `json:"email"`
	HashedPassword string            `json:"-"`
	Role           notification.Role `json:"role"`
	CreatedAt      time.Time         `json:"created_at"`
}
