// Package users declares and implements storage for identity records.
package users

import (
	"context"

	"github.com/sparkbridge/server/internal/server/models"
)

// Repository stores users. Emails match exactly as stored.
type Repository interface {
	// Create inserts user and fills in ID and timestamps. A duplicate email
	// yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// GetByEmail returns common.ErrorNotFound when no user has that email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByID returns common.ErrorNotFound when the id is unknown.
	GetByID(ctx context.Context, id string) (*models.User, error)
}
