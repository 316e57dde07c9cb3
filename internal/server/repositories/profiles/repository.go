// Package profiles stores the registration profile attached to each user.
package profiles

import (
	"context"

	"github.com/sparkbridge/server/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, profile *models.Profile) (*models.Profile, error)
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	// SetAdmin updates the admin flag and returns the updated profile.
	SetAdmin(ctx context.Context, id string, isAdmin bool) (*models.Profile, error)
}
