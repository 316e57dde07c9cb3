// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/sparkbridge/server/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking refresh tokens.
type Repository interface {
	// Create stores a new refresh token for userID that stops being valid at expiresAt.
	Create(ctx context.Context, userID string, token string, expiresAt time.Time) error

	// FindActive looks up a refresh token that has not yet expired.
	// Absent and expired tokens both yield common.ErrorNotFound.
	FindActive(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes a refresh token by its token string and reports how many
	// rows went away. Zero is not an error.
	Delete(ctx context.Context, token string) (int64, error)

	// DeleteByUser removes every refresh token belonging to userID.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpired removes tokens whose expiry has passed.
	DeleteExpired(ctx context.Context) (int64, error)
}
