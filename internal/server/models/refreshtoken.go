package models

import "time"

// RefreshToken is a persisted, revocable refresh credential. A token is live
// only while its row exists and ExpiresAt is in the future.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}
