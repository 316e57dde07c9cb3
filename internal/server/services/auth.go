// Package services contains server-side business logic. This file implements
// AuthService: registration, login, issuing and verifying token pairs,
// refresh token rotation and revocation.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/sparkbridge/server/internal/common"
	"github.com/sparkbridge/server/internal/dbx"
	"github.com/sparkbridge/server/internal/logging"
	"github.com/sparkbridge/server/internal/server/auth"
	"github.com/sparkbridge/server/internal/server/config"
	"github.com/sparkbridge/server/internal/server/models"
	"github.com/sparkbridge/server/internal/server/repositories/repomanager"
)

// errRefreshConsumed means another caller deleted the refresh row between our
// verification and our delete.
var errRefreshConsumed = errors.New("refresh token already consumed")

// bcrypt reads at most this many bytes of a password.
const maxPasswordBytes = 72

// RegisterInput is what a new attendee submits. Field validation (email
// format, password length, names, attendee type) happens before this point.
type RegisterInput struct {
	Email        string
	Password     string
	FirstName    string
	LastName     string
	Company      *string
	JobTitle     *string
	AttendeeType models.AttendeeType
}

// LoginResult bundles a fresh token pair with the account it was issued for.
type LoginResult struct {
	Tokens  models.TokenPair
	User    *models.User
	Profile *models.Profile
}

// AuthService owns every write to users, profiles and refresh_tokens except
// profile attribute edits.
//
// All failures are *common.AuthError values; store and token detail is
// logged, never returned.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	access      *auth.Codec
	refresh     *auth.Codec
	bcryptCost  int
	logger      logging.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService builds an AuthService from repositories and server config.
// Access and refresh tokens use separate secrets and lifetimes.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		access:      auth.NewCodec([]byte(cfg.AccessSecret), cfg.AccessTokenTTL),
		refresh:     auth.NewCodec([]byte(cfg.RefreshSecret), cfg.RefreshTokenTTL),
		bcryptCost:  cfg.BcryptCost,
		logger:      logger.With("module", "auth"),
	}
}

// Register creates a user and its profile in one transaction.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, *models.Profile, error) {
	return s.register(ctx, in, false)
}

// RegisterAdmin is Register for an operator account: the admin flag is set
// in the same transaction, so the account never exists without it.
func (s *AuthService) RegisterAdmin(ctx context.Context, in RegisterInput) (*models.User, *models.Profile, error) {
	return s.register(ctx, in, true)
}

func (s *AuthService) register(ctx context.Context, in RegisterInput, admin bool) (*models.User, *models.Profile, error) {
	_, err := s.repomanager.Users(s.db).GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, nil, common.ErrDuplicateIdentity
	case !errors.Is(err, common.ErrorNotFound):
		return nil, nil, s.internal(ctx, "register: lookup email", err)
	}

	hash, err := bcrypt.GenerateFromPassword(passwordBytes(in.Password), s.bcryptCost)
	if err != nil {
		return nil, nil, s.internal(ctx, "register: hash password", err)
	}

	var (
		user    *models.User
		profile *models.Profile
	)
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := s.repomanager.Users(tx).Create(ctx, &models.User{
			Email:        in.Email,
			PasswordHash: string(hash),
		})
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		p, err := s.repomanager.Profiles(tx).Create(ctx, &models.Profile{
			ID:           u.ID,
			Email:        in.Email,
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			Company:      in.Company,
			JobTitle:     in.JobTitle,
			AttendeeType: in.AttendeeType,
		})
		if err != nil {
			return fmt.Errorf("create profile: %w", err)
		}

		if admin {
			if p, err = s.repomanager.Profiles(tx).SetAdmin(ctx, u.ID, true); err != nil {
				return fmt.Errorf("grant admin: %w", err)
			}
		}

		user, profile = u, p
		return nil
	})
	if err != nil {
		// A concurrent registration can win between the pre-check and the insert.
		if errors.Is(err, common.ErrorAlreadyExists) {
			s.logger.Warn(ctx, "register lost race on email", "error", err)
			return nil, nil, common.ErrDuplicateIdentity
		}
		return nil, nil, s.internal(ctx, "register: transaction", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID, "is_admin", profile.IsAdmin)
	return user, profile, nil
}

// Login checks credentials and issues a new token pair. Unknown email and
// wrong password are the same failure.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// Spend the same bcrypt time as a real comparison.
			_ = bcrypt.CompareHashAndPassword(s.dummyPasswordHash(), passwordBytes(password))
			return nil, common.NewAuthError(common.KindInvalidCredentials, fmt.Errorf("no user %q", email))
		}
		return nil, s.internal(ctx, "login: lookup user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), passwordBytes(password)); err != nil {
		s.logger.Warn(ctx, "login rejected", "user_id", user.ID, "error", err)
		return nil, common.NewAuthError(common.KindInvalidCredentials, err)
	}

	profile, err := s.repomanager.Profiles(s.db).GetByID(ctx, user.ID)
	if err != nil {
		return nil, s.internal(ctx, "login: load profile", err)
	}

	pair, err := s.issue(ctx, s.db, models.TokenPayload{
		UserID:  user.ID,
		Email:   user.Email,
		IsAdmin: profile.IsAdmin,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return &LoginResult{Tokens: *pair, User: user, Profile: profile}, nil
}

// IssueTokenPair signs an access and a refresh token for p and stores the
// refresh token. Every call stores a new row.
func (s *AuthService) IssueTokenPair(ctx context.Context, p models.TokenPayload) (*models.TokenPair, error) {
	return s.issue(ctx, s.db, p)
}

func (s *AuthService) issue(ctx context.Context, db dbx.DBTX, p models.TokenPayload) (*models.TokenPair, error) {
	access, _, err := s.access.Sign(p)
	if err != nil {
		return nil, s.internal(ctx, "sign access token", err)
	}

	refresh, expiresAt, err := s.refresh.Sign(p)
	if err != nil {
		return nil, s.internal(ctx, "sign refresh token", err)
	}

	if err := s.repomanager.RefreshTokens(db).Create(ctx, p.UserID, refresh, expiresAt); err != nil {
		return nil, s.internal(ctx, "store refresh token", err)
	}

	s.logger.Debug(ctx, "token pair issued", "user_id", p.UserID, "refresh_expires_at", expiresAt)
	return &models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess checks an access token without touching the store.
func (s *AuthService) VerifyAccess(ctx context.Context, token string) (models.TokenPayload, error) {
	p, err := s.access.Verify(token)
	if err != nil {
		s.logger.Debug(ctx, "access token rejected", "error", err)
		return models.TokenPayload{}, common.NewAuthError(common.KindInvalidOrExpiredToken, err)
	}
	return p, nil
}

// VerifyRefresh checks the refresh token signature and expiry, then requires
// a live row for it. Forged, expired and revoked tokens look the same to the
// caller.
func (s *AuthService) VerifyRefresh(ctx context.Context, token string) (models.TokenPayload, error) {
	p, err := s.refresh.Verify(token)
	if err != nil {
		s.logger.Warn(ctx, "refresh token failed verification", "error", err)
		return models.TokenPayload{}, common.NewAuthError(common.KindInvalidOrExpiredRefreshToken, err)
	}

	if _, err := s.repomanager.RefreshTokens(s.db).FindActive(ctx, token); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "refresh token revoked or expired in store", "user_id", p.UserID)
			return models.TokenPayload{}, common.NewAuthError(common.KindInvalidOrExpiredRefreshToken,
				fmt.Errorf("no live row: %w", err))
		}
		return models.TokenPayload{}, s.internal(ctx, "lookup refresh token", err)
	}

	return p, nil
}

// Refresh rotates a refresh token: verify, delete the presented row, then
// issue a new pair. The delete and the new row commit together. When the
// delete finds nothing, a concurrent refresh already used the token and this
// call fails without issuing anything.
func (s *AuthService) Refresh(ctx context.Context, token string) (*models.TokenPair, error) {
	p, err := s.VerifyRefresh(ctx, token)
	if err != nil {
		return nil, err
	}

	var pair *models.TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		n, err := s.repomanager.RefreshTokens(tx).Delete(ctx, token)
		if err != nil {
			return fmt.Errorf("delete refresh token: %w", err)
		}
		if n == 0 {
			return errRefreshConsumed
		}

		pair, err = s.issue(ctx, tx, p)
		return err
	})
	if err != nil {
		if errors.Is(err, errRefreshConsumed) {
			s.logger.Warn(ctx, "refresh token reused concurrently", "user_id", p.UserID)
			return nil, common.NewAuthError(common.KindInvalidOrExpiredRefreshToken, err)
		}
		var ae *common.AuthError
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, s.internal(ctx, "refresh: transaction", err)
	}

	s.logger.Info(ctx, "refresh token rotated", "user_id", p.UserID)
	return pair, nil
}

// Revoke deletes one refresh token. Unknown tokens are not an error.
func (s *AuthService) Revoke(ctx context.Context, token string) error {
	n, err := s.repomanager.RefreshTokens(s.db).Delete(ctx, token)
	if err != nil {
		return s.internal(ctx, "revoke refresh token", err)
	}
	s.logger.Debug(ctx, "refresh token revoked", "rows", n)
	return nil
}

// RevokeAll deletes every refresh token of userID and reports how many went.
func (s *AuthService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.repomanager.RefreshTokens(s.db).DeleteByUser(ctx, userID)
	if err != nil {
		return 0, s.internal(ctx, "revoke all refresh tokens", err)
	}
	s.logger.Info(ctx, "all sessions revoked", "user_id", userID, "rows", n)
	return n, nil
}

// GetCurrentUser loads the user and profile behind an authenticated request.
func (s *AuthService) GetCurrentUser(ctx context.Context, userID string) (*models.User, *models.Profile, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.NewAuthError(common.KindNotFound, err)
		}
		return nil, nil, s.internal(ctx, "load user", err)
	}

	profile, err := s.repomanager.Profiles(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.NewAuthError(common.KindNotFound, err)
		}
		return nil, nil, s.internal(ctx, "load profile", err)
	}

	return user, profile, nil
}

// SetAdmin changes the admin flag and revokes the user's sessions in the same
// transaction, so the next login carries the new flag.
func (s *AuthService) SetAdmin(ctx context.Context, userID string, isAdmin bool) (*models.Profile, error) {
	var profile *models.Profile
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		p, err := s.repomanager.Profiles(tx).SetAdmin(ctx, userID, isAdmin)
		if err != nil {
			return err
		}
		if _, err := s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, userID); err != nil {
			return err
		}
		profile = p
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NewAuthError(common.KindNotFound, err)
		}
		return nil, s.internal(ctx, "set admin", err)
	}

	s.logger.Info(ctx, "admin flag changed", "user_id", userID, "is_admin", isAdmin)
	return profile, nil
}

// PurgeExpired removes refresh rows past their expiry. Verification already
// ignores them; this only reclaims space.
func (s *AuthService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx)
	if err != nil {
		return 0, s.internal(ctx, "purge expired refresh tokens", err)
	}
	return n, nil
}

func (s *AuthService) internal(ctx context.Context, op string, err error) error {
	s.logger.Error(ctx, op, "error", err)
	return common.NewAuthError(common.KindInternal, fmt.Errorf("%s: %w", op, err))
}

// passwordBytes cuts a password to the part bcrypt hashes. Longer passwords
// are accepted; bytes past the limit do not count.
func passwordBytes(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}

func (s *AuthService) dummyPasswordHash() []byte {
	s.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.bcryptCost)
		if err != nil {
			h = []byte{}
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
