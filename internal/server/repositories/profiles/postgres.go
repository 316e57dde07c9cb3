package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sparkbridge/server/internal/common"
	"github.com/sparkbridge/server/internal/dbx"
	"github.com/sparkbridge/server/internal/server/models"
)

const profileColumns = `id, email, first_name, last_name, company, job_title, attendee_type, is_admin, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts profile under the id of its owning user. is_admin is always
// false for a new profile.
func (r *PostgresRepository) Create(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	query :=
		`INSERT INTO profiles (id, email, first_name, last_name, company, job_title, attendee_type, is_admin)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		 RETURNING is_admin, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.Email, p.FirstName, p.LastName, p.Company, p.JobTitle, string(p.AttendeeType),
	).Scan(&p.IsAdmin, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return p, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return scanProfile(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) SetAdmin(ctx context.Context, id string, isAdmin bool) (*models.Profile, error) {
	query :=
		`UPDATE profiles SET is_admin = $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING ` + profileColumns

	return scanProfile(r.db.QueryRowContext(ctx, query, id, isAdmin))
}

func scanProfile(row *sql.Row) (*models.Profile, error) {
	var (
		p            models.Profile
		company      sql.NullString
		jobTitle     sql.NullString
		attendeeType string
	)

	err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &company, &jobTitle,
		&attendeeType, &p.IsAdmin, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if company.Valid {
		p.Company = &company.String
	}
	if jobTitle.Valid {
		p.JobTitle = &jobTitle.String
	}
	p.AttendeeType = models.AttendeeType(attendeeType)

	return &p, nil
}
