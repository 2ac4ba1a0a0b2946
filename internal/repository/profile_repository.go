package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/padhub/backend/internal/database"
	"github.com/padhub/backend/internal/models"
)

type ProfileRepository struct {
	db *database.DB
}

func NewProfileRepository(db *database.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Upsert stores the identity asserted by the auth provider. Existing rows
// keep their role unless profile carries one.
func (r *ProfileRepository) Upsert(ctx context.Context, profile *models.Profile) error {
	if profile.Role == "" {
		profile.Role = models.RoleTenant
	}

	query := `
		INSERT INTO profiles (id, email, full_name, role, phone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			role = EXCLUDED.role,
			phone = COALESCE(EXCLUDED.phone, profiles.phone),
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		profile.ID,
		profile.Email,
		profile.FullName,
		profile.Role,
		profile.Phone,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return storageError("upsert profile", err)
	}
	return nil
}

// GetByID retrieves a profile by ID
func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	query := `
		SELECT id, email, full_name, role, phone, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`

	profile := &models.Profile{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&profile.ID,
		&profile.Email,
		&profile.FullName,
		&profile.Role,
		&profile.Phone,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, notFoundOr("profile", "get profile", err)
	}
	return profile, nil
}
