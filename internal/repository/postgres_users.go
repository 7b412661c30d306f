package repository

import (
	"context"

	"github.com/google/uuid"

	"promptlab/pkg/models"
)

// GetUserBySubject returns the user for an OIDC subject.
func (r *PostgresRepository) GetUserBySubject(ctx context.Context, subject string) (*models.User, error) {
	var u models.User
	err := r.db.QueryRow(ctx,
		"SELECT id, subject, email, created_at, updated_at FROM users WHERE subject = $1", subject,
	).Scan(&u.ID, &u.Subject, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "user", subject)
	}
	return &u, nil
}

// CreateUser inserts the user. Two first requests for the same subject may
// race; the loser picks up the winner's row.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (id, subject, email) VALUES ($1, $2, $3)
		ON CONFLICT (subject) DO UPDATE SET email = EXCLUDED.email, updated_at = now()
		RETURNING id, created_at, updated_at`,
		user.ID, user.Subject, user.Email,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return mapError(err, "user", user.Subject)
}
