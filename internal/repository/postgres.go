package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"promptlab/pkg/models"
)

// PostgreSQL error codes the repository translates into domain errors.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgInvalidTextRepr      = "22P02"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is a PostgreSQL implementation of the Repository interface.
type PostgresRepository struct {
	db *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Ping checks the database connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Stats counts the owner's rows in one round trip.
func (r *PostgresRepository) Stats(ctx context.Context, ownerID string) (*models.Stats, error) {
	var s models.Stats
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM prompts WHERE user_id = $1),
			(SELECT count(*) FROM pinned_prompts WHERE user_id = $1),
			(SELECT count(*) FROM tags WHERE user_id = $1),
			(SELECT count(*) FROM workflows WHERE user_id = $1)`,
		ownerID,
	).Scan(&s.Prompts, &s.Pinned, &s.Tags, &s.Workflows)
	if err != nil {
		return nil, mapError(err, "user", ownerID)
	}
	return &s, nil
}

// mapError translates pgx errors into the domain error taxonomy.
// Errors that are already domain errors pass through unchanged.
func mapError(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.NewNotFoundError(entity, id)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected:
		return models.NewConflictError("concurrent modification of %s %s, retry the request", entity, id)
	case pgUniqueViolation:
		if pgErr.ConstraintName == "tags_user_name_key" {
			return models.NewConflictError("a tag with this name already exists")
		}
		return models.NewConflictError("concurrent modification of %s %s (%s)", entity, id, pgErr.ConstraintName)
	case pgForeignKeyViolation:
		return models.NewConflictError("%s %s is still referenced", entity, id)
	case pgCheckViolation:
		return models.NewValidationError(entity, pgErr.Message)
	case pgInvalidTextRepr:
		// a malformed id can never match a row
		return models.NewNotFoundError(entity, id)
	}
	return fmt.Errorf("%s %s: %w", entity, id, err)
}

// likePattern escapes a user search term for ILIKE.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}
