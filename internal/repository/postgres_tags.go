package repository

import (
	"context"

	"github.com/google/uuid"

	"promptlab/pkg/models"
)

// CreateTag inserts a tag. Duplicate names for one owner are a ConflictError.
func (r *PostgresRepository) CreateTag(ctx context.Context, tag *models.Tag) error {
	if tag.ID == "" {
		tag.ID = uuid.New().String()
	}
	err := r.db.QueryRow(ctx,
		"INSERT INTO tags (id, user_id, name, color) VALUES ($1, $2, $3, $4) RETURNING created_at",
		tag.ID, tag.UserID, tag.Name, tag.Color,
	).Scan(&tag.CreatedAt)
	return mapError(err, "tag", tag.ID)
}

// GetTag returns one of the owner's tags.
func (r *PostgresRepository) GetTag(ctx context.Context, ownerID, id string) (*models.Tag, error) {
	var t models.Tag
	err := r.db.QueryRow(ctx,
		"SELECT id, user_id, name, color, created_at FROM tags WHERE id = $1 AND user_id = $2", id, ownerID,
	).Scan(&t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt)
	if err != nil {
		return nil, mapError(err, "tag", id)
	}
	return &t, nil
}

// ListTags lists the owner's tags by name.
func (r *PostgresRepository) ListTags(ctx context.Context, ownerID string) ([]*models.Tag, error) {
	return r.queryTags(ctx,
		"SELECT id, user_id, name, color, created_at FROM tags WHERE user_id = $1 ORDER BY name ASC", ownerID)
}

// ListTagsForPrompt lists the tags attached to one of the owner's prompts.
func (r *PostgresRepository) ListTagsForPrompt(ctx context.Context, ownerID, promptID string) ([]*models.Tag, error) {
	if err := r.ensurePromptOwned(ctx, r.db, ownerID, promptID); err != nil {
		return nil, err
	}
	return r.queryTags(ctx, `
		SELECT t.id, t.user_id, t.name, t.color, t.created_at
		FROM tags t
		JOIN prompt_tags pt ON pt.tag_id = t.id
		WHERE pt.prompt_id = $1
		ORDER BY t.name ASC`, promptID)
}

func (r *PostgresRepository) queryTags(ctx context.Context, sql string, args ...any) ([]*models.Tag, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []*models.Tag{}
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return nil, err
		}
		tags = append(tags, &t)
	}
	return tags, rows.Err()
}

// UpdateTag renames or recolors a tag.
func (r *PostgresRepository) UpdateTag(ctx context.Context, tag *models.Tag) error {
	err := r.db.QueryRow(ctx, `
		UPDATE tags SET name = $1, color = $2
		WHERE id = $3 AND user_id = $4
		RETURNING created_at`,
		tag.Name, tag.Color, tag.ID, tag.UserID,
	).Scan(&tag.CreatedAt)
	return mapError(err, "tag", tag.ID)
}

// DeleteTag deletes a tag; its prompt pairings go with it.
func (r *PostgresRepository) DeleteTag(ctx context.Context, ownerID, id string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM tags WHERE id = $1 AND user_id = $2", id, ownerID)
	if err != nil {
		return mapError(err, "tag", id)
	}
	if tag.RowsAffected() == 0 {
		return models.NewNotFoundError("tag", id)
	}
	return nil
}
