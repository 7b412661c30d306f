package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"promptlab/pkg/models"
)

const promptColumns = "p.id, p.user_id, p.title, p.description, p.content, p.created_at, p.updated_at"

// CreatePrompt inserts a prompt and fills in its id and timestamps.
func (r *PostgresRepository) CreatePrompt(ctx context.Context, prompt *models.Prompt) error {
	if prompt.ID == "" {
		prompt.ID = uuid.New().String()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO prompts (id, user_id, title, description, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		prompt.ID, prompt.UserID, prompt.Title, prompt.Description, prompt.Content,
	).Scan(&prompt.CreatedAt, &prompt.UpdatedAt)
	return mapError(err, "prompt", prompt.ID)
}

// GetPrompt returns one prompt with its tags and pin state.
func (r *PostgresRepository) GetPrompt(ctx context.Context, ownerID, id string) (*models.PromptWithTags, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+promptColumns+`, (pp.prompt_id IS NOT NULL)
		FROM prompts p
		LEFT JOIN pinned_prompts pp ON pp.prompt_id = p.id AND pp.user_id = p.user_id
		WHERE p.id = $1 AND p.user_id = $2`,
		id, ownerID,
	)
	var p models.PromptWithTags
	if err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &p.Content, &p.CreatedAt, &p.UpdatedAt, &p.IsPinned); err != nil {
		return nil, mapError(err, "prompt", id)
	}
	if err := r.attachTags(ctx, []*models.PromptWithTags{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPrompts lists the owner's prompts newest first. Pinned-only listings
// are ordered by most recently pinned.
func (r *PostgresRepository) ListPrompts(ctx context.Context, ownerID string, filter models.PromptFilter) ([]*models.PromptWithTags, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+promptColumns+`, (pp.prompt_id IS NOT NULL)
		FROM prompts p
		LEFT JOIN pinned_prompts pp ON pp.prompt_id = p.id AND pp.user_id = p.user_id
		WHERE p.user_id = $1
		  AND ($2 = '' OR p.title ILIKE $3 OR p.content ILIKE $3)
		  AND ($4 = '' OR EXISTS (
		        SELECT 1 FROM prompt_tags pt WHERE pt.prompt_id = p.id AND pt.tag_id::text = $4))
		  AND (NOT $5::boolean OR pp.prompt_id IS NOT NULL)
		ORDER BY CASE WHEN $5::boolean THEN pp.pinned_at END DESC NULLS LAST, p.created_at DESC`,
		ownerID, filter.Query, likePattern(filter.Query), filter.TagID, filter.PinnedOnly,
	)
	if err != nil {
		return nil, mapError(err, "user", ownerID)
	}
	defer rows.Close()

	prompts := []*models.PromptWithTags{}
	for rows.Next() {
		var p models.PromptWithTags
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &p.Content, &p.CreatedAt, &p.UpdatedAt, &p.IsPinned); err != nil {
			return nil, err
		}
		prompts = append(prompts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachTags(ctx, prompts); err != nil {
		return nil, err
	}
	return prompts, nil
}

// attachTags loads the tags of all given prompts in one query.
func (r *PostgresRepository) attachTags(ctx context.Context, prompts []*models.PromptWithTags) error {
	if len(prompts) == 0 {
		return nil
	}
	ids := make([]string, len(prompts))
	byID := make(map[string]*models.PromptWithTags, len(prompts))
	for i, p := range prompts {
		ids[i] = p.ID
		p.Tags = []*models.Tag{}
		byID[p.ID] = p
	}

	rows, err := r.db.Query(ctx, `
		SELECT pt.prompt_id, t.id, t.user_id, t.name, t.color, t.created_at
		FROM prompt_tags pt
		JOIN tags t ON t.id = pt.tag_id
		WHERE pt.prompt_id = ANY($1::text[]::uuid[])
		ORDER BY t.name`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var promptID string
		var t models.Tag
		if err := rows.Scan(&promptID, &t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return err
		}
		if p, ok := byID[promptID]; ok {
			p.Tags = append(p.Tags, &t)
		}
	}
	return rows.Err()
}

// UpdatePrompt overwrites the editable fields and refreshes the row.
func (r *PostgresRepository) UpdatePrompt(ctx context.Context, prompt *models.Prompt) error {
	err := r.db.QueryRow(ctx, `
		UPDATE prompts SET title = $1, description = $2, content = $3, updated_at = now()
		WHERE id = $4 AND user_id = $5
		RETURNING created_at, updated_at`,
		prompt.Title, prompt.Description, prompt.Content, prompt.ID, prompt.UserID,
	).Scan(&prompt.CreatedAt, &prompt.UpdatedAt)
	return mapError(err, "prompt", prompt.ID)
}

// DeletePrompt deletes a prompt that no workflow step references.
func (r *PostgresRepository) DeletePrompt(ctx context.Context, ownerID, id string) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx,
			"SELECT id FROM prompts WHERE id = $1 AND user_id = $2 FOR UPDATE", id, ownerID,
		).Scan(&locked)
		if err != nil {
			return mapError(err, "prompt", id)
		}

		var refs int
		if err := tx.QueryRow(ctx, "SELECT count(*) FROM workflow_steps WHERE prompt_id = $1", id).Scan(&refs); err != nil {
			return err
		}
		if refs > 0 {
			return models.NewConflictError("prompt %s is used by %d workflow step(s)", id, refs)
		}

		_, err = tx.Exec(ctx, "DELETE FROM prompts WHERE id = $1", id)
		return err
	})
	return mapError(err, "prompt", id)
}

// PinPrompt records a pin; pinning twice keeps the first record.
func (r *PostgresRepository) PinPrompt(ctx context.Context, ownerID, promptID string) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO pinned_prompts (user_id, prompt_id, pinned_at)
		SELECT $1, p.id, $3 FROM prompts p WHERE p.id = $2 AND p.user_id = $1
		ON CONFLICT (user_id, prompt_id) DO NOTHING`,
		ownerID, promptID, time.Now().UTC(),
	)
	if err != nil {
		return mapError(err, "prompt", promptID)
	}
	if tag.RowsAffected() == 0 {
		// either already pinned or not the caller's prompt
		return r.ensurePromptOwned(ctx, r.db, ownerID, promptID)
	}
	return nil
}

// UnpinPrompt removes a pin if present.
func (r *PostgresRepository) UnpinPrompt(ctx context.Context, ownerID, promptID string) error {
	if err := r.ensurePromptOwned(ctx, r.db, ownerID, promptID); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx,
		"DELETE FROM pinned_prompts WHERE user_id = $1 AND prompt_id = $2", ownerID, promptID)
	return mapError(err, "prompt", promptID)
}

// AddTagsToPrompt links tags to a prompt, skipping pairs that already exist.
func (r *PostgresRepository) AddTagsToPrompt(ctx context.Context, ownerID, promptID string, tagIDs []string) error {
	tagIDs = dedupe(tagIDs)
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := r.ensurePromptOwned(ctx, tx, ownerID, promptID); err != nil {
			return err
		}
		for _, tagID := range tagIDs {
			if _, err := uuid.Parse(tagID); err != nil {
				return models.NewNotFoundError("tag", tagID)
			}
		}

		var owned int
		err := tx.QueryRow(ctx,
			"SELECT count(*) FROM tags WHERE user_id = $1 AND id = ANY($2::text[]::uuid[])", ownerID, tagIDs,
		).Scan(&owned)
		if err != nil {
			return err
		}
		if owned != len(tagIDs) {
			return models.NewNotFoundError("tag", firstMissingTag(ctx, tx, ownerID, tagIDs))
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO prompt_tags (prompt_id, tag_id)
			SELECT $1, t.id FROM unnest($2::text[]::uuid[]) AS t(id)
			ON CONFLICT (prompt_id, tag_id) DO NOTHING`,
			promptID, tagIDs,
		)
		return err
	})
	return mapError(err, "prompt", promptID)
}

// RemoveTagFromPrompt unlinks a tag; removing an absent pair is a no-op.
func (r *PostgresRepository) RemoveTagFromPrompt(ctx context.Context, ownerID, promptID, tagID string) error {
	if err := r.ensurePromptOwned(ctx, r.db, ownerID, promptID); err != nil {
		return err
	}
	if _, err := uuid.Parse(tagID); err != nil {
		return nil
	}
	_, err := r.db.Exec(ctx,
		"DELETE FROM prompt_tags WHERE prompt_id = $1 AND tag_id = $2", promptID, tagID)
	return mapError(err, "prompt", promptID)
}

func (r *PostgresRepository) ensurePromptOwned(ctx context.Context, q querier, ownerID, promptID string) error {
	if _, err := uuid.Parse(promptID); err != nil {
		return models.NewNotFoundError("prompt", promptID)
	}
	var exists bool
	err := q.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM prompts WHERE id = $1 AND user_id = $2)", promptID, ownerID,
	).Scan(&exists)
	if err != nil {
		return mapError(err, "prompt", promptID)
	}
	if !exists {
		return models.NewNotFoundError("prompt", promptID)
	}
	return nil
}

func firstMissingTag(ctx context.Context, q querier, ownerID string, tagIDs []string) string {
	for _, id := range tagIDs {
		var exists bool
		err := q.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM tags WHERE id = $1 AND user_id = $2)", id, ownerID,
		).Scan(&exists)
		if err != nil || !exists {
			return id
		}
	}
	return ""
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
