package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"promptlab/pkg/models"
)

const workflowColumns = "id, user_id, name, description, version, created_at, updated_at"

func scanWorkflow(row pgx.Row) (*models.Workflow, error) {
	var w models.Workflow
	if err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.Description, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWorkflow inserts an empty workflow.
func (r *PostgresRepository) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO workflows (id, user_id, name, description)
		VALUES ($1, $2, $3, $4)
		RETURNING version, created_at, updated_at`,
		workflow.ID, workflow.UserID, workflow.Name, workflow.Description,
	).Scan(&workflow.Version, &workflow.CreatedAt, &workflow.UpdatedAt)
	return mapError(err, "workflow", workflow.ID)
}

// GetWorkflow returns one of the owner's workflows.
func (r *PostgresRepository) GetWorkflow(ctx context.Context, ownerID, id string) (*models.Workflow, error) {
	w, err := scanWorkflow(r.db.QueryRow(ctx,
		"SELECT "+workflowColumns+" FROM workflows WHERE id = $1 AND user_id = $2", id, ownerID))
	if err != nil {
		return nil, mapError(err, "workflow", id)
	}
	return w, nil
}

// ListWorkflows lists the owner's workflows newest first.
func (r *PostgresRepository) ListWorkflows(ctx context.Context, ownerID string) ([]*models.Workflow, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+workflowColumns+" FROM workflows WHERE user_id = $1 ORDER BY created_at DESC", ownerID)
	if err != nil {
		return nil, mapError(err, "user", ownerID)
	}
	defer rows.Close()

	workflows := []*models.Workflow{}
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, w)
	}
	return workflows, rows.Err()
}

// UpdateWorkflow changes name and description. The step version is untouched.
func (r *PostgresRepository) UpdateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	err := r.db.QueryRow(ctx, `
		UPDATE workflows SET name = $1, description = $2, updated_at = now()
		WHERE id = $3 AND user_id = $4
		RETURNING version, created_at, updated_at`,
		workflow.Name, workflow.Description, workflow.ID, workflow.UserID,
	).Scan(&workflow.Version, &workflow.CreatedAt, &workflow.UpdatedAt)
	return mapError(err, "workflow", workflow.ID)
}

// DeleteWorkflow locks the workflow, deletes its steps, then the workflow.
func (r *PostgresRepository) DeleteWorkflow(ctx context.Context, ownerID, id string) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := lockWorkflow(ctx, tx, ownerID, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM workflow_steps WHERE workflow_id = $1", id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "DELETE FROM workflows WHERE id = $1", id)
		return err
	})
	return mapError(err, "workflow", id)
}

// ListSteps returns the workflow's steps in order with their prompts joined.
func (r *PostgresRepository) ListSteps(ctx context.Context, ownerID, workflowID string) ([]*models.WorkflowStep, error) {
	if _, err := r.GetWorkflow(ctx, ownerID, workflowID); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT s.id, s.workflow_id, s.step_order, s.prompt_id, s.custom_prompt, s.notes, s.created_at, s.updated_at,
		       p.id, p.user_id, p.title, p.description, p.content, p.created_at, p.updated_at
		FROM workflow_steps s
		LEFT JOIN prompts p ON p.id = s.prompt_id
		WHERE s.workflow_id = $1
		ORDER BY s.step_order, s.created_at`,
		workflowID,
	)
	if err != nil {
		return nil, mapError(err, "workflow", workflowID)
	}
	defer rows.Close()

	steps := []*models.WorkflowStep{}
	for rows.Next() {
		var (
			promptID, promptUser, promptTitle, promptContent *string
			promptDesc                                       *string
			promptCreated, promptUpdated                     *time.Time
		)
		step, err := scanStep(rows, &promptID, &promptUser, &promptTitle, &promptDesc, &promptContent, &promptCreated, &promptUpdated)
		if err != nil {
			return nil, err
		}
		if promptID != nil {
			step.Prompt = &models.Prompt{
				ID:          *promptID,
				UserID:      deref(promptUser),
				Title:       deref(promptTitle),
				Description: promptDesc,
				Content:     deref(promptContent),
				CreatedAt:   derefTime(promptCreated),
				UpdatedAt:   derefTime(promptUpdated),
			}
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// WorkflowIDForStep resolves the workflow a step belongs to.
func (r *PostgresRepository) WorkflowIDForStep(ctx context.Context, ownerID, stepID string) (string, error) {
	var workflowID string
	err := r.db.QueryRow(ctx, `
		SELECT s.workflow_id FROM workflow_steps s
		JOIN workflows w ON w.id = s.workflow_id
		WHERE s.id = $1 AND w.user_id = $2`,
		stepID, ownerID,
	).Scan(&workflowID)
	if err != nil {
		return "", mapError(err, "step", stepID)
	}
	return workflowID, nil
}

// WithWorkflowLock runs fn holding a row lock on the workflow.
func (r *PostgresRepository) WithWorkflowLock(ctx context.Context, ownerID, workflowID string, fn func(ctx context.Context, tx StepTx) error) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		w, err := lockWorkflow(ctx, tx, ownerID, workflowID)
		if err != nil {
			return err
		}

		stx := &pgStepTx{tx: tx, workflow: w}
		if err := fn(ctx, stx); err != nil {
			return err
		}
		if !stx.dirty {
			return nil
		}
		return tx.QueryRow(ctx, `
			UPDATE workflows SET version = version + 1, updated_at = now()
			WHERE id = $1
			RETURNING version, updated_at`,
			workflowID,
		).Scan(&w.Version, &w.UpdatedAt)
	})
	return mapError(err, "workflow", workflowID)
}

func lockWorkflow(ctx context.Context, tx pgx.Tx, ownerID, id string) (*models.Workflow, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.NewNotFoundError("workflow", id)
	}
	w, err := scanWorkflow(tx.QueryRow(ctx,
		"SELECT "+workflowColumns+" FROM workflows WHERE id = $1 AND user_id = $2 FOR UPDATE", id, ownerID))
	if err != nil {
		return nil, mapError(err, "workflow", id)
	}
	return w, nil
}

// pgStepTx implements StepTx on an open transaction.
type pgStepTx struct {
	tx       pgx.Tx
	workflow *models.Workflow
	dirty    bool
}

func (s *pgStepTx) Workflow() *models.Workflow { return s.workflow }

func (s *pgStepTx) Steps(ctx context.Context) ([]*models.WorkflowStep, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT id, workflow_id, step_order, prompt_id, custom_prompt, notes, created_at, updated_at
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY step_order, created_at`,
		s.workflow.ID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []*models.WorkflowStep{}
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// PromptOwned takes a share lock so the prompt cannot be deleted before commit.
func (s *pgStepTx) PromptOwned(ctx context.Context, promptID string) (bool, error) {
	if _, err := uuid.Parse(promptID); err != nil {
		return false, nil
	}
	var id string
	err := s.tx.QueryRow(ctx,
		"SELECT id FROM prompts WHERE id = $1 AND user_id = $2 FOR SHARE", promptID, s.workflow.UserID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *pgStepTx) InsertStep(ctx context.Context, step *models.WorkflowStep) error {
	if step.ID == "" {
		step.ID = uuid.New().String()
	}
	step.WorkflowID = s.workflow.ID
	err := s.tx.QueryRow(ctx, `
		INSERT INTO workflow_steps (id, workflow_id, prompt_id, custom_prompt, step_order, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		step.ID, step.WorkflowID, step.PromptID(), step.CustomPrompt(), step.Order, step.Notes,
	).Scan(&step.CreatedAt, &step.UpdatedAt)
	if err != nil {
		return err
	}
	s.dirty = true
	return nil
}

func (s *pgStepTx) UpdateStep(ctx context.Context, step *models.WorkflowStep) error {
	err := s.tx.QueryRow(ctx, `
		UPDATE workflow_steps SET prompt_id = $1, custom_prompt = $2, notes = $3, updated_at = now()
		WHERE id = $4 AND workflow_id = $5
		RETURNING updated_at`,
		step.PromptID(), step.CustomPrompt(), step.Notes, step.ID, s.workflow.ID,
	).Scan(&step.UpdatedAt)
	if err != nil {
		return mapError(err, "step", step.ID)
	}
	s.dirty = true
	return nil
}

func (s *pgStepTx) DeleteStep(ctx context.Context, stepID string) error {
	tag, err := s.tx.Exec(ctx,
		"DELETE FROM workflow_steps WHERE id = $1 AND workflow_id = $2", stepID, s.workflow.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.NewNotFoundError("step", stepID)
	}
	s.dirty = true
	return nil
}

// ApplyOrder rewrites every listed step's order in a single statement.
// The deferred unique key on (workflow_id, step_order) is checked at commit.
func (s *pgStepTx) ApplyOrder(ctx context.Context, orders []models.StepOrder) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	positions := make([]int32, len(orders))
	for i, o := range orders {
		ids[i] = o.StepID
		positions[i] = int32(o.Order)
	}
	tag, err := s.tx.Exec(ctx, `
		UPDATE workflow_steps AS s
		SET step_order = v.step_order, updated_at = now()
		FROM unnest($1::text[], $2::int[]) AS v(id, step_order)
		WHERE s.id = v.id::uuid AND s.workflow_id = $3 AND s.step_order <> v.step_order`,
		ids, positions, s.workflow.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		s.dirty = true
	}
	return nil
}

// scanStep reads the eight step columns followed by any extra destinations.
func scanStep(row pgx.Row, extra ...any) (*models.WorkflowStep, error) {
	var (
		step         models.WorkflowStep
		promptID     *string
		customPrompt *string
	)
	dest := append([]any{
		&step.ID, &step.WorkflowID, &step.Order, &promptID, &customPrompt, &step.Notes, &step.CreatedAt, &step.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	payload, err := models.NewStepPayload(promptID, customPrompt)
	if err != nil {
		return nil, err
	}
	step.Payload = payload
	return &step, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
