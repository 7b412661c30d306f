package repository

import (
	"context"

	"promptlab/pkg/models"
)

// UserStore resolves external identities to local users.
type UserStore interface {
	// GetUserBySubject returns the user for an OIDC subject.
	GetUserBySubject(ctx context.Context, subject string) (*models.User, error)
	// CreateUser inserts the user, or refreshes the existing row for the same subject.
	CreateUser(ctx context.Context, user *models.User) error
}

// PromptStore owns prompts and their pin and tag relations. Every method is
// scoped to ownerID; rows owned by someone else behave as missing.
type PromptStore interface {
	CreatePrompt(ctx context.Context, prompt *models.Prompt) error
	GetPrompt(ctx context.Context, ownerID, id string) (*models.PromptWithTags, error)
	ListPrompts(ctx context.Context, ownerID string, filter models.PromptFilter) ([]*models.PromptWithTags, error)
	UpdatePrompt(ctx context.Context, prompt *models.Prompt) error
	// DeletePrompt fails with a ConflictError while any workflow step references the prompt.
	DeletePrompt(ctx context.Context, ownerID, id string) error

	// PinPrompt and UnpinPrompt are idempotent.
	PinPrompt(ctx context.Context, ownerID, promptID string) error
	UnpinPrompt(ctx context.Context, ownerID, promptID string) error

	// AddTagsToPrompt and RemoveTagFromPrompt are idempotent set operations.
	AddTagsToPrompt(ctx context.Context, ownerID, promptID string, tagIDs []string) error
	RemoveTagFromPrompt(ctx context.Context, ownerID, promptID, tagID string) error
}

// TagStore owns tags.
type TagStore interface {
	CreateTag(ctx context.Context, tag *models.Tag) error
	GetTag(ctx context.Context, ownerID, id string) (*models.Tag, error)
	ListTags(ctx context.Context, ownerID string) ([]*models.Tag, error)
	UpdateTag(ctx context.Context, tag *models.Tag) error
	DeleteTag(ctx context.Context, ownerID, id string) error
	ListTagsForPrompt(ctx context.Context, ownerID, promptID string) ([]*models.Tag, error)
}

// WorkflowStore owns workflows and their steps.
type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) error
	GetWorkflow(ctx context.Context, ownerID, id string) (*models.Workflow, error)
	ListWorkflows(ctx context.Context, ownerID string) ([]*models.Workflow, error)
	UpdateWorkflow(ctx context.Context, workflow *models.Workflow) error
	// DeleteWorkflow removes the workflow and all of its steps atomically.
	DeleteWorkflow(ctx context.Context, ownerID, id string) error

	// ListSteps returns the steps in order with referenced prompts joined.
	ListSteps(ctx context.Context, ownerID, workflowID string) ([]*models.WorkflowStep, error)
	// WorkflowIDForStep resolves the workflow a step belongs to.
	WorkflowIDForStep(ctx context.Context, ownerID, stepID string) (string, error)

	// WithWorkflowLock runs fn in a transaction holding an exclusive lock on
	// the workflow. Changes made through tx are committed only if fn returns
	// nil; the workflow version is bumped when any step was written.
	WithWorkflowLock(ctx context.Context, ownerID, workflowID string, fn func(ctx context.Context, tx StepTx) error) error
}

// StepTx is the step-level view of a locked workflow.
type StepTx interface {
	// Workflow is the locked row as read at the start of the transaction.
	Workflow() *models.Workflow
	// Steps returns every step of the workflow sorted by order.
	Steps(ctx context.Context) ([]*models.WorkflowStep, error)
	// PromptOwned reports whether promptID is a prompt owned by the workflow owner.
	PromptOwned(ctx context.Context, promptID string) (bool, error)
	InsertStep(ctx context.Context, step *models.WorkflowStep) error
	UpdateStep(ctx context.Context, step *models.WorkflowStep) error
	DeleteStep(ctx context.Context, stepID string) error
	// ApplyOrder writes the full order assignment in one batch.
	ApplyOrder(ctx context.Context, orders []models.StepOrder) error
}

// Repository is the full persistence boundary used by the services.
type Repository interface {
	UserStore
	PromptStore
	TagStore
	WorkflowStore

	// Stats counts the owner's prompts, pins, tags and workflows.
	Stats(ctx context.Context, ownerID string) (*models.Stats, error)
	Ping(ctx context.Context) error
}
