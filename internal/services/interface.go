package services

import (
	"context"

	"promptlab/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Workflows is the workflow surface consumed by the REST and MCP layers.
// A non-nil expectedVersion must match the workflow's current version or
// the call fails with a ConflictError.
type Workflows interface {
	Create(ctx context.Context, ownerID string, in models.WorkflowInput) (*models.Workflow, error)
	Get(ctx context.Context, ownerID, id string) (*models.WorkflowWithSteps, error)
	List(ctx context.Context, ownerID string) ([]*models.Workflow, error)
	Update(ctx context.Context, ownerID, id string, in models.WorkflowInput) (*models.Workflow, error)
	Delete(ctx context.Context, ownerID, id string) error

	Steps(ctx context.Context, ownerID, workflowID string) ([]*models.WorkflowStep, error)
	AppendStep(ctx context.Context, ownerID, workflowID string, in models.StepInput, expectedVersion *int) (*StepMutation, error)
	UpdateStep(ctx context.Context, ownerID, stepID string, changes models.StepChanges, expectedVersion *int) (*StepMutation, error)
	RemoveStep(ctx context.Context, ownerID, stepID string, expectedVersion *int) (*StepMutation, error)
	ReorderSteps(ctx context.Context, ownerID, workflowID string, stepIDs []string, expectedVersion *int) (*StepMutation, error)
	MoveStep(ctx context.Context, ownerID, stepID string, dir models.Direction, expectedVersion *int) (*StepMutation, error)
}

// Prompts is the prompt surface consumed by the REST and MCP layers.
type Prompts interface {
	Create(ctx context.Context, ownerID string, in models.PromptInput) (*models.PromptWithTags, error)
	Get(ctx context.Context, ownerID, id string) (*models.PromptWithTags, error)
	List(ctx context.Context, ownerID string, filter models.PromptFilter) ([]*models.PromptWithTags, error)
	Update(ctx context.Context, ownerID, id string, in models.PromptInput) (*models.PromptWithTags, error)
	Delete(ctx context.Context, ownerID, id string) error

	Pin(ctx context.Context, ownerID, id string) (*models.PromptWithTags, error)
	Unpin(ctx context.Context, ownerID, id string) (*models.PromptWithTags, error)

	Tags(ctx context.Context, ownerID, promptID string) ([]*models.Tag, error)
	AddTags(ctx context.Context, ownerID, promptID string, tagIDs []string) ([]*models.Tag, error)
	RemoveTag(ctx context.Context, ownerID, promptID, tagID string) ([]*models.Tag, error)

	Dashboard(ctx context.Context, ownerID string) (*models.Stats, error)
}

// Tags is the tag surface consumed by the REST layer.
type Tags interface {
	Create(ctx context.Context, ownerID string, in models.TagInput) (*models.Tag, error)
	Get(ctx context.Context, ownerID, id string) (*models.Tag, error)
	List(ctx context.Context, ownerID string) ([]*models.Tag, error)
	Update(ctx context.Context, ownerID, id string, in models.TagInput) (*models.Tag, error)
	Delete(ctx context.Context, ownerID, id string) error
}

var (
	_ Workflows = (*WorkflowService)(nil)
	_ Prompts   = (*PromptService)(nil)
	_ Tags      = (*TagService)(nil)
)
