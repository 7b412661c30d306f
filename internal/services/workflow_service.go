package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"promptlab/internal/observability"
	"promptlab/internal/repository"
	"promptlab/internal/sequencer"
	"promptlab/pkg/models"
)

// StepMutation is the committed state of a workflow after a step operation.
type StepMutation struct {
	Workflow *models.Workflow       `json:"workflow"`
	Step     *models.WorkflowStep   `json:"step,omitempty"`
	Steps    []*models.WorkflowStep `json:"steps"`
	// Changed is false when the operation was a no-op, e.g. moving the
	// first step up or submitting the current order.
	Changed bool `json:"changed"`
}

// WorkflowService manages workflows and keeps their steps numbered 1..n.
type WorkflowService struct {
	store   repository.WorkflowStore
	logger  Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewWorkflowService creates a new WorkflowService. logger and metrics may be nil.
func NewWorkflowService(store repository.WorkflowStore, logger Logger, metrics *observability.Metrics) *WorkflowService {
	if logger == nil {
		logger = nopLogger{}
	}
	return &WorkflowService{
		store:   store,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer(observability.InstrumentationName),
	}
}

// Create creates an empty workflow.
func (s *WorkflowService) Create(ctx context.Context, ownerID string, in models.WorkflowInput) (*models.Workflow, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	w := &models.Workflow{
		UserID:      ownerID,
		Name:        strings.TrimSpace(in.Name),
		Description: blankToNil(in.Description),
	}
	if err := s.store.CreateWorkflow(ctx, w); err != nil {
		return nil, err
	}
	s.logger.Info("workflow created", "workflow_id", w.ID, "user_id", ownerID)
	return w, nil
}

// Get returns the workflow with its ordered steps and their prompts.
func (s *WorkflowService) Get(ctx context.Context, ownerID, id string) (*models.WorkflowWithSteps, error) {
	w, err := s.store.GetWorkflow(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	steps, err := s.store.ListSteps(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return &models.WorkflowWithSteps{Workflow: *w, Steps: steps}, nil
}

// List returns the owner's workflows newest first.
func (s *WorkflowService) List(ctx context.Context, ownerID string) ([]*models.Workflow, error) {
	return s.store.ListWorkflows(ctx, ownerID)
}

// Update replaces name and description.
func (s *WorkflowService) Update(ctx context.Context, ownerID, id string, in models.WorkflowInput) (*models.Workflow, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	w := &models.Workflow{
		ID:          id,
		UserID:      ownerID,
		Name:        strings.TrimSpace(in.Name),
		Description: blankToNil(in.Description),
	}
	if err := s.store.UpdateWorkflow(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Delete removes the workflow and its steps.
func (s *WorkflowService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.store.DeleteWorkflow(ctx, ownerID, id); err != nil {
		return err
	}
	s.logger.Info("workflow deleted", "workflow_id", id, "user_id", ownerID)
	return nil
}

// Steps returns the ordered steps with their prompts.
func (s *WorkflowService) Steps(ctx context.Context, ownerID, workflowID string) ([]*models.WorkflowStep, error) {
	return s.store.ListSteps(ctx, ownerID, workflowID)
}

// AppendStep adds a step at the end of the workflow.
func (s *WorkflowService) AppendStep(ctx context.Context, ownerID, workflowID string, in models.StepInput, expectedVersion *int) (*StepMutation, error) {
	payload, err := in.Payload()
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "append", ownerID, workflowID, expectedVersion,
		func(ctx context.Context, tx repository.StepTx, steps []*models.WorkflowStep) (*models.WorkflowStep, error) {
			if err := checkPayload(ctx, tx, payload); err != nil {
				return nil, err
			}
			step := &models.WorkflowStep{
				Order:   sequencer.NextOrder(steps),
				Payload: payload,
				Notes:   blankToNil(in.Notes),
			}
			if err := tx.InsertStep(ctx, step); err != nil {
				return nil, err
			}
			return step, nil
		})
}

// UpdateStep edits a step's payload and/or notes. A notes value of "" clears them.
func (s *WorkflowService) UpdateStep(ctx context.Context, ownerID, stepID string, changes models.StepChanges, expectedVersion *int) (*StepMutation, error) {
	if changes.Payload == nil && changes.Notes == nil {
		return nil, models.NewValidationError("step", "nothing to update")
	}
	workflowID, err := s.store.WorkflowIDForStep(ctx, ownerID, stepID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "update", ownerID, workflowID, expectedVersion,
		func(ctx context.Context, tx repository.StepTx, steps []*models.WorkflowStep) (*models.WorkflowStep, error) {
			step := findStep(steps, stepID)
			if step == nil {
				return nil, models.NewNotFoundError("step", stepID)
			}
			if changes.Payload != nil {
				if err := checkPayload(ctx, tx, changes.Payload); err != nil {
					return nil, err
				}
				step.Payload = changes.Payload
			}
			if changes.Notes != nil {
				step.Notes = blankToNil(changes.Notes)
			}
			if err := tx.UpdateStep(ctx, step); err != nil {
				return nil, err
			}
			return step, nil
		})
}

// RemoveStep deletes a step and renumbers the survivors.
func (s *WorkflowService) RemoveStep(ctx context.Context, ownerID, stepID string, expectedVersion *int) (*StepMutation, error) {
	workflowID, err := s.store.WorkflowIDForStep(ctx, ownerID, stepID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "remove", ownerID, workflowID, expectedVersion,
		func(ctx context.Context, tx repository.StepTx, steps []*models.WorkflowStep) (*models.WorkflowStep, error) {
			orders, err := sequencer.AfterRemove(steps, stepID)
			if err != nil {
				return nil, err
			}
			if err := tx.DeleteStep(ctx, stepID); err != nil {
				return nil, err
			}
			return nil, tx.ApplyOrder(ctx, orders)
		})
}

// ReorderSteps sets the full order. stepIDs must be exactly the workflow's steps.
func (s *WorkflowService) ReorderSteps(ctx context.Context, ownerID, workflowID string, stepIDs []string, expectedVersion *int) (*StepMutation, error) {
	return s.mutate(ctx, "reorder", ownerID, workflowID, expectedVersion,
		func(ctx context.Context, tx repository.StepTx, steps []*models.WorkflowStep) (*models.WorkflowStep, error) {
			orders, err := sequencer.Assign(steps, stepIDs)
			if err != nil {
				return nil, err
			}
			return nil, tx.ApplyOrder(ctx, orders)
		})
}

// MoveStep shifts a step one position. Moving past either end succeeds without change.
func (s *WorkflowService) MoveStep(ctx context.Context, ownerID, stepID string, dir models.Direction, expectedVersion *int) (*StepMutation, error) {
	if _, err := models.ParseDirection(string(dir)); err != nil {
		return nil, err
	}
	workflowID, err := s.store.WorkflowIDForStep(ctx, ownerID, stepID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "move", ownerID, workflowID, expectedVersion,
		func(ctx context.Context, tx repository.StepTx, steps []*models.WorkflowStep) (*models.WorkflowStep, error) {
			ids, moved, err := sequencer.Move(steps, stepID, dir)
			if err != nil {
				return nil, err
			}
			step := findStep(steps, stepID)
			if !moved {
				return step, nil
			}
			orders, err := sequencer.Assign(steps, ids)
			if err != nil {
				return nil, err
			}
			return step, tx.ApplyOrder(ctx, orders)
		})
}

type stepFunc func(ctx context.Context, tx repository.StepTx, steps []*models.WorkflowStep) (*models.WorkflowStep, error)

// mutate runs fn under the workflow lock, checks the expected version, and
// verifies the committed step set is numbered 1..n before returning from the
// transaction.
func (s *WorkflowService) mutate(ctx context.Context, op, ownerID, workflowID string, expectedVersion *int, fn stepFunc) (*StepMutation, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "workflow."+op, trace.WithAttributes(
		attribute.String("workflow.id", workflowID),
	))
	defer span.End()

	var (
		out    StepMutation
		before int
	)
	err := s.store.WithWorkflowLock(ctx, ownerID, workflowID, func(ctx context.Context, tx repository.StepTx) error {
		w := tx.Workflow()
		before = w.Version
		if expectedVersion != nil && *expectedVersion != w.Version {
			return models.NewConflictError("workflow %s is at version %d, expected %d", workflowID, w.Version, *expectedVersion)
		}

		steps, err := tx.Steps(ctx)
		if err != nil {
			return err
		}
		step, err := fn(ctx, tx, steps)
		if err != nil {
			return err
		}

		after, err := tx.Steps(ctx)
		if err != nil {
			return err
		}
		orders := make([]int, len(after))
		for i, st := range after {
			orders[i] = st.Order
		}
		if err := sequencer.Verify(orders); err != nil {
			return fmt.Errorf("workflow %s: %w", workflowID, err)
		}

		if step != nil {
			if fresh := findStep(after, step.ID); fresh != nil {
				step = fresh
			}
		}
		out.Workflow = w
		out.Step = step
		out.Steps = after
		return nil
	})

	s.metrics.RecordStepOp(ctx, op, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, observability.Outcome(err))
		if observability.Outcome(err) == "error" {
			s.logger.Error("step operation failed", "op", op, "workflow_id", workflowID, "error", err)
		} else {
			s.logger.Debug("step operation rejected", "op", op, "workflow_id", workflowID, "reason", err)
		}
		return nil, err
	}

	out.Changed = out.Workflow.Version != before
	span.SetAttributes(attribute.Int("workflow.version", out.Workflow.Version))
	s.logger.Debug("step operation committed", "op", op, "workflow_id", workflowID,
		"version", out.Workflow.Version, "changed", out.Changed)
	return &out, nil
}

// checkPayload rejects references to prompts the workflow owner does not own.
func checkPayload(ctx context.Context, tx repository.StepTx, payload models.StepPayload) error {
	ref, ok := payload.(models.PromptRef)
	if !ok {
		return nil
	}
	owned, err := tx.PromptOwned(ctx, ref.PromptID)
	if err != nil {
		return err
	}
	if !owned {
		return models.NewValidationError("prompt_id", fmt.Sprintf("prompt %q does not exist or is not yours", ref.PromptID))
	}
	return nil
}

func findStep(steps []*models.WorkflowStep, id string) *models.WorkflowStep {
	for _, st := range steps {
		if st.ID == id {
			return st
		}
	}
	return nil
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
