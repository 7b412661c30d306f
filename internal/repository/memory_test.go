package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptlab/pkg/models"
)

func TestMemoryRepository(t *testing.T) {
	runRepositorySuite(t, NewMemoryRepository())
}

func TestMemoryRepository_CanceledContextRollsBack(t *testing.T) {
	repo := NewMemoryRepository()
	ctx, cancel := context.WithCancel(context.Background())

	wf := &models.Workflow{UserID: "u1", Name: "flow"}
	require.NoError(t, repo.CreateWorkflow(ctx, wf))

	err := repo.WithWorkflowLock(ctx, "u1", wf.ID, func(ctx context.Context, tx StepTx) error {
		if err := tx.InsertStep(ctx, &models.WorkflowStep{Order: 1, Payload: models.CustomPrompt{Text: "A"}}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	steps, err := repo.ListSteps(context.Background(), "u1", wf.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	p := &models.Prompt{UserID: "u1", Title: "t", Content: "c"}
	require.NoError(t, repo.CreatePrompt(ctx, p))
	p.Title = "mutated"

	got, err := repo.GetPrompt(ctx, "u1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", got.Title)
}
