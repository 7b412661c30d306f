package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptlab/pkg/models"
)

// runRepositorySuite exercises behavior every Repository implementation must share.
func runRepositorySuite(t *testing.T, repo Repository) {
	ctx := context.Background()

	newUser := func(t *testing.T) string {
		t.Helper()
		u := &models.User{Subject: "sub-" + uuid.NewString(), Email: "someone@example.com"}
		require.NoError(t, repo.CreateUser(ctx, u))
		require.NotEmpty(t, u.ID)
		return u.ID
	}
	newPrompt := func(t *testing.T, owner, title, content string) *models.Prompt {
		t.Helper()
		p := &models.Prompt{UserID: owner, Title: title, Content: content}
		require.NoError(t, repo.CreatePrompt(ctx, p))
		return p
	}
	newWorkflow := func(t *testing.T, owner string) *models.Workflow {
		t.Helper()
		w := &models.Workflow{UserID: owner, Name: "flow"}
		require.NoError(t, repo.CreateWorkflow(ctx, w))
		return w
	}
	appendCustom := func(t *testing.T, owner, wfID, text string) *models.WorkflowStep {
		t.Helper()
		step := &models.WorkflowStep{Payload: models.CustomPrompt{Text: text}}
		err := repo.WithWorkflowLock(ctx, owner, wfID, func(ctx context.Context, tx StepTx) error {
			steps, err := tx.Steps(ctx)
			if err != nil {
				return err
			}
			step.Order = len(steps) + 1
			return tx.InsertStep(ctx, step)
		})
		require.NoError(t, err)
		return step
	}
	stepTexts := func(t *testing.T, owner, wfID string) []string {
		t.Helper()
		steps, err := repo.ListSteps(ctx, owner, wfID)
		require.NoError(t, err)
		out := make([]string, len(steps))
		for i, s := range steps {
			assert.Equal(t, i+1, s.Order)
			if c, ok := s.Payload.(models.CustomPrompt); ok {
				out[i] = c.Text
			} else {
				out[i] = s.Prompt.Title
			}
		}
		return out
	}

	t.Run("users upsert by subject", func(t *testing.T) {
		u := &models.User{Subject: "sub-" + uuid.NewString(), Email: "a@example.com"}
		require.NoError(t, repo.CreateUser(ctx, u))

		again := &models.User{Subject: u.Subject, Email: "b@example.com"}
		require.NoError(t, repo.CreateUser(ctx, again))
		assert.Equal(t, u.ID, again.ID)

		got, err := repo.GetUserBySubject(ctx, u.Subject)
		require.NoError(t, err)
		assert.Equal(t, "b@example.com", got.Email)

		_, err = repo.GetUserBySubject(ctx, "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("prompts are owner scoped", func(t *testing.T) {
		alice, bob := newUser(t), newUser(t)
		p := newPrompt(t, alice, "Summarize", "Summarize the text")

		got, err := repo.GetPrompt(ctx, alice, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Summarize", got.Title)
		assert.False(t, got.IsPinned)
		assert.Empty(t, got.Tags)

		_, err = repo.GetPrompt(ctx, bob, p.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)

		p.Content = "Summarize briefly"
		require.NoError(t, repo.UpdatePrompt(ctx, p))
		got, err = repo.GetPrompt(ctx, alice, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Summarize briefly", got.Content)

		assert.ErrorIs(t, repo.DeletePrompt(ctx, bob, p.ID), models.ErrNotFound)
		require.NoError(t, repo.DeletePrompt(ctx, alice, p.ID))
		_, err = repo.GetPrompt(ctx, alice, p.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("search pins and tags", func(t *testing.T) {
		owner := newUser(t)
		first := newPrompt(t, owner, "Translate", "Translate to French")
		second := newPrompt(t, owner, "Review", "Review this 100% carefully")
		third := newPrompt(t, owner, "Outline", "Write an outline")

		all, err := repo.ListPrompts(ctx, owner, models.PromptFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, third.ID, all[0].ID, "newest first")

		found, err := repo.ListPrompts(ctx, owner, models.PromptFilter{Query: "french"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, first.ID, found[0].ID)

		found, err = repo.ListPrompts(ctx, owner, models.PromptFilter{Query: "100%"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, second.ID, found[0].ID)

		require.NoError(t, repo.PinPrompt(ctx, owner, first.ID))
		require.NoError(t, repo.PinPrompt(ctx, owner, first.ID))
		require.NoError(t, repo.PinPrompt(ctx, owner, second.ID))
		pinned, err := repo.ListPrompts(ctx, owner, models.PromptFilter{PinnedOnly: true})
		require.NoError(t, err)
		require.Len(t, pinned, 2)
		assert.Equal(t, second.ID, pinned[0].ID, "most recently pinned first")
		assert.True(t, pinned[0].IsPinned)

		require.NoError(t, repo.UnpinPrompt(ctx, owner, second.ID))
		require.NoError(t, repo.UnpinPrompt(ctx, owner, second.ID))

		tag := &models.Tag{UserID: owner, Name: "lang", Color: models.DefaultTagColor}
		require.NoError(t, repo.CreateTag(ctx, tag))
		dup := &models.Tag{UserID: owner, Name: "lang", Color: models.DefaultTagColor}
		assert.ErrorIs(t, repo.CreateTag(ctx, dup), models.ErrConflict)

		require.NoError(t, repo.AddTagsToPrompt(ctx, owner, first.ID, []string{tag.ID}))
		require.NoError(t, repo.AddTagsToPrompt(ctx, owner, first.ID, []string{tag.ID}))
		tagged, err := repo.ListPrompts(ctx, owner, models.PromptFilter{TagID: tag.ID})
		require.NoError(t, err)
		require.Len(t, tagged, 1)
		assert.Equal(t, first.ID, tagged[0].ID)
		require.Len(t, tagged[0].Tags, 1)
		assert.Equal(t, "lang", tagged[0].Tags[0].Name)

		tags, err := repo.ListTagsForPrompt(ctx, owner, first.ID)
		require.NoError(t, err)
		assert.Len(t, tags, 1)

		err = repo.AddTagsToPrompt(ctx, owner, first.ID, []string{uuid.NewString()})
		assert.ErrorIs(t, err, models.ErrNotFound)

		require.NoError(t, repo.RemoveTagFromPrompt(ctx, owner, first.ID, tag.ID))
		require.NoError(t, repo.RemoveTagFromPrompt(ctx, owner, first.ID, tag.ID))
		tags, err = repo.ListTagsForPrompt(ctx, owner, first.ID)
		require.NoError(t, err)
		assert.Empty(t, tags)

		stats, err := repo.Stats(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, models.Stats{Prompts: 3, Pinned: 1, Tags: 1, Workflows: 0}, *stats)
	})

	t.Run("tag update and delete", func(t *testing.T) {
		owner := newUser(t)
		a := &models.Tag{UserID: owner, Name: "a", Color: "#000000"}
		b := &models.Tag{UserID: owner, Name: "b", Color: "#000000"}
		require.NoError(t, repo.CreateTag(ctx, a))
		require.NoError(t, repo.CreateTag(ctx, b))

		b.Name = "a"
		assert.ErrorIs(t, repo.UpdateTag(ctx, b), models.ErrConflict)

		a.Color = "#FFFFFF"
		require.NoError(t, repo.UpdateTag(ctx, a))
		got, err := repo.GetTag(ctx, owner, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "#FFFFFF", got.Color)

		p := newPrompt(t, owner, "t", "c")
		require.NoError(t, repo.AddTagsToPrompt(ctx, owner, p.ID, []string{a.ID}))
		require.NoError(t, repo.DeleteTag(ctx, owner, a.ID))
		tags, err := repo.ListTagsForPrompt(ctx, owner, p.ID)
		require.NoError(t, err)
		assert.Empty(t, tags)

		assert.ErrorIs(t, repo.DeleteTag(ctx, owner, a.ID), models.ErrNotFound)
		list, err := repo.ListTags(ctx, owner)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("steps stay contiguous and bump the version", func(t *testing.T) {
		owner := newUser(t)
		wf := newWorkflow(t, owner)
		assert.Equal(t, 0, wf.Version)

		a := appendCustom(t, owner, wf.ID, "A")
		b := appendCustom(t, owner, wf.ID, "B")
		c := appendCustom(t, owner, wf.ID, "C")
		assert.Equal(t, []string{"A", "B", "C"}, stepTexts(t, owner, wf.ID))

		got, err := repo.GetWorkflow(ctx, owner, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.Version)

		// remove B and close the gap in the same transaction
		err = repo.WithWorkflowLock(ctx, owner, wf.ID, func(ctx context.Context, tx StepTx) error {
			if err := tx.DeleteStep(ctx, b.ID); err != nil {
				return err
			}
			return tx.ApplyOrder(ctx, []models.StepOrder{{StepID: a.ID, Order: 1}, {StepID: c.ID, Order: 2}})
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "C"}, stepTexts(t, owner, wf.ID))

		// swap through the deferred unique key
		err = repo.WithWorkflowLock(ctx, owner, wf.ID, func(ctx context.Context, tx StepTx) error {
			return tx.ApplyOrder(ctx, []models.StepOrder{{StepID: c.ID, Order: 1}, {StepID: a.ID, Order: 2}})
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"C", "A"}, stepTexts(t, owner, wf.ID))

		got, err = repo.GetWorkflow(ctx, owner, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, got.Version)

		// an assignment equal to the current one writes nothing
		err = repo.WithWorkflowLock(ctx, owner, wf.ID, func(ctx context.Context, tx StepTx) error {
			return tx.ApplyOrder(ctx, []models.StepOrder{{StepID: c.ID, Order: 1}, {StepID: a.ID, Order: 2}})
		})
		require.NoError(t, err)
		got, err = repo.GetWorkflow(ctx, owner, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, got.Version)

		wfID, err := repo.WorkflowIDForStep(ctx, owner, a.ID)
		require.NoError(t, err)
		assert.Equal(t, wf.ID, wfID)
		_, err = repo.WorkflowIDForStep(ctx, newUser(t), a.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("failed callback leaves no trace", func(t *testing.T) {
		owner := newUser(t)
		wf := newWorkflow(t, owner)
		appendCustom(t, owner, wf.ID, "A")

		boom := models.NewValidationError("x", "boom")
		err := repo.WithWorkflowLock(ctx, owner, wf.ID, func(ctx context.Context, tx StepTx) error {
			if err := tx.InsertStep(ctx, &models.WorkflowStep{Order: 2, Payload: models.CustomPrompt{Text: "B"}}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.Equal(t, []string{"A"}, stepTexts(t, owner, wf.ID))

		got, err := repo.GetWorkflow(ctx, owner, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Version)
	})

	t.Run("referenced prompt cannot be deleted", func(t *testing.T) {
		owner := newUser(t)
		p := newPrompt(t, owner, "Ref", "content")
		wf := newWorkflow(t, owner)

		err := repo.WithWorkflowLock(ctx, owner, wf.ID, func(ctx context.Context, tx StepTx) error {
			ok, err := tx.PromptOwned(ctx, p.ID)
			if err != nil {
				return err
			}
			require.True(t, ok)
			return tx.InsertStep(ctx, &models.WorkflowStep{Order: 1, Payload: models.PromptRef{PromptID: p.ID}})
		})
		require.NoError(t, err)

		steps, err := repo.ListSteps(ctx, owner, wf.ID)
		require.NoError(t, err)
		require.Len(t, steps, 1)
		require.NotNil(t, steps[0].Prompt)
		assert.Equal(t, "Ref", steps[0].Prompt.Title)

		assert.ErrorIs(t, repo.DeletePrompt(ctx, owner, p.ID), models.ErrConflict)

		require.NoError(t, repo.DeleteWorkflow(ctx, owner, wf.ID))
		require.NoError(t, repo.DeletePrompt(ctx, owner, p.ID))
	})

	t.Run("foreign prompt is not owned", func(t *testing.T) {
		alice, bob := newUser(t), newUser(t)
		p := newPrompt(t, bob, "Bob's", "content")
		wf := newWorkflow(t, alice)

		err := repo.WithWorkflowLock(ctx, alice, wf.ID, func(ctx context.Context, tx StepTx) error {
			ok, err := tx.PromptOwned(ctx, p.ID)
			require.NoError(t, err)
			assert.False(t, ok)
			ok, err = tx.PromptOwned(ctx, "not-a-uuid")
			require.NoError(t, err)
			assert.False(t, ok)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("delete workflow cascades to steps", func(t *testing.T) {
		owner := newUser(t)
		wf := newWorkflow(t, owner)
		s := appendCustom(t, owner, wf.ID, "A")

		assert.ErrorIs(t, repo.DeleteWorkflow(ctx, newUser(t), wf.ID), models.ErrNotFound)
		require.NoError(t, repo.DeleteWorkflow(ctx, owner, wf.ID))

		_, err := repo.GetWorkflow(ctx, owner, wf.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = repo.WorkflowIDForStep(ctx, owner, s.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
		err = repo.WithWorkflowLock(ctx, owner, wf.ID, func(context.Context, StepTx) error { return nil })
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("concurrent appends serialize", func(t *testing.T) {
		owner := newUser(t)
		wf := newWorkflow(t, owner)

		const n = 10
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- repo.WithWorkflowLock(ctx, owner, wf.ID, func(ctx context.Context, tx StepTx) error {
					steps, err := tx.Steps(ctx)
					if err != nil {
						return err
					}
					return tx.InsertStep(ctx, &models.WorkflowStep{
						Order:   len(steps) + 1,
						Payload: models.CustomPrompt{Text: "x"},
					})
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		steps, err := repo.ListSteps(ctx, owner, wf.ID)
		require.NoError(t, err)
		require.Len(t, steps, n)
		for i, s := range steps {
			assert.Equal(t, i+1, s.Order)
		}
		got, err := repo.GetWorkflow(ctx, owner, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, n, got.Version)
	})
}
