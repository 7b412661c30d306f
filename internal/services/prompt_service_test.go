package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptlab/pkg/models"
)

func TestPromptService_CRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.prompts.Create(ctx, "alice", models.PromptInput{Title: "", Content: "c"})
	assert.ErrorIs(t, err, models.ErrValidation)

	p, err := f.prompts.Create(ctx, "alice", models.PromptInput{Title: "  Code review ", Content: "Review this", Description: strPtr(" ")})
	require.NoError(t, err)
	assert.Equal(t, "Code review", p.Title)
	assert.Nil(t, p.Description)
	assert.Empty(t, p.Tags)

	updated, err := f.prompts.Update(ctx, "alice", p.ID, models.PromptInput{Title: "Code review", Content: "Review this diff"})
	require.NoError(t, err)
	assert.Equal(t, "Review this diff", updated.Content)

	_, err = f.prompts.Update(ctx, "bob", p.ID, models.PromptInput{Title: "x", Content: "y"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, f.prompts.Delete(ctx, "alice", p.ID))
	_, err = f.prompts.Get(ctx, "alice", p.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPromptService_PinIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.prompts.Create(ctx, "alice", models.PromptInput{Title: "T", Content: "C"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := f.prompts.Pin(ctx, "alice", p.ID)
		require.NoError(t, err)
		assert.True(t, got.IsPinned)
	}
	stats, err := f.prompts.Dashboard(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pinned)

	for i := 0; i < 2; i++ {
		got, err := f.prompts.Unpin(ctx, "alice", p.ID)
		require.NoError(t, err)
		assert.False(t, got.IsPinned)
	}
	stats, err = f.prompts.Dashboard(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Pinned)

	_, err = f.prompts.Pin(ctx, "bob", p.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPromptService_ListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	email, err := f.prompts.Create(ctx, "alice", models.PromptInput{Title: "Cold email", Content: "Write an outreach email"})
	require.NoError(t, err)
	tweet, err := f.prompts.Create(ctx, "alice", models.PromptInput{Title: "Tweet", Content: "Short and punchy"})
	require.NoError(t, err)
	_, err = f.prompts.Create(ctx, "bob", models.PromptInput{Title: "Email", Content: "bob's"})
	require.NoError(t, err)

	found, err := f.prompts.List(ctx, "alice", models.PromptFilter{Query: "  EMAIL "})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, email.ID, found[0].ID)

	tag, err := f.tags.Create(ctx, "alice", models.TagInput{Name: "social"})
	require.NoError(t, err)
	_, err = f.prompts.AddTags(ctx, "alice", tweet.ID, []string{tag.ID})
	require.NoError(t, err)

	byTag, err := f.prompts.List(ctx, "alice", models.PromptFilter{TagID: tag.ID})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, tweet.ID, byTag[0].ID)

	_, err = f.prompts.Pin(ctx, "alice", tweet.ID)
	require.NoError(t, err)
	_, err = f.prompts.Pin(ctx, "alice", email.ID)
	require.NoError(t, err)
	pinned, err := f.prompts.List(ctx, "alice", models.PromptFilter{PinnedOnly: true})
	require.NoError(t, err)
	require.Len(t, pinned, 2)
	assert.Equal(t, email.ID, pinned[0].ID)

	all, err := f.prompts.List(ctx, "alice", models.PromptFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, tweet.ID, all[0].ID)
}

func TestPromptService_Tags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.prompts.Create(ctx, "alice", models.PromptInput{Title: "T", Content: "C"})
	require.NoError(t, err)
	a, err := f.tags.Create(ctx, "alice", models.TagInput{Name: "a"})
	require.NoError(t, err)
	b, err := f.tags.Create(ctx, "alice", models.TagInput{Name: "b"})
	require.NoError(t, err)
	foreign, err := f.tags.Create(ctx, "bob", models.TagInput{Name: "c"})
	require.NoError(t, err)

	_, err = f.prompts.AddTags(ctx, "alice", p.ID, nil)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.prompts.AddTags(ctx, "alice", p.ID, []string{a.ID, foreign.ID})
	assert.ErrorIs(t, err, models.ErrNotFound)
	tags, err := f.prompts.Tags(ctx, "alice", p.ID)
	require.NoError(t, err)
	assert.Empty(t, tags, "a failed add attaches nothing")

	tags, err = f.prompts.AddTags(ctx, "alice", p.ID, []string{a.ID, b.ID, a.ID})
	require.NoError(t, err)
	assert.Len(t, tags, 2)
	tags, err = f.prompts.AddTags(ctx, "alice", p.ID, []string{a.ID})
	require.NoError(t, err)
	assert.Len(t, tags, 2)

	tags, err = f.prompts.RemoveTag(ctx, "alice", p.ID, a.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "b", tags[0].Name)
	_, err = f.prompts.RemoveTag(ctx, "alice", p.ID, a.ID)
	require.NoError(t, err)

	got, err := f.prompts.Get(ctx, "alice", p.ID)
	require.NoError(t, err)
	require.Len(t, got.Tags, 1)
}

func TestPromptService_Dashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.prompts.Create(ctx, "alice", models.PromptInput{Title: "T", Content: "C"})
	require.NoError(t, err)
	_, err = f.tags.Create(ctx, "alice", models.TagInput{Name: "x"})
	require.NoError(t, err)
	f.workflow(t, "alice")
	f.workflow(t, "bob")

	stats, err := f.prompts.Dashboard(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.Stats{Prompts: 1, Pinned: 0, Tags: 1, Workflows: 1}, *stats)
}

func TestTagService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tag, err := f.tags.Create(ctx, "alice", models.TagInput{Name: "  research "})
	require.NoError(t, err)
	assert.Equal(t, "research", tag.Name)
	assert.Equal(t, models.DefaultTagColor, tag.Color)

	_, err = f.tags.Create(ctx, "alice", models.TagInput{Name: "bad", Color: "blue"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.tags.Create(ctx, "alice", models.TagInput{Name: "research"})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = f.tags.Create(ctx, "bob", models.TagInput{Name: "research"})
	require.NoError(t, err, "names are unique per owner only")

	updated, err := f.tags.Update(ctx, "alice", tag.ID, models.TagInput{Name: "research", Color: "#10B981"})
	require.NoError(t, err)
	assert.Equal(t, "#10B981", updated.Color)

	_, err = f.tags.Update(ctx, "bob", tag.ID, models.TagInput{Name: "mine"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.tags.Create(ctx, "alice", models.TagInput{Name: "archive"})
	require.NoError(t, err)
	list, err := f.tags.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "archive", list[0].Name)

	require.NoError(t, f.tags.Delete(ctx, "alice", tag.ID))
	_, err = f.tags.Get(ctx, "alice", tag.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
