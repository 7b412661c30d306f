package main

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptlab/internal/logging"
	"promptlab/internal/repository"
	"promptlab/pkg/models"
)

func TestSeedExample(t *testing.T) {
	in, err := os.Open("seed.example.yaml")
	require.NoError(t, err)
	defer in.Close()
	fixture, err := decodeFixture(in)
	require.NoError(t, err)

	repo := repository.NewMemoryRepository()
	s := newSeeder(repo, logging.New("error", "text", io.Discard))
	ctx := context.Background()

	sum, err := s.apply(ctx, fixture)
	require.NoError(t, err)
	assert.Equal(t, Summary{Tags: 3, Prompts: 3, Workflows: 2, Steps: 5}, *sum)

	user, err := repo.GetUserBySubject(ctx, "dev|local")
	require.NoError(t, err)
	stats, err := repo.Stats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{Prompts: 3, Pinned: 2, Tags: 3, Workflows: 2}, *stats)

	workflows, err := s.workflows.List(ctx, user.ID)
	require.NoError(t, err)
	var blog *models.Workflow
	for _, w := range workflows {
		if w.Name == "Blog pipeline" {
			blog = w
		}
	}
	require.NotNil(t, blog)
	steps, err := s.workflows.Steps(ctx, user.ID, blog.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	for i, st := range steps {
		assert.Equal(t, i+1, st.Order)
	}
	assert.NotNil(t, steps[0].PromptID())
	assert.NotNil(t, steps[2].CustomPrompt())

	again, err := s.apply(ctx, fixture)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, *again, "a rerun creates nothing")
}

func TestDecodeFixture(t *testing.T) {
	_, err := decodeFixture(strings.NewReader("email: a@b.c\n"))
	assert.Error(t, err, "subject is required")

	_, err = decodeFixture(strings.NewReader("subject: x\nunknown: 1\n"))
	assert.Error(t, err, "unknown keys are rejected")
}

func TestSeedUnknownReferences(t *testing.T) {
	s := newSeeder(repository.NewMemoryRepository(), logging.New("error", "text", io.Discard))
	_, err := s.apply(context.Background(), &Fixture{
		Subject:   "someone",
		Workflows: []WorkflowFixture{{Name: "W", Steps: []StepFixture{{Prompt: "missing"}}}},
	})
	assert.ErrorContains(t, err, `unknown prompt "missing"`)
}
