package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"promptlab/internal/migrations"
	"promptlab/pkg/models"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("promptlab"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	if err := migrations.Up(connStr); err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresRepository(t *testing.T) {
	pool := setupPostgres(t)
	repo := NewPostgresRepository(pool)

	runRepositorySuite(t, repo)

	t.Run("malformed ids read as missing", func(t *testing.T) {
		ctx := context.Background()
		_, err := repo.GetPrompt(ctx, "00000000-0000-0000-0000-000000000000", "not-a-uuid")
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = repo.GetWorkflow(ctx, "00000000-0000-0000-0000-000000000000", "not-a-uuid")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("payload exclusivity is enforced by the schema", func(t *testing.T) {
		ctx := context.Background()
		u := &models.User{Subject: "schema-check", Email: "s@example.com"}
		require.NoError(t, repo.CreateUser(ctx, u))
		wf := &models.Workflow{UserID: u.ID, Name: "flow"}
		require.NoError(t, repo.CreateWorkflow(ctx, wf))

		_, err := pool.Exec(ctx,
			"INSERT INTO workflow_steps (workflow_id, step_order) VALUES ($1, 1)", wf.ID)
		require.Error(t, err)
		assert.ErrorIs(t, mapError(err, "step", ""), models.ErrValidation)
	})
}
