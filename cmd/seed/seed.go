package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"promptlab/internal/repository"
	"promptlab/internal/services"
	"promptlab/pkg/models"
)

// Fixture is the YAML seed document.
type Fixture struct {
	Subject   string            `yaml:"subject"`
	Email     string            `yaml:"email"`
	Tags      []TagFixture      `yaml:"tags"`
	Prompts   []PromptFixture   `yaml:"prompts"`
	Workflows []WorkflowFixture `yaml:"workflows"`
}

type TagFixture struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

type PromptFixture struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Content     string   `yaml:"content"`
	Tags        []string `yaml:"tags"`
	Pinned      bool     `yaml:"pinned"`
}

type WorkflowFixture struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Steps       []StepFixture `yaml:"steps"`
}

// StepFixture names a seeded prompt by title, or carries inline text.
type StepFixture struct {
	Prompt string `yaml:"prompt"`
	Custom string `yaml:"custom"`
	Notes  string `yaml:"notes"`
}

// Summary counts what a run created; existing rows are skipped.
type Summary struct {
	Tags, Prompts, Workflows, Steps int
}

func decodeFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if strings.TrimSpace(f.Subject) == "" {
		return nil, errors.New("seed file: subject is required")
	}
	return &f, nil
}

type seeder struct {
	users     repository.UserStore
	tags      *services.TagService
	prompts   *services.PromptService
	workflows *services.WorkflowService
	logger    services.Logger
}

func newSeeder(repo repository.Repository, logger services.Logger) *seeder {
	return &seeder{
		users:     repo,
		tags:      services.NewTagService(repo, logger),
		prompts:   services.NewPromptService(repo, logger),
		workflows: services.NewWorkflowService(repo, logger, nil),
		logger:    logger,
	}
}

// resolveOwner returns the local user for the fixture subject, creating it
// when the subject has never logged in.
func (s *seeder) resolveOwner(ctx context.Context, f *Fixture) (string, error) {
	u, err := s.users.GetUserBySubject(ctx, f.Subject)
	if err == nil {
		return u.ID, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return "", err
	}
	u = &models.User{Subject: f.Subject, Email: f.Email}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return "", err
	}
	s.logger.Info("Created user", "subject", f.Subject, "id", u.ID)
	return u.ID, nil
}

// apply loads the fixture through the services. Tags, prompts and workflows
// that already exist by name or title are reused, so reruns are safe.
func (s *seeder) apply(ctx context.Context, f *Fixture) (*Summary, error) {
	owner, err := s.resolveOwner(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	var sum Summary

	existingTags, err := s.tags.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	tagIDs := make(map[string]string, len(existingTags))
	for _, t := range existingTags {
		tagIDs[t.Name] = t.ID
	}
	for _, tf := range f.Tags {
		if _, ok := tagIDs[strings.TrimSpace(tf.Name)]; ok {
			continue
		}
		t, err := s.tags.Create(ctx, owner, models.TagInput{Name: tf.Name, Color: tf.Color})
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", tf.Name, err)
		}
		tagIDs[t.Name] = t.ID
		sum.Tags++
	}

	existingPrompts, err := s.prompts.List(ctx, owner, models.PromptFilter{})
	if err != nil {
		return nil, err
	}
	promptIDs := make(map[string]string, len(existingPrompts))
	for _, p := range existingPrompts {
		promptIDs[p.Title] = p.ID
	}
	for _, pf := range f.Prompts {
		title := strings.TrimSpace(pf.Title)
		if _, ok := promptIDs[title]; ok {
			s.logger.Debug("Skipping existing prompt", "title", title)
			continue
		}
		p, err := s.prompts.Create(ctx, owner, models.PromptInput{
			Title:       pf.Title,
			Description: optional(pf.Description),
			Content:     pf.Content,
		})
		if err != nil {
			return nil, fmt.Errorf("prompt %q: %w", pf.Title, err)
		}
		promptIDs[p.Title] = p.ID
		sum.Prompts++

		if len(pf.Tags) > 0 {
			ids := make([]string, 0, len(pf.Tags))
			for _, name := range pf.Tags {
				id, ok := tagIDs[name]
				if !ok {
					return nil, fmt.Errorf("prompt %q: unknown tag %q", pf.Title, name)
				}
				ids = append(ids, id)
			}
			if _, err := s.prompts.AddTags(ctx, owner, p.ID, ids); err != nil {
				return nil, fmt.Errorf("prompt %q: %w", pf.Title, err)
			}
		}
		if pf.Pinned {
			if _, err := s.prompts.Pin(ctx, owner, p.ID); err != nil {
				return nil, fmt.Errorf("prompt %q: %w", pf.Title, err)
			}
		}
	}

	existingWorkflows, err := s.workflows.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	workflowNames := make(map[string]bool, len(existingWorkflows))
	for _, w := range existingWorkflows {
		workflowNames[w.Name] = true
	}
	for _, wf := range f.Workflows {
		if workflowNames[strings.TrimSpace(wf.Name)] {
			s.logger.Debug("Skipping existing workflow", "name", wf.Name)
			continue
		}
		w, err := s.workflows.Create(ctx, owner, models.WorkflowInput{Name: wf.Name, Description: optional(wf.Description)})
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", wf.Name, err)
		}
		sum.Workflows++

		for i, st := range wf.Steps {
			in := models.StepInput{CustomPrompt: optional(st.Custom), Notes: optional(st.Notes)}
			if st.Prompt != "" {
				id, ok := promptIDs[st.Prompt]
				if !ok {
					return nil, fmt.Errorf("workflow %q step %d: unknown prompt %q", wf.Name, i+1, st.Prompt)
				}
				in.PromptID = &id
			}
			if _, err := s.workflows.AppendStep(ctx, owner, w.ID, in, nil); err != nil {
				return nil, fmt.Errorf("workflow %q step %d: %w", wf.Name, i+1, err)
			}
			sum.Steps++
		}
		s.logger.Info("Seeded workflow", "name", w.Name, "id", w.ID, "steps", len(wf.Steps))
	}
	return &sum, nil
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
