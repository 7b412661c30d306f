package services

import (
	"context"
	"strings"

	"promptlab/internal/repository"
	"promptlab/pkg/models"
)

// PromptService manages prompts, their pins and their tags.
type PromptService struct {
	store  repository.PromptStore
	tags   repository.TagStore
	stats  StatsSource
	logger Logger
}

// StatsSource counts a user's library.
type StatsSource interface {
	Stats(ctx context.Context, ownerID string) (*models.Stats, error)
}

// NewPromptService creates a new PromptService. repo usually is the full
// repository.Repository.
func NewPromptService(repo interface {
	repository.PromptStore
	repository.TagStore
	StatsSource
}, logger Logger) *PromptService {
	if logger == nil {
		logger = nopLogger{}
	}
	return &PromptService{store: repo, tags: repo, stats: repo, logger: logger}
}

// Create saves a new prompt.
func (s *PromptService) Create(ctx context.Context, ownerID string, in models.PromptInput) (*models.PromptWithTags, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	p := &models.Prompt{
		UserID:      ownerID,
		Title:       strings.TrimSpace(in.Title),
		Description: blankToNil(in.Description),
		Content:     in.Content,
	}
	if err := s.store.CreatePrompt(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("prompt created", "prompt_id", p.ID, "user_id", ownerID)
	return &models.PromptWithTags{Prompt: *p, Tags: []*models.Tag{}}, nil
}

// Get returns a prompt with its tags and pin state.
func (s *PromptService) Get(ctx context.Context, ownerID, id string) (*models.PromptWithTags, error) {
	return s.store.GetPrompt(ctx, ownerID, id)
}

// List returns the owner's prompts newest first, narrowed by filter.
// Pinned-only listings are ordered by most recent pin.
func (s *PromptService) List(ctx context.Context, ownerID string, filter models.PromptFilter) ([]*models.PromptWithTags, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	filter.TagID = strings.ToLower(strings.TrimSpace(filter.TagID))
	return s.store.ListPrompts(ctx, ownerID, filter)
}

// Update replaces the editable fields of a prompt.
func (s *PromptService) Update(ctx context.Context, ownerID, id string, in models.PromptInput) (*models.PromptWithTags, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	p := &models.Prompt{
		ID:          id,
		UserID:      ownerID,
		Title:       strings.TrimSpace(in.Title),
		Description: blankToNil(in.Description),
		Content:     in.Content,
	}
	if err := s.store.UpdatePrompt(ctx, p); err != nil {
		return nil, err
	}
	return s.store.GetPrompt(ctx, ownerID, id)
}

// Delete removes a prompt with its pins and tag links. It fails with a
// ConflictError while a workflow step references the prompt.
func (s *PromptService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.store.DeletePrompt(ctx, ownerID, id); err != nil {
		return err
	}
	s.logger.Info("prompt deleted", "prompt_id", id, "user_id", ownerID)
	return nil
}

// Pin marks the prompt as a favorite. Pinning twice is not an error.
func (s *PromptService) Pin(ctx context.Context, ownerID, id string) (*models.PromptWithTags, error) {
	if err := s.store.PinPrompt(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.store.GetPrompt(ctx, ownerID, id)
}

// Unpin clears the favorite mark. Unpinning an unpinned prompt is not an error.
func (s *PromptService) Unpin(ctx context.Context, ownerID, id string) (*models.PromptWithTags, error) {
	if err := s.store.UnpinPrompt(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.store.GetPrompt(ctx, ownerID, id)
}

// Tags lists the tags attached to a prompt.
func (s *PromptService) Tags(ctx context.Context, ownerID, promptID string) ([]*models.Tag, error) {
	return s.tags.ListTagsForPrompt(ctx, ownerID, promptID)
}

// AddTags attaches the given tags. Tags already attached are skipped.
func (s *PromptService) AddTags(ctx context.Context, ownerID, promptID string, tagIDs []string) ([]*models.Tag, error) {
	ids := make([]string, 0, len(tagIDs))
	for _, id := range tagIDs {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, models.NewValidationError("tag_ids", "at least one tag id is required")
	}
	if err := s.store.AddTagsToPrompt(ctx, ownerID, promptID, ids); err != nil {
		return nil, err
	}
	return s.tags.ListTagsForPrompt(ctx, ownerID, promptID)
}

// RemoveTag detaches a tag. Removing a tag that is not attached is not an error.
func (s *PromptService) RemoveTag(ctx context.Context, ownerID, promptID, tagID string) ([]*models.Tag, error) {
	if err := s.store.RemoveTagFromPrompt(ctx, ownerID, promptID, strings.ToLower(tagID)); err != nil {
		return nil, err
	}
	return s.tags.ListTagsForPrompt(ctx, ownerID, promptID)
}

// Dashboard returns the owner's library counts.
func (s *PromptService) Dashboard(ctx context.Context, ownerID string) (*models.Stats, error) {
	return s.stats.Stats(ctx, ownerID)
}
