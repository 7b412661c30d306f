package services

import (
	"context"

	"promptlab/internal/repository"
	"promptlab/pkg/models"
)

// TagService manages tags.
type TagService struct {
	store  repository.TagStore
	logger Logger
}

func NewTagService(store repository.TagStore, logger Logger) *TagService {
	if logger == nil {
		logger = nopLogger{}
	}
	return &TagService{store: store, logger: logger}
}

func (s *TagService) Create(ctx context.Context, ownerID string, in models.TagInput) (*models.Tag, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	t := &models.Tag{UserID: ownerID, Name: in.Name, Color: in.Color}
	if err := s.store.CreateTag(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TagService) Get(ctx context.Context, ownerID, id string) (*models.Tag, error) {
	return s.store.GetTag(ctx, ownerID, id)
}

// List returns the owner's tags by name.
func (s *TagService) List(ctx context.Context, ownerID string) ([]*models.Tag, error) {
	return s.store.ListTags(ctx, ownerID)
}

func (s *TagService) Update(ctx context.Context, ownerID, id string, in models.TagInput) (*models.Tag, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	t := &models.Tag{ID: id, UserID: ownerID, Name: in.Name, Color: in.Color}
	if err := s.store.UpdateTag(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes the tag and detaches it from every prompt.
func (s *TagService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.store.DeleteTag(ctx, ownerID, id); err != nil {
		return err
	}
	s.logger.Info("tag deleted", "tag_id", id, "user_id", ownerID)
	return nil
}
