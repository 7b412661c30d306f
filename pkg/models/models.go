// Package models defines the domain models for the prompt lab service
package models

import (
	"regexp"
	"strings"
	"time"
)

// DefaultTagColor is used when a tag is created without a color.
const DefaultTagColor = "#3B82F6"

var tagColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Prompt represents a saved AI prompt owned by a single user
type Prompt struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Title       string    `json:"title" db:"title"`
	Description *string   `json:"description,omitempty" db:"description"`
	Content     string    `json:"content" db:"content"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// PromptWithTags extends Prompt with its tags and the caller's pin state
type PromptWithTags struct {
	Prompt
	Tags     []*Tag `json:"tags"`
	IsPinned bool   `json:"is_pinned"`
}

// PromptInput carries the user-editable fields of a prompt
type PromptInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Content     string  `json:"content"`
}

// Validate checks the required prompt fields.
func (in PromptInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return NewValidationError("title", "title is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return NewValidationError("content", "content is required")
	}
	return nil
}

// PromptFilter narrows a prompt listing. Zero value lists everything.
type PromptFilter struct {
	Query      string
	TagID      string
	PinnedOnly bool
}

// Tag represents a user-defined label
type Tag struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Color     string    `json:"color" db:"color"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TagInput carries the user-editable fields of a tag
type TagInput struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Normalize trims the name and fills in the default color.
func (in TagInput) Normalize() TagInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Color = strings.TrimSpace(in.Color)
	if in.Color == "" {
		in.Color = DefaultTagColor
	}
	return in
}

// Validate checks a normalized tag input.
func (in TagInput) Validate() error {
	if in.Name == "" {
		return NewValidationError("name", "name is required")
	}
	if !tagColorPattern.MatchString(in.Color) {
		return NewValidationError("color", "color must be a #RRGGBB hex value")
	}
	return nil
}

// PinnedPrompt is the membership record marking a prompt as a favorite
type PinnedPrompt struct {
	ID       string    `json:"id" db:"id"`
	UserID   string    `json:"user_id" db:"user_id"`
	PromptID string    `json:"prompt_id" db:"prompt_id"`
	PinnedAt time.Time `json:"pinned_at" db:"pinned_at"`
}

// Stats summarizes a user's library for the dashboard
type Stats struct {
	Prompts   int `json:"prompts"`
	Pinned    int `json:"pinned"`
	Tags      int `json:"tags"`
	Workflows int `json:"workflows"`
}

