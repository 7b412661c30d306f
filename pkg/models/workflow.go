package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Workflow is an ordered collection of prompt steps.
type Workflow struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Version     int       `json:"version"` // bumped on every step mutation
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkflowInput carries the user-editable fields of a workflow.
type WorkflowInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// Validate checks the required workflow fields.
func (in WorkflowInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return NewValidationError("name", "name is required")
	}
	return nil
}

// WorkflowWithSteps is a workflow together with its ordered steps.
type WorkflowWithSteps struct {
	Workflow
	Steps []*WorkflowStep `json:"steps"`
}

// StepPayload is what a step runs: either a saved prompt or inline text.
// Implemented only by PromptRef and CustomPrompt.
type StepPayload interface {
	isStepPayload()
}

// PromptRef points a step at a saved prompt.
type PromptRef struct {
	PromptID string
}

// CustomPrompt holds inline prompt text.
type CustomPrompt struct {
	Text string
}

func (PromptRef) isStepPayload()    {}
func (CustomPrompt) isStepPayload() {}

// NewStepPayload builds a payload from the two nullable wire fields.
// Exactly one must be set; blank strings count as unset.
func NewStepPayload(promptID, customPrompt *string) (StepPayload, error) {
	hasRef := promptID != nil && strings.TrimSpace(*promptID) != ""
	hasText := customPrompt != nil && strings.TrimSpace(*customPrompt) != ""
	switch {
	case hasRef && hasText:
		return nil, NewValidationError("payload", "prompt_id and custom_prompt are mutually exclusive")
	case hasRef:
		return PromptRef{PromptID: strings.TrimSpace(*promptID)}, nil
	case hasText:
		return CustomPrompt{Text: *customPrompt}, nil
	default:
		return nil, NewValidationError("payload", "one of prompt_id or custom_prompt is required")
	}
}

// WorkflowStep is one element of a workflow.
type WorkflowStep struct {
	ID         string
	WorkflowID string
	Order      int
	Payload    StepPayload
	Notes      *string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Prompt is the referenced prompt, populated on joined reads.
	Prompt *Prompt
}

// PromptID returns the referenced prompt id, or nil for custom steps.
func (s *WorkflowStep) PromptID() *string {
	if ref, ok := s.Payload.(PromptRef); ok {
		id := ref.PromptID
		return &id
	}
	return nil
}

// CustomPrompt returns the inline text, or nil for referencing steps.
func (s *WorkflowStep) CustomPrompt() *string {
	if c, ok := s.Payload.(CustomPrompt); ok {
		text := c.Text
		return &text
	}
	return nil
}

type workflowStepJSON struct {
	ID           string    `json:"id"`
	WorkflowID   string    `json:"workflow_id"`
	Order        int       `json:"step_order"`
	PromptID     *string   `json:"prompt_id"`
	CustomPrompt *string   `json:"custom_prompt"`
	Notes        *string   `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Prompt       *Prompt   `json:"prompt,omitempty"`
}

// MarshalJSON flattens the payload into prompt_id / custom_prompt.
func (s WorkflowStep) MarshalJSON() ([]byte, error) {
	return json.Marshal(workflowStepJSON{
		ID:           s.ID,
		WorkflowID:   s.WorkflowID,
		Order:        s.Order,
		PromptID:     s.PromptID(),
		CustomPrompt: s.CustomPrompt(),
		Notes:        s.Notes,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Prompt:       s.Prompt,
	})
}

// UnmarshalJSON rebuilds the payload, rejecting rows that violate exclusivity.
func (s *WorkflowStep) UnmarshalJSON(data []byte) error {
	var raw workflowStepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, err := NewStepPayload(raw.PromptID, raw.CustomPrompt)
	if err != nil {
		return err
	}
	*s = WorkflowStep{
		ID:         raw.ID,
		WorkflowID: raw.WorkflowID,
		Order:      raw.Order,
		Payload:    payload,
		Notes:      raw.Notes,
		CreatedAt:  raw.CreatedAt,
		UpdatedAt:  raw.UpdatedAt,
		Prompt:     raw.Prompt,
	}
	return nil
}

// StepInput is the wire form of a step create or update.
type StepInput struct {
	PromptID     *string `json:"prompt_id"`
	CustomPrompt *string `json:"custom_prompt"`
	Notes        *string `json:"notes"`
}

// Payload validates and converts the payload fields.
func (in StepInput) Payload() (StepPayload, error) {
	return NewStepPayload(in.PromptID, in.CustomPrompt)
}

// StepChanges describes an edit to an existing step. Nil fields are left unchanged.
type StepChanges struct {
	Payload StepPayload
	Notes   *string
}

// StepOrder assigns a position to a step.
type StepOrder struct {
	StepID string
	Order  int
}

// Direction is a single-position move.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ParseDirection validates a move direction.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case DirectionUp, DirectionDown:
		return d, nil
	default:
		return "", NewValidationError("direction", "direction must be \"up\" or \"down\"")
	}
}
