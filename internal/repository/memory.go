package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"promptlab/pkg/models"
)

// MemoryRepository keeps everything in process memory. It backs
// `store.driver: memory` and the service tests. A single mutex serializes
// writers, so WithWorkflowLock callbacks must only use the tx they are given.
type MemoryRepository struct {
	mu sync.RWMutex

	users     map[string]*models.User // by subject
	prompts   map[string]*models.Prompt
	tags      map[string]*models.Tag
	promptTag map[string]map[string]time.Time // prompt id -> tag id -> linked at
	pins      map[string]*models.PinnedPrompt // key: user id + "/" + prompt id
	workflows map[string]*models.Workflow
	steps     map[string]*models.WorkflowStep

	now func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:     map[string]*models.User{},
		prompts:   map[string]*models.Prompt{},
		tags:      map[string]*models.Tag{},
		promptTag: map[string]map[string]time.Time{},
		pins:      map[string]*models.PinnedPrompt{},
		workflows: map[string]*models.Workflow{},
		steps:     map[string]*models.WorkflowStep{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// tick returns a strictly increasing timestamp so "newest first" orderings
// are stable even when calls land within the clock resolution.
func (m *MemoryRepository) tick(last time.Time) time.Time {
	t := m.now()
	if !t.After(last) {
		t = last.Add(time.Microsecond)
	}
	return t
}

func (m *MemoryRepository) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryRepository) Stats(ctx context.Context, ownerID string) (*models.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s models.Stats
	for _, p := range m.prompts {
		if p.UserID == ownerID {
			s.Prompts++
		}
	}
	for _, p := range m.pins {
		if p.UserID == ownerID {
			s.Pinned++
		}
	}
	for _, t := range m.tags {
		if t.UserID == ownerID {
			s.Tags++
		}
	}
	for _, w := range m.workflows {
		if w.UserID == ownerID {
			s.Workflows++
		}
	}
	return &s, nil
}

// Users

func (m *MemoryRepository) GetUserBySubject(ctx context.Context, subject string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[subject]
	if !ok {
		return nil, models.NewNotFoundError("user", subject)
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryRepository) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if existing, ok := m.users[user.Subject]; ok {
		existing.Email = user.Email
		existing.UpdatedAt = now
		*user = *existing
		return nil
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt, user.UpdatedAt = now, now
	cp := *user
	m.users[user.Subject] = &cp
	return nil
}

// Prompts

func (m *MemoryRepository) CreatePrompt(ctx context.Context, prompt *models.Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prompt.ID == "" {
		prompt.ID = uuid.New().String()
	}
	now := m.tick(m.latestPrompt())
	prompt.CreatedAt, prompt.UpdatedAt = now, now
	cp := *prompt
	m.prompts[prompt.ID] = &cp
	return nil
}

func (m *MemoryRepository) latestPrompt() time.Time {
	var last time.Time
	for _, p := range m.prompts {
		if p.CreatedAt.After(last) {
			last = p.CreatedAt
		}
	}
	return last
}

func (m *MemoryRepository) ownedPrompt(ownerID, id string) (*models.Prompt, error) {
	p, ok := m.prompts[id]
	if !ok || p.UserID != ownerID {
		return nil, models.NewNotFoundError("prompt", id)
	}
	return p, nil
}

func (m *MemoryRepository) withTags(p *models.Prompt) *models.PromptWithTags {
	out := &models.PromptWithTags{Prompt: *p, Tags: []*models.Tag{}}
	for tagID := range m.promptTag[p.ID] {
		if t, ok := m.tags[tagID]; ok {
			cp := *t
			out.Tags = append(out.Tags, &cp)
		}
	}
	sort.Slice(out.Tags, func(i, j int) bool { return out.Tags[i].Name < out.Tags[j].Name })
	_, out.IsPinned = m.pins[pinKey(p.UserID, p.ID)]
	return out
}

func (m *MemoryRepository) GetPrompt(ctx context.Context, ownerID, id string) (*models.PromptWithTags, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, err := m.ownedPrompt(ownerID, id)
	if err != nil {
		return nil, err
	}
	return m.withTags(p), nil
}

func (m *MemoryRepository) ListPrompts(ctx context.Context, ownerID string, filter models.PromptFilter) ([]*models.PromptWithTags, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q := strings.ToLower(filter.Query)
	out := []*models.PromptWithTags{}
	for _, p := range m.prompts {
		if p.UserID != ownerID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Title), q) && !strings.Contains(strings.ToLower(p.Content), q) {
			continue
		}
		if filter.TagID != "" {
			if _, ok := m.promptTag[p.ID][filter.TagID]; !ok {
				continue
			}
		}
		pw := m.withTags(p)
		if filter.PinnedOnly && !pw.IsPinned {
			continue
		}
		out = append(out, pw)
	}

	sort.Slice(out, func(i, j int) bool {
		if filter.PinnedOnly {
			pi := m.pins[pinKey(ownerID, out[i].ID)].PinnedAt
			pj := m.pins[pinKey(ownerID, out[j].ID)].PinnedAt
			if !pi.Equal(pj) {
				return pi.After(pj)
			}
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryRepository) UpdatePrompt(ctx context.Context, prompt *models.Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, err := m.ownedPrompt(prompt.UserID, prompt.ID)
	if err != nil {
		return err
	}
	existing.Title = prompt.Title
	existing.Description = prompt.Description
	existing.Content = prompt.Content
	existing.UpdatedAt = m.tick(existing.UpdatedAt)
	*prompt = *existing
	return nil
}

func (m *MemoryRepository) DeletePrompt(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.ownedPrompt(ownerID, id); err != nil {
		return err
	}
	refs := 0
	for _, s := range m.steps {
		if ref, ok := s.Payload.(models.PromptRef); ok && ref.PromptID == id {
			refs++
		}
	}
	if refs > 0 {
		return models.NewConflictError("prompt %s is used by %d workflow step(s)", id, refs)
	}
	delete(m.prompts, id)
	delete(m.promptTag, id)
	for k, pin := range m.pins {
		if pin.PromptID == id {
			delete(m.pins, k)
		}
	}
	return nil
}

func pinKey(userID, promptID string) string { return userID + "/" + promptID }

func (m *MemoryRepository) PinPrompt(ctx context.Context, ownerID, promptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.ownedPrompt(ownerID, promptID); err != nil {
		return err
	}
	key := pinKey(ownerID, promptID)
	if _, ok := m.pins[key]; ok {
		return nil
	}
	var last time.Time
	for _, p := range m.pins {
		if p.PinnedAt.After(last) {
			last = p.PinnedAt
		}
	}
	m.pins[key] = &models.PinnedPrompt{
		ID:       uuid.New().String(),
		UserID:   ownerID,
		PromptID: promptID,
		PinnedAt: m.tick(last),
	}
	return nil
}

func (m *MemoryRepository) UnpinPrompt(ctx context.Context, ownerID, promptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.ownedPrompt(ownerID, promptID); err != nil {
		return err
	}
	delete(m.pins, pinKey(ownerID, promptID))
	return nil
}

func (m *MemoryRepository) AddTagsToPrompt(ctx context.Context, ownerID, promptID string, tagIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.ownedPrompt(ownerID, promptID); err != nil {
		return err
	}
	for _, id := range tagIDs {
		if t, ok := m.tags[id]; !ok || t.UserID != ownerID {
			return models.NewNotFoundError("tag", id)
		}
	}
	links := m.promptTag[promptID]
	if links == nil {
		links = map[string]time.Time{}
		m.promptTag[promptID] = links
	}
	for _, id := range tagIDs {
		if _, ok := links[id]; !ok {
			links[id] = m.now()
		}
	}
	return nil
}

func (m *MemoryRepository) RemoveTagFromPrompt(ctx context.Context, ownerID, promptID, tagID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.ownedPrompt(ownerID, promptID); err != nil {
		return err
	}
	delete(m.promptTag[promptID], tagID)
	return nil
}

// Tags

func (m *MemoryRepository) tagNameTaken(ownerID, name, exceptID string) bool {
	for _, t := range m.tags {
		if t.UserID == ownerID && t.Name == name && t.ID != exceptID {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) CreateTag(ctx context.Context, tag *models.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tagNameTaken(tag.UserID, tag.Name, "") {
		return models.NewConflictError("a tag with this name already exists")
	}
	if tag.ID == "" {
		tag.ID = uuid.New().String()
	}
	tag.CreatedAt = m.now()
	cp := *tag
	m.tags[tag.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetTag(ctx context.Context, ownerID, id string) (*models.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tags[id]
	if !ok || t.UserID != ownerID {
		return nil, models.NewNotFoundError("tag", id)
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryRepository) ListTags(ctx context.Context, ownerID string) ([]*models.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*models.Tag{}
	for _, t := range m.tags {
		if t.UserID == ownerID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryRepository) ListTagsForPrompt(ctx context.Context, ownerID, promptID string) ([]*models.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, err := m.ownedPrompt(ownerID, promptID)
	if err != nil {
		return nil, err
	}
	return m.withTags(p).Tags, nil
}

func (m *MemoryRepository) UpdateTag(ctx context.Context, tag *models.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tags[tag.ID]
	if !ok || existing.UserID != tag.UserID {
		return models.NewNotFoundError("tag", tag.ID)
	}
	if m.tagNameTaken(tag.UserID, tag.Name, tag.ID) {
		return models.NewConflictError("a tag with this name already exists")
	}
	existing.Name = tag.Name
	existing.Color = tag.Color
	*tag = *existing
	return nil
}

func (m *MemoryRepository) DeleteTag(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tags[id]
	if !ok || t.UserID != ownerID {
		return models.NewNotFoundError("tag", id)
	}
	delete(m.tags, id)
	for _, links := range m.promptTag {
		delete(links, id)
	}
	return nil
}

// Workflows

func (m *MemoryRepository) ownedWorkflow(ownerID, id string) (*models.Workflow, error) {
	w, ok := m.workflows[id]
	if !ok || w.UserID != ownerID {
		return nil, models.NewNotFoundError("workflow", id)
	}
	return w, nil
}

func (m *MemoryRepository) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}
	var last time.Time
	for _, w := range m.workflows {
		if w.CreatedAt.After(last) {
			last = w.CreatedAt
		}
	}
	now := m.tick(last)
	workflow.CreatedAt, workflow.UpdatedAt = now, now
	workflow.Version = 0
	cp := *workflow
	m.workflows[workflow.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetWorkflow(ctx context.Context, ownerID, id string) (*models.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, err := m.ownedWorkflow(ownerID, id)
	if err != nil {
		return nil, err
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryRepository) ListWorkflows(ctx context.Context, ownerID string) ([]*models.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*models.Workflow{}
	for _, w := range m.workflows {
		if w.UserID == ownerID {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) UpdateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, err := m.ownedWorkflow(workflow.UserID, workflow.ID)
	if err != nil {
		return err
	}
	existing.Name = workflow.Name
	existing.Description = workflow.Description
	existing.UpdatedAt = m.tick(existing.UpdatedAt)
	*workflow = *existing
	return nil
}

func (m *MemoryRepository) DeleteWorkflow(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.ownedWorkflow(ownerID, id); err != nil {
		return err
	}
	for sid, s := range m.steps {
		if s.WorkflowID == id {
			delete(m.steps, sid)
		}
	}
	delete(m.workflows, id)
	return nil
}

// stepsOf returns copies of a workflow's steps sorted by order.
func (m *MemoryRepository) stepsOf(workflowID string) []*models.WorkflowStep {
	out := []*models.WorkflowStep{}
	for _, s := range m.steps {
		if s.WorkflowID == workflowID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryRepository) ListSteps(ctx context.Context, ownerID, workflowID string) ([]*models.WorkflowStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, err := m.ownedWorkflow(ownerID, workflowID); err != nil {
		return nil, err
	}
	steps := m.stepsOf(workflowID)
	for _, s := range steps {
		if ref, ok := s.Payload.(models.PromptRef); ok {
			if p, ok := m.prompts[ref.PromptID]; ok {
				cp := *p
				s.Prompt = &cp
			}
		}
	}
	return steps, nil
}

func (m *MemoryRepository) WorkflowIDForStep(ctx context.Context, ownerID, stepID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.steps[stepID]
	if !ok {
		return "", models.NewNotFoundError("step", stepID)
	}
	if _, err := m.ownedWorkflow(ownerID, s.WorkflowID); err != nil {
		return "", models.NewNotFoundError("step", stepID)
	}
	return s.WorkflowID, nil
}

// WithWorkflowLock stages step changes on a copy and swaps them in only when
// fn succeeds.
func (m *MemoryRepository) WithWorkflowLock(ctx context.Context, ownerID, workflowID string, fn func(ctx context.Context, tx StepTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, err := m.ownedWorkflow(ownerID, workflowID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	staged := map[string]*models.WorkflowStep{}
	for _, s := range m.stepsOf(workflowID) {
		staged[s.ID] = s
	}
	wcp := *w
	tx := &memStepTx{repo: m, workflow: &wcp, staged: staged}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}

	for sid, s := range m.steps {
		if s.WorkflowID == workflowID {
			delete(m.steps, sid)
		}
	}
	for id, s := range staged {
		m.steps[id] = s
	}
	w.Version++
	w.UpdatedAt = m.tick(w.UpdatedAt)
	tx.workflow.Version, tx.workflow.UpdatedAt = w.Version, w.UpdatedAt
	return nil
}

type memStepTx struct {
	repo     *MemoryRepository
	workflow *models.Workflow
	staged   map[string]*models.WorkflowStep
	dirty    bool
}

func (t *memStepTx) Workflow() *models.Workflow { return t.workflow }

func (t *memStepTx) Steps(ctx context.Context) ([]*models.WorkflowStep, error) {
	out := make([]*models.WorkflowStep, 0, len(t.staged))
	for _, s := range t.staged {
		cp := *s
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memStepTx) PromptOwned(ctx context.Context, promptID string) (bool, error) {
	p, ok := t.repo.prompts[promptID]
	return ok && p.UserID == t.workflow.UserID, nil
}

func (t *memStepTx) InsertStep(ctx context.Context, step *models.WorkflowStep) error {
	if step.ID == "" {
		step.ID = uuid.New().String()
	}
	step.WorkflowID = t.workflow.ID
	var last time.Time
	for _, s := range t.staged {
		if s.CreatedAt.After(last) {
			last = s.CreatedAt
		}
	}
	now := t.repo.tick(last)
	step.CreatedAt, step.UpdatedAt = now, now
	cp := *step
	cp.Prompt = nil
	t.staged[step.ID] = &cp
	t.dirty = true
	return nil
}

func (t *memStepTx) UpdateStep(ctx context.Context, step *models.WorkflowStep) error {
	existing, ok := t.staged[step.ID]
	if !ok {
		return models.NewNotFoundError("step", step.ID)
	}
	existing.Payload = step.Payload
	existing.Notes = step.Notes
	existing.UpdatedAt = t.repo.tick(existing.UpdatedAt)
	step.UpdatedAt = existing.UpdatedAt
	t.dirty = true
	return nil
}

func (t *memStepTx) DeleteStep(ctx context.Context, stepID string) error {
	if _, ok := t.staged[stepID]; !ok {
		return models.NewNotFoundError("step", stepID)
	}
	delete(t.staged, stepID)
	t.dirty = true
	return nil
}

func (t *memStepTx) ApplyOrder(ctx context.Context, orders []models.StepOrder) error {
	for _, o := range orders {
		s, ok := t.staged[o.StepID]
		if !ok {
			return models.NewNotFoundError("step", o.StepID)
		}
		if s.Order != o.Order {
			s.Order = o.Order
			s.UpdatedAt = t.repo.tick(s.UpdatedAt)
			t.dirty = true
		}
	}
	return nil
}
