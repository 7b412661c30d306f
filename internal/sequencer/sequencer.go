// Package sequencer keeps the steps of a workflow numbered 1..n.
//
// Every function works on a snapshot of the full step list read inside the
// caller's transaction and returns the complete order assignment to write
// back, never a delta. Applying the returned assignment as one batch leaves
// the workflow contiguous.
package sequencer

import (
	"fmt"
	"sort"

	"promptlab/pkg/models"
)

// Sorted returns a copy of steps ordered by their current order value.
// Ties keep their input order.
func Sorted(steps []*models.WorkflowStep) []*models.WorkflowStep {
	out := make([]*models.WorkflowStep, len(steps))
	copy(out, steps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// NextOrder is the position a newly appended step takes.
func NextOrder(steps []*models.WorkflowStep) int {
	return len(steps) + 1
}

// Normalize renumbers steps 1..n keeping their relative order.
// It repairs gaps and duplicates left by any earlier inconsistency.
func Normalize(steps []*models.WorkflowStep) []models.StepOrder {
	sorted := Sorted(steps)
	out := make([]models.StepOrder, len(sorted))
	for i, s := range sorted {
		out[i] = models.StepOrder{StepID: s.ID, Order: i + 1}
	}
	return out
}

// AfterRemove returns the assignment for the steps that survive removing stepID.
func AfterRemove(steps []*models.WorkflowStep, stepID string) ([]models.StepOrder, error) {
	survivors := make([]*models.WorkflowStep, 0, len(steps))
	found := false
	for _, s := range steps {
		if s.ID == stepID {
			found = true
			continue
		}
		survivors = append(survivors, s)
	}
	if !found {
		return nil, models.NewNotFoundError("step", stepID)
	}
	return Normalize(survivors), nil
}

// Assign validates a requested full ordering against the current steps and
// returns order = index+1 for each id.
func Assign(steps []*models.WorkflowStep, stepIDs []string) ([]models.StepOrder, error) {
	if err := ValidateSequence(steps, stepIDs); err != nil {
		return nil, err
	}
	out := make([]models.StepOrder, len(stepIDs))
	for i, id := range stepIDs {
		out[i] = models.StepOrder{StepID: id, Order: i + 1}
	}
	return out, nil
}

// ValidateSequence checks that stepIDs is a permutation of the current step ids.
func ValidateSequence(steps []*models.WorkflowStep, stepIDs []string) error {
	if len(stepIDs) != len(steps) {
		return models.NewValidationError("step_ids",
			fmt.Sprintf("expected %d step ids, got %d", len(steps), len(stepIDs)))
	}
	current := make(map[string]bool, len(steps))
	for _, s := range steps {
		current[s.ID] = false
	}
	for _, id := range stepIDs {
		seen, ok := current[id]
		if !ok {
			return models.NewValidationError("step_ids", fmt.Sprintf("step %q does not belong to this workflow", id))
		}
		if seen {
			return models.NewValidationError("step_ids", fmt.Sprintf("step %q listed more than once", id))
		}
		current[id] = true
	}
	return nil
}

// Move returns the full id sequence with stepID shifted one position.
// moved is false when the step is already at the edge in that direction.
func Move(steps []*models.WorkflowStep, stepID string, dir models.Direction) (ids []string, moved bool, err error) {
	sorted := Sorted(steps)
	ids = make([]string, len(sorted))
	idx := -1
	for i, s := range sorted {
		ids[i] = s.ID
		if s.ID == stepID {
			idx = i
		}
	}
	if idx < 0 {
		return nil, false, models.NewNotFoundError("step", stepID)
	}

	target := idx - 1
	if dir == models.DirectionDown {
		target = idx + 1
	}
	if target < 0 || target >= len(ids) {
		return ids, false, nil
	}

	ids = append(ids[:idx], ids[idx+1:]...)
	ids = append(ids[:target], append([]string{stepID}, ids[target:]...)...)
	return ids, true, nil
}

// Verify reports whether the given orders are exactly 1..n.
func Verify(orders []int) error {
	seen := make([]bool, len(orders)+1)
	for _, o := range orders {
		if o < 1 || o > len(orders) {
			return fmt.Errorf("step order %d outside 1..%d", o, len(orders))
		}
		if seen[o] {
			return fmt.Errorf("step order %d assigned twice", o)
		}
		seen[o] = true
	}
	return nil
}

// Apply writes an assignment onto the in-memory steps and returns them sorted.
func Apply(steps []*models.WorkflowStep, orders []models.StepOrder) []*models.WorkflowStep {
	byID := make(map[string]int, len(orders))
	for _, o := range orders {
		byID[o.StepID] = o.Order
	}
	out := make([]*models.WorkflowStep, 0, len(orders))
	for _, s := range steps {
		if order, ok := byID[s.ID]; ok {
			s.Order = order
			out = append(out, s)
		}
	}
	return Sorted(out)
}
