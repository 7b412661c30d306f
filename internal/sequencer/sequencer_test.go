package sequencer

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptlab/pkg/models"
)

func newSteps(ids ...string) []*models.WorkflowStep {
	steps := make([]*models.WorkflowStep, len(ids))
	for i, id := range ids {
		steps[i] = &models.WorkflowStep{ID: id, Order: i + 1, Payload: models.CustomPrompt{Text: id}}
	}
	return steps
}

func idsOf(steps []*models.WorkflowStep) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.ID
	}
	return out
}

func ordersOf(steps []*models.WorkflowStep) []int {
	out := make([]int, len(steps))
	for i, s := range steps {
		out[i] = s.Order
	}
	return out
}

func TestNextOrder(t *testing.T) {
	assert.Equal(t, 1, NextOrder(nil))
	assert.Equal(t, 4, NextOrder(newSteps("a", "b", "c")))
}

func TestNormalize_RepairsGapsAndDuplicates(t *testing.T) {
	steps := []*models.WorkflowStep{
		{ID: "c", Order: 7},
		{ID: "a", Order: 2},
		{ID: "b", Order: 2},
		{ID: "d", Order: 9},
	}
	got := Normalize(steps)
	assert.Equal(t, []models.StepOrder{
		{StepID: "a", Order: 1},
		{StepID: "b", Order: 2},
		{StepID: "c", Order: 3},
		{StepID: "d", Order: 4},
	}, got)
}

func TestAfterRemove(t *testing.T) {
	steps := newSteps("a", "b", "c")

	got, err := AfterRemove(steps, "b")
	require.NoError(t, err)
	assert.Equal(t, []models.StepOrder{{StepID: "a", Order: 1}, {StepID: "c", Order: 2}}, got)

	_, err = AfterRemove(steps, "zzz")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestValidateSequence(t *testing.T) {
	steps := newSteps("a", "b", "c")

	tests := []struct {
		name    string
		ids     []string
		wantErr bool
	}{
		{name: "permutation", ids: []string{"c", "a", "b"}},
		{name: "missing id", ids: []string{"a", "b"}, wantErr: true},
		{name: "extra id", ids: []string{"a", "b", "c", "d"}, wantErr: true},
		{name: "foreign id", ids: []string{"a", "b", "x"}, wantErr: true},
		{name: "duplicate id", ids: []string{"a", "a", "b"}, wantErr: true},
		{name: "empty", ids: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSequence(steps, tt.ids)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.NoError(t, ValidateSequence(nil, []string{}))
}

func TestAssign_Idempotent(t *testing.T) {
	steps := newSteps("a", "b", "c")
	target := []string{"b", "c", "a"}

	first, err := Assign(steps, target)
	require.NoError(t, err)
	steps = Apply(steps, first)

	second, err := Assign(steps, target)
	require.NoError(t, err)
	steps = Apply(steps, second)

	assert.Equal(t, first, second)
	assert.Equal(t, target, idsOf(steps))
	assert.Equal(t, []int{1, 2, 3}, ordersOf(steps))
}

func TestMove(t *testing.T) {
	steps := newSteps("a", "b", "c")

	ids, moved, err := Move(steps, "c", models.DirectionUp)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, []string{"a", "c", "b"}, ids)

	ids, moved, err = Move(steps, "a", models.DirectionDown)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, []string{"b", "a", "c"}, ids)

	ids, moved, err = Move(steps, "a", models.DirectionUp)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	_, moved, err = Move(steps, "c", models.DirectionDown)
	require.NoError(t, err)
	assert.False(t, moved)

	_, _, err = Move(steps, "nope", models.DirectionUp)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// Workflow [A, B, C]; remove B; move C up.
func TestScenario_RemoveThenMoveUp(t *testing.T) {
	steps := newSteps("A", "B", "C")

	orders, err := AfterRemove(steps, "B")
	require.NoError(t, err)
	steps = Apply(steps, orders)
	assert.Equal(t, []string{"A", "C"}, idsOf(steps))
	assert.Equal(t, []int{1, 2}, ordersOf(steps))

	ids, moved, err := Move(steps, "C", models.DirectionUp)
	require.NoError(t, err)
	require.True(t, moved)
	assert.Equal(t, []string{"C", "A"}, ids)

	orders, err = Assign(steps, ids)
	require.NoError(t, err)
	steps = Apply(steps, orders)
	assert.Equal(t, []string{"C", "A"}, idsOf(steps))
	assert.Equal(t, []int{1, 2}, ordersOf(steps))
}

func TestVerify(t *testing.T) {
	assert.NoError(t, Verify(nil))
	assert.NoError(t, Verify([]int{2, 1, 3}))
	assert.Error(t, Verify([]int{1, 3}))
	assert.Error(t, Verify([]int{1, 1}))
	assert.Error(t, Verify([]int{0, 1}))
}

func TestRandomOperationsStayContiguous(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var steps []*models.WorkflowStep
	next := 0

	for i := 0; i < 2000; i++ {
		before := idsOf(Sorted(steps))

		switch op := rng.Intn(4); {
		case op == 0 || len(steps) == 0:
			next++
			order := NextOrder(steps)
			steps = append(steps, &models.WorkflowStep{ID: fmt.Sprintf("s%d", next), Order: order})
			assert.Equal(t, before, idsOf(Sorted(steps))[:len(before)], "append must not disturb prior steps")
		case op == 1:
			victim := steps[rng.Intn(len(steps))].ID
			orders, err := AfterRemove(steps, victim)
			require.NoError(t, err)
			steps = Apply(steps, orders)
			assert.Equal(t, without(before, victim), idsOf(steps), "remove must keep relative order")
		case op == 2:
			ids := idsOf(Sorted(steps))
			rng.Shuffle(len(ids), func(a, b int) { ids[a], ids[b] = ids[b], ids[a] })
			orders, err := Assign(steps, ids)
			require.NoError(t, err)
			steps = Apply(steps, orders)
			assert.Equal(t, ids, idsOf(steps))
		default:
			dir := models.DirectionUp
			if rng.Intn(2) == 0 {
				dir = models.DirectionDown
			}
			ids, _, err := Move(steps, steps[rng.Intn(len(steps))].ID, dir)
			require.NoError(t, err)
			orders, err := Assign(steps, ids)
			require.NoError(t, err)
			steps = Apply(steps, orders)
		}

		require.NoError(t, Verify(ordersOf(steps)), "iteration %d", i)
	}
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
