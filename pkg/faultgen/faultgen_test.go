package faultgen

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khryptorgraphics/bbsim/pkg/task"
)

func slotsFor(tasks []*task.Task, length float64) []Slot {
	slots := make([]Slot, len(tasks))
	cursor := 0.0
	for i, t := range tasks {
		slots[i] = Slot{Start: cursor, Length: length, Task: t}
		cursor += length
	}
	return slots
}

func TestGenerateCountMatchesMinKAndSlots(t *testing.T) {
	tasks := []*task.Task{task.New(1, 10, 5), task.New(2, 10, 5), task.New(3, 10, 5)}
	slots := slotsFor(tasks, 10)

	rng := rand.New(rand.NewSource(42))
	events := Generate(rng, 2, 0, 30, 1, slots)
	require.Len(t, events, 2)
}

func TestGenerateCapsAtNumberOfSlots(t *testing.T) {
	tasks := []*task.Task{task.New(1, 10, 5)}
	slots := slotsFor(tasks, 10)

	rng := rand.New(rand.NewSource(1))
	events := Generate(rng, 5, 0, 10, 1, slots)
	require.Len(t, events, 1)
}

func TestGenerateNeverDoubleFaultsATask(t *testing.T) {
	tasks := []*task.Task{task.New(1, 10, 5), task.New(2, 10, 5)}
	slots := slotsFor(tasks, 10)

	rng := rand.New(rand.NewSource(7))
	events := Generate(rng, 2, 0, 20, 1, slots)
	seen := map[int]bool{}
	for _, e := range events {
		assert.False(t, seen[e.Task.ID])
		seen[e.Task.ID] = true
	}
}

func TestGenerateRelativeWithinSlot(t *testing.T) {
	tasks := []*task.Task{task.New(1, 10, 5)}
	slots := slotsFor(tasks, 10)

	rng := rand.New(rand.NewSource(99))
	events := Generate(rng, 1, 0, 10, 1, slots)
	require.Len(t, events, 1)
	assert.GreaterOrEqual(t, events[0].Relative, 0.0)
	assert.LessOrEqual(t, events[0].Relative, 10.0)
}

func TestGenerateZeroKReturnsNoEvents(t *testing.T) {
	tasks := []*task.Task{task.New(1, 10, 5)}
	slots := slotsFor(tasks, 10)

	rng := rand.New(rand.NewSource(3))
	events := Generate(rng, 0, 0, 10, 1, slots)
	assert.Empty(t, events)
}

func TestGenerateDeterministicForFixedSeed(t *testing.T) {
	tasks := []*task.Task{task.New(1, 10, 5), task.New(2, 10, 5), task.New(3, 10, 5)}

	run := func(seed int64) []FaultEvent {
		slots := slotsFor(tasks, 10)
		rng := rand.New(rand.NewSource(seed))
		return Generate(rng, 2, 0, 30, 1, slots)
	}

	a := run(123)
	b := run(123)
	require.Len(t, a, len(b))
	for i := range a {
		assert.Equal(t, a[i].Task.ID, b[i].Task.ID)
		assert.InDelta(t, a[i].Relative, b[i].Relative, 1e-9)
	}
}
