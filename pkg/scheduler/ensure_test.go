package scheduler

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khryptorgraphics/bbsim/internal/config"
	"github.com/khryptorgraphics/bbsim/pkg/core"
	"github.com/khryptorgraphics/bbsim/pkg/task"
)

func ensureCfg(k, numLPCores int, frame, timeStep, lpHPRatio float64) *config.Config {
	return &config.Config{
		SchedulerType: config.EnSuRe,
		K:             k,
		Frame:         frame,
		TimeStep:      timeStep,
		NumLPCores:    numLPCores,
		LPHPRatio:     lpHPRatio,
	}
}

// single window, backup_start = 44 when k=2.
func TestGenerateEnSuReSingleWindowBackupStart(t *testing.T) {
	s, err := New(ensureCfg(2, 1, 100, 1, 0.8), nil)
	require.NoError(t, err)

	tasks := []*task.Task{task.NewWithDeadline(1, 30, 24, 100), task.NewWithDeadline(2, 40, 32, 100)}
	ok, err := s.GenerateSchedule(tasks)
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, s.ensure.windows, 1)
	win := s.ensure.windows[0]
	assert.InDelta(t, 44, win.backupStart, 1e-9)

	sumWQ := 0.0
	for _, e := range win.priSchedule {
		sumWQ += e.Task.WorkloadQuota[0]
	}
	assert.LessOrEqual(t, sumWQ, win.Length+1e-9)
}

// a single window whose summed quotas exceed its length is infeasible.
func TestGenerateEnSuReInfeasibleWindow(t *testing.T) {
	s, err := New(ensureCfg(1, 1, 50, 1, 0.8), nil)
	require.NoError(t, err)

	tasks := []*task.Task{task.NewWithDeadline(1, 40, 32, 50), task.NewWithDeadline(2, 40, 32, 50)}
	ok, err := s.GenerateSchedule(tasks)
	require.NoError(t, err)
	assert.False(t, ok)
}

// scenario: all tasks share one deadline == frame (reduces to FEST-like
// single-window behaviour).
func TestGenerateEnSuReSingleDeadlineEqualsFrame(t *testing.T) {
	s, err := New(ensureCfg(1, 1, 100, 1, 0.5), nil)
	require.NoError(t, err)

	tasks := []*task.Task{task.NewWithDeadline(1, 50, 25, 100)}
	ok, err := s.GenerateSchedule(tasks)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, s.ensure.deadlines, 1)
	assert.InDelta(t, 100, s.ensure.deadlines[0], 1e-9)
}

func TestGenerateEnSuReMultiWindowFeasibilityPerWindow(t *testing.T) {
	s, err := New(ensureCfg(1, 1, 100, 1, 0.5), nil)
	require.NoError(t, err)

	// task1 alive in both windows (deadline 100), task2 only in window0
	// (deadline 50).
	tasks := []*task.Task{
		task.NewWithDeadline(1, 20, 10, 100),
		task.NewWithDeadline(2, 20, 10, 50),
	}
	ok, err := s.GenerateSchedule(tasks)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, s.ensure.windows, 2)

	// task1 has one quota entry per window it was alive in (both).
	for _, tk := range []*task.Task{tasks[0]} {
		assert.Len(t, tk.WorkloadQuota, 2)
	}
	// task2 only appears in window 0.
	assert.Len(t, tasks[1].WorkloadQuota, 1)
}

// with 2 LP cores and 2 windows, the round-robin starting core must reset
// to 0 at the top of every window instead of carrying over from the
// previous window's placement.
func TestGenerateEnSuReRoundRobinResetsPerWindow(t *testing.T) {
	s, err := New(ensureCfg(0, 2, 100, 1, 0.5), nil)
	require.NoError(t, err)

	// window 1 (deadline 50) places 3 tasks across 2 cores, leaving the
	// round-robin cursor mid-rotation; window 2 (deadline 100) must still
	// start its own placement at core 0.
	tasks := []*task.Task{
		task.NewWithDeadline(1, 10, 5, 50),
		task.NewWithDeadline(2, 20, 10, 100),
		task.NewWithDeadline(3, 20, 10, 100),
	}
	ok, err := s.GenerateSchedule(tasks)
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, s.ensure.windows, 2)
	win2 := s.ensure.windows[1]
	require.NotEmpty(t, win2.priSchedule)
	assert.Equal(t, 0, win2.priSchedule[0].CoreIndex)
}

func TestSimulateEnSuReRejectsWrongCoreCount(t *testing.T) {
	s, err := New(ensureCfg(1, 2, 100, 1, 0.5), nil)
	require.NoError(t, err)

	tasks := []*task.Task{task.NewWithDeadline(1, 20, 10, 100)}
	ok, err := s.GenerateSchedule(tasks)
	require.NoError(t, err)
	require.True(t, ok)

	hp := core.NewDefaultHP("hp", 0.5)
	err = s.Simulate([]*core.Core{core.NewDefaultLP("lp-0")}, hp, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestSimulateEnSuReZeroK(t *testing.T) {
	cfg := ensureCfg(0, 1, 100, 1, 0.8)
	s, err := New(cfg, nil)
	require.NoError(t, err)

	tasks := []*task.Task{task.NewWithDeadline(1, 30, 24, 100), task.NewWithDeadline(2, 40, 32, 100)}
	ok, err := s.GenerateSchedule(tasks)
	require.NoError(t, err)
	require.True(t, ok)

	lp := []*core.Core{core.NewDefaultLP("lp-0")}
	hp := core.NewDefaultHP("hp", cfg.LPHPRatio)
	rng := rand.New(rand.NewSource(1))
	require.NoError(t, s.Simulate(lp, hp, rng))

	assert.InDelta(t, 0, hp.ActiveDuration, 1e-9)
	assert.Empty(t, s.ResidualBackupTasks())
}

// a task placed exactly at a window's Start must actually begin running
// on that tick, not one tick late: the previous window's loop already
// advances the shared clock past the boundary before this window's own
// loop begins, so the boundary assignment has to be picked up explicitly.
func TestSimulateEnSuReAssignsExactlyAtWindowBoundary(t *testing.T) {
	cfg := ensureCfg(0, 1, 100, 1, 0.5)
	s, err := New(cfg, nil)
	require.NoError(t, err)

	tasks := []*task.Task{
		task.NewWithDeadline(1, 20, 10, 50),
		task.NewWithDeadline(2, 20, 10, 100),
	}
	ok, err := s.GenerateSchedule(tasks)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, s.ensure.windows, 2)

	win1 := s.ensure.windows[1]
	require.NotEmpty(t, win1.priSchedule)
	require.InDelta(t, win1.Start, win1.priSchedule[0].LPStart, 1e-9)

	lp := []*core.Core{core.NewDefaultLP("lp-0")}
	hp := core.NewDefaultHP("hp", cfg.LPHPRatio)
	require.NoError(t, s.Simulate(lp, hp, rand.New(rand.NewSource(4))))

	assert.InDelta(t, win1.Start, tasks[1].StartTime, 1e-9)
}

func TestSimulateEnSuReGlobalTimeDoesNotResetAcrossWindows(t *testing.T) {
	cfg := ensureCfg(0, 1, 100, 1, 0.5)
	s, err := New(cfg, nil)
	require.NoError(t, err)

	tasks := []*task.Task{
		task.NewWithDeadline(1, 20, 10, 50),
		task.NewWithDeadline(2, 20, 10, 100),
	}
	ok, err := s.GenerateSchedule(tasks)
	require.NoError(t, err)
	require.True(t, ok)

	lp := []*core.Core{core.NewDefaultLP("lp-0")}
	hp := core.NewDefaultHP("hp", cfg.LPHPRatio)
	rng := rand.New(rand.NewSource(2))
	require.NoError(t, s.Simulate(lp, hp, rng))

	// second window's entries start at or after the first window's deadline.
	require.Len(t, s.ensure.windows, 2)
	for _, e := range s.ensure.windows[1].priSchedule {
		assert.GreaterOrEqual(t, e.LPStart, s.ensure.windows[0].Deadline)
	}
	// task 2 last started in the second window, so its simulated start
	// time lies past the first window's deadline rather than back near 0.
	assert.GreaterOrEqual(t, tasks[1].StartTime, s.ensure.windows[0].Deadline)
}
