// Package scheduler implements two frame-based scheduling algorithms:
// FEST (single LP core, whole-task primary copies) and EnSuRe (multiple
// LP cores, per-window workload quotas), both reserving tail-end HP-core
// capacity for Backup-to-Backup (BB) overloading.
//
// Scheduler is a tagged variant, not a dynamically-dispatched interface:
// a single Scheduler value carries a Variant tag and exactly one of the
// two mutually exclusive state blocks; every method switches on Variant.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"github.com/khryptorgraphics/bbsim/internal/config"
	"github.com/khryptorgraphics/bbsim/pkg/core"
	"github.com/khryptorgraphics/bbsim/pkg/faultgen"
	"github.com/khryptorgraphics/bbsim/pkg/task"
)

// ErrInfeasibleSchedule marks a taskset that cannot be packed into the
// configured frame/window. GenerateSchedule itself reports that case as
// (false, nil); System.Run wraps this sentinel into the error it returns.
var ErrInfeasibleSchedule = errors.New("infeasible schedule")

// Variant tags which algorithm a Scheduler runs.
type Variant string

const (
	VariantFEST   Variant = Variant(config.FEST)
	VariantEnSuRe Variant = Variant(config.EnSuRe)
)

// tickEps absorbs floating-point comparison noise at tick/window
// boundaries so >= / > comparisons behave consistently there.
const tickEps = 1e-9

// primaryEntry is one FEST primary-schedule slot: Task starts at Start
// and runs for Task.LPExec.
type primaryEntry struct {
	Start float64
	Task  *task.Task
}

// festState is the FEST-variant schedule shape: a flat, densely-packed
// primary schedule on the single LP core plus one shared backup list.
type festState struct {
	priSchedule []primaryEntry
	backupList  []*task.Task
	backupStart float64
}

// ensureEntry is one EnSuRe primary-schedule slot within a window: Task
// starts at LPStart on the LP core identified by CoreIndex.
type ensureEntry struct {
	LPStart   float64
	CoreIndex int
	Task      *task.Task
}

// ensureWindow is the per-window state: its own primary schedule, backup
// list and backup start.
type ensureWindow struct {
	Start       float64
	Length      float64
	Deadline    float64
	priSchedule []ensureEntry
	backupList  []*task.Task
	backupStart float64
}

// ensureState is the EnSuRe-variant schedule shape: one ensureWindow per
// distinct deadline.
type ensureState struct {
	deadlines []float64
	windows   []ensureWindow
}

// Scheduler holds the configuration and, once GenerateSchedule has run,
// exactly one of fest/ensure depending on Variant.
type Scheduler struct {
	Variant Variant
	Cfg     *config.Config
	Logger  *slog.Logger

	fest   *festState
	ensure *ensureState
}

// New constructs a Scheduler for the variant named by cfg.SchedulerType.
// logger may be nil, in which case slog.Default() is used.
func New(cfg *config.Config, logger *slog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{Variant: Variant(cfg.SchedulerType), Cfg: cfg, Logger: logger}, nil
}

// GenerateSchedule dispatches to the variant-specific planner. It returns
// (false, nil) — not an error — when the taskset cannot be packed into
// the frame; the caller decides whether to wrap that as an error.
func (s *Scheduler) GenerateSchedule(tasks []*task.Task) (bool, error) {
	switch s.Variant {
	case VariantFEST:
		return s.generateFEST(tasks)
	case VariantEnSuRe:
		return s.generateEnSuRe(tasks)
	default:
		return false, fmt.Errorf("%w: unknown scheduler variant %q", config.ErrInvalidConfig, s.Variant)
	}
}

// Simulate dispatches to the variant-specific time-stepped execution.
// lpCores must have len == Cfg.NumLPCores.
func (s *Scheduler) Simulate(lpCores []*core.Core, hpCore *core.Core, rng *rand.Rand) error {
	switch s.Variant {
	case VariantFEST:
		if len(lpCores) != 1 {
			return fmt.Errorf("FEST requires exactly 1 LP core, got %d", len(lpCores))
		}
		return s.simulateFEST(lpCores[0], hpCore, rng)
	case VariantEnSuRe:
		if len(lpCores) != s.Cfg.NumLPCores {
			return fmt.Errorf("EnSuRe requires exactly %d LP cores, got %d", s.Cfg.NumLPCores, len(lpCores))
		}
		return s.simulateEnSuRe(lpCores, hpCore, rng)
	default:
		return fmt.Errorf("%w: unknown scheduler variant %q", config.ErrInvalidConfig, s.Variant)
	}
}

// ResidualBackupTasks returns whatever backup reservations were left
// un-consumed at the end of the last Simulate call — a caller can log
// this as an invariant-violation diagnostic.
func (s *Scheduler) ResidualBackupTasks() []*task.Task {
	switch s.Variant {
	case VariantFEST:
		if s.fest == nil {
			return nil
		}
		return s.fest.backupList
	case VariantEnSuRe:
		if s.ensure == nil || len(s.ensure.windows) == 0 {
			return nil
		}
		return s.ensure.windows[len(s.ensure.windows)-1].backupList
	default:
		return nil
	}
}

// ResidualBackupViolation reports whether the residual backup list left
// by the last Simulate call is larger than the "fewer than k tasks"
// case allows: with m tasks scheduled and fan-out k, up to m-min(k,m)
// tasks can legitimately never reach the head of the backup list before
// the frame/window ends. A residual at or below that bound is normal;
// above it signals a scheduling bug.
func (s *Scheduler) ResidualBackupViolation() bool {
	residual := len(s.ResidualBackupTasks())
	if residual == 0 {
		return false
	}

	scheduled := 0
	switch s.Variant {
	case VariantFEST:
		if s.fest != nil {
			scheduled = len(s.fest.priSchedule)
		}
	case VariantEnSuRe:
		if s.ensure != nil && len(s.ensure.windows) > 0 {
			scheduled = len(s.ensure.windows[len(s.ensure.windows)-1].priSchedule)
		}
	}
	return residual > scheduled-min(s.Cfg.K, scheduled)
}

// ceilToStep rounds x up to the nearest multiple of step. A small
// epsilon keeps values already on the grid from overshooting to the
// next step due to floating-point noise.
func ceilToStep(x, step float64) float64 {
	if x <= 0 {
		return 0
	}
	n := math.Ceil(x/step - 1e-9)
	return n * step
}

// removeTask returns a copy of list with t removed by identity,
// preserving the relative order of the remaining elements: the
// consumption order must match the order simulate walks the list.
func removeTask(list []*task.Task, t *task.Task) []*task.Task {
	out := make([]*task.Task, 0, len(list))
	for _, x := range list {
		if x != t {
			out = append(out, x)
		}
	}
	return out
}

// reserveStart computes max(t, anchor - sum of the min(k,len(list))
// largest reserves) — the backup_start recomputation shared by FEST and
// EnSuRe. weight(t) returns the reserve amount for one backup-list entry
// (hp_exec for FEST, backup_workload_quota[i] for EnSuRe); list is
// assumed already sorted in reserve-descending order.
func reserveStart(t, anchor float64, list []*task.Task, k int, weight func(*task.Task) float64) float64 {
	l := k
	if len(list) < l {
		l = len(list)
	}
	sum := 0.0
	for i := 0; i < l; i++ {
		sum += weight(list[i])
	}
	candidate := anchor - sum
	if t > candidate {
		return t
	}
	return candidate
}

// sortByFieldDesc sorts a copy of tasks by the given key, descending,
// with a stable tie-break on ID for determinism.
func sortByFieldDesc(tasks []*task.Task, key func(*task.Task) float64) []*task.Task {
	out := append([]*task.Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i] == out[j] {
			return false
		}
		ki, kj := key(out[i]), key(out[j])
		if ki != kj {
			return ki > kj
		}
		return out[i].ID < out[j].ID
	})
	return out
}
