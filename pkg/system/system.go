// Package system composes a Scheduler variant with concrete cores and
// drives generate -> simulate -> aggregate, reporting per-core and total
// energy.
package system

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/google/uuid"

	"github.com/khryptorgraphics/bbsim/internal/config"
	"github.com/khryptorgraphics/bbsim/pkg/core"
	"github.com/khryptorgraphics/bbsim/pkg/scheduler"
	"github.com/khryptorgraphics/bbsim/pkg/task"
)

// CoreReport is the per-core result of one run.
type CoreReport struct {
	Name           string
	IsLP           bool
	ActiveDuration float64
	EnergyConsumed float64
}

// Report is the outcome of one System.Run: per-core figures plus the
// summed total system energy.
type Report struct {
	RunID       string
	Cores       []CoreReport
	TotalEnergy float64
}

// System owns the scheduler and its concrete cores.
type System struct {
	Cfg       *config.Config
	Scheduler *scheduler.Scheduler
	LPCores   []*core.Core
	HPCore    *core.Core
	Logger    *slog.Logger
}

// New builds a System from validated configuration: a fresh Scheduler
// and default-energy LP/HP cores.
func New(cfg *config.Config, logger *slog.Logger) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	sched, err := scheduler.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	lpCores := make([]*core.Core, cfg.NumLPCores)
	for i := range lpCores {
		lpCores[i] = core.NewDefaultLP(fmt.Sprintf("lp-%d", i))
	}
	hpCore := core.NewDefaultHP("hp", cfg.LPHPRatio)

	return &System{Cfg: cfg, Scheduler: sched, LPCores: lpCores, HPCore: hpCore, Logger: logger}, nil
}

// Run deep-copies tasks so repeated runs over the same taskset stay
// isolated, generates a schedule, simulates it, and aggregates energy
// across all cores. Returns scheduler.ErrInfeasibleSchedule if the
// taskset cannot be packed.
func (sys *System) Run(tasks []*task.Task, rng *rand.Rand) (*Report, error) {
	runID := uuid.NewString()
	log := sys.Logger.With("run_id", runID)

	isolated := task.CloneAll(tasks)

	ok, err := sys.Scheduler.GenerateSchedule(isolated)
	if err != nil {
		return nil, fmt.Errorf("run %s: generate schedule: %w", runID, err)
	}
	if !ok {
		return nil, fmt.Errorf("run %s: %w (taskset size=%d, frame=%v)", runID, scheduler.ErrInfeasibleSchedule, len(tasks), sys.Cfg.Frame)
	}

	for _, c := range sys.LPCores {
		c.Reset()
	}
	sys.HPCore.Reset()

	if err := sys.Scheduler.Simulate(sys.LPCores, sys.HPCore, rng); err != nil {
		return nil, fmt.Errorf("run %s: simulate: %w", runID, err)
	}

	if sys.Scheduler.ResidualBackupViolation() {
		residual := sys.Scheduler.ResidualBackupTasks()
		ids := make([]int, len(residual))
		for i, t := range residual {
			ids[i] = t.ID
		}
		log.Warn("invariant violation: residual backup list exceeds the fewer-than-k-tasks bound", "task_ids", ids)
	}

	return sys.aggregate(runID), nil
}

func (sys *System) aggregate(runID string) *Report {
	report := &Report{RunID: runID, Cores: make([]CoreReport, 0, len(sys.LPCores)+1)}

	for _, c := range sys.LPCores {
		c.Finalize(sys.Cfg.Frame)
		report.Cores = append(report.Cores, CoreReport{Name: c.Name, IsLP: c.IsLP, ActiveDuration: c.ActiveDuration, EnergyConsumed: c.EnergyConsumed})
		report.TotalEnergy += c.EnergyConsumed
	}

	sys.HPCore.Finalize(sys.Cfg.Frame)
	report.Cores = append(report.Cores, CoreReport{Name: sys.HPCore.Name, IsLP: sys.HPCore.IsLP, ActiveDuration: sys.HPCore.ActiveDuration, EnergyConsumed: sys.HPCore.EnergyConsumed})
	report.TotalEnergy += sys.HPCore.EnergyConsumed

	return report
}
