// Package task defines the Task value type: a single periodic job
// instance carrying LP/HP mandatory execution times, an optional
// EnSuRe deadline, and the runtime bookkeeping written by schedule
// generation and simulation.
package task

// Task describes one periodic job instance.
type Task struct {
	ID       int
	LPExec   float64 // mandatory LP execution time, ms
	HPExec   float64 // mandatory HP execution time, ms
	Deadline float64 // ms; 0 for FEST (unused)

	// WorkloadQuota and BackupWorkloadQuota are EnSuRe-only, indexed by
	// the global window index the task was alive in.
	WorkloadQuota       []float64
	BackupWorkloadQuota []float64

	EncounteredFault   bool
	LPExecutedDuration float64
	HPExecutedDuration float64
	StartTime          float64
	BackupStartTime    float64
	CompletionTime     float64
	Completed          bool
}

// New constructs a Task for FEST (no deadline).
func New(id int, lpExec, hpExec float64) *Task {
	return &Task{ID: id, LPExec: lpExec, HPExec: hpExec}
}

// NewWithDeadline constructs a Task for EnSuRe.
func NewWithDeadline(id int, lpExec, hpExec, deadline float64) *Task {
	return &Task{ID: id, LPExec: lpExec, HPExec: hpExec, Deadline: deadline}
}

// Weight is lp_exec/deadline; 0 when Deadline is unset.
func (t *Task) Weight() float64 {
	if t.Deadline <= 0 {
		return 0
	}
	return t.LPExec / t.Deadline
}

// Clone deep-copies a Task so the caller can isolate repeated runs over
// the same taskset.
func (t *Task) Clone() *Task {
	c := *t
	c.WorkloadQuota = append([]float64(nil), t.WorkloadQuota...)
	c.BackupWorkloadQuota = append([]float64(nil), t.BackupWorkloadQuota...)
	return &c
}

// CloneAll deep-copies a slice of Tasks.
func CloneAll(tasks []*Task) []*Task {
	out := make([]*Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// ResetEncounteredFault clears fault state at the start of a frame/window.
func (t *Task) ResetEncounteredFault() {
	t.EncounteredFault = false
}

// RecordFault marks a fault at relative offset tau within a primary slot
// of the given nominal length: lp_executed_duration := slot_length - tau,
// and hp_executed_duration is whatever the caller supplies (hp_exec for
// FEST, backup_workload_quota[i] for EnSuRe).
func (t *Task) RecordFault(slotLength, relative, hpExecuted float64) {
	t.EncounteredFault = true
	t.LPExecutedDuration = slotLength - relative
	t.HPExecutedDuration = hpExecuted
}
