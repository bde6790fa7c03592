package scheduler

import (
	"math/rand"
	"sort"

	"github.com/khryptorgraphics/bbsim/pkg/core"
	"github.com/khryptorgraphics/bbsim/pkg/faultgen"
	"github.com/khryptorgraphics/bbsim/pkg/task"
)

// distinctDeadlines returns the strictly increasing, duplicate-free
// deadlines of tasks, already sorted ascending.
func distinctDeadlines(tasks []*task.Task) []float64 {
	sorted := append([]*task.Task(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Deadline < sorted[j].Deadline })

	out := make([]float64, 0, len(sorted))
	for _, t := range sorted {
		if len(out) == 0 || t.Deadline > out[len(out)-1]+tickEps {
			out = append(out, t.Deadline)
		}
	}
	return out
}

// generateEnSuRe builds one window per distinct deadline: for each
// window it computes every alive task's workload/backup-workload quota,
// checks feasibility, places quotas round-robin across LP cores, then
// builds the window's backup list (sorted by bwq descending) and its
// BB-overloading start.
func (s *Scheduler) generateEnSuRe(tasks []*task.Task) (bool, error) {
	deadlines := distinctDeadlines(tasks)
	alive := append([]*task.Task(nil), tasks...)
	mPri := s.Cfg.NumLPCores

	windows := make([]ensureWindow, 0, len(deadlines))
	prevDeadline := 0.0

	for wi, d := range deadlines {
		length := d - prevDeadline
		rrStart := 0

		type quota struct {
			t   *task.Task
			wq  float64
			bwq float64
		}
		quotas := make([]quota, 0, len(alive))
		sumWQ := 0.0
		for _, t := range alive {
			wq := ceilToStep(t.Weight()*length, s.Cfg.TimeStep)
			bwq := ceilToStep(s.Cfg.LPHPRatio*t.Weight()*length, s.Cfg.TimeStep)
			quotas = append(quotas, quota{t: t, wq: wq, bwq: bwq})
			sumWQ += wq
		}

		if sumWQ > length*float64(mPri)+tickEps {
			s.Logger.Debug("EnSuRe window infeasible", "window", wi, "sum_wq", sumWQ, "capacity", length*float64(mPri))
			return false, nil
		}

		sort.SliceStable(quotas, func(i, j int) bool {
			if quotas[i].wq != quotas[j].wq {
				return quotas[i].wq > quotas[j].wq
			}
			return quotas[i].t.ID < quotas[j].t.ID
		})

		cursors := make([]float64, mPri)
		entries := make([]ensureEntry, 0, len(quotas))
		for _, q := range quotas {
			placed := false
			for offset := 0; offset < mPri; offset++ {
				ci := (rrStart + offset) % mPri
				if length-cursors[ci] >= q.wq-tickEps {
					entries = append(entries, ensureEntry{LPStart: prevDeadline + cursors[ci], CoreIndex: ci, Task: q.t})
					cursors[ci] += q.wq
					placed = true
					break
				}
			}
			if !placed {
				s.Logger.Debug("EnSuRe window packing failed", "window", wi, "task_id", q.t.ID)
				return false, nil
			}
			rrStart = (rrStart + 1) % mPri

			// Append this window's quota at its global index (windows are
			// processed in order, so len(WorkloadQuota) == wi before the
			// append below, keeping indices aligned with window index).
			q.t.WorkloadQuota = append(q.t.WorkloadQuota, q.wq)
			q.t.BackupWorkloadQuota = append(q.t.BackupWorkloadQuota, q.bwq)
		}

		sort.SliceStable(entries, func(i, j int) bool { return entries[i].LPStart < entries[j].LPStart })

		backupTasks := make([]*task.Task, len(quotas))
		for i, q := range quotas {
			backupTasks[i] = q.t
		}
		sort.SliceStable(backupTasks, func(i, j int) bool {
			bi, bj := backupTasks[i].BackupWorkloadQuota[wi], backupTasks[j].BackupWorkloadQuota[wi]
			if bi != bj {
				return bi > bj
			}
			return backupTasks[i].ID < backupTasks[j].ID
		})

		backupStart := reserveStart(0, d, backupTasks, s.Cfg.K, func(t *task.Task) float64 { return t.BackupWorkloadQuota[wi] })

		windows = append(windows, ensureWindow{
			Start:       prevDeadline,
			Length:      length,
			Deadline:    d,
			priSchedule: entries,
			backupList:  backupTasks,
			backupStart: backupStart,
		})

		newAlive := alive[:0:0]
		for _, t := range alive {
			if t.Deadline > d+tickEps {
				newAlive = append(newAlive, t)
			}
		}
		alive = newAlive
		prevDeadline = d
	}

	s.ensure = &ensureState{deadlines: deadlines, windows: windows}
	return true, nil
}

// simulateEnSuRe drives one global tick clock that is not reset between
// windows; each window runs the same five-step loop as FEST but indexed
// by LP core.
func (s *Scheduler) simulateEnSuRe(lpCores []*core.Core, hpCore *core.Core, rng *rand.Rand) error {
	st := s.ensure
	assignedLP := make([]*task.Task, len(lpCores))
	var assignedHP *task.Task

	t := 0.0
	for wi := range st.windows {
		win := &st.windows[wi]

		for _, e := range win.priSchedule {
			e.Task.ResetEncounteredFault()
		}

		slots := make([]faultgen.Slot, len(win.priSchedule))
		for i, e := range win.priSchedule {
			slots[i] = faultgen.Slot{Start: e.LPStart, Length: e.Task.WorkloadQuota[wi], Task: e.Task}
		}
		events := faultgen.Generate(rng, s.Cfg.K, win.Start, win.Length, s.Cfg.TimeStep, slots)
		for _, ev := range events {
			ev.Task.RecordFault(ev.SlotLength, ev.Relative, ev.Task.BackupWorkloadQuota[wi])
		}

		backupList := append([]*task.Task(nil), win.backupList...)
		backupStart := win.backupStart
		weight := func(tk *task.Task) float64 { return tk.BackupWorkloadQuota[wi] }
		nextEntry := 0

		// The previous window's loop already ran steps 1-3 for the shared
		// boundary tick (t == win.Start) before advancing past it; pick up
		// this window's own assignments for that same instant here so no
		// tick is skipped, without re-accruing active time or re-checking
		// completions against the wrong window's backup list.
		if wi > 0 {
			boundary := win.Start
			for nextEntry < len(win.priSchedule) && win.priSchedule[nextEntry].LPStart <= boundary+tickEps {
				e := win.priSchedule[nextEntry]
				if !e.Task.EncounteredFault {
					e.Task.LPExecutedDuration = e.Task.WorkloadQuota[wi]
				}
				e.Task.StartTime = boundary
				assignedLP[e.CoreIndex] = e.Task
				nextEntry++
			}
			if assignedHP == nil && boundary >= backupStart-tickEps && len(backupList) > 0 {
				head := backupList[0]
				head.BackupStartTime = boundary
				assignedHP = head
			}
		}

		for ; t <= win.Deadline+tickEps; t += s.Cfg.TimeStep {
			// 1. accrue active time.
			for ci := range lpCores {
				lpCores[ci].Tick(assignedLP[ci] != nil, s.Cfg.TimeStep)
			}
			hpCore.Tick(assignedHP != nil, s.Cfg.TimeStep)

			// 2. primary completion, per core.
			for ci, at := range assignedLP {
				if at == nil || t < at.StartTime+at.LPExecutedDuration-tickEps {
					continue
				}
				if !at.EncounteredFault {
					at.Completed = true
					at.CompletionTime = t
					backupList = removeTask(backupList, at)
					backupStart = reserveStart(t, win.Deadline, backupList, s.Cfg.K, weight)
					if assignedHP == at {
						assignedHP = nil
					}
				}
				assignedLP[ci] = nil
			}

			// 3. backup completion.
			if assignedHP != nil && t >= assignedHP.BackupStartTime+assignedHP.HPExecutedDuration-tickEps {
				backupList = removeTask(backupList, assignedHP)
				backupStart = reserveStart(t, win.Deadline, backupList, s.Cfg.K, weight)
				assignedHP = nil
			}

			// 4. assign next primary entries whose start has arrived.
			for nextEntry < len(win.priSchedule) && win.priSchedule[nextEntry].LPStart <= t+tickEps {
				e := win.priSchedule[nextEntry]
				if !e.Task.EncounteredFault {
					e.Task.LPExecutedDuration = e.Task.WorkloadQuota[wi]
				}
				e.Task.StartTime = t
				assignedLP[e.CoreIndex] = e.Task
				nextEntry++
			}

			// 5. assign backup head once the reservation window opens.
			if assignedHP == nil && t >= backupStart-tickEps && len(backupList) > 0 {
				head := backupList[0]
				head.BackupStartTime = t
				assignedHP = head
			}
		}

		win.backupList = backupList
		win.backupStart = backupStart
	}

	return nil
}
