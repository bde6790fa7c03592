package scheduler

import (
	"math/rand"

	"github.com/khryptorgraphics/bbsim/pkg/core"
	"github.com/khryptorgraphics/bbsim/pkg/faultgen"
	"github.com/khryptorgraphics/bbsim/pkg/task"
)

// generateFEST packs primaries densely from t=0 in non-increasing order
// of lp_exec, then builds the backup list (sorted by hp_exec descending)
// and computes the initial BB-overloading window.
func (s *Scheduler) generateFEST(tasks []*task.Task) (bool, error) {
	sorted := sortByFieldDesc(tasks, func(t *task.Task) float64 { return t.LPExec })

	cursor := 0.0
	entries := make([]primaryEntry, 0, len(sorted))
	for _, t := range sorted {
		if cursor+t.LPExec > s.Cfg.Frame+tickEps {
			s.Logger.Debug("FEST primary packing overflowed frame", "task_id", t.ID, "cursor", cursor, "lp_exec", t.LPExec, "frame", s.Cfg.Frame)
			return false, nil
		}
		entries = append(entries, primaryEntry{Start: cursor, Task: t})
		cursor += t.LPExec
	}

	backupList := sortByFieldDesc(tasks, func(t *task.Task) float64 { return t.HPExec })
	backupStart := reserveStart(0, s.Cfg.Frame, backupList, s.Cfg.K, func(t *task.Task) float64 { return t.HPExec })

	s.fest = &festState{priSchedule: entries, backupList: backupList, backupStart: backupStart}
	return true, nil
}

// simulateFEST runs a single frame-long tick loop over one LP core and
// the shared HP core.
func (s *Scheduler) simulateFEST(lpCore, hpCore *core.Core, rng *rand.Rand) error {
	st := s.fest
	for _, e := range st.priSchedule {
		e.Task.ResetEncounteredFault()
	}

	slots := make([]faultgen.Slot, len(st.priSchedule))
	for i, e := range st.priSchedule {
		slots[i] = faultgen.Slot{Start: e.Start, Length: e.Task.LPExec, Task: e.Task}
	}
	events := faultgen.Generate(rng, s.Cfg.K, 0, s.Cfg.Frame, s.Cfg.TimeStep, slots)
	for _, ev := range events {
		ev.Task.RecordFault(ev.SlotLength, ev.Relative, ev.Task.HPExec)
	}

	backupList := append([]*task.Task(nil), st.backupList...)
	backupStart := st.backupStart
	weight := func(t *task.Task) float64 { return t.HPExec }

	var assignedLP, assignedHP *task.Task
	nextEntry := 0

	for t := 0.0; t <= s.Cfg.Frame+tickEps; t += s.Cfg.TimeStep {
		// 1. accrue active time.
		lpCore.Tick(assignedLP != nil, s.Cfg.TimeStep)
		hpCore.Tick(assignedHP != nil, s.Cfg.TimeStep)

		// 2. primary completion.
		if assignedLP != nil && t >= assignedLP.StartTime+assignedLP.LPExecutedDuration-tickEps {
			if !assignedLP.EncounteredFault {
				assignedLP.Completed = true
				assignedLP.CompletionTime = t
				backupList = removeTask(backupList, assignedLP)
				backupStart = reserveStart(t, s.Cfg.Frame, backupList, s.Cfg.K, weight)
				if assignedHP == assignedLP {
					assignedHP = nil
				}
			}
			assignedLP = nil
		}

		// 3. backup completion.
		if assignedHP != nil && t >= assignedHP.BackupStartTime+assignedHP.HPExecutedDuration-tickEps {
			backupList = removeTask(backupList, assignedHP)
			backupStart = reserveStart(t, s.Cfg.Frame, backupList, s.Cfg.K, weight)
			assignedHP = nil
		}

		// 4. assign next primary entries whose start has arrived.
		for nextEntry < len(st.priSchedule) && st.priSchedule[nextEntry].Start <= t+tickEps {
			e := st.priSchedule[nextEntry]
			if !e.Task.EncounteredFault {
				e.Task.LPExecutedDuration = e.Task.LPExec
			}
			e.Task.StartTime = t
			assignedLP = e.Task
			nextEntry++
		}

		// 5. assign backup head once the reservation window opens.
		if assignedHP == nil && t >= backupStart-tickEps && len(backupList) > 0 {
			head := backupList[0]
			head.BackupStartTime = t
			assignedHP = head
		}
	}

	st.backupList = backupList
	st.backupStart = backupStart
	return nil
}
