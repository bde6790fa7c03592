// Package taskset loads taskset CSV files into Task values. Generating
// such a file is an external, offline concern; this package only reads
// one.
package taskset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/khryptorgraphics/bbsim/pkg/task"
)

// ratioTolerance bounds how far hp_exec may drift from lp_exec*lpHPRatio
// before a row is rejected.
const ratioTolerance = 1e-3

// Load reads a taskset CSV file: one row per task, no header, columns
// `id, lp_exec, hp_exec [, deadline]`. deadline is required when
// schedulerIsEnSuRe is true and omitted otherwise.
func Load(path string, lpHPRatio float64, schedulerIsEnSuRe bool) ([]*task.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open taskset %s: %w", path, err)
	}
	defer f.Close()
	return parse(f, lpHPRatio, schedulerIsEnSuRe)
}

func parse(r io.Reader, lpHPRatio float64, schedulerIsEnSuRe bool) ([]*task.Task, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	seen := map[int]bool{}
	var tasks []*task.Task
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("taskset line %d: %w", line+1, err)
		}
		line++

		if schedulerIsEnSuRe && len(record) != 4 {
			return nil, fmt.Errorf("taskset line %d: EnSuRe requires id,lp_exec,hp_exec,deadline, got %d fields", line, len(record))
		}
		if !schedulerIsEnSuRe && len(record) != 3 {
			return nil, fmt.Errorf("taskset line %d: FEST requires id,lp_exec,hp_exec, got %d fields", line, len(record))
		}

		id, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("taskset line %d: invalid id %q: %w", line, record[0], err)
		}
		if seen[id] {
			return nil, fmt.Errorf("taskset line %d: duplicate task id %d", line, id)
		}
		seen[id] = true

		lpExec, err := strconv.ParseFloat(record[1], 64)
		if err != nil || lpExec < 0 {
			return nil, fmt.Errorf("taskset line %d: invalid lp_exec %q", line, record[1])
		}
		hpExec, err := strconv.ParseFloat(record[2], 64)
		if err != nil || hpExec < 0 {
			return nil, fmt.Errorf("taskset line %d: invalid hp_exec %q", line, record[2])
		}
		if lpExec > 0 && math.Abs(hpExec-lpExec*lpHPRatio) > ratioTolerance*lpExec {
			return nil, fmt.Errorf("taskset line %d: hp_exec %v is not ~lp_exec*lp_hp_ratio (%v)", line, hpExec, lpExec*lpHPRatio)
		}

		if schedulerIsEnSuRe {
			deadline, err := strconv.ParseFloat(record[3], 64)
			if err != nil || deadline <= 0 {
				return nil, fmt.Errorf("taskset line %d: invalid deadline %q", line, record[3])
			}
			tasks = append(tasks, task.NewWithDeadline(id, lpExec, hpExec, deadline))
		} else {
			tasks = append(tasks, task.New(id, lpExec, hpExec))
		}
	}
	return tasks, nil
}
