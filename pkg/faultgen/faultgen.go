// Package faultgen generates fault occurrences: given a window's primary
// schedule, it samples up to k distinct faulted tasks at uniformly-chosen
// discrete time steps. The generator depends only on (k, window,
// pri_schedule, rng) — the RNG is injected so callers get deterministic,
// reproducible runs.
package faultgen

import (
	"math"
	"math/rand"

	"github.com/khryptorgraphics/bbsim/pkg/task"
)

// Slot is a minimal view of one primary-schedule entry: the task occupies
// [Start, Start+Length] on some LP core. Both ends count as inside the
// slot; an instant shared by two adjacent slots is attributed to the one
// that comes first in the slots slice.
type Slot struct {
	Start  float64
	Length float64
	Task   *task.Task
}

// FaultEvent records that the task occupying a slot encountered a fault
// at Relative ms into its slot.
type FaultEvent struct {
	Task       *task.Task
	Relative   float64
	SlotStart  float64
	SlotLength float64
}

// maxAttemptsPerFault bounds the resampling loop so a pathological input
// (e.g. a window with no slots covering most of its range) cannot spin
// forever; in the well-formed case every resample has a non-zero chance
// of landing on an unfaulted task and the loop finishes almost immediately.
const maxAttemptsPerFault = 10000

// Generate samples min(k, len(slots)) distinct fault occurrences within
// [windowStart, windowStart+windowLength].
func Generate(rng *rand.Rand, k int, windowStart, windowLength, timeStep float64, slots []Slot) []FaultEvent {
	l := k
	if len(slots) < l {
		l = len(slots)
	}
	if l <= 0 {
		return nil
	}

	faulted := make(map[int]bool, l)
	events := make([]FaultEvent, 0, l)
	steps := int(math.Round(windowLength / timeStep))

	for len(events) < l {
		placed := false
		for attempt := 0; attempt < maxAttemptsPerFault && !placed; attempt++ {
			r := rng.Intn(steps + 1)
			faultTime := windowStart + float64(r)*timeStep
			for _, s := range slots {
				if faultTime >= s.Start-1e-9 && faultTime <= s.Start+s.Length+1e-9 {
					if faulted[s.Task.ID] {
						break
					}
					faulted[s.Task.ID] = true
					events = append(events, FaultEvent{
						Task:       s.Task,
						Relative:   faultTime - s.Start,
						SlotStart:  s.Start,
						SlotLength: s.Length,
					})
					placed = true
					break
				}
			}
		}
		if !placed {
			break
		}
	}
	return events
}
