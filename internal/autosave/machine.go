// Package autosave batches field edits into debounced flushes.
//
// Machine holds the debounce rules and does no I/O. Coordinator drives a
// Machine with a clock and a flush function.
package autosave

import (
	"time"
)

// Event is one input to the Machine: Edit, TimerFired or FlushResolved.
type Event interface {
	event()
}

// Edit records a local change at At.
type Edit struct {
	At time.Time
}

// TimerFired reports the debounce timer expiring. Force marks a manual save
// or submit, which flushes even when nothing is marked dirty.
type TimerFired struct {
	At    time.Time
	Force bool
}

// FlushResolved reports the outcome of the flush started by the last
// TimerFired.
type FlushResolved struct {
	At  time.Time
	Err error
}

func (Edit) event()          {}
func (TimerFired) event()    {}
func (FlushResolved) event() {}

// Output tells the runtime what to do next. A zero FlushAt means no timer
// should be armed.
type Output struct {
	FlushAt time.Time
	Flush   bool
}

// State is the session-scoped save status.
type State struct {
	PendingChanges bool
	InFlight       bool
	LastSaveTime   time.Time
	LastError      error
	AttemptCount   int
	// ManualSaveSuggested is set once AttemptCount reaches the threshold.
	ManualSaveSuggested bool
}

// Machine is the debounce and retry state machine for one group. It is not
// safe for concurrent use.
type Machine struct {
	interval  time.Duration
	threshold int

	dirty    bool
	inFlight bool
	flushAt  time.Time
	lastSave time.Time
	lastErr  error
	attempts int
}

func NewMachine(interval time.Duration, threshold int) *Machine {
	return &Machine{interval: interval, threshold: threshold}
}

// Step applies ev and returns the next action.
func (m *Machine) Step(ev Event) Output {
	switch ev := ev.(type) {
	case Edit:
		m.dirty = true
		if m.inFlight {
			// Re-armed when the in-flight flush resolves.
			m.flushAt = time.Time{}
			return Output{}
		}
		m.flushAt = ev.At.Add(m.interval)
		return Output{FlushAt: m.flushAt}

	case TimerFired:
		m.flushAt = time.Time{}
		if m.inFlight || (!m.dirty && !ev.Force) {
			return Output{}
		}
		m.inFlight = true
		m.dirty = false
		return Output{Flush: true}

	case FlushResolved:
		if !m.inFlight {
			return Output{FlushAt: m.flushAt}
		}
		m.inFlight = false
		if ev.Err != nil {
			m.attempts++
			m.lastErr = ev.Err
			m.dirty = true
		} else {
			m.attempts = 0
			m.lastErr = nil
			m.lastSave = ev.At
		}
		if !m.dirty {
			return Output{}
		}
		m.flushAt = ev.At.Add(m.interval)
		return Output{FlushAt: m.flushAt}
	}
	return Output{FlushAt: m.flushAt}
}

// InFlight reports whether a flush has started and not resolved.
func (m *Machine) InFlight() bool { return m.inFlight }

func (m *Machine) State() State {
	return State{
		PendingChanges:      m.dirty,
		InFlight:            m.inFlight,
		LastSaveTime:        m.lastSave,
		LastError:           m.lastErr,
		AttemptCount:        m.attempts,
		ManualSaveSuggested: m.threshold > 0 && m.attempts >= m.threshold,
	}
}
