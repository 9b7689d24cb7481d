/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package timers

import "fmt"

type opType int

const (
	opSet opType = iota
	opDelete
	opComplete
)

type timerOp struct {
	op    opType
	timer TimerData
}

// Accumulator records the timer operations issued during one unit of work, in issue order, and
// compiles them into a TimerUpdate exactly once. It is not safe for concurrent use.
type Accumulator struct {
	key   string
	ops   []timerOp
	built bool
}

// NewAccumulator returns an empty Accumulator for the given key.
func NewAccumulator(key string) *Accumulator {
	return &Accumulator{
		key: key,
		ops: make([]timerOp, 0),
	}
}

// Key returns the key of the unit of work.
func (a *Accumulator) Key() string {
	return a.key
}

// SetTimer records a set or replace of the timer.
func (a *Accumulator) SetTimer(timer TimerData) error {
	if err := timer.Validate(); err != nil {
		return err
	}
	return a.record(opSet, timer)
}

// DeleteTimer records a delete of the timer identified by its domain and id. Deleting a timer
// that does not exist is not an error, the delete is recorded anyway.
func (a *Accumulator) DeleteTimer(timer TimerData) error {
	if err := timer.validateIdentity(); err != nil {
		return err
	}
	return a.record(opDelete, timer)
}

// CompleteTimer records that the engine fired the timer during this unit of work.
func (a *Accumulator) CompleteTimer(timer TimerData) error {
	if err := timer.validateIdentity(); err != nil {
		return err
	}
	return a.record(opComplete, timer)
}

// Touched returns true if a set or delete of the timer was recorded. Engine completions don't count.
func (a *Accumulator) Touched(id TimerID) bool {
	for _, o := range a.ops {
		if o.op != opComplete && o.timer.TimerID() == id {
			return true
		}
	}
	return false
}

func (a *Accumulator) record(op opType, timer TimerData) error {
	if a.built {
		return ErrUpdateExtracted
	}
	if a.key == "" {
		return fmt.Errorf("%w: timer %s recorded for an empty key", ErrMalformedTimer, timer.TimerID())
	}
	if timer.Key != a.key {
		return fmt.Errorf("%w: timer %s belongs to key %q, unit of work is for key %q", ErrMalformedTimer, timer.TimerID(), timer.Key, a.key)
	}
	a.ops = append(a.ops, timerOp{op: op, timer: timer})
	return nil
}

// Build compiles the recorded operations into a TimerUpdate. For every timer only the last
// operation counts. The Accumulator cannot be used after Build.
func (a *Accumulator) Build() (*TimerUpdate, error) {
	if a.built {
		return nil, ErrUpdateExtracted
	}
	a.built = true

	last := make(map[TimerID]int, len(a.ops))
	for i, o := range a.ops {
		last[o.timer.TimerID()] = i
	}

	update := &TimerUpdate{key: a.key}
	for i, o := range a.ops {
		if o.op == opComplete {
			update.completed = append(update.completed, o.timer)
		}
		if last[o.timer.TimerID()] != i {
			continue
		}
		switch o.op {
		case opSet:
			update.sets = append(update.sets, o.timer)
		case opDelete:
			update.deletes = append(update.deletes, o.timer.TimerID())
		}
	}
	a.ops = nil
	return update, nil
}
