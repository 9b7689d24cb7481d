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

/*
Package replay runs scripted scenarios against the engine with a fake clock and a watermark
tracker, so that timer behaviour can be reproduced step by step.
*/
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/numaproj/timerflow/pkg/engine"
	"github.com/numaproj/timerflow/pkg/shared/logging"
	"github.com/numaproj/timerflow/pkg/timers"
	"github.com/numaproj/timerflow/pkg/timers/store"
	"github.com/numaproj/timerflow/pkg/watermark/tracker"
	"github.com/numaproj/timerflow/pkg/watermark/wmb"
)

// Event is one observable outcome of a step.
type Event struct {
	Step   int
	Action string
	Detail string
}

// Result is the ordered list of events of a replay.
type Result struct {
	Scenario string
	Events   []Event
}

func (r *Result) add(step int, action, detail string) {
	r.Events = append(r.Events, Event{Step: step, Action: action, Detail: detail})
}

// Fired returns the fired timers in the order they fired.
func (r *Result) Fired() []string {
	var out []string
	for _, e := range r.Events {
		if e.Action == "fired" {
			out = append(out, e.Detail)
		}
	}
	return out
}

func (r *Result) String() string {
	var b strings.Builder
	for _, e := range r.Events {
		fmt.Fprintf(&b, "%d %s %s\n", e.Step, e.Action, e.Detail)
	}
	return b.String()
}

// WriteTable renders the events as a table.
func (r *Result) WriteTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"step", "action", "detail"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, e := range r.Events {
		table.Append([]string{strconv.Itoa(e.Step), e.Action, e.Detail})
	}
	table.Render()
}

type runner struct {
	sc      *Scenario
	clock   *clocktesting.FakePassiveClock
	tracker *tracker.Tracker
	engine  *engine.Engine
	result  *Result
	log     *zap.SugaredLogger
}

// Run replays the scenario against s. Units of work rejected with a malformed timer or a timer
// update error are recorded as events; store failures stop the replay.
func Run(ctx context.Context, sc *Scenario, s store.Store, opts ...engine.Option) (*Result, error) {
	c := clocktesting.NewFakePassiveClock(time.UnixMilli(sc.Start))
	wt := tracker.NewTracker(ctx, sc.Stage)
	r := &runner{
		sc:      sc,
		clock:   c,
		tracker: wt,
		engine:  engine.NewEngine(ctx, sc.Stage, s, c, wt, opts...),
		result:  &Result{Scenario: sc.Name},
		log:     logging.FromContext(ctx).With("scenario", sc.Name),
	}
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return r.result, err
		}
		if err := r.step(ctx, i+1, step); err != nil {
			return r.result, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return r.result, nil
}

func (r *runner) step(ctx context.Context, n int, s Step) error {
	switch {
	case s.AdvanceClock != nil:
		next := time.UnixMilli(*s.AdvanceClock)
		if next.Before(r.clock.Now()) {
			return fmt.Errorf("processing time cannot move back to %d", *s.AdvanceClock)
		}
		r.clock.SetTime(next)
		r.result.add(n, "clock", strconv.FormatInt(*s.AdvanceClock, 10))
	case s.AdvanceInput != nil:
		r.advance(n, "input", *s.AdvanceInput, r.tracker.AdvanceInput)
	case s.AdvanceOutput != nil:
		r.advance(n, "output", *s.AdvanceOutput, r.tracker.AdvanceOutput)
	case s.AdvanceSynchronized != nil:
		r.advance(n, "synchronized", *s.AdvanceSynchronized, r.tracker.AdvanceSynchronized)
	case len(s.Set) > 0:
		return r.process(ctx, n, s.Set, func(in *timers.Internals, t timers.TimerData) error {
			return in.SetTimer(t)
		})
	case len(s.Delete) > 0:
		return r.process(ctx, n, s.Delete, func(in *timers.Internals, t timers.TimerData) error {
			return in.DeleteTimer(t)
		})
	case s.Fire != nil:
		return r.fire(ctx, n, s.Fire)
	}
	return nil
}

func (r *runner) advance(n int, kind string, ms int64, advance func(wmb.Watermark) bool) {
	detail := strconv.FormatInt(ms, 10)
	if !advance(wmb.FromUnixMilli(ms)) {
		detail += " skipped"
	}
	r.result.add(n, kind, detail)
}

// process runs the timer operations of one step as a single unit of work on the key of the
// first timer.
func (r *runner) process(ctx context.Context, n int, specs []TimerSpec, op func(*timers.Internals, timers.TimerData) error) error {
	update, err := r.engine.Process(ctx, specs[0].Key, func(_ context.Context, in *timers.Internals) error {
		for _, spec := range specs {
			if err := op(in, spec.timer()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return r.reject(n, err)
	}
	r.recordUpdate(n, update)
	return nil
}

func (r *runner) fire(ctx context.Context, n int, spec *FireSpec) error {
	rearm := make(map[string][]timers.TimerData)
	for _, t := range spec.Rearm {
		rearm[t.Key] = append(rearm[t.Key], t.timer())
	}
	var (
		lock    sync.Mutex
		rearmed = make(map[string]bool)
	)
	fn := func(_ context.Context, in *timers.Internals, t timers.TimerData) error {
		lock.Lock()
		done := rearmed[in.Key()]
		rearmed[in.Key()] = true
		lock.Unlock()
		if done {
			return nil
		}
		for _, next := range rearm[in.Key()] {
			if err := in.SetTimer(next); err != nil {
				return err
			}
		}
		return nil
	}

	fired := make(map[string][]timers.TimerData)
	if spec.Key != "" {
		list, err := r.engine.FireEligible(ctx, spec.Key, fn)
		if err != nil {
			return r.reject(n, err)
		}
		if len(list) > 0 {
			fired[spec.Key] = list
		}
	} else {
		all, err := r.engine.FireAll(ctx, fn)
		if err != nil {
			return r.reject(n, err)
		}
		fired = all
	}
	if len(fired) == 0 {
		r.result.add(n, "fire", "none")
		return nil
	}

	keys := make([]string, 0, len(fired))
	for key := range fired {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, t := range fired[key] {
			r.result.add(n, "fired", t.String())
		}
		if len(fired[key]) > 0 {
			for _, t := range rearm[key] {
				r.result.add(n, "set", t.String())
			}
		}
	}
	return nil
}

func (r *runner) recordUpdate(n int, update *timers.TimerUpdate) {
	for _, t := range update.Sets() {
		r.result.add(n, "set", t.String())
	}
	for _, id := range update.Deletes() {
		r.result.add(n, "delete", fmt.Sprintf("%s[%s]", update.Key(), id))
	}
}

// reject records a unit of work that failed on its timers. Any other failure ends the replay.
func (r *runner) reject(n int, err error) error {
	for _, sentinel := range []error{timers.ErrMalformedTimer, timers.ErrUpdateExtracted} {
		if errors.Is(err, sentinel) {
			r.log.Infow("Unit of work rejected", zap.Int("step", n), zap.Error(err))
			r.result.add(n, "rejected", sentinel.Error())
			return nil
		}
	}
	return err
}
