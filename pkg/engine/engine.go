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
Package engine runs units of work against the timer state of a stage.

Every unit of work gets a fresh timers.Internals built from a clock reading and a watermark
snapshot, and ends with its TimerUpdate applied to the store in one step, or discarded in full if
the unit of work fails. Units of work for the same key never overlap: keys are hashed onto a fixed
set of partitions and a unit of work holds the lock of its partition. Different keys run in
parallel.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/numaproj/timerflow/pkg/metrics"
	"github.com/numaproj/timerflow/pkg/shared/logging"
	"github.com/numaproj/timerflow/pkg/shuffle"
	"github.com/numaproj/timerflow/pkg/timers"
	"github.com/numaproj/timerflow/pkg/timers/store"
)

// Source supplies the current watermarks of the stage.
type Source interface {
	Snapshot() timers.WatermarkView
}

// ProcessFunc is the processing logic of one unit of work.
type ProcessFunc func(ctx context.Context, in *timers.Internals) error

// TimerFunc is called for every fired timer. It may set and delete timers through in.
type TimerFunc func(ctx context.Context, in *timers.Internals, timer timers.TimerData) error

// Engine serializes units of work per key and applies their timer updates.
type Engine struct {
	stage      string
	store      store.Store
	clock      clock.PassiveClock
	source     Source
	shuffle    *shuffle.Shuffle
	partitions []sync.Mutex
	opts       *options
	log        *zap.SugaredLogger
}

// NewEngine returns an Engine for the stage.
func NewEngine(ctx context.Context, stage string, s store.Store, c clock.PassiveClock, source Source, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Engine{
		stage:      stage,
		store:      s,
		clock:      c,
		source:     source,
		shuffle:    shuffle.NewShuffle(o.partitions),
		partitions: make([]sync.Mutex, o.partitions),
		opts:       o,
		log:        logging.FromContext(ctx).With("stage", stage),
	}
}

func (e *Engine) lockKey(key string) func() {
	l := &e.partitions[e.shuffle.Partition(key)]
	l.Lock()
	return l.Unlock
}

func (e *Engine) newInternals(key string) (*timers.Internals, *timers.Accumulator) {
	acc := timers.NewAccumulator(key)
	return timers.NewInternals(e.clock, e.source.Snapshot(), acc), acc
}

// Process runs fn as one unit of work on key and applies the timer changes it made. If fn fails
// nothing is applied.
func (e *Engine) Process(ctx context.Context, key string, fn ProcessFunc) (*timers.TimerUpdate, error) {
	unlock := e.lockKey(key)
	defer unlock()

	in, _ := e.newInternals(key)
	if err := fn(ctx, in); err != nil {
		metrics.UnitOfWorkErrors.WithLabelValues(e.stage, "process").Inc()
		return nil, fmt.Errorf("unit of work for key %q failed: %w", key, err)
	}
	update, err := e.extract(in)
	if err != nil {
		return nil, err
	}
	if err = e.apply(ctx, update); err != nil {
		return nil, err
	}
	return update, nil
}

// FireEligible fires the timers of key that are eligible at the current time and watermarks, in
// firing order, as one unit of work. The set of timers to fire is fixed when the unit of work
// starts; timers set by fn fire on a later call even if they are already eligible. An eligible
// timer that an earlier callback of the same pass set or deleted is not fired, the change made by
// the callback stands. If fn fails nothing is applied and no timer counts as fired.
func (e *Engine) FireEligible(ctx context.Context, key string, fn TimerFunc) ([]timers.TimerData, error) {
	fired, _, err := e.fireKey(ctx, key, fn)
	return fired, err
}

func (e *Engine) fireKey(ctx context.Context, key string, fn TimerFunc) ([]timers.TimerData, int, error) {
	unlock := e.lockKey(key)
	defer unlock()

	in, acc := e.newInternals(key)
	live, err := e.store.Timers(ctx, key)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read timers of key %q: %w", key, err)
	}
	eligible := in.EligibleTimers(live)
	if len(eligible) == 0 {
		return nil, len(live), nil
	}
	fired := make([]timers.TimerData, 0, len(eligible))
	for _, t := range eligible {
		if acc.Touched(t.TimerID()) {
			e.log.Debugw("Skip firing timer changed earlier in the pass", zap.String("key", key), zap.String("timer", t.TimerID().String()))
			continue
		}
		if err = acc.CompleteTimer(t); err != nil {
			return nil, 0, err
		}
		if err = fn(ctx, in, t); err != nil {
			metrics.UnitOfWorkErrors.WithLabelValues(e.stage, "fire").Inc()
			return nil, 0, fmt.Errorf("firing timer %s failed: %w", t, err)
		}
		fired = append(fired, t)
	}
	update, err := e.extract(in)
	if err != nil {
		return nil, 0, err
	}
	if err = e.apply(ctx, update); err != nil {
		return nil, 0, err
	}

	now := in.CurrentProcessingTime()
	for _, t := range fired {
		metrics.TimersFired.WithLabelValues(e.stage, t.Domain.String()).Inc()
		if delay := now.Sub(t.Timestamp); delay > 0 {
			metrics.TimerFiringDelay.WithLabelValues(e.stage, t.Domain.String()).Observe(delay.Seconds())
		}
		e.log.Debugw("Fired timer", zap.String("key", key), zap.String("timer", t.TimerID().String()), zap.Int64("timestamp", t.Timestamp.UnixMilli()))
	}
	return fired, len(store.Merge(store.Index(live), update)), nil
}

// FireAll fires the eligible timers of every key with live timers, keys in parallel. It returns
// the fired timers by key.
func (e *Engine) FireAll(ctx context.Context, fn TimerFunc) (map[string][]timers.TimerData, error) {
	keys, err := e.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list timer keys: %w", err)
	}

	var (
		lock    sync.Mutex
		fired   = make(map[string][]timers.TimerData)
		pending int
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.workers)
	// one task per partition; keys of a partition share a lock and run one after the other
	for _, partitionKeys := range e.shuffle.ShuffleKeys(keys) {
		partitionKeys := partitionKeys
		g.Go(func() error {
			for _, key := range partitionKeys {
				keyFired, keyPending, err := e.fireKey(gCtx, key, fn)
				if err != nil {
					return err
				}
				lock.Lock()
				if len(keyFired) > 0 {
					fired[key] = keyFired
				}
				pending += keyPending
				lock.Unlock()
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return fired, err
	}
	metrics.TimersPending.WithLabelValues(e.stage).Set(float64(pending))
	return fired, nil
}

func (e *Engine) extract(in *timers.Internals) (*timers.TimerUpdate, error) {
	update, err := in.ExtractTimerUpdate()
	if errors.Is(err, timers.ErrUpdateExtracted) {
		metrics.UnitOfWorkErrors.WithLabelValues(e.stage, "extracted").Inc()
		return nil, fmt.Errorf("unit of work for key %q extracted its own timer update: %w", in.Key(), err)
	}
	return update, err
}

func (e *Engine) apply(ctx context.Context, update *timers.TimerUpdate) error {
	if update.IsEmpty() {
		return nil
	}
	if err := e.store.Apply(ctx, update); err != nil {
		metrics.TimerUpdateApplyErrors.WithLabelValues(e.stage).Inc()
		e.log.Errorw("Failed to apply timer update", zap.String("key", update.Key()), zap.Error(err))
		return fmt.Errorf("failed to apply timer update of key %q: %w", update.Key(), err)
	}
	for _, t := range update.Sets() {
		metrics.TimersSet.WithLabelValues(e.stage, t.Domain.String()).Inc()
	}
	for _, id := range update.Deletes() {
		metrics.TimersDeleted.WithLabelValues(e.stage, id.Domain.String()).Inc()
	}
	return nil
}
