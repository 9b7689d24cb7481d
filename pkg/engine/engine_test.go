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

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/numaproj/timerflow/pkg/shared/logging"
	"github.com/numaproj/timerflow/pkg/timers"
	"github.com/numaproj/timerflow/pkg/timers/store"
	"github.com/numaproj/timerflow/pkg/timers/store/memory"
	"github.com/numaproj/timerflow/pkg/timers/store/storetest"
	"github.com/numaproj/timerflow/pkg/watermark/tracker"
	"github.com/numaproj/timerflow/pkg/watermark/wmb"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testEngine struct {
	*Engine
	store   store.Store
	clock   *clocktesting.FakePassiveClock
	tracker *tracker.Tracker
}

func newTestEngine(t *testing.T, opts ...Option) *testEngine {
	t.Helper()
	ctx := logging.WithLogger(context.Background(), zap.NewNop().Sugar())
	s := memory.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	c := clocktesting.NewFakePassiveClock(time.UnixMilli(1))
	tr := tracker.NewTracker(ctx, "test")
	return &testEngine{
		Engine:  NewEngine(ctx, "test", s, c, tr, opts...),
		store:   s,
		clock:   c,
		tracker: tr,
	}
}

func setTimers(list ...timers.TimerData) ProcessFunc {
	return func(_ context.Context, in *timers.Internals) error {
		for _, t := range list {
			if err := in.SetTimer(t); err != nil {
				return err
			}
		}
		return nil
	}
}

func recordFired(out *[]timers.TimerData) TimerFunc {
	return func(_ context.Context, _ *timers.Internals, t timers.TimerData) error {
		*out = append(*out, t)
		return nil
	}
}

func TestEngine_ProcessSetThenDelete(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	x := storetest.Timer("K", "x", timers.ProcessingTime, 100)

	update, err := e.Process(ctx, "K", setTimers(x))
	require.NoError(t, err)
	assert.Equal(t, "K", update.Key())
	assert.Equal(t, []timers.TimerData{x}, update.Sets())
	assert.Empty(t, update.Deletes())

	update, err = e.Process(ctx, "K", func(_ context.Context, in *timers.Internals) error {
		return in.DeleteTimer(x)
	})
	require.NoError(t, err)
	assert.Empty(t, update.Sets())
	assert.Equal(t, []timers.TimerID{x.TimerID()}, update.Deletes())

	live, err := e.store.Timers(ctx, "K")
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestEngine_FailedUnitOfWorkIsDiscarded(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	boom := errors.New("boom")

	_, err := e.Process(ctx, "K", func(_ context.Context, in *timers.Internals) error {
		require.NoError(t, in.SetTimer(storetest.Timer("K", "x", timers.EventTime, 10)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = e.Process(ctx, "K", setTimers(
		storetest.Timer("K", "y", timers.EventTime, 10),
		storetest.Timer("K", "z", timers.UnknownDomain, 10),
	))
	assert.ErrorIs(t, err, timers.ErrMalformedTimer)

	live, err := e.store.Timers(ctx, "K")
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestEngine_ProcessRejectsSelfExtraction(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	_, err := e.Process(ctx, "K", func(_ context.Context, in *timers.Internals) error {
		require.NoError(t, in.SetTimer(storetest.Timer("K", "x", timers.EventTime, 10)))
		_, err := in.ExtractTimerUpdate()
		return err
	})
	assert.ErrorIs(t, err, timers.ErrUpdateExtracted)
	live, err := e.store.Timers(ctx, "K")
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestEngine_EventTimeFiringOrder(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	t1 := storetest.Timer("K", "a", timers.EventTime, 10)
	t2 := storetest.Timer("K", "b", timers.EventTime, 10)
	t3 := storetest.Timer("K", "c", timers.EventTime, 5)
	_, err := e.Process(ctx, "K", setTimers(t2, t1, t3))
	require.NoError(t, err)

	// no watermark yet
	var fired []timers.TimerData
	_, err = e.FireEligible(ctx, "K", recordFired(&fired))
	require.NoError(t, err)
	assert.Empty(t, fired)

	e.tracker.AdvanceInput(wmb.FromUnixMilli(10))
	got, err := e.FireEligible(ctx, "K", recordFired(&fired))
	require.NoError(t, err)
	assert.Equal(t, []timers.TimerData{t3, t1, t2}, fired)
	assert.Equal(t, fired, got)

	// fired timers are gone and never fire twice
	fired = nil
	_, err = e.FireEligible(ctx, "K", recordFired(&fired))
	require.NoError(t, err)
	assert.Empty(t, fired)
	live, err := e.store.Timers(ctx, "K")
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestEngine_ProcessingAndSynchronizedTime(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	pt := storetest.Timer("K", "p", timers.ProcessingTime, 100)
	st := storetest.Timer("K", "s", timers.SynchronizedProcessingTime, 100)
	_, err := e.Process(ctx, "K", setTimers(pt, st))
	require.NoError(t, err)

	var fired []timers.TimerData
	e.clock.SetTime(time.UnixMilli(99))
	_, err = e.FireEligible(ctx, "K", recordFired(&fired))
	require.NoError(t, err)
	assert.Empty(t, fired)

	e.clock.SetTime(time.UnixMilli(100))
	_, err = e.FireEligible(ctx, "K", recordFired(&fired))
	require.NoError(t, err)
	assert.Equal(t, []timers.TimerData{pt}, fired)

	// synchronized processing time needs its own watermark, the clock does not count
	e.clock.SetTime(time.UnixMilli(1000))
	_, err = e.FireEligible(ctx, "K", recordFired(&fired))
	require.NoError(t, err)
	assert.Equal(t, []timers.TimerData{pt}, fired)

	e.tracker.AdvanceSynchronized(wmb.FromUnixMilli(100))
	_, err = e.FireEligible(ctx, "K", recordFired(&fired))
	require.NoError(t, err)
	assert.Equal(t, []timers.TimerData{pt, st}, fired)
}

func TestEngine_FailedFiringIsDiscarded(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a := storetest.Timer("K", "a", timers.EventTime, 1)
	b := storetest.Timer("K", "b", timers.EventTime, 2)
	_, err := e.Process(ctx, "K", setTimers(a, b))
	require.NoError(t, err)
	e.tracker.AdvanceInput(wmb.FromUnixMilli(5))

	boom := errors.New("boom")
	_, err = e.FireEligible(ctx, "K", func(_ context.Context, in *timers.Internals, t timers.TimerData) error {
		if t.ID == "b" {
			return boom
		}
		return in.SetTimer(storetest.Timer("K", "new", timers.EventTime, 50))
	})
	assert.ErrorIs(t, err, boom)

	live, err := e.store.Timers(ctx, "K")
	require.NoError(t, err)
	storetest.AssertTimers(t, []timers.TimerData{a, b}, live)
}

func TestEngine_TimersSetWhileFiring(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a := storetest.Timer("K", "a", timers.EventTime, 1)
	_, err := e.Process(ctx, "K", setTimers(a))
	require.NoError(t, err)
	e.tracker.AdvanceInput(wmb.FromUnixMilli(5))

	rearmed := storetest.Timer("K", "a", timers.EventTime, 3)
	follow := storetest.Timer("K", "follow", timers.EventTime, 4)
	var fired []timers.TimerData
	_, err = e.FireEligible(ctx, "K", func(_ context.Context, in *timers.Internals, t timers.TimerData) error {
		fired = append(fired, t)
		if t.ID == "a" && t.Timestamp.Equal(a.Timestamp) {
			if err := in.SetTimer(rearmed); err != nil {
				return err
			}
			return in.SetTimer(follow)
		}
		return nil
	})
	require.NoError(t, err)
	// already eligible timers set while firing wait for the next pass
	assert.Equal(t, []timers.TimerData{a}, fired)
	live, err := e.store.Timers(ctx, "K")
	require.NoError(t, err)
	storetest.AssertTimers(t, []timers.TimerData{rearmed, follow}, live)

	_, err = e.FireEligible(ctx, "K", recordFired(&fired))
	require.NoError(t, err)
	assert.Equal(t, []timers.TimerData{a, rearmed, follow}, fired)
}

func TestEngine_TimersChangedEarlierInThePass(t *testing.T) {
	a := storetest.Timer("K", "a", timers.EventTime, 5)
	b := storetest.Timer("K", "b", timers.EventTime, 10)
	moved := storetest.Timer("K", "b", timers.EventTime, 1000)

	tests := []struct {
		name     string
		onA      func(in *timers.Internals) error
		wantLive []timers.TimerData
	}{
		{
			name:     "set again",
			onA:      func(in *timers.Internals) error { return in.SetTimer(moved) },
			wantLive: []timers.TimerData{moved},
		},
		{
			name:     "deleted",
			onA:      func(in *timers.Internals) error { return in.DeleteTimer(b) },
			wantLive: []timers.TimerData{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newTestEngine(t)
			_, err := e.Process(ctx, "K", setTimers(a, b))
			require.NoError(t, err)
			e.tracker.AdvanceInput(wmb.FromUnixMilli(10))

			var called []timers.TimerData
			fired, err := e.FireEligible(ctx, "K", func(_ context.Context, in *timers.Internals, t timers.TimerData) error {
				called = append(called, t)
				if t.ID == "a" {
					return tt.onA(in)
				}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, []timers.TimerData{a}, called)
			assert.Equal(t, []timers.TimerData{a}, fired)
			live, err := e.store.Timers(ctx, "K")
			require.NoError(t, err)
			storetest.AssertTimers(t, tt.wantLive, live)
		})
	}
}

func TestEngine_FireAllSerializesKeys(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	e := newTestEngine(t, WithPartitions(4), WithWorkers(8))

	const keys = 50
	for i := 0; i < keys; i++ {
		key := fmt.Sprintf("key-%d", i)
		_, err := e.Process(ctx, key, setTimers(
			storetest.Timer(key, "a", timers.EventTime, 2),
			storetest.Timer(key, "b", timers.EventTime, 1),
			storetest.Timer(key, "later", timers.EventTime, 1000),
		))
		require.NoError(t, err)
	}
	e.tracker.AdvanceInput(wmb.FromUnixMilli(10))

	var (
		lock    sync.Mutex
		active  = make(map[string]bool)
		overlap bool
	)
	fn := func(_ context.Context, in *timers.Internals, t timers.TimerData) error {
		lock.Lock()
		if active[in.Key()] {
			overlap = true
		}
		active[in.Key()] = true
		lock.Unlock()
		time.Sleep(time.Millisecond)
		lock.Lock()
		active[in.Key()] = false
		lock.Unlock()
		return nil
	}

	// units of work on the same keys race with the firing pass
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < keys; i++ {
			key := fmt.Sprintf("key-%d", i)
			_, err := e.Process(ctx, key, func(ctx context.Context, in *timers.Internals) error {
				return fn(ctx, in, timers.TimerData{})
			})
			assert.NoError(t, err)
		}
	}()
	fired, err := e.FireAll(ctx, fn)
	wg.Wait()
	require.NoError(t, err)
	assert.False(t, overlap)
	assert.Len(t, fired, keys)
	for key, list := range fired {
		require.Len(t, list, 2)
		assert.Equal(t, "b", list[0].ID, key)
		assert.Equal(t, "a", list[1].ID, key)
	}

	fired, err = e.FireAll(ctx, fn)
	require.NoError(t, err)
	assert.Empty(t, fired)
}

func TestEngine_FireAllStopsOnError(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, WithWorkers(1))
	for _, key := range []string{"k1", "k2"} {
		_, err := e.Process(ctx, key, setTimers(storetest.Timer(key, "a", timers.ProcessingTime, 1)))
		require.NoError(t, err)
	}
	boom := errors.New("boom")
	_, err := e.FireAll(ctx, func(context.Context, *timers.Internals, timers.TimerData) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	keys, err := e.store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, keys)
}

func TestEngine_Options(t *testing.T) {
	o := defaultOptions()
	WithPartitions(0)(o)
	WithWorkers(-1)(o)
	assert.Equal(t, 64, o.partitions)
	assert.Greater(t, o.workers, 0)
	WithPartitions(3)(o)
	WithWorkers(2)(o)
	assert.Equal(t, 3, o.partitions)
	assert.Equal(t, 2, o.workers)
}
