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

// Package storetest holds the behaviour every store.Store implementation must have.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/timerflow/pkg/timers"
	"github.com/numaproj/timerflow/pkg/timers/store"
)

// Timer returns a timer with a millisecond timestamp.
func Timer(key, id string, domain timers.Domain, ms int64) timers.TimerData {
	return timers.TimerData{Key: key, ID: id, Domain: domain, Timestamp: time.UnixMilli(ms).UTC()}
}

// AssertTimers compares timers by identity and instant, ignoring the time zone a backend decodes into.
func AssertTimers(t *testing.T, want, got []timers.TimerData) {
	t.Helper()
	if !assert.Len(t, got, len(want)) {
		return
	}
	for i := range want {
		assert.Equal(t, want[i].Key, got[i].Key)
		assert.Equal(t, want[i].TimerID(), got[i].TimerID())
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp), "timer %s: want %s, got %s", want[i].TimerID(), want[i].Timestamp, got[i].Timestamp)
	}
}

// Update builds a TimerUpdate for key from a function recording operations.
func Update(t *testing.T, key string, record func(a *timers.Accumulator)) *timers.TimerUpdate {
	t.Helper()
	a := timers.NewAccumulator(key)
	record(a)
	update, err := a.Build()
	require.NoError(t, err)
	return update
}

// RunStoreTests runs the shared behaviour tests against stores created by newStore.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("apply and read", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		defer func() { _ = s.Close() }()

		x := Timer("K", "x", timers.ProcessingTime, 100)
		require.NoError(t, s.Apply(ctx, Update(t, "K", func(a *timers.Accumulator) {
			require.NoError(t, a.SetTimer(x))
		})))
		got, err := s.Timers(ctx, "K")
		require.NoError(t, err)
		AssertTimers(t, []timers.TimerData{x}, got)

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"K"}, keys)

		require.NoError(t, s.Apply(ctx, Update(t, "K", func(a *timers.Accumulator) {
			require.NoError(t, a.DeleteTimer(x))
		})))
		got, err = s.Timers(ctx, "K")
		require.NoError(t, err)
		assert.Empty(t, got)
		keys, err = s.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("delete of an absent timer is a no-op", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		defer func() { _ = s.Close() }()

		keep := Timer("K", "keep", timers.EventTime, 10)
		require.NoError(t, s.Apply(ctx, Update(t, "K", func(a *timers.Accumulator) {
			require.NoError(t, a.SetTimer(keep))
		})))
		require.NoError(t, s.Apply(ctx, Update(t, "K", func(a *timers.Accumulator) {
			require.NoError(t, a.DeleteTimer(Timer("K", "absent", timers.EventTime, 0)))
		})))
		require.NoError(t, s.Apply(ctx, Update(t, "other", func(a *timers.Accumulator) {
			require.NoError(t, a.DeleteTimer(Timer("other", "absent", timers.EventTime, 0)))
		})))
		got, err := s.Timers(ctx, "K")
		require.NoError(t, err)
		AssertTimers(t, []timers.TimerData{keep}, got)
		got, err = s.Timers(ctx, "other")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("set replaces and domains are separate", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		defer func() { _ = s.Close() }()

		require.NoError(t, s.Apply(ctx, Update(t, "K", func(a *timers.Accumulator) {
			require.NoError(t, a.SetTimer(Timer("K", "x", timers.EventTime, 10)))
			require.NoError(t, a.SetTimer(Timer("K", "x", timers.ProcessingTime, 30)))
		})))
		require.NoError(t, s.Apply(ctx, Update(t, "K", func(a *timers.Accumulator) {
			require.NoError(t, a.SetTimer(Timer("K", "x", timers.EventTime, 20)))
		})))
		got, err := s.Timers(ctx, "K")
		require.NoError(t, err)
		AssertTimers(t, []timers.TimerData{
			Timer("K", "x", timers.EventTime, 20),
			Timer("K", "x", timers.ProcessingTime, 30),
		}, got)
	})

	t.Run("completed timers are removed unless set again", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		defer func() { _ = s.Close() }()

		a1 := Timer("K", "a", timers.EventTime, 5)
		b1 := Timer("K", "b", timers.EventTime, 6)
		require.NoError(t, s.Apply(ctx, Update(t, "K", func(a *timers.Accumulator) {
			require.NoError(t, a.SetTimer(a1))
			require.NoError(t, a.SetTimer(b1))
		})))
		b2 := Timer("K", "b", timers.EventTime, 60)
		require.NoError(t, s.Apply(ctx, Update(t, "K", func(a *timers.Accumulator) {
			require.NoError(t, a.CompleteTimer(a1))
			require.NoError(t, a.CompleteTimer(b1))
			require.NoError(t, a.SetTimer(b2))
		})))
		got, err := s.Timers(ctx, "K")
		require.NoError(t, err)
		AssertTimers(t, []timers.TimerData{b2}, got)
	})

	t.Run("timers come back in firing order", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		defer func() { _ = s.Close() }()

		t1 := Timer("K", "a", timers.EventTime, 10)
		t2 := Timer("K", "b", timers.EventTime, 10)
		t3 := Timer("K", "c", timers.EventTime, 5)
		require.NoError(t, s.Apply(ctx, Update(t, "K", func(a *timers.Accumulator) {
			require.NoError(t, a.SetTimer(t2))
			require.NoError(t, a.SetTimer(t1))
			require.NoError(t, a.SetTimer(t3))
		})))
		got, err := s.Timers(ctx, "K")
		require.NoError(t, err)
		AssertTimers(t, []timers.TimerData{t3, t1, t2}, got)
	})

	t.Run("keys are isolated", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		defer func() { _ = s.Close() }()

		var want []string
		for i := 0; i < 10; i++ {
			key := fmt.Sprintf("key/%d with spaces", i)
			want = append(want, key)
			require.NoError(t, s.Apply(ctx, Update(t, key, func(a *timers.Accumulator) {
				require.NoError(t, a.SetTimer(Timer(key, "x", timers.EventTime, int64(i+1))))
			})))
		}
		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, keys)
		got, err := s.Timers(ctx, "key/3 with spaces")
		require.NoError(t, err)
		AssertTimers(t, []timers.TimerData{Timer("key/3 with spaces", "x", timers.EventTime, 4)}, got)
	})

	t.Run("nil update", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()
		assert.Error(t, s.Apply(context.Background(), nil))
	})
}
