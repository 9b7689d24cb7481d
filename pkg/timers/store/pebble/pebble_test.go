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

package pebble

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/timerflow/pkg/timers"
	"github.com/numaproj/timerflow/pkg/timers/store"
	"github.com/numaproj/timerflow/pkg/timers/store/storetest"
)

func TestPebbleStore(t *testing.T) {
	storetest.RunStoreTests(t, func(t *testing.T) store.Store {
		s, err := NewPebbleStore(context.Background(), Options{Path: t.TempDir(), CacheSize: 1 << 20})
		require.NoError(t, err)
		return s
	})
}

func TestPebbleStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewPebbleStore(ctx, Options{Path: dir, Sync: true})
	require.NoError(t, err)

	x := storetest.Timer("K", "x", timers.SynchronizedProcessingTime, 42)
	require.NoError(t, s.Apply(ctx, storetest.Update(t, "K", func(a *timers.Accumulator) {
		require.NoError(t, a.SetTimer(x))
	})))
	require.NoError(t, s.Close())

	s, err = NewPebbleStore(ctx, Options{Path: dir})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, err := s.Timers(ctx, "K")
	require.NoError(t, err)
	storetest.AssertTimers(t, []timers.TimerData{x}, got)
}

func TestPebbleStore_RequiresPath(t *testing.T) {
	_, err := NewPebbleStore(context.Background(), Options{})
	assert.Error(t, err)
}
