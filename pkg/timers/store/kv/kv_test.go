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

package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	natstest "github.com/numaproj/timerflow/pkg/shared/clients/nats/test"
	"github.com/numaproj/timerflow/pkg/shared/kvs"
	"github.com/numaproj/timerflow/pkg/shared/kvs/inmem"
	"github.com/numaproj/timerflow/pkg/shared/kvs/jetstream"
	"github.com/numaproj/timerflow/pkg/timers"
	"github.com/numaproj/timerflow/pkg/timers/store"
	"github.com/numaproj/timerflow/pkg/timers/store/storetest"
)

func TestKVTimerStore_InMem(t *testing.T) {
	storetest.RunStoreTests(t, func(t *testing.T) store.Store {
		kv, err := inmem.NewKVInMemKVStore(context.Background(), "timers")
		require.NoError(t, err)
		return NewKVTimerStore(context.Background(), kv)
	})
}

func TestKVTimerStore_JetStream(t *testing.T) {
	s := natstest.RunJetStreamServer(t)

	js := natstest.JetStreamContext(t, s)

	storetest.RunStoreTests(t, func(t *testing.T) store.Store {
		// every subtest starts from an empty bucket
		_ = js.DeleteKeyValue("timers")
		kv, err := jetstream.NewKVJetStreamKVStore(context.Background(), "timers", js, jetstream.WithBucketCreation(1))
		require.NoError(t, err)
		return NewKVTimerStore(context.Background(), kv)
	})
}

// failingKV fails every write.
type failingKV struct {
	kvs.KVStorer
}

func (f failingKV) Put(context.Context, string, []byte, uint64) (uint64, error) {
	return 0, assert.AnError
}

func TestKVTimerStore_FailedWriteKeepsState(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	kv, err := inmem.NewKVInMemKVStore(ctx, "timers")
	require.NoError(t, err)

	x := storetest.Timer("K", "x", timers.EventTime, 10)
	require.NoError(t, NewKVTimerStore(ctx, kv).Apply(ctx, storetest.Update(t, "K", func(a *timers.Accumulator) {
		require.NoError(t, a.SetTimer(x))
	})))

	broken := NewKVTimerStore(ctx, failingKV{KVStorer: kv})
	err = broken.Apply(ctx, storetest.Update(t, "K", func(a *timers.Accumulator) {
		require.NoError(t, a.DeleteTimer(x))
		require.NoError(t, a.SetTimer(storetest.Timer("K", "y", timers.EventTime, 20)))
	}))
	assert.ErrorIs(t, err, assert.AnError)

	got, err := broken.Timers(ctx, "K")
	require.NoError(t, err)
	storetest.AssertTimers(t, []timers.TimerData{x}, got)
}

func TestKVTimerStore_ConcurrentWriterDetected(t *testing.T) {
	ctx := context.Background()
	kv, err := inmem.NewKVInMemKVStore(ctx, "timers")
	require.NoError(t, err)
	s := NewKVTimerStore(ctx, kv)

	x := storetest.Timer("K", "x", timers.EventTime, 10)
	require.NoError(t, s.Apply(ctx, storetest.Update(t, "K", func(a *timers.Accumulator) {
		require.NoError(t, a.SetTimer(x))
	})))

	// another writer changes the document between the read and the write of Apply
	racing := racingKV{KVStorer: kv, race: func() {
		entry, err := kv.Get(ctx, encodeKey("K"))
		require.NoError(t, err)
		_, err = kv.Put(ctx, encodeKey("K"), entry.Value, entry.Revision)
		require.NoError(t, err)
	}}
	err = NewKVTimerStore(ctx, &racing).Apply(ctx, storetest.Update(t, "K", func(a *timers.Accumulator) {
		require.NoError(t, a.SetTimer(storetest.Timer("K", "y", timers.EventTime, 20)))
	}))
	assert.ErrorIs(t, err, kvs.ErrRevisionMismatch)

	got, err := s.Timers(ctx, "K")
	require.NoError(t, err)
	storetest.AssertTimers(t, []timers.TimerData{x}, got)
}

// racingKV runs race once after the first Get.
type racingKV struct {
	kvs.KVStorer
	race func()
	done bool
}

func (r *racingKV) Get(ctx context.Context, key string) (kvs.Entry, error) {
	entry, err := r.KVStorer.Get(ctx, key)
	if !r.done {
		r.done = true
		r.race()
	}
	return entry, err
}

func TestKVTimerStore_KeyEncoding(t *testing.T) {
	for _, key := range []string{"", "a", "with space", "ünïcode/slash.dot"} {
		decoded, err := decodeKey(encodeKey(key))
		require.NoError(t, err)
		assert.Equal(t, key, decoded)
	}
	_, err := decodeKey("not base64 !")
	assert.Error(t, err)
}
