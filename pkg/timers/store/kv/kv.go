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
Package kv keeps the timers of each key as one JSON document in a kvs.KVStorer.

Apply reads the document with its revision, merges the update and writes the result back
conditionally on that revision, so an update lands completely or not at all and a concurrent
writer of the same key is detected instead of overwritten. Keys are base64url encoded to stay
within the key alphabet of JetStream buckets.
*/
package kv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/numaproj/timerflow/pkg/shared/kvs"
	"github.com/numaproj/timerflow/pkg/shared/logging"
	"github.com/numaproj/timerflow/pkg/timers"
	"github.com/numaproj/timerflow/pkg/timers/store"
)

type kvTimerStore struct {
	kv  kvs.KVStorer
	log *zap.SugaredLogger
}

var _ store.Store = (*kvTimerStore)(nil)

// NewKVTimerStore returns a Store on top of the given KV store. Closing the Store closes kv.
func NewKVTimerStore(ctx context.Context, kv kvs.KVStorer) store.Store {
	return &kvTimerStore{
		kv:  kv,
		log: logging.FromContext(ctx).With("timerStore", kv.Name()),
	}
}

func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeKey(encoded string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid timer key %q: %w", encoded, err)
	}
	return string(b), nil
}

func (s *kvTimerStore) Apply(ctx context.Context, update *timers.TimerUpdate) error {
	if update == nil {
		return errors.New("nil timer update")
	}
	live, revision, err := s.read(ctx, update.Key())
	if err != nil {
		return err
	}
	merged := store.Merge(store.Index(live), update)
	kvKey := encodeKey(update.Key())
	switch {
	case len(merged) == 0 && revision == 0:
		return nil
	case len(merged) == 0:
		if err = s.kv.Delete(ctx, kvKey, revision); err != nil {
			return fmt.Errorf("failed to delete timers of key %q: %w", update.Key(), err)
		}
	default:
		b, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("failed to marshal timers of key %q: %w", update.Key(), err)
		}
		if revision, err = s.kv.Put(ctx, kvKey, b, revision); err != nil {
			return fmt.Errorf("failed to write timers of key %q: %w", update.Key(), err)
		}
	}
	s.log.Debugw("Applied timer update", zap.String("key", update.Key()), zap.Int("live", len(merged)), zap.Uint64("revision", revision))
	return nil
}

// read returns the timers of key and the revision of their document, 0 when there is none.
func (s *kvTimerStore) read(ctx context.Context, key string) ([]timers.TimerData, uint64, error) {
	entry, err := s.kv.Get(ctx, encodeKey(key))
	if errors.Is(err, kvs.ErrKeyNotFound) {
		return []timers.TimerData{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read timers of key %q: %w", key, err)
	}
	var out []timers.TimerData
	if err = json.Unmarshal(entry.Value, &out); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal timers of key %q: %w", key, err)
	}
	timers.SortForFiring(out)
	return out, entry.Revision, nil
}

func (s *kvTimerStore) Timers(ctx context.Context, key string) ([]timers.TimerData, error) {
	live, _, err := s.read(ctx, key)
	return live, err
}

func (s *kvTimerStore) Keys(ctx context.Context) ([]string, error) {
	encoded, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(encoded))
	for _, e := range encoded {
		k, err := decodeKey(e)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *kvTimerStore) Close() error {
	s.kv.Close()
	return nil
}
