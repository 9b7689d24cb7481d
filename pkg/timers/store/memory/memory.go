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

// Package memory keeps timers in process memory.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/numaproj/timerflow/pkg/timers"
	"github.com/numaproj/timerflow/pkg/timers/store"
)

type memoryStore struct {
	lock   sync.RWMutex
	timers map[string]map[timers.TimerID]timers.TimerData
	closed bool
}

var _ store.Store = (*memoryStore)(nil)

// NewMemoryStore returns an empty in memory Store.
func NewMemoryStore() store.Store {
	return &memoryStore{
		timers: make(map[string]map[timers.TimerID]timers.TimerData),
	}
}

var errClosed = errors.New("memory timer store is closed")

func (m *memoryStore) Apply(_ context.Context, update *timers.TimerUpdate) error {
	if update == nil {
		return errors.New("nil timer update")
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.closed {
		return errClosed
	}
	merged := store.Merge(m.timers[update.Key()], update)
	if len(merged) == 0 {
		delete(m.timers, update.Key())
		return nil
	}
	m.timers[update.Key()] = store.Index(merged)
	return nil
}

func (m *memoryStore) Timers(_ context.Context, key string) ([]timers.TimerData, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.closed {
		return nil, errClosed
	}
	live := m.timers[key]
	out := make([]timers.TimerData, 0, len(live))
	for _, t := range live {
		out = append(out, t)
	}
	timers.SortForFiring(out)
	return out, nil
}

func (m *memoryStore) Keys(_ context.Context) ([]string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.closed {
		return nil, errClosed
	}
	keys := make([]string, 0, len(m.timers))
	for k := range m.timers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memoryStore) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.closed = true
	m.timers = nil
	return nil
}
