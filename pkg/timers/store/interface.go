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
Package store keeps the durable timer state of every key and merges TimerUpdates into it.

Apply merges a whole update or nothing. Callers serialize Apply calls for the same key; the
engine does that with its per-key partitions.
*/
package store

import (
	"context"

	"github.com/numaproj/timerflow/pkg/timers"
)

// Store is the durable per-key timer state.
type Store interface {
	// Apply merges the update into the timers of update.Key(). Completed timers and deletes are
	// removed first, then sets are written. Deleting an absent timer is a no-op.
	Apply(ctx context.Context, update *timers.TimerUpdate) error
	// Timers returns the live timers of the key in firing order.
	Timers(ctx context.Context, key string) ([]timers.TimerData, error)
	// Keys returns the keys that have at least one live timer.
	Keys(ctx context.Context) ([]string, error)
	// Close releases the resources of the store.
	Close() error
}

// Merge applies the update to the live timers of its key and returns the result in firing order.
// The input map is not modified.
func Merge(live map[timers.TimerID]timers.TimerData, update *timers.TimerUpdate) []timers.TimerData {
	merged := make(map[timers.TimerID]timers.TimerData, len(live))
	for id, t := range live {
		merged[id] = t
	}
	for _, t := range update.Completed() {
		delete(merged, t.TimerID())
	}
	for _, id := range update.Deletes() {
		delete(merged, id)
	}
	for _, t := range update.Sets() {
		merged[t.TimerID()] = t
	}
	out := make([]timers.TimerData, 0, len(merged))
	for _, t := range merged {
		out = append(out, t)
	}
	timers.SortForFiring(out)
	return out
}

// Index returns the timers keyed by their TimerID.
func Index(list []timers.TimerData) map[timers.TimerID]timers.TimerData {
	m := make(map[timers.TimerID]timers.TimerData, len(list))
	for _, t := range list {
		m[t.TimerID()] = t
	}
	return m
}
