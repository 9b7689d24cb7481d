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

// TimerUpdate is the immutable set of timer changes produced by one unit of work on one key.
// Sets and Deletes never share a TimerID. Accessors return copies.
type TimerUpdate struct {
	key       string
	sets      []TimerData
	deletes   []TimerID
	completed []TimerData
}

// Key returns the key the changes apply to.
func (u *TimerUpdate) Key() string {
	return u.key
}

// Sets returns the timers to set or replace, ordered by when they were last set.
func (u *TimerUpdate) Sets() []TimerData {
	return append([]TimerData(nil), u.sets...)
}

// Deletes returns the timers to remove, ordered by when they were last deleted.
func (u *TimerUpdate) Deletes() []TimerID {
	return append([]TimerID(nil), u.deletes...)
}

// Completed returns the timers the engine fired during the unit of work. They are removed from
// the timer state unless they also appear in Sets.
func (u *TimerUpdate) Completed() []TimerData {
	return append([]TimerData(nil), u.completed...)
}

// IsEmpty returns true if applying the update changes nothing.
func (u *TimerUpdate) IsEmpty() bool {
	return len(u.sets) == 0 && len(u.deletes) == 0 && len(u.completed) == 0
}
