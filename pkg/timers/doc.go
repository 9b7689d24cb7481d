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
Package timers implements the timer coordination surface a keyed processing stage works against
during one unit of work.

A unit of work gets a fresh Internals bound to a single-use Accumulator, a snapshot of the clock
and a snapshot of the stage's watermarks. User logic queries the four time domains and records
timer sets and deletes. The engine then extracts an immutable TimerUpdate and merges it into the
durable per-key timer state in one step.

Internals and Accumulator take no locks. The caller guarantees that no two units of work for the
same key run at the same time.
*/
package timers
