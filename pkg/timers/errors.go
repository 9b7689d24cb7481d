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

import "errors"

var (
	// ErrMalformedTimer is returned when a timer has an unknown domain, an empty id, a missing or
	// non-positive timestamp, or belongs to a different key than the unit of work.
	ErrMalformedTimer = errors.New("malformed timer")
	// ErrUpdateExtracted is returned when a timer update is extracted, or a timer is recorded,
	// after the update of the unit of work has already been extracted.
	ErrUpdateExtracted = errors.New("timer update already extracted")
)
