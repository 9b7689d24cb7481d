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

// Package wmb holds the watermark value shared by the timer and watermark packages.
package wmb

import "time"

// Watermark is a lower bound on the event time of data that can still arrive. It only moves
// forward.
type Watermark time.Time

// InitialWatermark marks a watermark that has never been observed. It is never handed out as an
// established value.
var InitialWatermark = Watermark(time.UnixMilli(-1))

// FromUnixMilli returns the watermark for milliseconds since epoch.
func FromUnixMilli(ms int64) Watermark {
	return Watermark(time.UnixMilli(ms))
}

func (w Watermark) Time() time.Time {
	return time.Time(w)
}

func (w Watermark) UnixMilli() int64 {
	return time.Time(w).UnixMilli()
}

func (w Watermark) String() string {
	return time.Time(w).UTC().Format(time.RFC3339Nano)
}

// Compare returns -1, 0 or +1 as w is before, equal to or after o.
func (w Watermark) Compare(o Watermark) int {
	switch {
	case time.Time(w).Before(time.Time(o)):
		return -1
	case time.Time(w).After(time.Time(o)):
		return 1
	default:
		return 0
	}
}

// Reached returns true once w is at or past ts.
func (w Watermark) Reached(ts time.Time) bool {
	return !time.Time(w).Before(ts)
}

// IsInitial returns true if w is the InitialWatermark.
func (w Watermark) IsInitial() bool {
	return time.Time(w).Equal(time.Time(InitialWatermark))
}

// Established returns true unless w is the InitialWatermark or the zero value.
func (w Watermark) Established() bool {
	return !w.IsInitial() && !time.Time(w).IsZero()
}
