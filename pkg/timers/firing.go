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

import (
	"sort"
	"time"

	"github.com/numaproj/timerflow/pkg/watermark/wmb"
)

// IsEligible returns true if the timer may fire given the processing time now and the watermarks
// in view. Event time and synchronized processing time timers never fire while the watermark of
// their domain is undefined. A nil view has no watermark defined.
func IsEligible(timer TimerData, now time.Time, view WatermarkView) bool {
	switch timer.Domain {
	case ProcessingTime:
		return !now.Before(timer.Timestamp)
	case EventTime:
		return view != nil && reached(view.InputWatermark, timer.Timestamp)
	case SynchronizedProcessingTime:
		return view != nil && reached(view.SynchronizedProcessingInputTime, timer.Timestamp)
	default:
		return false
	}
}

func reached(get func() (wmb.Watermark, bool), ts time.Time) bool {
	wm, ok := get()
	return ok && wm.Reached(ts)
}

// FiresBefore is the firing order of timers within a key: ascending timestamp, then ascending id.
// Domain breaks the remaining ties so the order is total.
func FiresBefore(a, b TimerData) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	return a.Domain < b.Domain
}

// SortForFiring sorts the timers in firing order in place.
func SortForFiring(timers []TimerData) {
	sort.SliceStable(timers, func(i, j int) bool {
		return FiresBefore(timers[i], timers[j])
	})
}

// EligibleTimers returns the timers that may fire, in firing order.
func EligibleTimers(timers []TimerData, now time.Time, view WatermarkView) []TimerData {
	var eligible []TimerData
	for _, t := range timers {
		if IsEligible(t, now, view) {
			eligible = append(eligible, t)
		}
	}
	SortForFiring(eligible)
	return eligible
}

// EligibleTimers returns the timers that may fire at the time snapshot of the unit of work, in
// firing order.
func (in *Internals) EligibleTimers(timers []TimerData) []TimerData {
	return EligibleTimers(timers, in.processingTime, in.view())
}
