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
	"time"

	"k8s.io/utils/clock"

	"github.com/numaproj/timerflow/pkg/watermark/wmb"
)

type optionalWatermark struct {
	wm      wmb.Watermark
	defined bool
}

func (o optionalWatermark) get() (wmb.Watermark, bool) {
	return o.wm, o.defined
}

// Internals is what the processing logic of a stage works with during one unit of work on one key.
// Time queries answer from snapshots taken when the Internals is created, so every call within the
// unit of work sees the same time even if the clock or the watermarks move on. Timer changes are
// recorded in the bound Accumulator and only take effect once the engine applies the extracted
// TimerUpdate.
//
// An Internals is single use and not safe for concurrent use.
type Internals struct {
	accumulator    *Accumulator
	processingTime time.Time
	inputWM        optionalWatermark
	outputWM       optionalWatermark
	syncWM         optionalWatermark
}

// NewInternals snapshots the clock and the watermark view and binds the accumulator.
func NewInternals(c clock.PassiveClock, view WatermarkView, accumulator *Accumulator) *Internals {
	in := &Internals{
		accumulator:    accumulator,
		processingTime: c.Now(),
	}
	if view != nil {
		in.inputWM.wm, in.inputWM.defined = view.InputWatermark()
		in.outputWM.wm, in.outputWM.defined = view.OutputWatermark()
		in.syncWM.wm, in.syncWM.defined = view.SynchronizedProcessingInputTime()
	}
	return in
}

// Key returns the key of the unit of work.
func (in *Internals) Key() string {
	return in.accumulator.Key()
}

// SetTimer sets or replaces the timer with the same domain and id. Malformed timers are rejected here.
func (in *Internals) SetTimer(timer TimerData) error {
	return in.accumulator.SetTimer(timer)
}

// DeleteTimer deletes the timer with the same domain and id, if there is one.
func (in *Internals) DeleteTimer(timer TimerData) error {
	return in.accumulator.DeleteTimer(timer)
}

// CurrentProcessingTime returns the processing time of the unit of work.
func (in *Internals) CurrentProcessingTime() time.Time {
	return in.processingTime
}

// CurrentSynchronizedProcessingTime returns the synchronized processing time of the input, if the
// upstream has reported one.
func (in *Internals) CurrentSynchronizedProcessingTime() (wmb.Watermark, bool) {
	return in.syncWM.get()
}

// CurrentInputWatermark returns the input watermark, if established.
func (in *Internals) CurrentInputWatermark() (wmb.Watermark, bool) {
	return in.inputWM.get()
}

// CurrentOutputWatermark returns the output watermark, if established.
func (in *Internals) CurrentOutputWatermark() (wmb.Watermark, bool) {
	return in.outputWM.get()
}

// ExtractTimerUpdate returns the changes recorded during the unit of work. A second call
// returns ErrUpdateExtracted.
func (in *Internals) ExtractTimerUpdate() (*TimerUpdate, error) {
	return in.accumulator.Build()
}

// view returns the watermark snapshot of the unit of work.
func (in *Internals) view() WatermarkView {
	return snapshotView{input: in.inputWM, output: in.outputWM, sync: in.syncWM}
}

type snapshotView struct {
	input  optionalWatermark
	output optionalWatermark
	sync   optionalWatermark
}

func (s snapshotView) InputWatermark() (wmb.Watermark, bool) {
	return s.input.get()
}

func (s snapshotView) OutputWatermark() (wmb.Watermark, bool) {
	return s.output.get()
}

func (s snapshotView) SynchronizedProcessingInputTime() (wmb.Watermark, bool) {
	return s.sync.get()
}
