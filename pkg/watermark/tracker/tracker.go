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
Package tracker keeps the latest watermarks of one stage and hands out immutable snapshots of them.

The watermarks themselves are computed elsewhere and pushed in through the Advance methods. A
tracker only guarantees that what it hands out never moves backwards.
*/
package tracker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/numaproj/timerflow/pkg/shared/logging"
	"github.com/numaproj/timerflow/pkg/timers"
	"github.com/numaproj/timerflow/pkg/watermark/wmb"
)

// Tracker holds the input, output and synchronized processing time watermarks of a stage.
// It is safe for concurrent use.
type Tracker struct {
	stage    string
	lock     sync.RWMutex
	input    wmb.Watermark
	output   wmb.Watermark
	syncTime wmb.Watermark
	log      *zap.SugaredLogger
}

// NewTracker returns a Tracker with no established watermarks.
func NewTracker(ctx context.Context, stage string) *Tracker {
	return &Tracker{
		stage:    stage,
		input:    wmb.InitialWatermark,
		output:   wmb.InitialWatermark,
		syncTime: wmb.InitialWatermark,
		log:      logging.FromContext(ctx).With("stage", stage),
	}
}

// AdvanceInput moves the input watermark to wm. It returns false if wm is older than the current
// input watermark, in which case nothing changes.
func (t *Tracker) AdvanceInput(wm wmb.Watermark) bool {
	return t.advance(&t.input, wm, "input")
}

// AdvanceOutput moves the output watermark to wm, see AdvanceInput.
func (t *Tracker) AdvanceOutput(wm wmb.Watermark) bool {
	return t.advance(&t.output, wm, "output")
}

// AdvanceSynchronized moves the synchronized processing time to wm, see AdvanceInput.
func (t *Tracker) AdvanceSynchronized(wm wmb.Watermark) bool {
	return t.advance(&t.syncTime, wm, "synchronizedProcessingTime")
}

func (t *Tracker) advance(head *wmb.Watermark, wm wmb.Watermark, kind string) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if wm.Compare(*head) < 0 {
		t.log.Infow("Skip advancing the watermark because it's older than the current watermark",
			zap.String("kind", kind), zap.Int64("head", head.UnixMilli()), zap.Int64("new", wm.UnixMilli()))
		return false
	}
	if wm.Compare(*head) > 0 {
		t.log.Debugw("Watermark advanced", zap.String("kind", kind), zap.Int64("head", head.UnixMilli()), zap.Int64("new", wm.UnixMilli()))
		*head = wm
	}
	return true
}

// Snapshot returns the watermarks as they are now. Later advances do not change the snapshot.
func (t *Tracker) Snapshot() timers.WatermarkView {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return View{
		Input:    t.input,
		Output:   t.output,
		SyncTime: t.syncTime,
	}
}

// View is an immutable WatermarkView. A field holding wmb.InitialWatermark, or the zero value, is
// undefined.
type View struct {
	Input    wmb.Watermark
	Output   wmb.Watermark
	SyncTime wmb.Watermark
}

var _ timers.WatermarkView = View{}

// UndefinedView returns a View with none of the watermarks established.
func UndefinedView() View {
	return View{Input: wmb.InitialWatermark, Output: wmb.InitialWatermark, SyncTime: wmb.InitialWatermark}
}

func (v View) InputWatermark() (wmb.Watermark, bool) {
	return v.Input, v.Input.Established()
}

func (v View) OutputWatermark() (wmb.Watermark, bool) {
	return v.Output, v.Output.Established()
}

func (v View) SynchronizedProcessingInputTime() (wmb.Watermark, bool) {
	return v.SyncTime, v.SyncTime.Established()
}
