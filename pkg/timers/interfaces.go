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

import "github.com/numaproj/timerflow/pkg/watermark/wmb"

// WatermarkView is a point-in-time, read-only view of the watermarks of one stage.
// Each method returns false while the watermark is not yet established.
type WatermarkView interface {
	// InputWatermark is the lower bound on the event time of input the stage has not yet processed.
	InputWatermark() (wmb.Watermark, bool)
	// OutputWatermark is the lower bound on the event time of output the stage will still emit.
	OutputWatermark() (wmb.Watermark, bool)
	// SynchronizedProcessingInputTime is the processing time progress agreed on by the upstream stages.
	SynchronizedProcessingInputTime() (wmb.Watermark, bool)
}
