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

package engine

import "runtime"

type options struct {
	// partitions is the number of per-key locks keys are hashed onto
	partitions int
	// workers is the number of keys fired in parallel by FireAll
	workers int
}

func defaultOptions() *options {
	return &options{
		partitions: 64,
		workers:    runtime.NumCPU(),
	}
}

// Option to apply on the engine
type Option func(*options)

// WithPartitions sets the number of per-key lock partitions
func WithPartitions(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.partitions = n
		}
	}
}

// WithWorkers sets how many keys FireAll fires in parallel
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}
