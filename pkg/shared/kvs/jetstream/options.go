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

package jetstream

type options struct {
	// createBucket creates the bucket when it does not exist yet.
	createBucket bool
	// replicas is the replica count of a created bucket.
	replicas int
	// history is the number of revisions a created bucket keeps per key.
	history uint8
}

func defaultOptions() *options {
	return &options{
		createBucket: false,
		replicas:     1,
		history:      1,
	}
}

// Option is a function on the options of the JetStream KV store
type Option func(*options)

// WithBucketCreation creates the bucket with the given number of replicas if it is missing.
func WithBucketCreation(replicas int) Option {
	return func(o *options) {
		o.createBucket = true
		if replicas > 0 {
			o.replicas = replicas
		}
	}
}

// WithHistory sets how many revisions per key a created bucket keeps, between 1 and 64.
func WithHistory(history uint8) Option {
	return func(o *options) {
		if history > 0 && history <= 64 {
			o.history = history
		}
	}
}
