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

// Package shuffle maps keys onto a fixed number of partitions.
package shuffle

import (
	"github.com/cespare/xxhash/v2"
)

// Shuffle assigns every key to one of a fixed set of partitions. The same key always lands on
// the same partition. Shuffle is safe for concurrent use.
type Shuffle struct {
	partitions uint64
}

// NewShuffle returns a Shuffle over the given number of partitions, at least one.
func NewShuffle(partitions int) *Shuffle {
	if partitions < 1 {
		partitions = 1
	}
	return &Shuffle{partitions: uint64(partitions)}
}

// Partitions returns the number of partitions.
func (s *Shuffle) Partitions() int {
	return int(s.partitions)
}

// Partition returns the partition of the key.
func (s *Shuffle) Partition(key string) int {
	// hash of the key mod the partition count decides the partition
	return int(xxhash.Sum64String(key) % s.partitions)
}

// ShuffleKeys groups keys by partition, keeping their relative order.
func (s *Shuffle) ShuffleKeys(keys []string) map[int][]string {
	out := make(map[int][]string)
	for _, key := range keys {
		p := s.Partition(key)
		out[p] = append(out[p], key)
	}
	return out
}
