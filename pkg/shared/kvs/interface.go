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

// Package kvs defines the revisioned key-value buckets the durable timer state can live in.
package kvs

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")
	// ErrRevisionMismatch is returned by a conditional write when the key was changed after the
	// expected revision.
	ErrRevisionMismatch = errors.New("revision mismatch")
)

// Entry is a value and the revision it was written at.
type Entry struct {
	Value    []byte
	Revision uint64
}

// KVStorer is a bucket of revisioned values. Writes are conditional on the revision the caller
// read, so a read-modify-write cycle fails instead of overwriting a concurrent writer.
type KVStorer interface {
	// Keys returns the keys of the bucket.
	Keys(ctx context.Context) ([]string, error)
	// Get returns the latest entry of the key.
	Get(ctx context.Context, key string) (Entry, error)
	// Put writes value if the key is at revision, where 0 means the key must not exist, and
	// returns the new revision.
	Put(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	// Delete removes the key if it is at revision.
	Delete(ctx context.Context, key string, revision uint64) error
	// Name returns the bucket name.
	Name() string
	// Close releases the bucket. The connection it runs on is not closed.
	Close()
}
