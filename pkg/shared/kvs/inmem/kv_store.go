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
Package inmem implements a revisioned bucket in memory. Revisions come from one counter per
bucket, the way a JetStream stream sequence does.
*/
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/numaproj/timerflow/pkg/shared/kvs"
	"github.com/numaproj/timerflow/pkg/shared/logging"
)

type inMemStore struct {
	bucketName string
	entries    map[string]kvs.Entry
	sequence   uint64
	lock       sync.RWMutex
	isClosed   bool
	log        *zap.SugaredLogger
}

var _ kvs.KVStorer = (*inMemStore)(nil)

// NewKVInMemKVStore returns an empty bucket.
func NewKVInMemKVStore(ctx context.Context, bucketName string) (kvs.KVStorer, error) {
	return &inMemStore{
		bucketName: bucketName,
		entries:    make(map[string]kvs.Entry),
		log:        logging.FromContext(ctx).With("bucketName", bucketName),
	}, nil
}

func (kv *inMemStore) Keys(_ context.Context) ([]string, error) {
	kv.lock.RLock()
	defer kv.lock.RUnlock()
	if kv.isClosed {
		return nil, fmt.Errorf("kv store %s is closed", kv.bucketName)
	}
	keys := make([]string, 0, len(kv.entries))
	for key := range kv.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Get returns a copy of the stored entry.
func (kv *inMemStore) Get(_ context.Context, key string) (kvs.Entry, error) {
	kv.lock.RLock()
	defer kv.lock.RUnlock()
	if kv.isClosed {
		return kvs.Entry{}, fmt.Errorf("kv store %s is closed", kv.bucketName)
	}
	e, ok := kv.entries[key]
	if !ok {
		return kvs.Entry{}, fmt.Errorf("%w: %s", kvs.ErrKeyNotFound, key)
	}
	return kvs.Entry{Value: append([]byte(nil), e.Value...), Revision: e.Revision}, nil
}

// check returns ErrRevisionMismatch unless the key is at revision. Callers hold the write lock.
func (kv *inMemStore) check(key string, revision uint64) error {
	if kv.isClosed {
		return fmt.Errorf("kv store %s is closed", kv.bucketName)
	}
	current, ok := kv.entries[key]
	switch {
	case !ok && revision == 0:
		return nil
	case !ok:
		return fmt.Errorf("%w: %s does not exist, expected revision %d", kvs.ErrRevisionMismatch, key, revision)
	case current.Revision != revision:
		return fmt.Errorf("%w: %s is at revision %d, expected %d", kvs.ErrRevisionMismatch, key, current.Revision, revision)
	}
	return nil
}

func (kv *inMemStore) Put(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	kv.lock.Lock()
	defer kv.lock.Unlock()
	if err := kv.check(key, revision); err != nil {
		return 0, err
	}
	kv.sequence++
	kv.entries[key] = kvs.Entry{Value: append([]byte(nil), value...), Revision: kv.sequence}
	kv.log.Debugw("Put key", zap.String("key", key), zap.Uint64("revision", kv.sequence), zap.Int("size", len(value)))
	return kv.sequence, nil
}

func (kv *inMemStore) Delete(_ context.Context, key string, revision uint64) error {
	kv.lock.Lock()
	defer kv.lock.Unlock()
	if _, ok := kv.entries[key]; !ok && !kv.isClosed {
		return fmt.Errorf("%w: %s", kvs.ErrKeyNotFound, key)
	}
	if err := kv.check(key, revision); err != nil {
		return err
	}
	kv.sequence++
	delete(kv.entries, key)
	kv.log.Debugw("Deleted key", zap.String("key", key))
	return nil
}

func (kv *inMemStore) Name() string {
	return kv.bucketName
}

func (kv *inMemStore) Close() {
	kv.lock.Lock()
	defer kv.lock.Unlock()
	kv.isClosed = true
}
