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
Package jetstream implements the revisioned bucket on a JetStream key-value bucket. Revisions are
the stream sequences JetStream assigns, and conditional writes use its expected last sequence
per subject.
*/
package jetstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/numaproj/timerflow/pkg/shared/kvs"
	"github.com/numaproj/timerflow/pkg/shared/logging"
)

type jetStreamStore struct {
	kv   nats.KeyValue
	log  *zap.SugaredLogger
	opts *options
}

var _ kvs.KVStorer = (*jetStreamStore)(nil)

// NewKVJetStreamKVStore binds to the bucket kvName, creating it when WithBucketCreation is given.
func NewKVJetStreamKVStore(ctx context.Context, kvName string, js nats.JetStreamContext, opts ...Option) (kvs.KVStorer, error) {
	kvOpts := defaultOptions()
	for _, o := range opts {
		o(kvOpts)
	}

	log := logging.FromContext(ctx).With("kvName", kvName)
	kv, err := js.KeyValue(kvName)
	if errors.Is(err, nats.ErrBucketNotFound) && kvOpts.createBucket {
		log.Infow("Creating kv bucket", zap.Int("replicas", kvOpts.replicas), zap.Int("history", int(kvOpts.history)))
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      kvName,
			Description: "timerflow timer state",
			Replicas:    kvOpts.replicas,
			History:     kvOpts.history,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bind kv store %s: %w", kvName, err)
	}
	return &jetStreamStore{kv: kv, log: log, opts: kvOpts}, nil
}

// mapError turns the JetStream errors of a conditional operation into the kvs errors.
func mapError(key string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, nats.ErrKeyNotFound), errors.Is(err, nats.ErrKeyDeleted):
		return fmt.Errorf("%w: %s", kvs.ErrKeyNotFound, key)
	case errors.Is(err, nats.ErrKeyExists):
		// JetStream reports a wrong expected last sequence as an existing key
		return fmt.Errorf("%w: %s: %s", kvs.ErrRevisionMismatch, key, err.Error())
	default:
		return err
	}
}

func (jss *jetStreamStore) Keys(_ context.Context) ([]string, error) {
	lister, err := jss.kv.ListKeys()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = lister.Stop()
	}()
	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}

func (jss *jetStreamStore) Get(_ context.Context, key string) (kvs.Entry, error) {
	entry, err := jss.kv.Get(key)
	if err != nil {
		return kvs.Entry{}, mapError(key, err)
	}
	return kvs.Entry{Value: entry.Value(), Revision: entry.Revision()}, nil
}

func (jss *jetStreamStore) Put(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	var (
		rev uint64
		err error
	)
	if revision == 0 {
		// Create also succeeds on a key whose last entry is a delete marker
		rev, err = jss.kv.Create(key, value)
	} else {
		rev, err = jss.kv.Update(key, value, revision)
	}
	if err != nil {
		return 0, mapError(key, err)
	}
	return rev, nil
}

func (jss *jetStreamStore) Delete(ctx context.Context, key string, revision uint64) error {
	// a delete marker is written even if the key is absent, check first to report ErrKeyNotFound
	if _, err := jss.Get(ctx, key); err != nil {
		return err
	}
	return mapError(key, jss.kv.Delete(key, nats.LastRevision(revision)))
}

func (jss *jetStreamStore) Name() string {
	return jss.kv.Bucket()
}

// Close is a no-op, the connection belongs to the caller.
func (jss *jetStreamStore) Close() {
	jss.log.Infow("Closing kv store")
}
