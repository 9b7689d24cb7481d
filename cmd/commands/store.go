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

package commands

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/numaproj/timerflow/pkg/config"
	natsclient "github.com/numaproj/timerflow/pkg/shared/clients/nats"
	"github.com/numaproj/timerflow/pkg/shared/kvs/jetstream"
	"github.com/numaproj/timerflow/pkg/shared/logging"
	"github.com/numaproj/timerflow/pkg/timers/store"
	kvstore "github.com/numaproj/timerflow/pkg/timers/store/kv"
	"github.com/numaproj/timerflow/pkg/timers/store/memory"
	pebblestore "github.com/numaproj/timerflow/pkg/timers/store/pebble"
)

// openStore creates the timer store of the configured backend. The returned function releases
// the store and any connection it holds.
func openStore(ctx context.Context, c *config.StoreConfig) (store.Store, func(), error) {
	log := logging.FromContext(ctx)
	switch c.Backend {
	case config.MemoryBackend:
		s := memory.NewMemoryStore()
		return s, func() { _ = s.Close() }, nil
	case config.PebbleBackend:
		s, err := pebblestore.NewPebbleStore(ctx, pebblestore.Options{Path: c.Pebble.Path, Sync: c.Pebble.Sync})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Errorw("Failed to close pebble store", zap.Error(err))
			}
		}, nil
	case config.JetStreamBackend:
		natsOpts := []nats.Option{nats.Name(CLIName)}
		if c.JetStream.User != "" {
			natsOpts = append(natsOpts, nats.UserInfo(c.JetStream.User, c.JetStream.Password))
		}
		client, err := natsclient.NewNATSClient(ctx, c.JetStream.URL, natsOpts...)
		if err != nil {
			return nil, nil, err
		}
		kv, err := jetstream.NewKVJetStreamKVStore(ctx, c.JetStream.Bucket, client.JetStreamContext(), jetstream.WithBucketCreation(c.JetStream.Replicas))
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		s := kvstore.NewKVTimerStore(ctx, kv)
		return s, func() {
			_ = s.Close()
			client.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", c.Backend)
	}
}
