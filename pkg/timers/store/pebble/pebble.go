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
Package pebble keeps timers in a Pebble database, one entry per timer.

Entries are laid out as timer/<base64url key>/<domain>/<id>, so the timers of a key are one
contiguous range. Apply writes a single batch.
*/
package pebble

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/numaproj/timerflow/pkg/shared/logging"
	"github.com/numaproj/timerflow/pkg/timers"
	"github.com/numaproj/timerflow/pkg/timers/store"
)

var timerPrefix = []byte("timer/")

// Options configures the Pebble database.
type Options struct {
	// Path is the directory of the database.
	Path string
	// CacheSize is the block cache size in bytes.
	CacheSize int64
	// Sync makes every Apply wait for the write to reach stable storage.
	Sync bool
}

type pebbleStore struct {
	db   *pebble.DB
	sync bool
	log  *zap.SugaredLogger
}

var _ store.Store = (*pebbleStore)(nil)

// NewPebbleStore opens, or creates, the database at opts.Path.
func NewPebbleStore(ctx context.Context, opts Options) (store.Store, error) {
	if opts.Path == "" {
		return nil, errors.New("pebble store path is required")
	}
	if err := os.MkdirAll(opts.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pebble directory %s: %w", opts.Path, err)
	}
	pebbleOpts := &pebble.Options{}
	if opts.CacheSize > 0 {
		cache := pebble.NewCache(opts.CacheSize)
		defer cache.Unref()
		pebbleOpts.Cache = cache
	}
	db, err := pebble.Open(opts.Path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database %s: %w", opts.Path, err)
	}
	return &pebbleStore{
		db:   db,
		sync: opts.Sync,
		log:  logging.FromContext(ctx).With("timerStore", opts.Path),
	}, nil
}

func keyPrefix(key string) []byte {
	b := append([]byte(nil), timerPrefix...)
	b = append(b, base64.RawURLEncoding.EncodeToString([]byte(key))...)
	return append(b, '/')
}

func timerKey(key string, id timers.TimerID) []byte {
	b := keyPrefix(key)
	b = append(b, id.Domain.String()...)
	b = append(b, '/')
	return append(b, id.ID...)
}

// prefixUpperBound returns the smallest key greater than every key starting with prefix.
// Prefixes here always end in '/', which is never 0xff.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	end[len(end)-1]++
	return end
}

func (p *pebbleStore) Apply(_ context.Context, update *timers.TimerUpdate) error {
	if update == nil {
		return errors.New("nil timer update")
	}
	batch := p.db.NewBatch()
	defer batch.Close()

	for _, t := range update.Completed() {
		if err := batch.Delete(timerKey(update.Key(), t.TimerID()), nil); err != nil {
			return err
		}
	}
	for _, id := range update.Deletes() {
		if err := batch.Delete(timerKey(update.Key(), id), nil); err != nil {
			return err
		}
	}
	for _, t := range update.Sets() {
		value, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal timer %s: %w", t, err)
		}
		if err = batch.Set(timerKey(update.Key(), t.TimerID()), value, nil); err != nil {
			return err
		}
	}
	writeOpts := pebble.NoSync
	if p.sync {
		writeOpts = pebble.Sync
	}
	if err := batch.Commit(writeOpts); err != nil {
		return fmt.Errorf("failed to commit timers of key %q: %w", update.Key(), err)
	}
	p.log.Debugw("Applied timer update", zap.String("key", update.Key()))
	return nil
}

func (p *pebbleStore) Timers(_ context.Context, key string) ([]timers.TimerData, error) {
	prefix := keyPrefix(key)
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]timers.TimerData, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		var t timers.TimerData
		if err = json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal timer %s: %w", iter.Key(), err)
		}
		out = append(out, t)
	}
	if err = iter.Error(); err != nil {
		return nil, err
	}
	timers.SortForFiring(out)
	return out, nil
}

func (p *pebbleStore) Keys(_ context.Context) ([]string, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: timerPrefix,
		UpperBound: prefixUpperBound(timerPrefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); {
		rest := iter.Key()[len(timerPrefix):]
		end := bytes.IndexByte(rest, '/')
		if end < 0 {
			return nil, fmt.Errorf("malformed timer entry %q", iter.Key())
		}
		decoded, err := base64.RawURLEncoding.DecodeString(string(rest[:end]))
		if err != nil {
			return nil, fmt.Errorf("malformed timer entry %q: %w", iter.Key(), err)
		}
		keys = append(keys, string(decoded))
		// jump past every timer of this key
		prefix := append(append([]byte(nil), iter.Key()[:len(timerPrefix)+end]...), '/')
		iter.SeekGE(prefixUpperBound(prefix))
	}
	if err = iter.Error(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (p *pebbleStore) Close() error {
	return p.db.Close()
}
