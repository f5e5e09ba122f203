// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/replistream/privacypub/internal/types"
	"github.com/replistream/privacypub/internal/util/ident"
	"github.com/replistream/privacypub/internal/util/notify"
	"github.com/replistream/privacypub/internal/util/stopper"
)

// RepublishFunc re-enters the input stream with a record's original
// body. The implementation MUST route back through the Normalizer and
// Lookup Table (spec §9, Design Notes): it is never acceptable to
// write straight to the output stream, since that would bypass the
// privacy re-evaluation the whole design exists to centralize.
type RepublishFunc func(ctx context.Context, key ident.Key, value []byte) error

// DelayedPublisher is the stateful heart of the system (spec §4.3). It
// owns the key-index and time-index, applies the per-event decision
// table, and runs the periodic wall-clock scan that republishes
// records whose deadline has elapsed.
type DelayedPublisher struct {
	cfg       *Config
	lookup    types.KVStore
	keyIndex  types.DeadlineStore
	timeIndex types.OrderedStore
	clock     Clock

	// tx, when non-nil, wraps the key-index/time-index writes of
	// Register, Re-register, and Cancel in a single transaction
	// instead of issuing them as two independent store calls. Only a
	// durable, transactional backend (e.g. pgstore.Indexes) supplies
	// one; an in-memory backend has no crash window to protect against
	// and leaves this nil.
	tx types.TxBoundIndexes

	// Republish is called with the record's stored body once its
	// deadline elapses. Set after construction once the enclosing
	// Pipeline exists, since the Pipeline itself depends on this
	// DelayedPublisher (see topology.go).
	Republish RepublishFunc

	registered notify.Var[types.Deadline]

	// lastScan is the UnixMilli wall-clock time the most recent Scan
	// began, 0 if none has run yet. Read by the /healthz scan-liveness
	// check; written from the scan goroutine, so it is an atomic value
	// rather than a plain field.
	lastScan atomic.Int64
}

// NewDelayedPublisher constructs a DelayedPublisher. lookup must be
// the same backing store the LookupTable writes through, since
// spec invariant I3 requires lookup[k] to be visible to the scan
// independent of the deadline indexes. tx may be nil; see the tx
// field's doc comment.
func NewDelayedPublisher(
	cfg *Config, lookup types.KVStore, keyIndex types.DeadlineStore, timeIndex types.OrderedStore, clock Clock,
	tx types.TxBoundIndexes,
) *DelayedPublisher {
	if clock == nil {
		clock = RealClock{}
	}
	return &DelayedPublisher{
		cfg:       cfg,
		lookup:    lookup,
		keyIndex:  keyIndex,
		timeIndex: timeIndex,
		clock:     clock,
		tx:        tx,
	}
}

// LastScan returns the wall-clock time the most recently started Scan
// began, or the zero Time if Scan has never run.
func (d *DelayedPublisher) LastScan() time.Time {
	ms := d.lastScan.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Start schedules the periodic wall-clock scan on a background
// goroutine tracked by ctx. It is idempotent to call Scan when nothing
// is due.
func (d *DelayedPublisher) Start(ctx *stopper.Context) {
	ctx.Go(func() error {
		ticker := time.NewTicker(d.cfg.ScanInterval)
		defer ticker.Stop()

		_, wake := d.registered.Get()
		for {
			select {
			case <-ticker.C:
				if err := d.Scan(ctx); err != nil {
					log.WithError(err).Warn("delayed publisher: scan failed")
				}
			case <-wake:
				_, wake = d.registered.Get()
			case <-ctx.Stopping():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

// HandleChange applies the per-event decision table from spec §4.3 to
// a single (key, value) change event.
func (d *DelayedPublisher) HandleChange(ctx context.Context, key ident.Key, value []byte) error {
	old, hasOld, err := d.keyIndex.Get(ctx, key)
	if err != nil {
		return err
	}

	pol := extractPolicy(value)

	if !pol.Private || pol.Until == nil {
		return d.cancel(ctx, key, old, hasOld)
	}

	now := types.FromTime(d.clock.Now())
	newT := types.FromTime(*pol.Until)

	if newT <= now {
		// Past deadline: already elapsed, treat as Cancel (spec table,
		// row 2). The emitter re-evaluates on the next input or scan.
		return d.cancel(ctx, key, old, hasOld)
	}

	if !hasOld {
		return d.register(ctx, key, newT)
	}
	if old == newT {
		return nil
	}

	return d.reregister(ctx, key, old, newT)
}

// register implements spec §4.3's Register row: the key has no prior
// deadline, so only a key-index write and a time-index append are
// needed.
func (d *DelayedPublisher) register(ctx context.Context, key ident.Key, deadline types.Deadline) error {
	op := func(ctx context.Context, keyIndex types.DeadlineStore, timeIndex types.OrderedStore) error {
		if err := observeStore("key-index", func() error { return keyIndex.Put(ctx, key, deadline) }); err != nil {
			return err
		}
		return observeStore("time-index", func() error { return timeIndex.Append(ctx, deadline, key) })
	}
	if err := d.withIndexes(ctx, op); err != nil {
		return err
	}
	registerTotal.Inc()
	d.registered.Set(deadline)
	return nil
}

// reregister implements spec §4.3's Re-register row: the key already
// has a deadline, which is superseded by a different one. All three
// writes -- removing the old time-index entry, storing the new
// key-index deadline, and appending the new time-index entry -- are
// issued through the same transaction when one is available, since a
// crash between any two of them would leave a key-index entry with no
// matching time-index bucket (or the reverse), violating invariant I1.
func (d *DelayedPublisher) reregister(ctx context.Context, key ident.Key, old, newT types.Deadline) error {
	op := func(ctx context.Context, keyIndex types.DeadlineStore, timeIndex types.OrderedStore) error {
		if err := observeStore("time-index", func() error { return timeIndex.Remove(ctx, old, key) }); err != nil {
			return err
		}
		if err := observeStore("key-index", func() error { return keyIndex.Put(ctx, key, newT) }); err != nil {
			return err
		}
		return observeStore("time-index", func() error { return timeIndex.Append(ctx, newT, key) })
	}
	if err := d.withIndexes(ctx, op); err != nil {
		return err
	}
	registerTotal.Inc()
	d.registered.Set(newT)
	return nil
}

// cancel implements spec §4.3's Cancel row.
func (d *DelayedPublisher) cancel(ctx context.Context, key ident.Key, old types.Deadline, hasOld bool) error {
	if !hasOld {
		return nil
	}
	op := func(ctx context.Context, keyIndex types.DeadlineStore, timeIndex types.OrderedStore) error {
		if err := observeStore("time-index", func() error { return timeIndex.Remove(ctx, old, key) }); err != nil {
			return err
		}
		return observeStore("key-index", func() error { return keyIndex.Delete(ctx, key) })
	}
	if err := d.withIndexes(ctx, op); err != nil {
		return err
	}
	cancelTotal.Inc()
	return nil
}

// withIndexes runs op against d.tx's transaction-scoped stores when a
// TxBoundIndexes is available, or directly against d.keyIndex/
// d.timeIndex otherwise.
func (d *DelayedPublisher) withIndexes(
	ctx context.Context, op func(ctx context.Context, keyIndex types.DeadlineStore, timeIndex types.OrderedStore) error,
) error {
	if d.tx != nil {
		return d.tx.WithTx(ctx, op)
	}
	return op(ctx, d.keyIndex, d.timeIndex)
}

// Scan performs one wall-clock sweep: every bucket whose deadline has
// elapsed is retired, republishing each key's stored value into the
// input stream (spec §4.3, Scan operation).
func (d *DelayedPublisher) Scan(ctx context.Context) error {
	start := time.Now()
	d.lastScan.Store(start.UnixMilli())
	defer func() { scanDuration.Observe(time.Since(start).Seconds()) }()

	now := types.FromTime(d.clock.Now())

	type bucket struct {
		deadline types.Deadline
		keys     []ident.Key
	}
	var due []bucket

	if err := d.timeIndex.ScanDue(ctx, now, func(deadline types.Deadline, keys []ident.Key) error {
		cp := make([]ident.Key, len(keys))
		copy(cp, keys)
		due = append(due, bucket{deadline: deadline, keys: cp})
		return nil
	}); err != nil {
		return err
	}

	for _, b := range due {
		for _, k := range b.keys {
			var val []byte
			var ok bool
			if err := observeStore("lookup", func() error {
				var getErr error
				val, ok, getErr = d.lookup.Get(ctx, k)
				return getErr
			}); err != nil {
				return err
			}
			if !ok {
				// spec §7: missing lookup[k] at scan time is logged and
				// the key silently dropped, not fatal.
				log.WithField("key", k).Warn("delayed publisher: no lookup entry for due key; dropping")
				scanMissingLookupTotal.Inc()
			} else if d.Republish != nil {
				if err := d.Republish(ctx, k, val); err != nil {
					return errors.Wrapf(err, "republishing key %s", k)
				}
				republishTotal.Inc()
			}

			if err := d.keyIndex.Delete(ctx, k); err != nil {
				return err
			}
		}
		if err := d.timeIndex.RemoveBucket(ctx, b.deadline); err != nil {
			return err
		}
	}

	return nil
}
