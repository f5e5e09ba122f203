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

// Package types contains the data types and store interfaces that
// define the major functional blocks of the publishing pipeline. The
// goal of placing them here, rather than alongside their
// implementations, is to keep the components in internal/publish
// substrate-agnostic: they depend only on these interfaces, while
// internal/store and internal/transport provide the concrete backends.
package types

import (
	"context"
	"time"

	"github.com/replistream/privacypub/internal/util/ident"
)

// Deadline is an epoch-millisecond instant, as described by spec §3.
type Deadline int64

// Zero is the absence of a deadline.
const Zero Deadline = 0

// FromTime converts a wall-clock instant into a Deadline.
func FromTime(t time.Time) Deadline {
	return Deadline(t.UnixMilli())
}

// Time converts the Deadline back into a wall-clock instant.
func (d Deadline) Time() time.Time {
	return time.UnixMilli(int64(d))
}

// After reports whether d represents a later instant than other.
func (d Deadline) After(other Deadline) bool { return d > other }

// Change is emitted by the Lookup Table for every update: the latest
// normalized value stored for a key. A nil Value represents a
// tombstone.
type Change struct {
	Key   ident.Key
	Value []byte
}

// KVStore is the minimal contract required of the materialized view
// (the `lookup` index); the `key-index` has its own DeadlineStore
// contract below. Implementations must be
// safe for concurrent use only to the extent required by a single
// partition's serial processing (see spec §5); no internal locking is
// mandated.
type KVStore interface {
	// Get returns the stored value for key and whether it was present.
	Get(ctx context.Context, key ident.Key) ([]byte, bool, error)
	// Put stores value under key, replacing any prior value.
	Put(ctx context.Context, key ident.Key, value []byte) error
	// Delete removes key. It is not an error for key to be absent.
	Delete(ctx context.Context, key ident.Key) error
}

// DeadlineStore is the `key-index`: at most one deadline per key.
type DeadlineStore interface {
	Get(ctx context.Context, key ident.Key) (Deadline, bool, error)
	Put(ctx context.Context, key ident.Key, deadline Deadline) error
	Delete(ctx context.Context, key ident.Key) error
}

// OrderedStore is the `time-index`: an ordered multimap from Deadline
// to the list of keys sharing that deadline, in append order. The
// backing store MUST iterate ascending by Deadline (spec invariant
// I5); a store that keeps its buckets unordered (such as the map in
// memstore.Ordered) must sort the due buckets on every ScanDue.
type OrderedStore interface {
	// Append adds key to the bucket for deadline, creating the bucket
	// if it does not already exist. key is appended to the end of the
	// existing list.
	Append(ctx context.Context, deadline Deadline, key ident.Key) error

	// Remove deletes key from the bucket for deadline. If the bucket
	// becomes empty, it is deleted entirely (spec I2: empty buckets are
	// never stored).
	Remove(ctx context.Context, deadline Deadline, key ident.Key) error

	// RemoveBucket deletes the entire bucket for deadline, regardless
	// of its contents.
	RemoveBucket(ctx context.Context, deadline Deadline) error

	// ScanDue invokes fn once per bucket whose Deadline is <= now, in
	// ascending Deadline order, stopping at the first bucket whose
	// Deadline exceeds now. fn must not mutate the store; callers that
	// need to retire buckets should do so after ScanDue returns.
	ScanDue(ctx context.Context, now Deadline, fn func(deadline Deadline, keys []ident.Key) error) error
}

// TxBoundIndexes is implemented by a (key-index, time-index) pair
// backed by a substrate that can commit writes to both atomically.
// When a DelayedPublisher is given one, it wraps Register/Re-register/
// Cancel's writes in WithTx rather than issuing them as independent
// calls against the stores it was constructed with, so that spec §7's
// "no partial writes should be observable" holds even across a crash
// between the two stores' writes. Backends with no such substrate
// (e.g. an in-memory store) have no need to implement this.
type TxBoundIndexes interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, keyIndex DeadlineStore, timeIndex OrderedStore) error) error
}
