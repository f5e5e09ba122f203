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

// Package memstore provides in-memory implementations of the
// internal/types store interfaces, used by tests and by the single-
// process deployment mode described in SPEC_FULL.md §3.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/replistream/privacypub/internal/types"
	"github.com/replistream/privacypub/internal/util/ident"
)

// KV is an in-memory types.KVStore, the `lookup` index. The key-index
// is the separate DeadlineKV type below.
type KV struct {
	mu   sync.Mutex
	vals map[ident.Key][]byte
}

// NewKV constructs an empty KV.
func NewKV() *KV {
	return &KV{vals: make(map[ident.Key][]byte)}
}

var _ types.KVStore = (*KV)(nil)

// Get implements types.KVStore.
func (s *KV) Get(_ context.Context, key ident.Key) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vals[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

// Put implements types.KVStore.
func (s *KV) Put(_ context.Context, key ident.Key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.vals[key] = cp
	return nil
}

// Delete implements types.KVStore.
func (s *KV) Delete(_ context.Context, key ident.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vals, key)
	return nil
}

// Len reports the number of keys currently stored, for test assertions.
func (s *KV) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vals)
}

// DeadlineKV is an in-memory types.DeadlineStore, the `key-index`.
type DeadlineKV struct {
	mu   sync.Mutex
	vals map[ident.Key]types.Deadline
}

// NewDeadlineKV constructs an empty DeadlineKV.
func NewDeadlineKV() *DeadlineKV {
	return &DeadlineKV{vals: make(map[ident.Key]types.Deadline)}
}

var _ types.DeadlineStore = (*DeadlineKV)(nil)

// Get implements types.DeadlineStore.
func (s *DeadlineKV) Get(_ context.Context, key ident.Key) (types.Deadline, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.vals[key]
	return d, ok, nil
}

// Put implements types.DeadlineStore.
func (s *DeadlineKV) Put(_ context.Context, key ident.Key, deadline types.Deadline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key] = deadline
	return nil
}

// Delete implements types.DeadlineStore.
func (s *DeadlineKV) Delete(_ context.Context, key ident.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vals, key)
	return nil
}

// Len reports the number of keys currently tracked, for test assertions.
func (s *DeadlineKV) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vals)
}

// Ordered is an in-memory types.OrderedStore, the `time-index`. Buckets
// are kept in a map for O(1) Append/Remove; ScanDue sorts the currently
// due deadlines on each call, which is acceptable at the scan cadence
// described in spec §6 and keeps the implementation simple enough to
// serve as a reference for pgstore's SQL-ordered equivalent.
type Ordered struct {
	mu      sync.Mutex
	buckets map[types.Deadline][]ident.Key
}

// NewOrdered constructs an empty Ordered.
func NewOrdered() *Ordered {
	return &Ordered{buckets: make(map[types.Deadline][]ident.Key)}
}

var _ types.OrderedStore = (*Ordered)(nil)

// Append implements types.OrderedStore.
func (s *Ordered) Append(_ context.Context, deadline types.Deadline, key ident.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[deadline] = append(s.buckets[deadline], key)
	return nil
}

// Remove implements types.OrderedStore.
func (s *Ordered) Remove(_ context.Context, deadline types.Deadline, key ident.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.buckets[deadline]
	for i, k := range keys {
		if k == key {
			keys = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(keys) == 0 {
		delete(s.buckets, deadline)
	} else {
		s.buckets[deadline] = keys
	}
	return nil
}

// RemoveBucket implements types.OrderedStore.
func (s *Ordered) RemoveBucket(_ context.Context, deadline types.Deadline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, deadline)
	return nil
}

// ScanDue implements types.OrderedStore.
func (s *Ordered) ScanDue(_ context.Context, now types.Deadline, fn func(types.Deadline, []ident.Key) error) error {
	s.mu.Lock()
	deadlines := make([]types.Deadline, 0, len(s.buckets))
	for d := range s.buckets {
		if d <= now {
			deadlines = append(deadlines, d)
		}
	}
	sort.Slice(deadlines, func(i, j int) bool { return deadlines[i] < deadlines[j] })

	type snapshot struct {
		deadline types.Deadline
		keys     []ident.Key
	}
	snaps := make([]snapshot, 0, len(deadlines))
	for _, d := range deadlines {
		cp := make([]ident.Key, len(s.buckets[d]))
		copy(cp, s.buckets[d])
		snaps = append(snaps, snapshot{deadline: d, keys: cp})
	}
	s.mu.Unlock()

	for _, snap := range snaps {
		if err := fn(snap.deadline, snap.keys); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of non-empty buckets, for test assertions.
func (s *Ordered) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
