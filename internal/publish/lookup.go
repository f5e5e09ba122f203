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

	"github.com/replistream/privacypub/internal/types"
	"github.com/replistream/privacypub/internal/util/ident"
)

// LookupTable is the materialized, "latest value per key" view
// described in spec §4.2. It normalizes incoming values, retains the
// most recent normalized value per key, and emits a Change for every
// update. The merge strategy is "take the new value."
type LookupTable struct {
	store types.KVStore
}

// NewLookupTable constructs a LookupTable backed by store.
func NewLookupTable(store types.KVStore) *LookupTable {
	return &LookupTable{store: store}
}

// Update normalizes value, stores it as the latest value for key, and
// returns the resulting Change. A nil value is treated as a tombstone:
// the entry is deleted from the store and a tombstone Change is
// returned (see spec §9, Open Question on null bodies).
func (l *LookupTable) Update(ctx context.Context, key ident.Key, value []byte) (types.Change, error) {
	if value == nil {
		if err := l.store.Delete(ctx, key); err != nil {
			return types.Change{}, err
		}
		return types.Change{Key: key, Value: nil}, nil
	}

	normalized := Normalize(value)
	if err := l.store.Put(ctx, key, normalized); err != nil {
		return types.Change{}, err
	}
	return types.Change{Key: key, Value: normalized}, nil
}

// Get returns the latest value stored for key.
func (l *LookupTable) Get(ctx context.Context, key ident.Key) ([]byte, bool, error) {
	return l.store.Get(ctx, key)
}
