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

// Package msort contains utility functions for sorting and
// de-duplicating batches of ingested records.
package msort

import "github.com/replistream/privacypub/internal/util/ident"

// Record is the minimal shape UniqueByKey needs: a key and its value.
// A record's position in the batch decides which duplicate wins, so
// the value type need not be comparable.
type Record struct {
	Key   ident.Key
	Value []byte
}

// UniqueByKey implements a "last one wins" approach to removing
// records with duplicate keys from a batch read off the input stream,
// adapted from the teacher's internal/util/msort.UniqueByKey. Within a
// single partition, records for the same key arrive in a total order
// (spec §5), so the last occurrence in x is authoritative; there is no
// HLC comparison to make.
//
// The modified slice is returned; distinct keys keep the relative
// order of their last occurrences in x.
func UniqueByKey(x []Record) []Record {
	seenIdx := make(map[ident.Key]int, len(x))

	dest := len(x)
	for src := len(x) - 1; src >= 0; src-- {
		key := x[src].Key
		if curIdx, found := seenIdx[key]; found {
			// src is earlier than curIdx in arrival order, so curIdx
			// already holds the winning (later) value; nothing to do.
			_ = curIdx
			continue
		}
		dest--
		seenIdx[key] = dest
		x[dest] = x[src]
	}

	return x[dest:]
}
