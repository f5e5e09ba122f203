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

// Package publishtest provides an in-memory Fixture for exercising the
// internal/publish pipeline without a live Kafka or Postgres backend,
// in the spirit of the teacher's internal/sinktest/all.Fixture.
package publishtest

import (
	"context"
	"time"

	"github.com/replistream/privacypub/internal/publish"
	"github.com/replistream/privacypub/internal/store/memstore"
	"github.com/replistream/privacypub/internal/util/ident"
)

// Fixture bundles an in-memory Pipeline with its stores and clock,
// plus a captured record of everything written to Output, so test
// code can make assertions against the external stream without
// standing up a real transport.
type Fixture struct {
	Lookup    *memstore.KV
	KeyIndex  *memstore.DeadlineKV
	TimeIndex *memstore.Ordered
	Clock     *publish.ManualClock
	Pipeline  *publish.Pipeline

	Published []Published
}

// Published records one call into the Fixture's Output stream.
type Published struct {
	Key   ident.Key
	Value []byte
}

// New constructs a Fixture wired entirely in memory, with the clock
// started at epoch. cfg may be nil to use defaults.
func New(cfg *publish.Config) (*Fixture, error) {
	if cfg == nil {
		cfg = &publish.Config{
			TimeStoreName:   "time_index",
			KeyStoreName:    "key_index",
			LookupStoreName: "lookup",
			ScanInterval:    publish.DefaultScanInterval,
		}
	}
	if err := cfg.Preflight(); err != nil {
		return nil, err
	}

	f := &Fixture{
		Lookup:    memstore.NewKV(),
		KeyIndex:  memstore.NewDeadlineKV(),
		TimeIndex: memstore.NewOrdered(),
		Clock:     publish.NewManualClock(time.Unix(0, 0).UTC()),
	}

	pipeline, err := publish.BuildPipeline(cfg, f.Lookup, f.KeyIndex, f.TimeIndex, nil, f.Clock, f.output)
	if err != nil {
		return nil, err
	}
	f.Pipeline = pipeline
	return f, nil
}

func (f *Fixture) output(_ context.Context, key ident.Key, value []byte) error {
	f.Published = append(f.Published, Published{Key: key, Value: value})
	return nil
}

// Ingest is a convenience wrapper over Pipeline.Ingest.
func (f *Fixture) Ingest(ctx context.Context, key ident.Key, value []byte) error {
	return f.Pipeline.Ingest(ctx, key, value)
}

// Scan is a convenience wrapper over Delayed.Scan.
func (f *Fixture) Scan(ctx context.Context) error {
	return f.Pipeline.Delayed.Scan(ctx)
}

// LastPublished returns the most recent Published record for key, and
// whether any record for key was ever published.
func (f *Fixture) LastPublished(key ident.Key) (Published, bool) {
	var last Published
	found := false
	for _, p := range f.Published {
		if p.Key == key {
			last = p
			found = true
		}
	}
	return last, found
}
