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

package publish_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/replistream/privacypub/internal/publish"
	"github.com/replistream/privacypub/internal/publishtest"
	"github.com/replistream/privacypub/internal/types"
	"github.com/replistream/privacypub/internal/util/ident"
)

func privateUntil(t time.Time) []byte {
	return []byte(fmt.Sprintf(`{"publishing":{"private":true,"until":%q}}`, t.Format(time.RFC3339Nano)))
}

var notPrivate = []byte(`{"publishing":{"private":false}}`)

// Scenario 1: pass-through, non-private.
func TestScenarioPassThroughNonPrivate(t *testing.T) {
	ctx := context.Background()
	f, err := publishtest.New(nil)
	require.NoError(t, err)

	require.NoError(t, f.Ingest(ctx, "A", notPrivate))

	require.Equal(t, 0, f.KeyIndex.Len())
	require.Equal(t, 0, f.TimeIndex.Len())
	last, ok := f.LastPublished("A")
	require.True(t, ok)
	require.JSONEq(t, `{"publishing":{"private":false}}`, string(last.Value))
}

// Scenario 2: private pass-through with no deadline.
func TestScenarioPrivatePassThroughNoDeadline(t *testing.T) {
	ctx := context.Background()
	f, err := publishtest.New(nil)
	require.NoError(t, err)

	require.NoError(t, f.Ingest(ctx, "A", []byte(`{"publishing":{"private":true}}`)))

	require.Equal(t, 0, f.KeyIndex.Len())
	require.Equal(t, 0, f.TimeIndex.Len())
	last, ok := f.LastPublished("A")
	require.True(t, ok)
	require.Nil(t, last.Value)

	val, ok, err := f.Lookup.Get(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, val)
}

// Scenario 3: future deadline registration.
func TestScenarioFutureDeadlineRegistration(t *testing.T) {
	ctx := context.Background()
	f, err := publishtest.New(nil)
	require.NoError(t, err)

	until := f.Clock.Now().AddDate(1, 0, 0)
	require.NoError(t, f.Ingest(ctx, "A", privateUntil(until)))

	deadline, ok, err := f.KeyIndex.Get(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.FromTime(until), deadline)

	var seen []ident.Key
	require.NoError(t, f.TimeIndex.ScanDue(ctx, deadline, func(_ types.Deadline, keys []ident.Key) error {
		seen = append(seen, keys...)
		return nil
	}))
	require.Equal(t, []ident.Key{"A"}, seen)

	last, ok := f.LastPublished("A")
	require.True(t, ok)
	require.Nil(t, last.Value)
}

// Scenario 4: shared deadline, two keys, append order preserved.
func TestScenarioSharedDeadlineAppendOrder(t *testing.T) {
	ctx := context.Background()
	f, err := publishtest.New(nil)
	require.NoError(t, err)

	until := f.Clock.Now().Add(time.Hour)
	require.NoError(t, f.Ingest(ctx, "A", privateUntil(until)))
	require.NoError(t, f.Ingest(ctx, "B", privateUntil(until)))

	deadline := types.FromTime(until)
	var keys []ident.Key
	require.NoError(t, f.TimeIndex.ScanDue(ctx, deadline, func(_ types.Deadline, ks []ident.Key) error {
		keys = append(keys, ks...)
		return nil
	}))
	require.Equal(t, []ident.Key{"A", "B"}, keys)

	lastA, _ := f.LastPublished("A")
	lastB, _ := f.LastPublished("B")
	require.Nil(t, lastA.Value)
	require.Nil(t, lastB.Value)
}

// Scenario 5: republish on elapse, out-of-order registrations.
func TestScenarioRepublishOnElapseOutOfOrder(t *testing.T) {
	ctx := context.Background()
	f, err := publishtest.New(nil)
	require.NoError(t, err)

	start := f.Clock.Now()
	require.NoError(t, f.Ingest(ctx, "6", privateUntil(start.Add(6*time.Second))))
	require.NoError(t, f.Ingest(ctx, "10", privateUntil(start.Add(10*time.Second))))
	require.NoError(t, f.Ingest(ctx, "5", privateUntil(start.Add(5*time.Second))))

	f.Clock.Advance(8 * time.Second)
	require.NoError(t, f.Scan(ctx))

	var gotKeys []ident.Key
	for _, p := range f.Published {
		gotKeys = append(gotKeys, p.Key)
	}
	require.Equal(t, []ident.Key{"6", "10", "5", "5", "6"}, gotKeys)

	require.Nil(t, f.Published[0].Value) // "6" registered
	require.Nil(t, f.Published[1].Value) // "10" registered
	require.Nil(t, f.Published[2].Value) // "5" registered
	require.NotNil(t, f.Published[3].Value) // "5" republished -> exposed
	require.NotNil(t, f.Published[4].Value) // "6" republished -> exposed

	_, ok, err := f.KeyIndex.Get(ctx, "10")
	require.NoError(t, err)
	require.True(t, ok, "10 has not elapsed yet")

	_, ok, err = f.KeyIndex.Get(ctx, "5")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = f.KeyIndex.Get(ctx, "6")
	require.NoError(t, err)
	require.False(t, ok)

	for _, k := range []ident.Key{"5", "6", "10"} {
		_, ok, err := f.Lookup.Get(ctx, k)
		require.NoError(t, err)
		require.True(t, ok, "lookup retains original value for %s", k)
	}
}

// Scenario 6: supersede with new future deadline, after a scan has
// already republished the first value.
func TestScenarioSupersedeAfterElapse(t *testing.T) {
	ctx := context.Background()
	f, err := publishtest.New(nil)
	require.NoError(t, err)

	start := f.Clock.Now()
	t1 := start.Add(100 * time.Millisecond)
	require.NoError(t, f.Ingest(ctx, "A", privateUntil(t1)))

	f.Clock.Advance(500 * time.Millisecond)
	require.NoError(t, f.Scan(ctx))

	now2 := f.Clock.Now()
	t2 := now2.Add(time.Hour)
	require.NoError(t, f.Ingest(ctx, "A", privateUntil(t2)))

	deadline, ok, err := f.KeyIndex.Get(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.FromTime(t2), deadline)

	var t1Keys []ident.Key
	require.NoError(t, f.TimeIndex.ScanDue(ctx, types.FromTime(t1), func(_ types.Deadline, ks []ident.Key) error {
		t1Keys = append(t1Keys, ks...)
		return nil
	}))
	require.Empty(t, t1Keys)

	require.Len(t, f.Published, 3)
	require.Nil(t, f.Published[0].Value)
	require.NotNil(t, f.Published[1].Value) // republished v1
	require.Nil(t, f.Published[2].Value)    // re-registered v2
}

// Scenario 7: supersede before elapse; the superseded deadline never
// fires.
func TestScenarioSupersedeBeforeElapse(t *testing.T) {
	ctx := context.Background()
	f, err := publishtest.New(nil)
	require.NoError(t, err)

	start := f.Clock.Now()
	t1 := start.Add(time.Second)
	t2 := start.Add(time.Hour)

	require.NoError(t, f.Ingest(ctx, "A", privateUntil(t1)))
	require.NoError(t, f.Ingest(ctx, "A", privateUntil(t2)))

	f.Clock.Advance(2 * time.Second)
	require.NoError(t, f.Scan(ctx))

	require.Len(t, f.Published, 2)
	require.Nil(t, f.Published[0].Value)
	require.Nil(t, f.Published[1].Value)

	deadline, ok, err := f.KeyIndex.Get(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.FromTime(t2), deadline)
}

// Scenario 8: cancel via non-private update.
func TestScenarioCancelViaNonPrivateUpdate(t *testing.T) {
	ctx := context.Background()
	f, err := publishtest.New(nil)
	require.NoError(t, err)

	until := f.Clock.Now().Add(time.Hour)
	require.NoError(t, f.Ingest(ctx, "A", privateUntil(until)))
	require.NoError(t, f.Ingest(ctx, "A", notPrivate))

	_, ok, err := f.KeyIndex.Get(ctx, "A")
	require.NoError(t, err)
	require.False(t, ok)

	require.Len(t, f.Published, 2)
	require.Nil(t, f.Published[0].Value)
	require.NotNil(t, f.Published[1].Value)

	val, ok, err := f.Lookup.Get(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"publishing":{"private":false}}`, string(val))
}

// Scenario 9: cancel one of two keys sharing a deadline.
func TestScenarioCancelOneOfSharedDeadline(t *testing.T) {
	ctx := context.Background()
	f, err := publishtest.New(nil)
	require.NoError(t, err)

	until := f.Clock.Now().Add(time.Hour)
	require.NoError(t, f.Ingest(ctx, "A", privateUntil(until)))
	require.NoError(t, f.Ingest(ctx, "B", privateUntil(until)))
	require.NoError(t, f.Ingest(ctx, "A", notPrivate))

	_, ok, err := f.KeyIndex.Get(ctx, "A")
	require.NoError(t, err)
	require.False(t, ok)

	deadline, ok, err := f.KeyIndex.Get(ctx, "B")
	require.NoError(t, err)
	require.True(t, ok)

	var keys []ident.Key
	require.NoError(t, f.TimeIndex.ScanDue(ctx, deadline, func(_ types.Deadline, ks []ident.Key) error {
		keys = append(keys, ks...)
		return nil
	}))
	require.Equal(t, []ident.Key{"B"}, keys)
}

// Scenario 10: a past `until` is a cancel.
func TestScenarioPastUntilIsCancel(t *testing.T) {
	ctx := context.Background()
	f, err := publishtest.New(nil)
	require.NoError(t, err)

	future := f.Clock.Now().Add(time.Hour)
	require.NoError(t, f.Ingest(ctx, "A", privateUntil(future)))

	past := f.Clock.Now().Add(-time.Hour)
	require.NoError(t, f.Ingest(ctx, "A", privateUntil(past)))

	_, ok, err := f.KeyIndex.Get(ctx, "A")
	require.NoError(t, err)
	require.False(t, ok)

	val, ok, err := f.Lookup.Get(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, string(val), past.Format(time.RFC3339))
}

// P5: republish idempotence across repeated scans.
func TestRepublishIdempotence(t *testing.T) {
	ctx := context.Background()
	f, err := publishtest.New(nil)
	require.NoError(t, err)

	until := f.Clock.Now().Add(time.Second)
	require.NoError(t, f.Ingest(ctx, "A", privateUntil(until)))

	f.Clock.Advance(2 * time.Second)
	require.NoError(t, f.Scan(ctx))
	require.NoError(t, f.Scan(ctx))

	require.Len(t, f.Published, 2, "second scan must not republish again")
}

// Missing lookup at scan time (spec §7): the key is silently dropped
// without failing the scan, and its key-index entry is still cleared.
func TestScanDropsKeyWithMissingLookup(t *testing.T) {
	ctx := context.Background()
	f, err := publishtest.New(nil)
	require.NoError(t, err)

	until := f.Clock.Now().Add(time.Second)
	require.NoError(t, f.Ingest(ctx, "A", privateUntil(until)))
	require.NoError(t, f.Lookup.Delete(ctx, "A"))

	f.Clock.Advance(2 * time.Second)
	require.NoError(t, f.Scan(ctx))

	require.Len(t, f.Published, 1, "no republish for a key with no lookup entry")
	_, ok, err := f.KeyIndex.Get(ctx, "A")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConfigPreflightDefaultsScanInterval(t *testing.T) {
	cfg := &publish.Config{TimeStoreName: "t", KeyStoreName: "k", LookupStoreName: "l"}
	require.NoError(t, cfg.Preflight())
	require.Equal(t, publish.DefaultScanInterval, cfg.ScanInterval)
}
