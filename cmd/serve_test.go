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

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/replistream/privacypub/internal/publish"
	"github.com/replistream/privacypub/internal/store/memstore"
	"github.com/replistream/privacypub/internal/util/diag"
)

func newTestDelayed(scanInterval time.Duration) *publish.DelayedPublisher {
	cfg := &publish.Config{ScanInterval: scanInterval}
	return publish.NewDelayedPublisher(
		cfg, memstore.NewKV(), memstore.NewDeadlineKV(), memstore.NewOrdered(), publish.RealClock{}, nil)
}

func TestRegisterScanHealthFailsBeforeFirstScan(t *testing.T) {
	diags, cleanup := diag.New(context.Background())
	defer cleanup()

	cfg := &serveConfig{Publish: publish.Config{ScanInterval: time.Second}}
	delayed := newTestDelayed(time.Second)

	require.NoError(t, registerScanHealth(diags, cfg, delayed))

	failures := diags.Report(context.Background())
	require.Contains(t, failures, "scan")
}

func TestRegisterScanHealthPassesAfterRecentScan(t *testing.T) {
	diags, cleanup := diag.New(context.Background())
	defer cleanup()

	cfg := &serveConfig{Publish: publish.Config{ScanInterval: time.Second}}
	delayed := newTestDelayed(time.Second)
	require.NoError(t, delayed.Scan(context.Background()))

	require.NoError(t, registerScanHealth(diags, cfg, delayed))

	failures := diags.Report(context.Background())
	require.NotContains(t, failures, "scan")
}
