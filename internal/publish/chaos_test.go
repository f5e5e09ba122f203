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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/replistream/privacypub/internal/util/ident"
)

func TestWithChaosZeroProbabilityPassesThrough(t *testing.T) {
	calls := 0
	fn := func(context.Context, ident.Key, []byte) error {
		calls++
		return nil
	}
	wrapped := WithChaos(fn, 0)
	for i := 0; i < 10; i++ {
		require.NoError(t, wrapped(context.Background(), "A", nil))
	}
	require.Equal(t, 10, calls)
}

func TestWithChaosFullProbabilityAlwaysFails(t *testing.T) {
	calls := 0
	fn := func(context.Context, ident.Key, []byte) error {
		calls++
		return nil
	}
	wrapped := WithChaos(fn, 1)
	err := wrapped(context.Background(), "A", nil)
	require.ErrorIs(t, err, ErrChaos)
	require.Zero(t, calls, "the wrapped function must not run when chaos fires")
}
