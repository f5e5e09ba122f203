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
	"math/rand"

	"github.com/pkg/errors"

	"github.com/replistream/privacypub/internal/util/ident"
)

// ErrChaos is returned by the wrapper installed by WithChaos.
var ErrChaos = errors.New("chaos")

// WithChaos wraps an OutputFunc so that it randomly fails with
// probability prob, adapted from the teacher's
// internal/source/logical.WithChaos to exercise the pipeline's
// at-most-one-deadline invariants under injected failure during
// integration testing. fn is returned unchanged if prob <= 0.
func WithChaos(fn OutputFunc, prob float32) OutputFunc {
	if prob <= 0 {
		return fn
	}
	return func(ctx context.Context, key ident.Key, value []byte) error {
		if rand.Float32() < prob {
			return errors.WithMessagef(ErrChaos, "output for key %s", key)
		}
		return fn(ctx, key, value)
	}
}
