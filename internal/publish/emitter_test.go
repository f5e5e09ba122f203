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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/replistream/privacypub/internal/types"
	"github.com/replistream/privacypub/internal/util/ident"
)

func TestEmitterPassesThroughNonPrivate(t *testing.T) {
	e := NewEmitter(NewManualClock(time.Unix(0, 0)))
	value := []byte(`{"publishing":{"private":false}}`)
	require.Equal(t, value, e.Emit(types.Change{Key: ident.Key("A"), Value: value}))
}

func TestEmitterTombstonesPrivateWithNoUntil(t *testing.T) {
	e := NewEmitter(NewManualClock(time.Unix(0, 0)))
	value := []byte(`{"publishing":{"private":true}}`)
	require.Nil(t, e.Emit(types.Change{Key: ident.Key("A"), Value: value}))
}

func TestEmitterTombstonesPrivateWithFutureUntil(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	e := NewEmitter(clock)
	value := []byte(`{"publishing":{"private":true,"until":"2099-01-01T00:00:00Z"}}`)
	require.Nil(t, e.Emit(types.Change{Key: ident.Key("A"), Value: value}))
}

func TestEmitterExposesPrivateWithElapsedUntil(t *testing.T) {
	clock := NewManualClock(time.Date(2099, 1, 2, 0, 0, 0, 0, time.UTC))
	e := NewEmitter(clock)
	value := []byte(`{"publishing":{"private":true,"until":"2099-01-01T00:00:00Z"}}`)
	require.Equal(t, value, e.Emit(types.Change{Key: ident.Key("A"), Value: value}))
}

func TestEmitterPassesThroughTombstone(t *testing.T) {
	e := NewEmitter(NewManualClock(time.Unix(0, 0)))
	require.Nil(t, e.Emit(types.Change{Key: ident.Key("A"), Value: nil}))
}
