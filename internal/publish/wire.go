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

//go:build wireinject
// +build wireinject

package publish

import (
	"github.com/google/wire"

	"github.com/replistream/privacypub/internal/types"
)

// Set is used by Wire to assemble a Pipeline from its store and
// transport dependencies, mirroring internal/source/logical.Set in
// the teacher repository.
var Set = wire.NewSet(
	NewLookupTable,
	NewDelayedPublisher,
	NewEmitter,
	NewPipeline,
)

// BuildPipeline assembles a Pipeline from its dependencies. tx may be
// nil; see DelayedPublisher's tx field. The real implementation lives
// in wire_gen.go; this injector is only compiled when regenerating
// that file with `wire`.
func BuildPipeline(
	cfg *Config, lookup types.KVStore, keyIndex types.DeadlineStore, timeIndex types.OrderedStore,
	tx types.TxBoundIndexes, clock Clock, output OutputFunc,
) (*Pipeline, error) {
	wire.Build(Set)
	return nil, nil
}
