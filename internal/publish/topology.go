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

	"github.com/replistream/privacypub/internal/util/ident"
)

// OutputFunc is the system's external output stream (spec §6): a null
// value is a tombstone signaling that the key is currently suppressed.
type OutputFunc func(ctx context.Context, key ident.Key, value []byte) error

// Pipeline wires the four components together exactly as spec §2
// describes the data flow:
//
//	input -> Normalizer -> Lookup Table -> (fanout) ->
//	    { Delayed Publisher -> input (loop back),
//	      Publishing-Aware Emitter -> output }
type Pipeline struct {
	Lookup  *LookupTable
	Delayed *DelayedPublisher
	Emitter *Emitter
	Output  OutputFunc
}

// NewPipeline wires lookup, delayed, and emitter together and sets
// delayed's Republish callback to loop back through Ingest, as spec §9
// requires.
func NewPipeline(lookup *LookupTable, delayed *DelayedPublisher, emitter *Emitter, output OutputFunc) *Pipeline {
	p := &Pipeline{Lookup: lookup, Delayed: delayed, Emitter: emitter, Output: output}
	p.Delayed.Republish = p.Ingest
	return p
}

// Ingest is the input stream's entry point. Every record -- whether
// from an external producer or a republish loopback -- passes through
// here.
func (p *Pipeline) Ingest(ctx context.Context, key ident.Key, value []byte) error {
	change, err := p.Lookup.Update(ctx, key, value)
	if err != nil {
		return err
	}
	if err := p.Delayed.HandleChange(ctx, key, change.Value); err != nil {
		return err
	}
	return p.Output(ctx, key, p.Emitter.Emit(change))
}
