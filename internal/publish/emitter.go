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

import "github.com/replistream/privacypub/internal/types"

// Emitter is the publishing-aware value transform described in spec
// §4.4: it rewrites a Change to a tombstone whenever the value is
// currently private, and otherwise passes it through unchanged. It
// performs no I/O and cannot fail.
//
// A record is only private "until" its deadline elapses (spec §9's
// design note: a republished record still carries its original
// `publishing.private: true` field, but the emitter must expose it
// once `until` is in the past -- that is the entire mechanism by
// which a republish becomes visible without the Delayed Publisher
// ever touching the output stream directly). So the emitter's
// privacy check folds `until` in alongside the literal flag, using
// the same wall clock the Delayed Publisher consults.
type Emitter struct {
	clock Clock
}

// NewEmitter constructs an Emitter driven by clock. clock may be nil
// to use RealClock.
func NewEmitter(clock Clock) *Emitter {
	if clock == nil {
		clock = RealClock{}
	}
	return &Emitter{clock: clock}
}

// Emit returns the value that should appear on the external output
// stream for change.
func (e *Emitter) Emit(change types.Change) []byte {
	if change.Value == nil {
		return nil
	}

	pol := extractPolicy(change.Value)
	if !pol.Private {
		return change.Value
	}
	if pol.Until != nil && !e.clock.Now().Before(*pol.Until) {
		// until has elapsed: privacy has lapsed even though the body
		// still declares private:true.
		return change.Value
	}
	return nil
}
