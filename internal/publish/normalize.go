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
	"encoding/json"

	"github.com/replistream/privacypub/internal/util/orderedjson"
)

var (
	rawFalse      = json.RawMessage("false")
	defaultPolicy = json.RawMessage(`{"private":false}`)
)

// Normalize implements spec §4.1. It guarantees the returned body
// contains a `publishing` object with a boolean `private` field,
// leaving every other field -- including `publishing.until` and
// unknown siblings -- untouched in both value and declaration order.
//
// A nil, empty, or non-object body is returned unchanged: the
// downstream components treat it as having no publishing policy.
func Normalize(body []byte) []byte {
	if len(body) == 0 || !orderedjson.IsObject(body) {
		return body
	}

	top, err := orderedjson.Decode(body)
	if err != nil {
		// Malformed JSON propagates unchanged; see spec §4.1 Failure.
		return body
	}

	publishing, ok := top.Get("publishing")
	if !ok {
		return top.With("publishing", defaultPolicy).Marshal()
	}

	if !orderedjson.IsObject(publishing) {
		// A non-object `publishing` field is itself malformed; treat
		// the whole field as absent rather than guess its shape.
		return top.With("publishing", defaultPolicy).Marshal()
	}

	policy, err := orderedjson.Decode(publishing)
	if err != nil {
		return top.With("publishing", defaultPolicy).Marshal()
	}

	if _, ok := policy.Get("private"); ok {
		return body
	}

	normalizedPolicy := policy.With("private", rawFalse).Marshal()
	return top.With("publishing", normalizedPolicy).Marshal()
}
