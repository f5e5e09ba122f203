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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAddsMissingPrivate(t *testing.T) {
	out := Normalize([]byte(`{"a":1,"publishing":{"until":"2099-01-01T00:00:00Z"},"b":2}`))

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &doc))

	var pub map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(doc["publishing"], &pub))
	require.JSONEq(t, "false", string(pub["private"]))
	require.JSONEq(t, `"2099-01-01T00:00:00Z"`, string(pub["until"]))
	require.JSONEq(t, "1", string(doc["a"]))
	require.JSONEq(t, "2", string(doc["b"]))
}

func TestNormalizeAddsMissingPublishingObject(t *testing.T) {
	out := Normalize([]byte(`{"a":1}`))

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &doc))
	require.JSONEq(t, `{"private":false}`, string(doc["publishing"]))
}

func TestNormalizeLeavesExplicitPrivateUntouched(t *testing.T) {
	in := []byte(`{"publishing":{"private":true,"until":"2099-01-01T00:00:00Z"},"z":9}`)
	out := Normalize(in)
	require.Equal(t, in, out)
}

func TestNormalizePreservesFieldOrder(t *testing.T) {
	in := []byte(`{"z":1,"a":2,"publishing":{"until":"2099-01-01T00:00:00Z","m":3}}`)
	out := Normalize(in)

	// The top-level field order (z, a, publishing) and the sibling order
	// inside publishing (until, m, private) must survive verbatim, per
	// spec §4.1.
	require.Regexp(t, `^\{"z":1,"a":2,"publishing":\{"until":"2099-01-01T00:00:00Z","m":3,"private":false\}\}$`, string(out))
}

func TestNormalizeUnstructuredBodyPassesThrough(t *testing.T) {
	require.Nil(t, Normalize(nil))
	require.Equal(t, []byte("null"), Normalize([]byte("null")))
	require.Equal(t, []byte("not json"), Normalize([]byte("not json")))
}

func TestNormalizeNonObjectPublishingTreatedAsAbsent(t *testing.T) {
	out := Normalize([]byte(`{"publishing":"oops"}`))

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &doc))
	require.JSONEq(t, `{"private":false}`, string(doc["publishing"]))
}
