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
	"time"
)

// policy is the recognized shape of a record's `publishing` object,
// per spec §6.
type policy struct {
	Private bool
	Until   *time.Time
}

type policyDoc struct {
	Publishing struct {
		Private bool    `json:"private"`
		Until   *string `json:"until"`
	} `json:"publishing"`
}

// extractPolicy reads the publishing policy out of value. A body that
// is not a structured document, or that lacks a usable `publishing`
// object, is treated as "no policy": Private is false and Until is
// nil. A malformed `until` is likewise treated as absent, which drives
// the Cancel path in the decision table (spec §4.3, §7).
func extractPolicy(value []byte) policy {
	if len(value) == 0 {
		return policy{}
	}

	var doc policyDoc
	if err := json.Unmarshal(value, &doc); err != nil {
		return policy{}
	}

	ret := policy{Private: doc.Publishing.Private}
	if doc.Publishing.Until == nil {
		return ret
	}

	parsed, err := time.Parse(time.RFC3339, *doc.Publishing.Until)
	if err != nil {
		return ret
	}
	ret.Until = &parsed
	return ret
}
