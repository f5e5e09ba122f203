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

// Package ident contains the opaque identifiers used across the
// publishing pipeline: record keys and store names.
package ident

// Key is an opaque, comparable identifier for a single logical record.
// It is stable across updates to the same record and is never
// interpreted by the core components.
type Key string

// Raw returns the underlying string form of the key.
func (k Key) Raw() string { return string(k) }

// String implements fmt.Stringer.
func (k Key) String() string { return string(k) }

// StoreName identifies one of the three persistent indexes by the
// configuration option that named it (timeStoreName, keyStoreName,
// lookupStoreName).
type StoreName string
