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

// Package orderedjson does targeted surgery on JSON objects while
// preserving the byte-for-byte representation and declaration order of
// every field it does not touch.
//
// None of the libraries pulled in elsewhere in this repository
// (pgx, wire, cobra, franz-go, prometheus) address order-preserving
// JSON field insertion, and encoding/json's map-based decoding does
// not preserve key order; this is implemented directly against
// encoding/json's token stream (Decoder.Token) and RawMessage decoding,
// which is the only way std achieves it.
package orderedjson

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Field is a single top-level member of a JSON object: its name and
// the exact, unmodified bytes of its value as they appeared in the
// source document.
type Field struct {
	Name string
	Raw  json.RawMessage
}

// Object is an ordered decomposition of a top-level JSON object.
type Object []Field

// Get returns the raw value for name and whether it was present.
func (o Object) Get(name string) (json.RawMessage, bool) {
	for _, f := range o {
		if f.Name == name {
			return f.Raw, true
		}
	}
	return nil, false
}

// With returns a copy of o with name's value replaced by raw, or, if
// name is not already present, appended as the last field.
func (o Object) With(name string, raw json.RawMessage) Object {
	out := make(Object, 0, len(o)+1)
	found := false
	for _, f := range o {
		if f.Name == name {
			out = append(out, Field{Name: name, Raw: raw})
			found = true
			continue
		}
		out = append(out, f)
	}
	if !found {
		out = append(out, Field{Name: name, Raw: raw})
	}
	return out
}

// Marshal reconstitutes the JSON object, preserving every field's
// original byte representation and the order captured in o.
func (o Object) Marshal() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(f.Name)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(f.Raw)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// Decode splits a top-level JSON object into its ordered fields
// without losing the exact byte representation of any value. It
// returns an error if data is not a JSON object.
func Decode(data []byte) (Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("orderedjson: not a JSON object")
	}

	var fields Object
	for dec.More() {
		nameTok, err := dec.Token()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		name, ok := nameTok.(string)
		if !ok {
			return nil, errors.New("orderedjson: expected field name")
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.WithStack(err)
		}

		fields = append(fields, Field{Name: name, Raw: bytes.TrimSpace(raw)})
	}

	// Consume the closing '}'.
	if _, err := dec.Token(); err != nil {
		return nil, errors.WithStack(err)
	}

	return fields, nil
}

// IsObject reports whether data's first non-whitespace byte opens a
// JSON object. It is a cheap pre-check before calling Decode.
func IsObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
