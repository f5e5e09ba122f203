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

// Package ingest provides an HTTP ingress for the publishing pipeline,
// adapted from the teacher's flat sink.go: a line-delimited-JSON body
// is scanned record by record and fed into the pipeline. Unlike the
// teacher's handler, each line here carries its own key, since the
// input stream's records are arbitrary keyed values rather than rows
// of a single known table.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/replistream/privacypub/internal/util/ident"
	"github.com/replistream/privacypub/internal/util/msort"
)

// IngestFunc is the pipeline entry point the Handler drives.
type IngestFunc func(ctx context.Context, key ident.Key, value []byte) error

// Handler accepts newline-delimited JSON records of the form
// {"key": "...", "value": {...}} and ingests them in order, one
// request body's batch deduplicated by key (last one wins) before
// delivery, mirroring msort's role in the teacher's batch-processing
// path.
type Handler struct {
	Ingest IngestFunc
}

// NewHandler constructs a Handler that calls ingest for each record.
func NewHandler(ingest IngestFunc) *Handler {
	return &Handler{Ingest: ingest}
}

type wireRecord struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	batch, err := parseBatch(r.Body)
	if err != nil {
		log.WithError(err).Warn("ingest: malformed request body")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	deduped := msort.UniqueByKey(batch)
	for _, rec := range deduped {
		if err := h.Ingest(r.Context(), rec.Key, rec.Value); err != nil {
			log.WithError(err).WithField("key", rec.Key).Error("ingest: store I/O failure, fatal to the task")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func parseBatch(body io.Reader) ([]msort.Record, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var batch []msort.Record
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec wireRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, errors.Wrapf(err, "parsing line %q", line)
		}
		var value []byte
		if len(rec.Value) > 0 && string(rec.Value) != "null" {
			value = append([]byte(nil), rec.Value...)
		}
		batch = append(batch, msort.Record{Key: ident.Key(rec.Key), Value: value})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return batch, nil
}
