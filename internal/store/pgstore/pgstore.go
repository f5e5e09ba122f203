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

// Package pgstore provides Postgres-backed implementations of the
// internal/types store interfaces, for deployments that need the
// three indexes to survive process restart (spec §7, Recovery
// policy). Adapted from the teacher's internal/util/stdpool
// connection-pool conventions and internal/source/cdc.resolver's
// pgx/v5 query style.
package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/replistream/privacypub/internal/types"
	"github.com/replistream/privacypub/internal/util/ident"
	"github.com/replistream/privacypub/internal/util/stopper"
)

// Open connects to connectString and waits for the database to become
// reachable, mirroring the ping-and-retry loop in the teacher's
// stdpool.OpenMySQLAsTarget.
func Open(ctx *stopper.Context, connectString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connectString)
	if err != nil {
		return nil, errors.Wrap(err, "could not create connection pool")
	}

	ctx.Go(func() error {
		<-ctx.Stopping()
		pool.Close()
		return nil
	})

ping:
	if err := pool.Ping(ctx); err != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Second):
			log.WithError(err).Info("waiting for database to become ready")
			goto ping
		}
	}

	return pool, nil
}

// KVTables names the SQL table backing one of the three stores. The
// column layout depends on the store: EnsureSchema (text key, bytea
// value) for a KV, EnsureDeadlineSchema for a DeadlineKV, and
// EnsureOrderedSchema for an Ordered.
type KVTables struct {
	Schema string
	Table  string
}

// EnsureSchema creates the table backing a KV-shaped store if it does
// not already exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, t KVTables) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+quote(t.Schema, t.Table)+` (
		key TEXT PRIMARY KEY,
		value BYTEA NOT NULL
	)`)
	return errors.WithStack(err)
}

func quote(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

// KV is a Postgres-backed types.KVStore.
type KV struct {
	pool  querier
	table string
}

// NewKV constructs a KV backed by the named table, which must already
// exist (see EnsureSchema).
func NewKV(pool querier, t KVTables) *KV {
	return &KV{pool: pool, table: quote(t.Schema, t.Table)}
}

var _ types.KVStore = (*KV)(nil)

// Get implements types.KVStore.
func (s *KV) Get(ctx context.Context, key ident.Key) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM `+s.table+` WHERE key = $1`, key.Raw()).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WithStack(err)
	}
	return value, true, nil
}

// Put implements types.KVStore.
func (s *KV) Put(ctx context.Context, key ident.Key, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key.Raw(), value)
	return errors.WithStack(err)
}

// Delete implements types.KVStore.
func (s *KV) Delete(ctx context.Context, key ident.Key) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE key = $1`, key.Raw())
	return errors.WithStack(err)
}

// DeadlineKV is a Postgres-backed types.DeadlineStore: the `key-index`.
type DeadlineKV struct {
	pool  querier
	table string
}

// NewDeadlineKV constructs a DeadlineKV. The backing table stores the
// deadline as a bigint epoch-millisecond column.
func NewDeadlineKV(pool querier, t KVTables) *DeadlineKV {
	return &DeadlineKV{pool: pool, table: quote(t.Schema, t.Table)}
}

var _ types.DeadlineStore = (*DeadlineKV)(nil)

// EnsureDeadlineSchema creates the table backing a DeadlineKV.
func EnsureDeadlineSchema(ctx context.Context, pool *pgxpool.Pool, t KVTables) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+quote(t.Schema, t.Table)+` (
		key TEXT PRIMARY KEY,
		deadline BIGINT NOT NULL
	)`)
	return errors.WithStack(err)
}

// Get implements types.DeadlineStore.
func (s *DeadlineKV) Get(ctx context.Context, key ident.Key) (types.Deadline, bool, error) {
	var d int64
	err := s.pool.QueryRow(ctx, `SELECT deadline FROM `+s.table+` WHERE key = $1`, key.Raw()).Scan(&d)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.WithStack(err)
	}
	return types.Deadline(d), true, nil
}

// Put implements types.DeadlineStore.
func (s *DeadlineKV) Put(ctx context.Context, key ident.Key, deadline types.Deadline) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (key, deadline) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET deadline = excluded.deadline`,
		key.Raw(), int64(deadline))
	return errors.WithStack(err)
}

// Delete implements types.DeadlineStore.
func (s *DeadlineKV) Delete(ctx context.Context, key ident.Key) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE key = $1`, key.Raw())
	return errors.WithStack(err)
}

// Ordered is a Postgres-backed types.OrderedStore: the `time-index`.
// Postgres's btree primary key on (deadline, seq) is what supplies
// the ascending-iteration guarantee spec invariant I5 demands; a hash
// index would not suffice (see SPEC_FULL.md's note on this point).
type Ordered struct {
	pool  querier
	table string
}

// NewOrdered constructs an Ordered. seq orders keys within a shared
// deadline in append order, per spec §4.3's "list ordering" rule.
func NewOrdered(pool querier, t KVTables) *Ordered {
	return &Ordered{pool: pool, table: quote(t.Schema, t.Table)}
}

var _ types.OrderedStore = (*Ordered)(nil)

// EnsureOrderedSchema creates the table backing an Ordered.
func EnsureOrderedSchema(ctx context.Context, pool *pgxpool.Pool, t KVTables) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+quote(t.Schema, t.Table)+` (
		deadline BIGINT NOT NULL,
		seq BIGSERIAL NOT NULL,
		key TEXT NOT NULL,
		PRIMARY KEY (deadline, seq)
	)`)
	return errors.WithStack(err)
}

// Append implements types.OrderedStore.
func (s *Ordered) Append(ctx context.Context, deadline types.Deadline, key ident.Key) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO `+s.table+` (deadline, key) VALUES ($1, $2)`,
		int64(deadline), key.Raw())
	return errors.WithStack(err)
}

// Remove implements types.OrderedStore.
func (s *Ordered) Remove(ctx context.Context, deadline types.Deadline, key ident.Key) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE deadline = $1 AND key = $2`,
		int64(deadline), key.Raw())
	return errors.WithStack(err)
}

// RemoveBucket implements types.OrderedStore.
func (s *Ordered) RemoveBucket(ctx context.Context, deadline types.Deadline) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE deadline = $1`, int64(deadline))
	return errors.WithStack(err)
}

// ScanDue implements types.OrderedStore. The ORDER BY clause directly
// expresses invariant I5: ascending by deadline, then by arrival
// order within a bucket.
func (s *Ordered) ScanDue(ctx context.Context, now types.Deadline, fn func(types.Deadline, []ident.Key) error) error {
	rows, err := s.pool.Query(ctx, `
		SELECT deadline, key FROM `+s.table+`
		WHERE deadline <= $1
		ORDER BY deadline ASC, seq ASC`, int64(now))
	if err != nil {
		return errors.WithStack(err)
	}
	defer rows.Close()

	var curDeadline types.Deadline
	var curKeys []ident.Key
	haveCur := false

	flush := func() error {
		if !haveCur {
			return nil
		}
		return fn(curDeadline, curKeys)
	}

	for rows.Next() {
		var d int64
		var key string
		if err := rows.Scan(&d, &key); err != nil {
			return errors.WithStack(err)
		}
		deadline := types.Deadline(d)
		if haveCur && deadline != curDeadline {
			if err := flush(); err != nil {
				return err
			}
			curKeys = nil
		}
		curDeadline = deadline
		curKeys = append(curKeys, ident.Key(key))
		haveCur = true
	}
	if err := rows.Err(); err != nil {
		return errors.WithStack(err)
	}
	return flush()
}
