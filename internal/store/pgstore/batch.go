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

package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/replistream/privacypub/internal/types"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so KV,
// DeadlineKV, and Ordered can be backed by either a bare pool or a
// transaction without duplicating their query logic.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RunInTx begins a transaction, hands it to fn as a querier from which
// tx-scoped KV/DeadlineKV/Ordered instances can be built, and commits
// on success or rolls back on error. Adapted from the teacher's
// internal/source/logical.serialEvents OnBegin/OnCommit/OnRollback
// cycle: Indexes uses it so that a single event's key-index and
// time-index writes -- e.g. Re-register, which touches both -- commit
// atomically. Lookup writes are not part of that transaction.
func RunInTx(ctx context.Context, pool *pgxpool.Pool, fn func(q querier) error) (err error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Indexes is a types.TxBoundIndexes backed by a shared *pgxpool.Pool,
// giving the DelayedPublisher a way to wrap its key-index/time-index
// writes in a single RunInTx call instead of two independent
// statements. Construct one alongside the KV-shaped DeadlineKV/Ordered
// pair built against the same pool and tables.
type Indexes struct {
	pool       *pgxpool.Pool
	keyTables  KVTables
	timeTables KVTables
}

// NewIndexes constructs an Indexes over the named key-index and
// time-index tables, which must already exist (see
// EnsureDeadlineSchema / EnsureOrderedSchema).
func NewIndexes(pool *pgxpool.Pool, keyTables, timeTables KVTables) *Indexes {
	return &Indexes{pool: pool, keyTables: keyTables, timeTables: timeTables}
}

// WithTx implements types.TxBoundIndexes.
func (x *Indexes) WithTx(
	ctx context.Context, fn func(ctx context.Context, keyIndex types.DeadlineStore, timeIndex types.OrderedStore) error,
) error {
	return RunInTx(ctx, x.pool, func(q querier) error {
		return fn(ctx, NewDeadlineKV(q, x.keyTables), NewOrdered(q, x.timeTables))
	})
}
