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

// Package kafka provides the messaging substrate spec.md calls an
// out-of-scope "external collaborator": topic transport, partitioning,
// and serialization. It is built on franz-go, conceptually grounded on
// the per-partition worker loop in the go-kafka-event-source reference
// example -- one logical task per partition, events handled serially,
// matching spec §5's single-threaded cooperative model exactly.
package kafka

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/replistream/privacypub/internal/util/ident"
	"github.com/replistream/privacypub/internal/util/stopper"
)

// IngestFunc is the pipeline entry point a Transport drives: one call
// per fetched record, in partition order.
type IngestFunc func(ctx context.Context, key ident.Key, value []byte) error

// Transport reads from InputTopic and republish records land back on
// the same topic (the republish stream IS the input stream,
// re-entered, per spec §6), and writes to OutputTopic.
type Transport struct {
	InputTopic  string
	OutputTopic string

	client *kgo.Client
}

// Config names the brokers and topics a Transport connects to.
type Config struct {
	Brokers     []string
	GroupID     string
	InputTopic  string
	OutputTopic string
}

// New constructs a Transport connected to cfg.Brokers, consuming
// cfg.InputTopic as a member of cfg.GroupID.
func New(cfg Config) (*Transport, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.InputTopic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "could not construct kafka client")
	}
	return &Transport{InputTopic: cfg.InputTopic, OutputTopic: cfg.OutputTopic, client: client}, nil
}

// produce implements the Output/Republish side of the pipeline: both
// the external output stream and the input-loopback stream are plain
// produces to a topic, the former to OutputTopic and the latter (via
// Republish) back to InputTopic.
func (t *Transport) produce(ctx context.Context, topic string, key ident.Key, value []byte) error {
	rec := &kgo.Record{Topic: topic, Key: []byte(key.Raw()), Value: value}
	result := t.client.ProduceSync(ctx, rec)
	return errors.WithStack(result.FirstErr())
}

// Output publishes to OutputTopic.
func (t *Transport) Output(ctx context.Context, key ident.Key, value []byte) error {
	return t.produce(ctx, t.OutputTopic, key, value)
}

// Republish re-enters InputTopic, per the Design Notes in spec §9: the
// loopback must land on the same input path every other record takes.
func (t *Transport) Republish(ctx context.Context, key ident.Key, value []byte) error {
	return t.produce(ctx, t.InputTopic, key, value)
}

// Run drives ingest with every record fetched from InputTopic, one
// partition at a time and in fetch order within a partition, matching
// spec §5's ordering guarantee. It blocks until ctx is stopping or the
// client is closed, and returns the error of the first failed ingest
// call without committing that fetch's offsets.
func (t *Transport) Run(ctx *stopper.Context, ingest IngestFunc) error {
	for {
		select {
		case <-ctx.Stopping():
			return nil
		default:
		}

		fetches := t.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				log.WithError(e.Err).
					WithField("topic", e.Topic).
					WithField("partition", e.Partition).
					Warn("kafka fetch error")
			}
		}

		var ingestErr error
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			if ingestErr != nil {
				return
			}
			for _, rec := range p.Records {
				if err := ingest(ctx, ident.Key(rec.Key), rec.Value); err != nil {
					log.WithError(err).
						WithField("topic", rec.Topic).
						WithField("partition", rec.Partition).
						Error("ingest failed; store I/O failures are fatal to the task (spec §7)")
					ingestErr = err
					return
				}
			}
		})
		if ingestErr != nil {
			return ingestErr
		}

		if err := t.client.CommitUncommittedOffsets(ctx); err != nil {
			return errors.Wrap(err, "could not commit offsets")
		}
	}
}

// Close releases the underlying client.
func (t *Transport) Close() {
	t.client.Close()
}
