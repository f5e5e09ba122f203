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

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/replistream/privacypub/internal/ingest"
	"github.com/replistream/privacypub/internal/publish"
	"github.com/replistream/privacypub/internal/store/memstore"
	"github.com/replistream/privacypub/internal/store/pgstore"
	"github.com/replistream/privacypub/internal/transport/kafka"
	"github.com/replistream/privacypub/internal/types"
	"github.com/replistream/privacypub/internal/util/diag"
	"github.com/replistream/privacypub/internal/util/ident"
	"github.com/replistream/privacypub/internal/util/stopper"
)

// scanStaleFactor bounds how many scan intervals may elapse before the
// /healthz scan-liveness check reports the scan loop unhealthy.
const scanStaleFactor = 5

// serveConfig is the user-visible configuration for running a
// publishing server, following the composition style of the teacher's
// internal/source/server.Config: a domain Config embedded alongside
// the process-level flags the cmd layer itself owns.
type serveConfig struct {
	Publish publish.Config

	BindAddr         string
	MetricsAddr      string
	PostgresURL      string
	KafkaBrokers     []string
	KafkaGroup       string
	KafkaInputTopic  string
	KafkaOutputTopic string
	UseKafka         bool
}

func (c *serveConfig) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	c.Publish.Bind(fs)

	fs.StringVar(&c.BindAddr, "bindAddr", ":26420", "the network address the ingest HTTP endpoint binds to")
	fs.StringVar(&c.MetricsAddr, "metricsAddr", ":26421", "the network address the prometheus /metrics endpoint binds to")
	fs.StringVar(&c.PostgresURL, "postgresURL", "",
		"a postgres connection string; when set, the three indexes are stored there instead of in memory")
	fs.BoolVar(&c.UseKafka, "kafka", false, "consume and produce via kafka instead of the HTTP ingress")
	fs.StringSliceVar(&c.KafkaBrokers, "kafkaBrokers", nil, "comma-separated kafka broker addresses")
	fs.StringVar(&c.KafkaGroup, "kafkaGroup", "privacypub", "the kafka consumer group id")
	fs.StringVar(&c.KafkaInputTopic, "kafkaInputTopic", "", "the kafka input/republish topic")
	fs.StringVar(&c.KafkaOutputTopic, "kafkaOutputTopic", "", "the kafka output topic")
}

func (c *serveConfig) preflight() error {
	if err := c.Publish.Preflight(); err != nil {
		return err
	}
	if c.BindAddr == "" {
		return errors.New("bindAddr unset")
	}
	if c.UseKafka {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("kafkaBrokers unset")
		}
		if c.KafkaInputTopic == "" || c.KafkaOutputTopic == "" {
			return errors.New("kafkaInputTopic and kafkaOutputTopic must both be set")
		}
	}
	return nil
}

func newServeCommand() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the deferred-publication stream processor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.preflight(); err != nil {
				return err
			}
			return runServe(cmd, cfg)
		},
	}
	cfg.bind(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, cfg *serveConfig) error {
	ctx := stopper.WithContext(cmd.Context())

	diags, cleanup := diag.New(ctx)
	defer cleanup()

	lookup, keyIndex, timeIndex, tx, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}

	ctx.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			for name, err := range diags.Report(r.Context()) {
				if err != nil {
					log.WithError(err).WithField("check", name).Warn("health check failed")
					http.Error(w, name+": "+err.Error(), http.StatusServiceUnavailable)
					return
				}
			}
			w.WriteHeader(http.StatusOK)
		})
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			<-ctx.Stopping()
			_ = srv.Close()
		}()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "metrics server failed")
		}
		return nil
	})

	if cfg.UseKafka {
		return runKafka(ctx, cfg, lookup, keyIndex, timeIndex, tx, diags)
	}
	return runHTTP(ctx, cfg, lookup, keyIndex, timeIndex, tx, diags)
}

func buildStores(
	ctx *stopper.Context, cfg *serveConfig,
) (types.KVStore, types.DeadlineStore, types.OrderedStore, types.TxBoundIndexes, error) {
	if cfg.PostgresURL == "" {
		return memstore.NewKV(), memstore.NewDeadlineKV(), memstore.NewOrdered(), nil, nil
	}

	pool, err := pgstore.Open(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	lookupTables := pgstore.KVTables{Schema: "public", Table: cfg.Publish.LookupStoreName}
	keyTables := pgstore.KVTables{Schema: "public", Table: cfg.Publish.KeyStoreName}
	timeTables := pgstore.KVTables{Schema: "public", Table: cfg.Publish.TimeStoreName}

	if err := pgstore.EnsureSchema(ctx, pool, lookupTables); err != nil {
		return nil, nil, nil, nil, err
	}
	if err := pgstore.EnsureDeadlineSchema(ctx, pool, keyTables); err != nil {
		return nil, nil, nil, nil, err
	}
	if err := pgstore.EnsureOrderedSchema(ctx, pool, timeTables); err != nil {
		return nil, nil, nil, nil, err
	}

	lookup := pgstore.NewKV(pool, lookupTables)
	keyIndex := pgstore.NewDeadlineKV(pool, keyTables)
	timeIndex := pgstore.NewOrdered(pool, timeTables)
	tx := pgstore.NewIndexes(pool, keyTables, timeTables)

	return lookup, keyIndex, timeIndex, tx, nil
}

// registerScanHealth registers a /healthz check that fails once the
// Delayed Publisher's scan loop has gone stale -- either it has never
// run, or too many scan intervals have elapsed since it last started
// -- so a wedged or dead scan goroutine is visible to an operator
// instead of /healthz unconditionally reporting 200 OK.
func registerScanHealth(diags *diag.Diagnostics, cfg *serveConfig, delayed *publish.DelayedPublisher) error {
	stale := cfg.Publish.ScanInterval * scanStaleFactor
	return diags.Register("scan", func(context.Context) error {
		last := delayed.LastScan()
		if last.IsZero() {
			return errors.New("scan loop has not started a pass yet")
		}
		if age := time.Since(last); age > stale {
			return errors.Errorf("scan loop stalled: last scan %s ago (older than %s)", age, stale)
		}
		return nil
	})
}

func runKafka(
	ctx *stopper.Context, cfg *serveConfig, lookup types.KVStore, keyIndex types.DeadlineStore, timeIndex types.OrderedStore,
	tx types.TxBoundIndexes, diags *diag.Diagnostics,
) error {
	transport, err := kafka.New(kafka.Config{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     cfg.KafkaGroup,
		InputTopic:  cfg.KafkaInputTopic,
		OutputTopic: cfg.KafkaOutputTopic,
	})
	if err != nil {
		return err
	}
	defer transport.Close()

	output := publish.WithChaos(transport.Output, cfg.Publish.ChaosProbability)

	pipeline, err := publish.BuildPipeline(&cfg.Publish, lookup, keyIndex, timeIndex, tx, publish.RealClock{}, output)
	if err != nil {
		return err
	}
	pipeline.Delayed.Republish = transport.Republish
	if err := registerScanHealth(diags, cfg, pipeline.Delayed); err != nil {
		return err
	}
	pipeline.Delayed.Start(ctx)

	return transport.Run(ctx, pipeline.Ingest)
}

func runHTTP(
	ctx *stopper.Context, cfg *serveConfig, lookup types.KVStore, keyIndex types.DeadlineStore, timeIndex types.OrderedStore,
	tx types.TxBoundIndexes, diags *diag.Diagnostics,
) error {
	logOutput := func(_ context.Context, key ident.Key, value []byte) error {
		log.WithField("key", key).WithField("tombstone", value == nil).Debug("publish")
		return nil
	}
	output := publish.WithChaos(logOutput, cfg.Publish.ChaosProbability)

	pipeline, err := publish.BuildPipeline(&cfg.Publish, lookup, keyIndex, timeIndex, tx, publish.RealClock{}, output)
	if err != nil {
		return err
	}
	if err := registerScanHealth(diags, cfg, pipeline.Delayed); err != nil {
		return err
	}
	pipeline.Delayed.Start(ctx)

	handler := ingest.NewHandler(pipeline.Ingest)
	srv := &http.Server{Addr: cfg.BindAddr, Handler: handler}

	ctx.Go(func() error {
		<-ctx.Stopping()
		return srv.Close()
	})

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}
