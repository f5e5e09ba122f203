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
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config holds the recognized configuration for the Delayed Publisher,
// per spec §6.
type Config struct {
	// TimeStoreName identifies the ordered deadline -> keys index.
	TimeStoreName string
	// KeyStoreName identifies the key -> deadline index.
	KeyStoreName string
	// LookupStoreName identifies the materialized view store.
	LookupStoreName string
	// ScanInterval is the cadence of the wall-clock scan.
	ScanInterval time.Duration
	// ChaosProbability, if non-zero, injects synthetic errors into the
	// output stream (see WithChaos) for integration testing.
	ChaosProbability float32
}

// DefaultScanInterval matches the interval exercised throughout the
// behavioral test suite that pins down this package's semantics.
const DefaultScanInterval = 500 * time.Millisecond

// Bind registers the Config's fields onto flags, mirroring
// internal/source/server.Config.Bind in the teacher repository.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.TimeStoreName, "timeStoreName", "time_index",
		"the identifier for the ordered deadline-to-keys index")
	flags.StringVar(&c.KeyStoreName, "keyStoreName", "key_index",
		"the identifier for the key-to-deadline index")
	flags.StringVar(&c.LookupStoreName, "lookupStoreName", "lookup",
		"the identifier for the materialized view store")
	flags.DurationVar(&c.ScanInterval, "scanInterval", DefaultScanInterval,
		"cadence of the wall-clock scan for elapsed deadlines")
	flags.Float32Var(&c.ChaosProbability, "chaosProbability", 0,
		"probability (0-1) of injecting a synthetic error into each write to the output stream")
}

// Preflight validates the Config, filling in defaults where reasonable.
func (c *Config) Preflight() error {
	if c.TimeStoreName == "" {
		return errors.New("timeStoreName unset")
	}
	if c.KeyStoreName == "" {
		return errors.New("keyStoreName unset")
	}
	if c.LookupStoreName == "" {
		return errors.New("lookupStoreName unset")
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = DefaultScanInterval
	}
	if c.ChaosProbability < 0 || c.ChaosProbability > 1 {
		return errors.New("chaosProbability must be between 0 and 1")
	}
	return nil
}
