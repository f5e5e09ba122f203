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

// Package diag provides a lightweight health-check registry that
// components can plug into so that an operator-facing endpoint can
// report whether the pipeline's moving parts are alive.
package diag

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// A Check reports an error if the associated component is unhealthy.
type Check func(ctx context.Context) error

// Diagnostics is a registry of named health Checks.
type Diagnostics struct {
	mu     sync.Mutex
	checks map[string]Check
}

// New constructs an empty Diagnostics registry. The returned cleanup
// function is a no-op; it exists so that Diagnostics can be used as a
// Wire provider alongside types that do require cleanup.
func New(_ context.Context) (*Diagnostics, func()) {
	return &Diagnostics{checks: make(map[string]Check)}, func() {}
}

// Register associates a name with a Check. Registering the same name
// twice replaces the prior Check.
func (d *Diagnostics) Register(name string, check Check) error {
	if name == "" {
		return errors.New("diag: name must not be empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checks[name] = check
	return nil
}

// Unregister removes a previously-registered Check.
func (d *Diagnostics) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.checks, name)
}

// Report runs every registered Check and returns the set of failures,
// keyed by name.
func (d *Diagnostics) Report(ctx context.Context) map[string]error {
	d.mu.Lock()
	checks := make(map[string]Check, len(d.checks))
	for name, check := range d.checks {
		checks[name] = check
	}
	d.mu.Unlock()

	failures := make(map[string]error)
	for name, check := range checks {
		if err := check(ctx); err != nil {
			failures[name] = err
		}
	}
	return failures
}
