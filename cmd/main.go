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

// Command privacypub runs the deferred-publication stream processor
// described in SPEC_FULL.md: a normalizer, a lookup table, a delayed
// publisher, and a publishing-aware emitter, wired to either an HTTP
// ingress or a kafka transport.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "privacypub",
		Short: "a deferred-publication stream processor",
	}
	root.AddCommand(newServeCommand())

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("exiting")
		os.Exit(1)
	}
}
