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

// Package stopper provides a context.Context that also tracks a set of
// background goroutines so that callers can request a graceful
// shutdown and wait for those goroutines to drain.
package stopper

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// A Context wraps a context.Context and tracks goroutines launched
// with Go. Stopping signals those goroutines to wind down;  Stop
// additionally waits (up to a grace period) for them to exit.
type Context struct {
	context.Context

	cancel func()

	mu struct {
		sync.Mutex
		stopping chan struct{}
		stopOnce sync.Once
	}

	wg sync.WaitGroup
}

// WithContext constructs a new Context derived from parent.
func WithContext(parent context.Context) *Context {
	ctx, cancel := context.WithCancel(parent)
	ret := &Context{Context: ctx, cancel: cancel}
	ret.mu.stopping = make(chan struct{})
	return ret
}

// Go launches fn in a background goroutine that is tracked by the
// Context. If fn returns a non-nil error, it is logged.
func (c *Context) Go(fn func() error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fn(); err != nil && err != context.Canceled {
			log.WithError(err).Warn("background task exited with error")
		}
	}()
}

// Stopping returns a channel that is closed when a graceful shutdown
// has been requested. Unlike Done(), this fires before the underlying
// context is canceled, giving goroutines a chance to flush.
func (c *Context) Stopping() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mu.stopping
}

// Stop requests a graceful shutdown: Stopping() is closed immediately,
// the underlying context is canceled, and Stop blocks until all
// goroutines launched by Go have returned or the grace period elapses.
func (c *Context) Stop(grace time.Duration) {
	c.mu.Lock()
	c.mu.stopOnce.Do(func() { close(c.mu.stopping) })
	c.mu.Unlock()

	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	if grace <= 0 {
		<-done
		return
	}

	select {
	case <-done:
	case <-time.After(grace):
		log.Warn("stopper: grace period elapsed before all tasks exited")
	}
}
