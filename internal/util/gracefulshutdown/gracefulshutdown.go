/*
Copyright 2024 Alexandre Mahdhaoui

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package gracefulshutdown cancels the harness context on the first SIGINT or
// SIGTERM and exits once the registered work is done, so the test in flight
// still destroys its guest. A second signal terminates the process.
package gracefulshutdown

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ExitInterrupted is the exit code used when a signal ends the process.
const ExitInterrupted = 130

// GracefulShutdown holds the signal-bound context and the work that must
// finish before the process exits.
type GracefulShutdown struct {
	ctx    context.Context
	cancel context.CancelFunc
	name   string

	once      sync.Once
	readyOnce sync.Once
	wg        *sync.WaitGroup

	// ready is closed when Ready() is called, signaling that all Add() calls have been made.
	// This prevents a race between WaitGroup.Add() and WaitGroup.Wait().
	ready chan struct{}

	// exitFunc allows injecting exit behavior for testing
	exitFunc func(int)
}

// NewWithExit creates a new GracefulShutdown struct with a custom exit function.
// This is primarily useful for testing where os.Exit() would terminate the test process.
func NewWithExit(name string, exitFunc func(int)) *GracefulShutdown {
	// cancel also restores the default signal behavior.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)

	gs := &GracefulShutdown{
		ctx:      ctx,
		cancel:   cancel,
		name:     name,
		wg:       &sync.WaitGroup{},
		ready:    make(chan struct{}),
		exitFunc: exitFunc,
	}

	go func() {
		select {
		case <-gs.ready:
			<-ctx.Done()
		case <-ctx.Done():
			slog.Warn("GracefulShutdown: context cancelled before Ready() was called - proceeding with shutdown anyway")
		}
		gs.Shutdown(ExitInterrupted)
	}()

	return gs
}

// New creates a GracefulShutdown exiting through os.Exit.
func New(name string) *GracefulShutdown {
	return NewWithExit(name, os.Exit)
}

// Run runs fn as the registered work and shuts down with the exit code it
// returns. If a signal arrived meanwhile, the process exits with
// ExitInterrupted once fn returns.
func (s *GracefulShutdown) Run(fn func(ctx context.Context) int) {
	s.wg.Add(1)
	s.Ready()

	code := func() int {
		defer s.wg.Done()
		return fn(s.ctx)
	}()

	s.Shutdown(code)
}

// Shutdown cancels the context, waits for the registered work and exits with
// exitCode. Only the first call has any effect.
func (s *GracefulShutdown) Shutdown(exitCode int) {
	s.once.Do(func() {
		slog.InfoContext(s.ctx, fmt.Sprintf("shutting down %s", s.name), "exitCode", exitCode)

		s.cancel()
		s.wg.Wait()
		s.exitFunc(exitCode)
	})
}

// Context returns the context of the graceful shutdown.
func (s *GracefulShutdown) Context() context.Context {
	return s.ctx
}

// CancelFunc returns the cancel function of the graceful shutdown.
func (s *GracefulShutdown) CancelFunc() context.CancelFunc {
	return s.cancel
}

// WaitGroup returns the wait group of the graceful shutdown.
func (s *GracefulShutdown) WaitGroup() *sync.WaitGroup {
	return s.wg
}

// Ready signals that all WaitGroup.Add() calls have been made. Ready is safe
// to call multiple times.
func (s *GracefulShutdown) Ready() {
	s.readyOnce.Do(func() {
		close(s.ready)
	})
}
