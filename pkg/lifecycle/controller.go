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

// Package lifecycle creates, runs and destroys guests, tracking their state
// by polling the hypervisor's listing.
package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/alexandremahdhaoui/uniharness/pkg/guest"
	"github.com/alexandremahdhaoui/uniharness/pkg/vmm"
)

var (
	// ErrGuestCreation indicates the guest could not be brought up paused.
	ErrGuestCreation = errors.New("guest creation failed")
	// ErrGuestNotPaused indicates the guest exists but was not observed
	// paused after creation. It wraps ErrGuestCreation.
	ErrGuestNotPaused = fmt.Errorf("%w: guest not paused", ErrGuestCreation)
	// ErrGuestExecution indicates running or observing the guest failed.
	ErrGuestExecution = errors.New("guest execution failed")
	// ErrGuestDestroy indicates the guest could not be destroyed.
	ErrGuestDestroy = errors.New("guest destruction failed")
)

const (
	DefaultPollInterval = time.Second
	DefaultGracePeriod  = time.Second
)

// Guest is a guest created by the Controller.
type Guest struct {
	Name   string
	ID     int
	Config guest.Config
}

// Options tunes a single run.
type Options struct {
	// Timeout bounds how long the guest may run before it is considered
	// timed out.
	Timeout time.Duration
	// Stdin is written to the console before the guest is unpaused.
	Stdin []byte
}

// Controller drives guests through the VMM.
type Controller struct {
	vmm          vmm.VMM
	clock        clock.Clock
	pollInterval time.Duration
	gracePeriod  time.Duration

	mu     sync.Mutex
	events []Event
}

// Option configures a Controller.
type Option func(*Controller)

func WithClock(c clock.Clock) Option {
	return func(ctrl *Controller) {
		ctrl.clock = c
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(ctrl *Controller) {
		ctrl.pollInterval = d
	}
}

// WithGracePeriod sets how long console capture continues after the guest
// reached a terminal state or timed out.
func WithGracePeriod(d time.Duration) Option {
	return func(ctrl *Controller) {
		ctrl.gracePeriod = d
	}
}

func New(v vmm.VMM, opts ...Option) *Controller {
	c := &Controller{
		vmm:          v,
		clock:        clock.RealClock{},
		pollInterval: DefaultPollInterval,
		gracePeriod:  DefaultGracePeriod,
		events:       make([]Event, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup lists all guests and returns the first one matching, or nil.
func (c *Controller) Lookup(ctx context.Context, match guest.Matcher) (*guest.Snapshot, error) {
	snapshots, err := c.vmm.List(ctx)
	if err != nil {
		return nil, err
	}
	return guest.Find(snapshots, match), nil
}

// CreatePausedGuest creates the guest described by cfg and checks it is
// paused.
//
// When a guest with the expected name exists but the operation still failed,
// the guest is returned along with the error so that it can be destroyed.
func (c *Controller) CreatePausedGuest(ctx context.Context, cfg guest.Config) (*Guest, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("guest", cfg.Name)
	c.RecordEvent(cfg.Name, EventCreateStart, fmt.Sprintf("kernel=%s memory=%d", cfg.Kernel, cfg.MemoryMB))

	createErr := c.vmm.CreatePaused(ctx, cfg)

	s, err := c.Lookup(ctx, guest.ByName(cfg.Name))
	if err != nil {
		c.RecordEvent(cfg.Name, EventCreateFailed, err.Error())
		return nil, errors.Join(createErr, err, ErrGuestCreation)
	}

	if s == nil {
		details := "no guest with the expected name"
		c.RecordEvent(cfg.Name, EventCreateFailed, details)
		return nil, errors.Join(createErr, fmt.Errorf("%w: %s %q", ErrGuestCreation, details, cfg.Name))
	}

	g := &Guest{Name: s.Name, ID: s.ID, Config: cfg}

	if createErr != nil {
		c.RecordEvent(cfg.Name, EventCreateFailed, createErr.Error())
		return g, errors.Join(createErr, ErrGuestCreation)
	}

	if !s.State.Has(guest.StatePaused) {
		details := fmt.Sprintf("state %s (%s)", s.State.Hex(), s.RawState)
		c.RecordEvent(cfg.Name, EventCreateFailed, details)
		return g, fmt.Errorf("%w: %s", ErrGuestNotPaused, details)
	}

	log.V(1).Info("guest created", "id", g.ID)
	c.RecordEvent(cfg.Name, EventCreated, fmt.Sprintf("id=%d", g.ID))
	return g, nil
}

// UnpauseAndCollect starts g and polls it until it reaches a terminal state,
// disappears or times out, capturing its console throughout.
//
// The returned result carries the console text captured so far even when an
// error is returned.
func (c *Controller) UnpauseAndCollect(ctx context.Context, g *Guest, opts Options) (guest.ExecutionResult, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("guest", g.Name, "id", g.ID)
	result := guest.ExecutionResult{}

	console, err := c.vmm.Console(ctx, g.ID)
	if err != nil {
		c.RecordEvent(g.Name, EventExecutionFailed, err.Error())
		return result, errors.Join(err, ErrGuestExecution)
	}

	var (
		buf     bytes.Buffer
		capture errgroup.Group
	)
	capture.Go(func() error {
		_, err := io.Copy(&buf, console)
		return err
	})

	collect := func() string {
		if err := console.Close(); err != nil {
			log.V(1).Info("closing console", "err", err.Error())
		}
		if err := capture.Wait(); err != nil {
			log.V(1).Info("capturing console", "err", err.Error())
		}
		return buf.String()
	}

	fail := func(err error) (guest.ExecutionResult, error) {
		c.RecordEvent(g.Name, EventExecutionFailed, err.Error())
		result.Output = collect()
		return result, errors.Join(err, ErrGuestExecution)
	}

	if len(opts.Stdin) > 0 {
		if _, err := console.Write(opts.Stdin); err != nil {
			return fail(errors.Join(err, errors.New("writing to console")))
		}
	}

	if err := c.vmm.Unpause(ctx, g.ID); err != nil {
		return fail(err)
	}

	start := c.clock.Now()
	deadline := start.Add(opts.Timeout)
	c.RecordEvent(g.Name, EventUnpaused, fmt.Sprintf("timeout=%s", opts.Timeout))
	log.V(1).Info("guest unpaused", "timeout", opts.Timeout)

	for {
		s, err := c.Lookup(ctx, guest.ByID(g.ID))
		if err != nil {
			return fail(err)
		}

		if s == nil {
			result.State = guest.StateUnknown
			c.RecordEvent(g.Name, EventGone, "guest no longer listed")
			break
		}

		result.State = s.State
		if s.State.Terminal() {
			c.RecordEvent(g.Name, EventTerminal, fmt.Sprintf("state %s (%s)", s.State.Hex(), s.State))
			break
		}

		now := c.clock.Now()
		if !now.Before(deadline) {
			result.DidTimeout = true
			c.RecordEvent(g.Name, EventTimeout, fmt.Sprintf("state %s after %s", s.State.Hex(), now.Sub(start)))
			break
		}

		wait := c.pollInterval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		c.clock.Sleep(wait)

		if err := ctx.Err(); err != nil {
			return fail(err)
		}
	}

	c.clock.Sleep(c.gracePeriod)
	result.Output = collect()

	log.V(1).Info("guest stopped", "state", result.State.String(), "didTimeout", result.DidTimeout)
	return result, nil
}

// Destroy destroys g. A guest that no longer exists is not an error.
func (c *Controller) Destroy(ctx context.Context, g *Guest) error {
	if g == nil {
		return nil
	}

	s, lookupErr := c.Lookup(ctx, guest.ByID(g.ID))
	if lookupErr == nil && (s == nil || s.Name != g.Name) {
		c.RecordEvent(g.Name, EventDestroyed, "guest already gone")
		return nil
	}

	if err := c.vmm.Destroy(ctx, g.ID); err != nil {
		if errors.Is(err, vmm.ErrGuestNotFound) {
			c.RecordEvent(g.Name, EventDestroyed, "guest already gone")
			return nil
		}
		c.RecordEvent(g.Name, EventDestroyFailed, err.Error())
		return errors.Join(lookupErr, err, fmt.Errorf("%w: %s (id %d)", ErrGuestDestroy, g.Name, g.ID))
	}

	c.RecordEvent(g.Name, EventDestroyed, fmt.Sprintf("id=%d", g.ID))
	return nil
}
