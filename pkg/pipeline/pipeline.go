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

// Package pipeline runs one test through its stages: Build, Execute and
// Check, stopping at the first failure, then Clean, which always runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/utils/clock"

	"github.com/alexandremahdhaoui/uniharness/pkg/build"
	"github.com/alexandremahdhaoui/uniharness/pkg/guest"
	"github.com/alexandremahdhaoui/uniharness/pkg/lifecycle"
	"github.com/alexandremahdhaoui/uniharness/pkg/result"
	"github.com/alexandremahdhaoui/uniharness/pkg/testdef"
)

// Builder builds a guest image.
type Builder interface {
	Build(ctx context.Context, opts build.Options) (string, error)
}

// Lifecycle creates, runs and destroys guests.
type Lifecycle interface {
	CreatePausedGuest(ctx context.Context, cfg guest.Config) (*lifecycle.Guest, error)
	UnpauseAndCollect(ctx context.Context, g *lifecycle.Guest, opts lifecycle.Options) (guest.ExecutionResult, error)
	Destroy(ctx context.Context, g *lifecycle.Guest) error
}

// Observer is notified of every finished stage.
type Observer interface {
	ObserveStage(def *testdef.Definition, c result.TestCase)
}

// State is the position of a run in the pipeline.
type State string

const (
	StatePending   State = "Pending"
	StateBuilding  State = "Building"
	StateExecuting State = "Executing"
	StateChecking  State = "Checking"
	StateCleaning  State = "Cleaning"
	StateDone      State = "Done"
)

// Runner runs tests through the pipeline. A Runner runs one test at a time.
type Runner struct {
	builder   Builder
	lifecycle Lifecycle
	clock     clock.PassiveClock

	tempDir  string
	buildAll bool
	verbose  bool

	guestName  func(test string) string
	observers  []Observer
	transition func(def *testdef.Definition, s State)
}

// Option configures a Runner.
type Option func(*Runner)

func WithClock(c clock.PassiveClock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithTempDir sets where built images are written. Defaults to os.TempDir.
func WithTempDir(dir string) Option {
	return func(r *Runner) {
		r.tempDir = dir
	}
}

// WithBuildFlags requests a rebuild of all dependencies and verbose builds.
func WithBuildFlags(buildAll, verbose bool) Option {
	return func(r *Runner) {
		r.buildAll = buildAll
		r.verbose = verbose
	}
}

// WithGuestName replaces how unique guest names are derived from test names.
func WithGuestName(f func(test string) string) Option {
	return func(r *Runner) {
		r.guestName = f
	}
}

func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observers = append(r.observers, o)
	}
}

// WithTransitionHook calls f on every state change of a run.
func WithTransitionHook(f func(def *testdef.Definition, s State)) Option {
	return func(r *Runner) {
		r.transition = f
	}
}

func New(b Builder, l Lifecycle, opts ...Option) *Runner {
	r := &Runner{
		builder:   b,
		lifecycle: l,
		clock:     clock.RealClock{},
		guestName: UniqueGuestName,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UniqueGuestName suffixes test with 8 random hex characters.
func UniqueGuestName(test string) string {
	return fmt.Sprintf("%s-%s", test, uuid.NewString()[:8])
}

// run is the state of one pipeline run.
type run struct {
	def    *testdef.Definition
	state  State
	kernel string
	guest  *lifecycle.Guest
	exec   guest.ExecutionResult
	suite  *result.TestSuite
}

type stageFunc func(ctx context.Context, p *run) (string, error)

// Run runs def through the pipeline and returns its suite. It never panics
// because of a stage: every stage outcome becomes a test case.
func (r *Runner) Run(ctx context.Context, def *testdef.Definition) *result.TestSuite {
	ctx = logr.NewContext(ctx, logr.FromContextOrDiscard(ctx).WithValues("test", def.Name))

	p := &run{
		def:   def,
		state: StatePending,
		suite: result.NewTestSuite(def.Name, def.Category),
	}

	func() {
		defer func() {
			r.enter(ctx, p, StateCleaning)
			r.stage(context.WithoutCancel(ctx), p, result.StageClean, r.clean)
		}()

		steps := []struct {
			state State
			stage result.Stage
			fn    stageFunc
		}{
			{StateBuilding, result.StageBuild, r.build},
			{StateExecuting, result.StageExecute, r.execute},
			{StateChecking, result.StageCheck, r.check},
		}

		for _, s := range steps {
			r.enter(ctx, p, s.state)
			if !r.stage(ctx, p, s.stage, s.fn) {
				return
			}
		}
	}()

	r.enter(ctx, p, StateDone)
	return p.suite
}

// enter moves p to s and calls the transition hook. A panicking hook is
// logged and does not stop the run.
func (r *Runner) enter(ctx context.Context, p *run, s State) {
	p.state = s
	if r.transition == nil {
		return
	}
	if err := attempt(func() error { r.transition(p.def, s); return nil }); err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "transition hook", "state", s)
	}
}

// stage runs fn and records its outcome. It reports whether the stage
// succeeded. Clean failures are written to the case output, never recorded
// as failures.
func (r *Runner) stage(ctx context.Context, p *run, stage result.Stage, fn stageFunc) bool {
	log := logr.FromContextOrDiscard(ctx).WithValues("stage", stage)
	start := r.clock.Now()

	output, err := safely(ctx, p, fn)

	if stage == result.StageClean && err != nil {
		output = strings.TrimRight(output, "\n") + "\n" + err.Error()
		err = nil
	}

	c := result.TestCase{
		Stage:    stage,
		Test:     p.def.Name,
		Duration: r.clock.Since(start),
		Output:   output,
		Failure:  result.FailureFromError(err),
	}
	p.suite.Add(c)

	for _, o := range r.observers {
		if err := attempt(func() error { o.ObserveStage(p.def, c); return nil }); err != nil {
			log.Error(err, "observing stage")
		}
	}

	if c.Failed() {
		log.Info("stage failed", "kind", c.Failure.Kind, "err", c.Failure.Message, "duration", c.Duration)
		return false
	}

	log.V(1).Info("stage passed", "duration", c.Duration)
	return true
}

func (r *Runner) build(ctx context.Context, p *run) (string, error) {
	f, err := os.CreateTemp(r.tempDir, fmt.Sprintf("uniharness-%s-", p.def.Name))
	if err != nil {
		return "", result.Classify(err, result.ErrBuildFailure)
	}
	p.kernel = f.Name()
	if err := f.Close(); err != nil {
		return "", result.Classify(err, result.ErrBuildFailure)
	}

	logr.FromContextOrDiscard(ctx).V(1).Info("building", "app", p.def.AppPath(), "output", p.kernel)

	out, err := r.builder.Build(ctx, build.Options{
		AppPath:    p.def.AppPath(),
		OutputPath: p.kernel,
		BuildAll:   r.buildAll,
		Verbose:    r.verbose,
		DepRoot:    p.def.DepRoot(),
	})
	if err != nil {
		return out, result.Classify(err, result.ErrBuildFailure)
	}
	return out, nil
}

func (r *Runner) execute(ctx context.Context, p *run) (string, error) {
	cfg := p.def.GuestConfig(r.guestName(p.def.Name), p.kernel)

	g, err := r.lifecycle.CreatePausedGuest(ctx, cfg)
	// a guest returned with an error still has to be destroyed
	p.guest = g
	if err != nil {
		if errors.Is(err, lifecycle.ErrGuestCreation) {
			return "", result.Classify(err, result.ErrGuestCreationFailure, result.ErrExecutionFailure)
		}
		return "", result.Classify(err, result.ErrExecutionFailure)
	}

	res, err := r.lifecycle.UnpauseAndCollect(ctx, g, lifecycle.Options{
		Timeout: p.def.Timeout,
		Stdin:   p.def.Stdin,
	})
	p.exec = res
	if err != nil {
		return res.Output, result.Classify(err, result.ErrExecutionFailure)
	}
	return res.Output, nil
}

func (r *Runner) check(_ context.Context, p *run) (string, error) {
	res := p.exec
	summary := fmt.Sprintf("state %s (%s), didTimeout=%t", res.State.Hex(), res.State, res.DidTimeout)

	if res.State.Has(guest.StateCrashed) && !p.def.CanCrash {
		return summary, result.Classify(fmt.Errorf("unexpected crash (state %s)", res.State.Hex()), result.ErrPolicyViolation)
	}

	if res.State.Has(guest.StateShutdown) && !p.def.CanShutdown {
		return summary, result.Classify(fmt.Errorf("unexpected shutdown (state %s)", res.State.Hex()), result.ErrPolicyViolation)
	}

	if p.def.Validate == nil {
		return summary + "\nno output checks specified", nil
	}

	if err := validate(p.def.Validate, res); err != nil {
		return summary, result.Classify(err, result.ErrCheckFailure)
	}
	return summary, nil
}

// clean destroys the guest and removes the image, each independently. It
// reports what it did in its output and never fails.
func (r *Runner) clean(ctx context.Context, p *run) (string, error) {
	var (
		out  strings.Builder
		errs []error
	)

	if p.guest != nil {
		err := attempt(func() error { return r.lifecycle.Destroy(ctx, p.guest) })
		if err != nil {
			errs = append(errs, err)
			fmt.Fprintf(&out, "[-] destroying guest %s: %v\n", p.guest.Name, err)
		} else {
			fmt.Fprintf(&out, "[+] destroyed guest %s\n", p.guest.Name)
		}
	}

	if p.kernel != "" {
		err := attempt(func() error { return os.Remove(p.kernel) })
		switch {
		case err == nil:
			fmt.Fprintf(&out, "[+] removed %s\n", p.kernel)
		case errors.Is(err, os.ErrNotExist):
			fmt.Fprintf(&out, "[+] %s already removed\n", p.kernel)
		default:
			errs = append(errs, err)
			fmt.Fprintf(&out, "[-] removing %s: %v\n", p.kernel, err)
		}
	}

	if agg := utilerrors.NewAggregate(errs); agg != nil {
		logr.FromContextOrDiscard(ctx).V(1).Info("cleanup incomplete", "err", agg.Error())
	}
	return out.String(), nil
}
