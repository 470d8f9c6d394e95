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

// Package harness runs a selection of tests one after the other and gathers
// their suites into a result set.
package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/alexandremahdhaoui/uniharness/pkg/result"
	"github.com/alexandremahdhaoui/uniharness/pkg/testdef"
)

// ErrInterrupted is returned when the run was cancelled before every test ran.
var ErrInterrupted = errors.New("harness run interrupted")

// Pipeline runs a single test.
type Pipeline interface {
	Run(ctx context.Context, def *testdef.Definition) *result.TestSuite
}

// SuiteObserver is notified of every finished test.
type SuiteObserver interface {
	ObserveSuite(s *result.TestSuite)
}

type Harness struct {
	pipeline  Pipeline
	clock     clock.PassiveClock
	observers []SuiteObserver
}

type Option func(*Harness)

func WithClock(c clock.PassiveClock) Option {
	return func(h *Harness) {
		h.clock = c
	}
}

func WithSuiteObserver(o SuiteObserver) Option {
	return func(h *Harness) {
		h.observers = append(h.observers, o)
	}
}

func New(p Pipeline, opts ...Option) *Harness {
	h := &Harness{
		pipeline: p,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run runs defs in order. A cancelled context stops the run before the next
// test starts; the test in flight still goes through its Clean stage. The
// returned set holds every finished suite, also when an error is returned.
func (h *Harness) Run(ctx context.Context, defs []*testdef.Definition) (*result.Set, error) {
	log := logr.FromContextOrDiscard(ctx)
	set := result.NewSet(h.clock.Now())
	log = log.WithValues("runID", set.RunID)

	defer func() {
		set.EndTime = h.clock.Now()
	}()

	for i, def := range defs {
		if err := ctx.Err(); err != nil {
			log.Info("run interrupted", "remaining", len(defs)-i)
			return set, errors.Join(err, fmt.Errorf("%w: %d of %d tests not run", ErrInterrupted, len(defs)-i, len(defs)))
		}

		log.Info(fmt.Sprintf("(%d/%d) running %s", i+1, len(defs), def.Name), "category", def.Category)

		suite := h.pipeline.Run(logr.NewContext(ctx, log), def)
		set.Add(*suite)

		for _, o := range h.observers {
			o.ObserveSuite(suite)
		}

		if f := suite.FirstFailure(); f != nil {
			log.Info(fmt.Sprintf("(%d/%d) %s failed", i+1, len(defs), def.Name),
				"stage", f.Stage, "kind", f.Failure.Kind)
		} else {
			log.Info(fmt.Sprintf("(%d/%d) %s passed", i+1, len(defs), def.Name), "duration", suite.Duration())
		}
	}

	sum := set.Summary()
	log.Info("run finished", "total", sum.Total, "passed", sum.Passed, "failed", sum.Failed)
	return set, nil
}
