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

// Package result holds the timed outcome records produced by each pipeline
// stage, grouped per test into suites and per run into a set.
package result

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Stage is one phase of a test's pipeline.
type Stage string

const (
	StageBuild   Stage = "build"
	StageExecute Stage = "execute"
	StageCheck   Stage = "check"
	StageClean   Stage = "clean"
)

// FailureKind classifies a stage failure.
type FailureKind string

const (
	KindBuildFailure         FailureKind = "BuildFailure"
	KindGuestCreationFailure FailureKind = "GuestCreationFailure"
	KindExecutionFailure     FailureKind = "ExecutionFailure"
	KindPolicyViolation      FailureKind = "PolicyViolation"
	KindCheckFailure         FailureKind = "CheckFailure"
	KindUnexpectedStageError FailureKind = "UnexpectedStageError"
)

// Sentinel errors for each failure kind. Stage errors are joined with one of
// them so FailureFromError can classify them.
var (
	ErrBuildFailure         = errors.New("build failure")
	ErrGuestCreationFailure = errors.New("guest creation failure")
	ErrExecutionFailure     = errors.New("execution failure")
	ErrPolicyViolation      = errors.New("policy violation")
	ErrCheckFailure         = errors.New("check failure")
	ErrUnexpectedStage      = errors.New("unexpected stage error")
)

// Classify marks err with sentinels for FailureFromError while keeping its
// message unchanged.
func Classify(err error, sentinels ...error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, sentinels: sentinels}
}

type classifiedError struct {
	err       error
	sentinels []error
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() []error {
	return append([]error{e.err}, e.sentinels...)
}

// kinds is ordered: the first match wins.
var kinds = []struct {
	err  error
	kind FailureKind
}{
	{ErrUnexpectedStage, KindUnexpectedStageError},
	{ErrPolicyViolation, KindPolicyViolation},
	{ErrCheckFailure, KindCheckFailure},
	{ErrGuestCreationFailure, KindGuestCreationFailure},
	{ErrExecutionFailure, KindExecutionFailure},
	{ErrBuildFailure, KindBuildFailure},
}

// Failure describes why a stage failed.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	// Trace is the stack captured when the stage panicked.
	Trace string `json:"trace,omitempty"`
}

type tracer interface {
	StackTrace() string
}

// FailureFromError converts err into a Failure. Errors carrying none of the
// sentinels are unexpected. A nil error yields a nil Failure.
func FailureFromError(err error) *Failure {
	if err == nil {
		return nil
	}

	f := &Failure{Kind: KindUnexpectedStageError, Message: err.Error()}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			f.Kind = k.kind
			break
		}
	}

	var t tracer
	if errors.As(err, &t) {
		f.Trace = t.StackTrace()
	}
	return f
}

// TestCase is the outcome of one stage of one test.
type TestCase struct {
	Stage Stage  `json:"stage"`
	Test  string `json:"test"`
	// Duration is serialized in nanoseconds.
	Duration time.Duration `json:"duration"`
	Output   string        `json:"output,omitempty"`
	Failure  *Failure      `json:"failure,omitempty"`
}

func (c TestCase) Failed() bool {
	return c.Failure != nil
}

// TestSuite is the ordered list of stage outcomes for one test.
type TestSuite struct {
	Name     string     `json:"name"`
	Category string     `json:"category,omitempty"`
	Cases    []TestCase `json:"cases"`
}

func NewTestSuite(name, category string) *TestSuite {
	return &TestSuite{
		Name:     name,
		Category: category,
		Cases:    make([]TestCase, 0, 4),
	}
}

func (s *TestSuite) Add(c TestCase) {
	s.Cases = append(s.Cases, c)
}

// Failed reports whether any case failed.
func (s *TestSuite) Failed() bool {
	for _, c := range s.Cases {
		if c.Failed() {
			return true
		}
	}
	return false
}

// FirstFailure returns the first failed case, or nil.
func (s *TestSuite) FirstFailure() *TestCase {
	for i := range s.Cases {
		if s.Cases[i].Failed() {
			return &s.Cases[i]
		}
	}
	return nil
}

// Case returns the case for stage, or nil if the stage did not run.
func (s *TestSuite) Case(stage Stage) *TestCase {
	for i := range s.Cases {
		if s.Cases[i].Stage == stage {
			return &s.Cases[i]
		}
	}
	return nil
}

// Stages returns the stages that ran, in order.
func (s *TestSuite) Stages() []Stage {
	out := make([]Stage, 0, len(s.Cases))
	for _, c := range s.Cases {
		out = append(out, c.Stage)
	}
	return out
}

// Duration is the sum of all case durations.
func (s *TestSuite) Duration() time.Duration {
	var d time.Duration
	for _, c := range s.Cases {
		d += c.Duration
	}
	return d
}

// Set is the aggregate result of a harness run.
type Set struct {
	RunID     string      `json:"runID"`
	StartTime time.Time   `json:"startTime"`
	EndTime   time.Time   `json:"endTime,omitzero"`
	Suites    []TestSuite `json:"suites"`
}

func NewSet(start time.Time) *Set {
	return &Set{
		RunID:     uuid.NewString(),
		StartTime: start,
		Suites:    make([]TestSuite, 0),
	}
}

func (s *Set) Add(suite TestSuite) {
	s.Suites = append(s.Suites, suite)
}

// Summary counts suites by outcome.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	// Duration is serialized in nanoseconds.
	Duration time.Duration `json:"duration"`
}

func (s *Set) Summary() Summary {
	sum := Summary{Total: len(s.Suites)}
	for i := range s.Suites {
		if s.Suites[i].Failed() {
			sum.Failed++
		} else {
			sum.Passed++
		}
		sum.Duration += s.Suites[i].Duration()
	}
	return sum
}

// Failed reports whether any suite failed.
func (s *Set) Failed() bool {
	return s.Summary().Failed > 0
}
