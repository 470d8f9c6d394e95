//go:build unit

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

package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tracedError struct{ error }

func (tracedError) StackTrace() string { return "goroutine 1 [running]:" }

func TestFailureFromError(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		expected FailureKind
	}{
		{name: "build", err: errors.Join(errBoom, ErrBuildFailure), expected: KindBuildFailure},
		{name: "creation", err: errors.Join(errBoom, ErrGuestCreationFailure), expected: KindGuestCreationFailure},
		{name: "execution", err: fmt.Errorf("%w: poll", ErrExecutionFailure), expected: KindExecutionFailure},
		{name: "policy", err: ErrPolicyViolation, expected: KindPolicyViolation},
		{name: "check", err: errors.Join(errBoom, ErrCheckFailure), expected: KindCheckFailure},
		{name: "unclassified", err: errBoom, expected: KindUnexpectedStageError},
		{
			name:     "unexpected wins over the stage kind",
			err:      errors.Join(ErrBuildFailure, ErrUnexpectedStage),
			expected: KindUnexpectedStageError,
		},
		{
			name:     "creation wins over execution",
			err:      errors.Join(ErrGuestCreationFailure, ErrExecutionFailure),
			expected: KindGuestCreationFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := FailureFromError(tt.err)
			require.NotNil(t, f)
			assert.Equal(t, tt.expected, f.Kind)
			assert.Equal(t, tt.err.Error(), f.Message)
			assert.Empty(t, f.Trace)
		})
	}

	assert.Nil(t, FailureFromError(nil))
}

func TestClassify(t *testing.T) {
	errMissing := errors.New(`guest creation failed: no guest with the expected name "hello_world-0000abcd"`)

	err := Classify(errMissing, ErrGuestCreationFailure, ErrExecutionFailure)
	assert.ErrorIs(t, err, errMissing)
	assert.ErrorIs(t, err, ErrExecutionFailure)

	f := FailureFromError(err)
	require.NotNil(t, f)
	assert.Equal(t, KindGuestCreationFailure, f.Kind)
	assert.Equal(t, errMissing.Error(), f.Message)

	traced := FailureFromError(Classify(tracedError{errors.New("panic: nil map")}, ErrUnexpectedStage))
	require.NotNil(t, traced)
	assert.Equal(t, KindUnexpectedStageError, traced.Kind)
	assert.Equal(t, "panic: nil map", traced.Message)
	assert.Equal(t, "goroutine 1 [running]:", traced.Trace)

	assert.NoError(t, Classify(nil, ErrCheckFailure))
}

func TestFailureFromError_Trace(t *testing.T) {
	err := errors.Join(tracedError{errors.New("panic: nil map")}, ErrUnexpectedStage)

	f := FailureFromError(err)
	require.NotNil(t, f)
	assert.Equal(t, KindUnexpectedStageError, f.Kind)
	assert.Equal(t, "goroutine 1 [running]:", f.Trace)
}

func TestTestSuite(t *testing.T) {
	s := NewTestSuite("hello_world", "console")
	s.Add(TestCase{Stage: StageBuild, Test: "hello_world", Duration: time.Second})
	s.Add(TestCase{Stage: StageExecute, Test: "hello_world", Duration: 2 * time.Second,
		Failure: &Failure{Kind: KindExecutionFailure, Message: "boom"}})
	s.Add(TestCase{Stage: StageClean, Test: "hello_world", Duration: time.Millisecond})

	assert.True(t, s.Failed())
	assert.Equal(t, []Stage{StageBuild, StageExecute, StageClean}, s.Stages())
	assert.Equal(t, 3*time.Second+time.Millisecond, s.Duration())
	require.NotNil(t, s.FirstFailure())
	assert.Equal(t, StageExecute, s.FirstFailure().Stage)
	assert.Nil(t, s.Case(StageCheck))
	require.NotNil(t, s.Case(StageClean))
	assert.False(t, s.Case(StageClean).Failed())
}

func TestSet_Summary(t *testing.T) {
	set := NewSet(time.Now())
	_, err := uuid.Parse(set.RunID)
	require.NoError(t, err)

	passed := NewTestSuite("a", "")
	passed.Add(TestCase{Stage: StageBuild, Duration: time.Second})
	failed := NewTestSuite("b", "")
	failed.Add(TestCase{Stage: StageBuild, Duration: time.Second, Failure: &Failure{Kind: KindBuildFailure}})

	set.Add(*passed)
	set.Add(*failed)
	set.Add(*passed)

	assert.Equal(t, Summary{Total: 3, Passed: 2, Failed: 1, Duration: 3 * time.Second}, set.Summary())
	assert.True(t, set.Failed())
}

func TestTestCase_JSON(t *testing.T) {
	c := TestCase{
		Stage:    StageCheck,
		Test:     "sleep_and_time",
		Duration: 1500 * time.Millisecond,
		Failure:  &Failure{Kind: KindPolicyViolation, Message: "unexpected crash (state 0x10)"},
	}

	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"stage": "check",
		"test": "sleep_and_time",
		"duration": 1500000000,
		"failure": {"kind": "PolicyViolation", "message": "unexpected crash (state 0x10)"}
	}`, string(b))
}
