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

package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/alexandremahdhaoui/uniharness/pkg/result"
	"github.com/alexandremahdhaoui/uniharness/pkg/testdef"
)

// MockPipeline is a mock for Pipeline
type MockPipeline struct {
	mock.Mock
}

func (m *MockPipeline) Run(ctx context.Context, def *testdef.Definition) *result.TestSuite {
	args := m.Called(ctx, def)
	return args.Get(0).(*result.TestSuite)
}

type suiteRecorder struct {
	names []string
}

func (r *suiteRecorder) ObserveSuite(s *result.TestSuite) {
	r.names = append(r.names, s.Name)
}

func suite(name string, failure *result.Failure) *result.TestSuite {
	s := result.NewTestSuite(name, "console")
	s.Add(result.TestCase{Stage: result.StageBuild, Test: name, Duration: time.Second, Failure: failure})
	s.Add(result.TestCase{Stage: result.StageClean, Test: name})
	return s
}

var t0 = time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestHarness_Run(t *testing.T) {
	defs := []*testdef.Definition{
		{Name: "hello_world", Category: "console"},
		{Name: "sleep_and_time", Category: "console"},
		{Name: "read_from_console", Category: "console"},
	}

	p := &MockPipeline{}
	p.On("Run", mock.Anything, defs[0]).Return(suite("hello_world", nil)).Once()
	p.On("Run", mock.Anything, defs[1]).
		Return(suite("sleep_and_time", &result.Failure{Kind: result.KindBuildFailure})).Once()
	p.On("Run", mock.Anything, defs[2]).Return(suite("read_from_console", nil)).Once()

	rec := &suiteRecorder{}
	fc := clocktesting.NewFakeClock(t0)
	h := New(p, WithClock(fc), WithSuiteObserver(rec))

	set, err := h.Run(context.Background(), defs)
	require.NoError(t, err)
	p.AssertExpectations(t)

	// a failing test does not stop the run
	require.Len(t, set.Suites, 3)
	assert.Equal(t, "hello_world", set.Suites[0].Name)
	assert.Equal(t, "sleep_and_time", set.Suites[1].Name)
	assert.Equal(t, "read_from_console", set.Suites[2].Name)
	assert.Equal(t, []string{"hello_world", "sleep_and_time", "read_from_console"}, rec.names)

	assert.Equal(t, result.Summary{Total: 3, Passed: 2, Failed: 1, Duration: 3 * time.Second}, set.Summary())
	assert.True(t, set.Failed())
	assert.Equal(t, t0, set.StartTime)
	assert.Equal(t, t0, set.EndTime)
	assert.NotEmpty(t, set.RunID)
}

func TestHarness_RunEmpty(t *testing.T) {
	p := &MockPipeline{}
	set, err := New(p).Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, set.Suites)
	assert.False(t, set.Failed())
	p.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestHarness_RunInterrupted(t *testing.T) {
	defs := []*testdef.Definition{
		{Name: "hello_world"},
		{Name: "sleep_and_time"},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &MockPipeline{}
	p.On("Run", mock.Anything, defs[0]).
		Run(func(mock.Arguments) { cancel() }).
		Return(suite("hello_world", nil)).Once()

	set, err := New(p).Run(ctx, defs)

	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, set.Suites, 1)
	assert.Equal(t, "hello_world", set.Suites[0].Name)
	assert.False(t, set.EndTime.IsZero())
	p.AssertNotCalled(t, "Run", mock.Anything, defs[1])
}
