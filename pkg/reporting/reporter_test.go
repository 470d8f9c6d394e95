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

package reporting

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexandremahdhaoui/uniharness/pkg/result"
)

// Test fixtures

func createSetAllPass() *result.Set {
	start := time.Date(2016, time.January, 1, 10, 30, 0, 0, time.UTC)
	set := result.NewSet(start)
	set.EndTime = start.Add(3 * time.Second)

	s := result.NewTestSuite("hello_world", "console")
	s.Add(result.TestCase{Stage: result.StageBuild, Test: "hello_world", Duration: time.Second, Output: "built\n"})
	s.Add(result.TestCase{Stage: result.StageExecute, Test: "hello_world", Duration: time.Second, Output: "Hello World!\n"})
	s.Add(result.TestCase{Stage: result.StageCheck, Test: "hello_world"})
	s.Add(result.TestCase{Stage: result.StageClean, Test: "hello_world", Output: "[+] destroyed guest hello_world-0000abcd\n"})
	set.Add(*s)
	return set
}

func createSetWithFailure() *result.Set {
	set := createSetAllPass()

	s := result.NewTestSuite("sleep_and_time", "console")
	s.Add(result.TestCase{Stage: result.StageBuild, Test: "sleep_and_time", Duration: time.Second})
	s.Add(result.TestCase{Stage: result.StageExecute, Test: "sleep_and_time", Duration: 2 * time.Second, Output: "booting\n"})
	s.Add(result.TestCase{
		Stage:  result.StageCheck,
		Test:   "sleep_and_time",
		Output: "state 0x01 (running), didTimeout=true",
		Failure: &result.Failure{
			Kind:    result.KindCheckFailure,
			Message: "missing greeting: got 0 hello worlds, expected at least 10",
			Trace:   "goroutine 1 [running]:",
		},
	})
	s.Add(result.TestCase{Stage: result.StageClean, Test: "sleep_and_time"})
	set.Add(*s)
	return set
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	_, err := ParseFormat("yaml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestGenerateReport_Text(t *testing.T) {
	r := NewReporter(t.TempDir())

	t.Run("all pass", func(t *testing.T) {
		out, err := r.GenerateReport(createSetAllPass(), FormatText)
		require.NoError(t, err)

		assert.Contains(t, out, "UNIKERNEL INTEGRATION TEST REPORT")
		assert.Contains(t, out, "Tests:     1 total, 1 passed, 0 failed")
		assert.Contains(t, out, "[1/1] hello_world")
		assert.Contains(t, out, "Started:   2016-01-01T10:30:00Z")
		assert.NotContains(t, out, "FAILURES")
		assert.Contains(t, out, "TEST RESULT: "+formatStatus(true))
	})

	t.Run("with failure", func(t *testing.T) {
		out, err := r.GenerateReport(createSetWithFailure(), FormatText)
		require.NoError(t, err)

		assert.Contains(t, out, "Tests:     2 total, 1 passed, 1 failed")
		assert.Contains(t, out, "FAILURES")
		assert.Contains(t, out, "[1] Test: sleep_and_time - Stage: check")
		assert.Contains(t, out, "Kind:     CheckFailure")
		assert.Contains(t, out, "      state 0x01 (running), didTimeout=true\n")
		assert.Contains(t, out, "Compare the captured output")
		assert.Contains(t, out, "TEST RESULT: "+formatStatus(false))
	})
}

func TestGenerateReport_JSON(t *testing.T) {
	set := createSetWithFailure()
	out, err := NewReporter(t.TempDir()).GenerateReport(set, FormatJSON)
	require.NoError(t, err)

	var decoded struct {
		RunID   string         `json:"runID"`
		Summary result.Summary `json:"summary"`
		Suites  []struct {
			Name  string `json:"name"`
			Cases []struct {
				Stage   string          `json:"stage"`
				Failure *result.Failure `json:"failure"`
			} `json:"cases"`
		} `json:"suites"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))

	assert.Equal(t, set.RunID, decoded.RunID)
	assert.Equal(t, 2, decoded.Summary.Total)
	assert.Equal(t, 1, decoded.Summary.Failed)
	require.Len(t, decoded.Suites, 2)
	require.Len(t, decoded.Suites[1].Cases, 4)
	require.NotNil(t, decoded.Suites[1].Cases[2].Failure)
	assert.Equal(t, result.KindCheckFailure, decoded.Suites[1].Cases[2].Failure.Kind)
}

func TestGenerateReport_JUnit(t *testing.T) {
	set := createSetWithFailure()
	out, err := NewReporter(t.TempDir()).GenerateReport(set, FormatJUnit)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, xml.Header))

	var decoded junitReport
	require.NoError(t, xml.Unmarshal([]byte(out), &decoded))

	assert.Equal(t, 2, decoded.Tests)
	assert.Equal(t, 1, decoded.Failures)
	require.Len(t, decoded.Suites, 2)

	passed, failed := decoded.Suites[0], decoded.Suites[1]
	assert.Equal(t, "hello_world", passed.Name)
	assert.Equal(t, 0, passed.Failures)
	require.Len(t, passed.Cases, 4)
	assert.Equal(t, "console.hello_world", passed.Cases[0].ClassName)
	assert.Equal(t, "build", passed.Cases[0].Name)
	assert.Equal(t, "1.000000", passed.Cases[0].Time)
	assert.Equal(t, "Hello World!\n", passed.Cases[1].Output)
	assert.Contains(t, passed.Properties, junitProperty{Name: "category", Value: "console"})

	assert.Equal(t, 1, failed.Failures)
	check := failed.Cases[2]
	require.NotNil(t, check.Failure)
	assert.Equal(t, "CheckFailure", check.Failure.Type)
	assert.Equal(t, "check stage failed", check.Failure.Message)
	assert.Contains(t, check.Failure.Contents, "missing greeting")
	assert.Contains(t, check.Failure.Contents, "goroutine 1 [running]:")
}

func TestGenerateReport_Unsupported(t *testing.T) {
	_, err := NewReporter(t.TempDir()).GenerateReport(createSetAllPass(), Format("yaml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter(dir)
	set := createSetAllPass()

	for _, tt := range []struct {
		format Format
		name   string
	}{
		{FormatText, "report.txt"},
		{FormatJSON, "report.json"},
		{FormatJUnit, "report.xml"},
	} {
		path, err := r.WriteReport(set, tt.format)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, set.RunID, tt.name), path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}
}

func TestWriteFile_MissingDirectory(t *testing.T) {
	r := NewReporter(t.TempDir())
	err := r.WriteFile(createSetAllPass(), FormatJUnit, filepath.Join(t.TempDir(), "missing", "report.xml"))
	assert.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewReporter("").PrintSummary(&buf, createSetWithFailure()))

	out := buf.String()
	assert.Contains(t, out, "TEST SUMMARY")
	assert.Contains(t, out, "Tests:    2 total, 1 passed, 1 failed")
	assert.Contains(t, out, "1. sleep_and_time: CheckFailure in check stage")
}

func TestWrapText(t *testing.T) {
	short := "short message"
	assert.Equal(t, short, wrapText(short, 4))

	long := strings.Repeat("word ", 30)
	wrapped := wrapText(long, 4)
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(strings.TrimLeft(line, " ")), 64)
	}
}

func TestTail(t *testing.T) {
	assert.Equal(t, "", tail("\n", 3))
	assert.Equal(t, "c\nd", tail("a\nb\nc\nd\n", 2))
	assert.Equal(t, "a", tail("a", 2))
}
