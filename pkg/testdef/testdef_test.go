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

package testdef

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexandremahdhaoui/uniharness/pkg/guest"
)

func TestDefinition_Paths(t *testing.T) {
	d := &Definition{Path: "/tests/hello_world", Package: "github.com/unigornel/hello"}

	assert.Equal(t, "/tests/hello_world/go", d.DepRoot())
	assert.Equal(t, "/tests/hello_world/go/src/github.com/unigornel/hello", d.AppPath())

	cfg := d.WithDefaults().GuestConfig("hello_world-1a2b3c4d", "/tmp/img")
	assert.Equal(t, guest.Config{
		Kernel:   "/tmp/img",
		MemoryMB: 256,
		Name:     "hello_world-1a2b3c4d",
		OnCrash:  guest.OnCrashPreserve,
	}, cfg)
}

func TestDefinition_WithDefaults(t *testing.T) {
	orig := Definition{Name: "a", MemoryMB: 64, OnCrash: guest.OnCrashDestroy}
	d := orig.WithDefaults()

	assert.Equal(t, 64, d.MemoryMB)
	assert.Equal(t, DefaultTimeout, d.Timeout)
	assert.Equal(t, guest.OnCrashDestroy, d.OnCrash)
	assert.Zero(t, orig.Timeout)
}

func TestValidate(t *testing.T) {
	valid := Definition{Name: "hello_world", Path: "/t", Package: "p"}

	require.NoError(t, Validate(valid.WithDefaults()))

	var verrs ValidationErrors
	err := Validate(&Definition{Name: "bad name!", MemoryMB: -1, Timeout: -time.Second, OnCrash: "explode"})
	require.ErrorAs(t, err, &verrs)

	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"name", "path", "package", "memory", "timeout", "onCrash"}, fields)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(
		&Definition{Name: "a", Path: "/t/a", Package: "a"},
		&Definition{Name: "b", Path: "/t/b", Package: "b", Category: "console"},
	))

	assert.Equal(t, 2, r.Len())

	b, ok := r.Get("b")
	require.True(t, ok)
	assert.Equal(t, DefaultTimeout, b.Timeout)
	assert.Equal(t, "console", b.Category)

	selected, err := r.Select("b", "a")
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "b", selected[0].Name)
	assert.Equal(t, "a", selected[1].Name)

	all, err := r.Select()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = r.Select("c")
	assert.ErrorIs(t, err, ErrUnknownTest)

	err = r.Register(&Definition{Name: "a", Path: "/t/a", Package: "a"})
	assert.ErrorIs(t, err, ErrDuplicateTest)

	var verrs ValidationErrors
	err = r.Register(&Definition{Name: "c"})
	assert.ErrorAs(t, err, &verrs)
	assert.Equal(t, 2, r.Len())
}

func TestValidators(t *testing.T) {
	res := guest.ExecutionResult{
		Output:     "1 [boot] Hello World!\n2 [boot] Hello World!\n",
		DidTimeout: true,
	}
	re := regexp.MustCompile(`(?m)^(\d+) \[.*\] Hello World!`)

	assert.NoError(t, Contains("Hello")(res))
	assert.ErrorIs(t, Contains("Goodbye")(res), ErrUnexpectedOutput)
	assert.NoError(t, NotContains("panic")(res))
	assert.ErrorIs(t, NotContains("Hello")(res), ErrUnexpectedOutput)
	assert.NoError(t, Matches(re, 2)(res))
	assert.ErrorIs(t, Matches(re, 3)(res), ErrUnexpectedOutput)
	assert.NoError(t, ExpectTimeout(true)(res))
	assert.ErrorIs(t, ExpectTimeout(false)(res), ErrUnexpectedOutput)

	errA := errors.New("a")
	err := All(
		Contains("Hello"),
		nil,
		func(guest.ExecutionResult) error { return errA },
		Contains("Goodbye"),
	)(res)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, ErrUnexpectedOutput)
	assert.NoError(t, All()(res))
}

const helloDescriptor = `name: hello_world
category: console
path: hello_world
package: github.com/unigornel/integration_tests/hello_world
memory: 128
timeout: 5s
canShutdown: true
onCrash: destroy
stdin: "Unigornel\n"
checks:
  contains: ["Hello World!"]
  notContains: ["panic"]
  matches:
    - pattern: '^Hello'
  expectTimeout: false
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hello.yaml", helloDescriptor)

	def, err := NewLoader(dir).Load("hello.yaml")
	require.NoError(t, err)

	assert.Equal(t, "hello_world", def.Name)
	assert.Equal(t, "console", def.Category)
	assert.Equal(t, filepath.Join(dir, "hello_world"), def.Path)
	assert.Equal(t, "github.com/unigornel/integration_tests/hello_world", def.Package)
	assert.Equal(t, 128, def.MemoryMB)
	assert.Equal(t, 5*time.Second, def.Timeout)
	assert.False(t, def.CanCrash)
	assert.True(t, def.CanShutdown)
	assert.Equal(t, guest.OnCrashDestroy, def.OnCrash)
	assert.Equal(t, []byte("Unigornel\n"), def.Stdin)
	require.NotNil(t, def.Validate)

	assert.NoError(t, def.Validate(guest.ExecutionResult{Output: "Hello World!\n"}))
	assert.Error(t, def.Validate(guest.ExecutionResult{Output: "Hello World!\npanic\n"}))
	assert.Error(t, def.Validate(guest.ExecutionResult{Output: "Hello World!\n", DidTimeout: true}))
	assert.Error(t, def.Validate(guest.ExecutionResult{Output: "  Hello World!\n"}))
}

func TestLoader_Load_Defaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "min.yaml", "name: minimal\npath: /abs/minimal\npackage: min\n")

	def, err := NewLoader(dir).Load(filepath.Join(dir, "min.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/abs/minimal", def.Path)
	assert.Equal(t, guest.DefaultMemoryMB, def.MemoryMB)
	assert.Equal(t, DefaultTimeout, def.Timeout)
	assert.Equal(t, guest.OnCrashPreserve, def.OnCrash)
	assert.Nil(t, def.Validate)
	assert.Nil(t, def.Stdin)
}

func TestLoader_Load_Errors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		contains string
	}{
		{name: "unknown field", content: "name: a\npath: p\npackage: p\nfoo: bar\n", contains: "foo"},
		{name: "invalid yaml", content: "name: [a\n", contains: "failed to parse YAML"},
		{name: "bad timeout", content: "name: a\npath: p\npackage: p\ntimeout: soon\n", contains: "timeout"},
		{
			name:     "bad pattern",
			content:  "name: a\npath: p\npackage: p\nchecks:\n  matches:\n    - pattern: '('\n",
			contains: "checks.matches[0].pattern",
		},
		{name: "missing fields", content: "category: x\n", contains: "name is required"},
		{name: "empty file", content: "", contains: "name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			p := writeFile(t, dir, "test.yaml", tt.content)

			_, err := NewLoader("").Load(p)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoader_LoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yml", "name: b\npath: b\npackage: b\n")
	writeFile(t, dir, "a.yaml", "name: a\npath: a\npackage: a\n")
	writeFile(t, dir, "README.md", "not a descriptor")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755))

	defs, err := NewLoader("").LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].Name)
	assert.Equal(t, "b", defs[1].Name)

	r := NewRegistry()
	require.NoError(t, NewLoader("").LoadInto(r, dir))
	assert.Equal(t, 2, r.Len())
}

func TestLoader_LoadDir_AggregatesErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "name: a\npath: a\npackage: a\n")
	writeFile(t, dir, "b.yaml", "name: b\n")
	writeFile(t, dir, "c.yaml", "name: c\nbogus: 1\n")

	defs, err := NewLoader("").LoadDir(dir)
	require.Error(t, err)
	assert.Len(t, defs, 1)
	assert.Contains(t, err.Error(), "b.yaml")
	assert.Contains(t, err.Error(), "c.yaml")

	_, err = NewLoader("").LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
