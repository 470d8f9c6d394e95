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

// Package execcontext carries how external tools are invoked: environment
// overrides, an optional command prefix (e.g. "sudo") and a working directory.
package execcontext

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
)

type Context interface {
	Envs() map[string]string
	PrependCmd() []string
	Dir() string
}

func New(envs map[string]string, prependCmd []string) Context {
	return NewInDir("", envs, prependCmd)
}

// NewInDir returns a Context whose commands run in dir.
func NewInDir(dir string, envs map[string]string, prependCmd []string) Context {
	return &execContext{
		dir:        dir,
		envs:       maps.Clone(envs),
		prependCmd: slices.Clone(prependCmd),
	}
}

type execContext struct {
	dir        string
	envs       map[string]string
	prependCmd []string
}

// Envs implements Context.
func (c *execContext) Envs() map[string]string {
	out := make(map[string]string, len(c.envs))
	maps.Copy(out, c.envs)
	return out
}

// PrependCmd implements Context.
func (c *execContext) PrependCmd() []string {
	return slices.Clone(c.prependCmd)
}

// Dir implements Context.
func (c *execContext) Dir() string {
	return c.dir
}

// Command builds an *exec.Cmd for name and args as described by ectx.
//
// The process inherits the current environment; the overrides of ectx are
// appended in key order so they take precedence.
func Command(ctx context.Context, ectx Context, name string, args ...string) *exec.Cmd {
	argv := append(ectx.PrependCmd(), name)
	argv = append(argv, args...)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = ectx.Dir()
	cmd.Env = os.Environ()

	envs := ectx.Envs()
	for _, k := range slices.Sorted(maps.Keys(envs)) {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, envs[k]))
	}

	return cmd
}

// FormatCmd renders the command line as a shell would see it, for logging.
func FormatCmd(ctx Context, cmd ...string) string {
	out := ""

	envs := ctx.Envs()
	for _, k := range slices.Sorted(maps.Keys(envs)) {
		out = fmt.Sprintf("%s%s=%q ", out, k, envs[k])
	}

	for _, s := range ctx.PrependCmd() {
		out = safelyAppendToCmd(out, s)
	}

	for _, s := range cmd {
		out = safelyAppendToCmd(out, s)
	}

	return strings.TrimSpace(out)
}

var unquottable = map[string]struct{}{
	"&&": {},
	"||": {},
	";":  {},
	":":  {},
	"&":  {},
}

func safelyAppendToCmd(cmd string, s string) string {
	if _, ok := unquottable[s]; ok {
		return fmt.Sprintf("%s%s ", cmd, s)
	}
	return fmt.Sprintf("%s%q ", cmd, s)
}
