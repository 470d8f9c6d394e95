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

// Package build invokes the external tool that turns an application into a
// bootable unikernel image.
package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/alexandremahdhaoui/uniharness/pkg/execcontext"
)

// ErrBuildFailed is returned when the build tool cannot run or exits non-zero.
var ErrBuildFailed = errors.New("build failed")

const (
	DefaultTool       = "./build.bash"
	DefaultDepRootEnv = "GOPATH"
)

// Options describes one build.
type Options struct {
	// AppPath is the application source directory.
	AppPath string
	// OutputPath is where the image is written. Empty lets the tool decide.
	OutputPath string
	// BuildAll forces a rebuild of every dependency.
	BuildAll bool
	// Verbose makes the tool print the commands it runs.
	Verbose bool
	// DepRoot is the dependency root exported to the tool.
	DepRoot string
}

// Tool runs the build tool from its root directory.
type Tool struct {
	root       string
	tool       string
	depRootEnv string
	prependCmd []string
}

// Option configures a Tool.
type Option func(*Tool)

// WithTool sets the build tool, resolved relative to the root directory.
func WithTool(tool string) Option {
	return func(t *Tool) {
		t.tool = tool
	}
}

// WithDepRootEnv sets the environment variable carrying Options.DepRoot.
func WithDepRootEnv(name string) Option {
	return func(t *Tool) {
		t.depRootEnv = name
	}
}

// WithPrependCmd runs the tool through a command prefix.
func WithPrependCmd(cmd ...string) Option {
	return func(t *Tool) {
		t.prependCmd = cmd
	}
}

func New(root string, opts ...Option) *Tool {
	t := &Tool{
		root:       root,
		tool:       DefaultTool,
		depRootEnv: DefaultDepRootEnv,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Args returns the tool's arguments for opts.
func Args(opts Options) []string {
	args := []string{"app", "--app", opts.AppPath}
	if opts.OutputPath != "" {
		args = append(args, "-o", opts.OutputPath)
	}
	if opts.BuildAll {
		args = append(args, "-a")
	}
	if opts.Verbose {
		args = append(args, "-x")
	}
	return args
}

// Build runs the tool and returns its combined output, which is also
// returned when the build fails.
func (t *Tool) Build(ctx context.Context, opts Options) (string, error) {
	envs := map[string]string{}
	if opts.DepRoot != "" {
		envs[t.depRootEnv] = opts.DepRoot
	}
	ectx := execcontext.NewInDir(t.root, envs, t.prependCmd)

	args := Args(opts)
	cmd := execcontext.Command(ctx, ectx, t.tool, args...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	logr.FromContextOrDiscard(ctx).V(2).Info("building",
		"dir", t.root,
		"cmd", execcontext.FormatCmd(ectx, append([]string{t.tool}, args...)...))

	if err := cmd.Run(); err != nil {
		return out.String(), errors.Join(err, fmt.Errorf("%w: app %s", ErrBuildFailed, opts.AppPath))
	}
	return out.String(), nil
}
