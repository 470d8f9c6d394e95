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

package vmm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/alexandremahdhaoui/uniharness/pkg/execcontext"
	"github.com/alexandremahdhaoui/uniharness/pkg/guest"
)

const (
	DefaultXLPath = "xl"

	// consoleWaitDelay bounds how long Close waits for the console's output
	// pipes once the process is gone.
	consoleWaitDelay = time.Second
)

// XL drives the hypervisor through the xl command-line tool.
type XL struct {
	path    string
	ectx    execcontext.Context
	tempDir string
}

// XLOption configures an XL backend.
type XLOption func(*XL)

// WithXLPath sets the xl binary to run.
func WithXLPath(path string) XLOption {
	return func(x *XL) {
		x.path = path
	}
}

// WithExecContext sets environment overrides and a command prefix (e.g. sudo).
func WithExecContext(ectx execcontext.Context) XLOption {
	return func(x *XL) {
		x.ectx = ectx
	}
}

// WithTempDir sets where guest configuration files are written.
func WithTempDir(dir string) XLOption {
	return func(x *XL) {
		x.tempDir = dir
	}
}

func NewXL(opts ...XLOption) *XL {
	x := &XL{
		path: DefaultXLPath,
		ectx: execcontext.New(nil, nil),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// CreatePaused implements VMM.
func (x *XL) CreatePaused(ctx context.Context, cfg guest.Config) error {
	f, err := os.CreateTemp(x.tempDir, fmt.Sprintf("uniharness-%s-*.cfg", cfg.Name))
	if err != nil {
		return errors.Join(err, errWriteGuestCfg)
	}
	defer os.Remove(f.Name())

	if err := guest.WriteConfiguration(f, cfg); err != nil {
		_ = f.Close()
		return errors.Join(err, fmt.Errorf("path=%s", f.Name()), errWriteGuestCfg)
	}
	if err := f.Close(); err != nil {
		return errors.Join(err, fmt.Errorf("path=%s", f.Name()), errWriteGuestCfg)
	}

	if _, err := x.run(ctx, "create", "-f", f.Name(), "-p"); err != nil {
		return errors.Join(err, fmt.Errorf("name=%s", cfg.Name), errCreateGuest)
	}
	return nil
}

// List implements VMM.
func (x *XL) List(ctx context.Context) ([]guest.Snapshot, error) {
	out, err := x.run(ctx, "list")
	if err != nil {
		return nil, errors.Join(err, errListGuests)
	}

	snapshots, err := guest.ParseList(out)
	if err != nil {
		return nil, errors.Join(err, errListGuests)
	}
	return snapshots, nil
}

// Unpause implements VMM.
func (x *XL) Unpause(ctx context.Context, id int) error {
	if _, err := x.run(ctx, "unpause", strconv.Itoa(id)); err != nil {
		return errors.Join(err, fmt.Errorf("id=%d", id), errUnpauseGuest)
	}
	return nil
}

// Destroy implements VMM.
func (x *XL) Destroy(ctx context.Context, id int) error {
	if _, err := x.run(ctx, "destroy", strconv.Itoa(id)); err != nil {
		return errors.Join(err, fmt.Errorf("id=%d", id), errDestroyGuest)
	}
	return nil
}

// Console implements VMM. Standard output and standard error of the console
// process are merged into the returned stream.
func (x *XL) Console(ctx context.Context, id int) (Console, error) {
	cmd := execcontext.Command(ctx, x.ectx, x.path, "console", strconv.Itoa(id))
	cmd.WaitDelay = consoleWaitDelay

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Join(err, fmt.Errorf("id=%d", id), errOpenConsole)
	}

	logr.FromContextOrDiscard(ctx).V(2).Info("starting console",
		"cmd", execcontext.FormatCmd(x.ectx, x.path, "console", strconv.Itoa(id)))

	if err := cmd.Start(); err != nil {
		return nil, errors.Join(err, fmt.Errorf("id=%d", id), errOpenConsole)
	}

	c := &xlConsole{
		Reader: pr,
		stdin:  stdin,
		cmd:    cmd,
	}

	c.g.Go(func() error {
		err := cmd.Wait()
		_ = pw.Close()
		if c.killed.Load() {
			return nil
		}
		return err
	})

	return c, nil
}

// Close implements VMM.
func (x *XL) Close() error {
	return nil
}

// run returns the standard output of xl. Standard error is only reported,
// so warnings never reach the parsers.
func (x *XL) run(ctx context.Context, args ...string) (string, error) {
	cmd := execcontext.Command(ctx, x.ectx, x.path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log := logr.FromContextOrDiscard(ctx)
	log.V(2).Info("running",
		"cmd", execcontext.FormatCmd(x.ectx, append([]string{x.path}, args...)...))

	if err := cmd.Run(); err != nil {
		return stdout.String(), errors.Join(err, fmt.Errorf("stderr: %s", strings.TrimSpace(stderr.String())))
	}
	if stderr.Len() > 0 {
		log.V(1).Info("xl wrote to stderr", "args", args, "stderr", strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

type xlConsole struct {
	io.Reader

	stdin io.WriteCloser
	cmd   *exec.Cmd
	g     errgroup.Group

	killed   atomic.Bool
	once     sync.Once
	closeErr error
}

func (c *xlConsole) Write(p []byte) (int, error) {
	return c.stdin.Write(p)
}

// Close stops the console process and waits for it to exit.
func (c *xlConsole) Close() error {
	c.once.Do(func() {
		_ = c.stdin.Close()
		c.killed.Store(true)
		if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			c.closeErr = err
			return
		}
		c.closeErr = c.g.Wait()
	})
	return c.closeErr
}
