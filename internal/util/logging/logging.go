// Copyright 2024 Alexandre Mahdhaoui
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging sets up the harness loggers: a logr.Logger backed by zap,
// handed to the harness through its context, and a log/slog default logger
// for the command's own messages.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Options configures the logger behavior.
type Options struct {
	// Development enables human-readable console output.
	Development bool

	// Verbosity is the highest logr V-level written. 1 adds guest lifecycle
	// detail, 2 adds every external command line.
	Verbosity int

	// Silent discards all logs.
	Silent bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultOptions returns the default logging options.
func DefaultOptions() Options {
	return Options{
		Development: true,
		Verbosity:   0,
	}
}

// Setup configures slog and returns the logr logger. The same logger is
// registered with controller-runtime so library code logging through it is
// not lost.
func Setup(opts Options) logr.Logger {
	if opts.Silent {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		logger := logr.Discard()
		ctrl.SetLogger(logger)
		return logger
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	// logr V(n) maps to zap level -n.
	level := zapcore.Level(-opts.Verbosity)

	var handler slog.Handler
	if opts.Development {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.Level(level) * 4})
	} else {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.Level(level) * 4})
	}
	slog.SetDefault(slog.New(handler))

	zapOpts := zap.Options{
		Development: opts.Development,
		DestWriter:  out,
		Level:       level,
	}
	logger := zap.New(zap.UseFlagOptions(&zapOpts))
	ctrl.SetLogger(logger)

	return logger
}
