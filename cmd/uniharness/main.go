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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/go-logr/logr"

	"github.com/alexandremahdhaoui/uniharness/internal/metrics"
	"github.com/alexandremahdhaoui/uniharness/internal/util/gracefulshutdown"
	"github.com/alexandremahdhaoui/uniharness/internal/util/logging"
	"github.com/alexandremahdhaoui/uniharness/pkg/build"
	"github.com/alexandremahdhaoui/uniharness/pkg/execcontext"
	"github.com/alexandremahdhaoui/uniharness/pkg/harness"
	"github.com/alexandremahdhaoui/uniharness/pkg/lifecycle"
	"github.com/alexandremahdhaoui/uniharness/pkg/pipeline"
	"github.com/alexandremahdhaoui/uniharness/pkg/reporting"
	"github.com/alexandremahdhaoui/uniharness/pkg/suites/console"
	"github.com/alexandremahdhaoui/uniharness/pkg/testdef"
	"github.com/alexandremahdhaoui/uniharness/pkg/vmm"
)

const (
	Name = "uniharness"
)

var (
	Version        = "dev" //nolint:gochecknoglobals // set by ldflags
	CommitSHA      = "n/a" //nolint:gochecknoglobals // set by ldflags
	BuildTimestamp = "n/a" //nolint:gochecknoglobals // set by ldflags
)

// Exit codes
const (
	exitSuccess = 0 // every selected test passed
	exitFailure = 1 // a test failed
	exitError   = 2 // invalid arguments or configuration, setup errors
)

// options are the command line flags.
type options struct {
	configPath string
	list       bool
	tests      stringList
	junit      string
	report     string
	verbosity  int
	silent     bool
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	var o options

	fs := flag.NewFlagSet(Name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", os.Getenv(ConfigPathEnvKey),
		"path to the YAML configuration file (env "+ConfigPathEnvKey+")")
	fs.BoolVar(&o.list, "list", false, "list all known tests and exit")
	fs.Var(&o.tests, "test", "run a specific test; repeatable")
	fs.StringVar(&o.junit, "junit", "", "write a JUnit report to the specified file")
	fs.StringVar(&o.report, "report", "", "comma-separated report formats written to the artifact directory (text, json, junit)")
	fs.IntVar(&o.verbosity, "v", -1, "log verbosity, overrides the configuration")
	fs.BoolVar(&o.silent, "silent", false, "discard all logs")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options]\n\nOptions:\n", Name)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return o, nil
}

// apply merges command line overrides into config.
func (o options) apply(config *Config) error {
	if o.verbosity >= 0 {
		config.Logging.Verbosity = o.verbosity
	}
	if o.silent {
		config.Logging.Silent = true
	}
	if o.report != "" {
		config.Report.Formats = strings.Split(o.report, ",")
	}
	return config.Validate()
}

// ------------------------------------------------- Main ----------------------------------------------------------- //

func main() {
	o, err := parseOptions(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(exitSuccess)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}

	// --------------------------------------------- Config --------------------------------------------------------- //

	config, err := LoadConfig(o.configPath)
	if err == nil {
		err = o.apply(config)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading configuration: %v\n", err)
		os.Exit(exitError)
	}

	// --------------------------------------------- Tests ---------------------------------------------------------- //

	registry, err := newRegistry(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading tests: %v\n", err)
		os.Exit(exitError)
	}

	if o.list {
		listTests(os.Stdout, registry)
		os.Exit(exitSuccess)
	}

	defs, err := registry.Select(o.tests...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}

	// --------------------------------------------- Logging -------------------------------------------------------- //

	logger := logging.Setup(logging.Options{
		Development: config.Logging.Development,
		Verbosity:   config.Logging.Verbosity,
		Silent:      config.Logging.Silent,
	})

	slog.Info(fmt.Sprintf("Starting %s version %s (%s) %s", Name, Version, CommitSHA, BuildTimestamp))

	// --------------------------------------------- Graceful Shutdown ---------------------------------------------- //

	gs := gracefulshutdown.New(Name)
	gs.Run(func(ctx context.Context) int {
		return run(logr.NewContext(ctx, logger), config, o, defs)
	})
}

// newRegistry registers the built-in suite and the descriptors of
// config.TestsDir.
func newRegistry(config *Config) (*testdef.Registry, error) {
	registry := testdef.NewRegistry()

	if !config.DisableBuiltinSuite {
		if err := console.Register(registry, config.TestsRoot); err != nil {
			return nil, err
		}
	}

	if config.TestsDir != "" {
		if err := testdef.NewLoader("").LoadInto(registry, config.TestsDir); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func listTests(w io.Writer, registry *testdef.Registry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, d := range registry.All() {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.Category, d.Timeout)
	}
	_ = tw.Flush()
}

// newVMM returns the configured hypervisor backend.
func newVMM(config *Config) (vmm.VMM, error) {
	return vmm.New(vmm.Options{
		Backend: vmm.Backend(config.Hypervisor),
		XL: []vmm.XLOption{
			vmm.WithXLPath(config.XLPath),
			vmm.WithExecContext(execcontext.New(nil, config.CommandPrefix)),
			vmm.WithTempDir(config.TempDir),
		},
		LibvirtURI: config.LibvirtURI,
	})
}

// run runs defs and writes the reports. It returns the process exit code.
func run(ctx context.Context, config *Config, o options, defs []*testdef.Definition) int {
	log := logr.FromContextOrDiscard(ctx)

	// --------------------------------------------- Hypervisor ----------------------------------------------------- //

	hv, err := newVMM(config)
	if err != nil {
		log.Error(err, "connecting to the hypervisor", "hypervisor", config.Hypervisor)
		return exitError
	}
	defer func() {
		if err := hv.Close(); err != nil {
			log.Error(err, "closing the hypervisor connection")
		}
	}()

	controller := lifecycle.New(hv,
		lifecycle.WithPollInterval(config.PollInterval.Duration),
		lifecycle.WithGracePeriod(config.GracePeriod.Duration),
	)

	builder := build.New(config.BuildRoot,
		build.WithTool(config.BuildTool),
		build.WithDepRootEnv(config.DepRootEnv),
		build.WithPrependCmd(config.CommandPrefix...),
	)

	// --------------------------------------------- Metrics -------------------------------------------------------- //

	reg := metrics.New()
	reg.Expect(len(defs))

	if config.MetricsServer.Port > 0 {
		stop := serveMetrics(ctx, config, reg)
		defer stop()
	}

	// --------------------------------------------- Harness -------------------------------------------------------- //

	runner := pipeline.New(builder, controller,
		pipeline.WithTempDir(config.TempDir),
		pipeline.WithBuildFlags(config.BuildAll, config.VerboseBuild),
		pipeline.WithObserver(reg),
		pipeline.WithTransitionHook(func(def *testdef.Definition, s pipeline.State) {
			log.V(1).Info("pipeline state", "test", def.Name, "state", s)
		}),
	)

	h := harness.New(runner, harness.WithSuiteObserver(reg))

	log.Info(fmt.Sprintf("running %d tests", len(defs)))
	set, runErr := h.Run(ctx, defs)
	if runErr != nil {
		log.Info("run stopped early", "err", runErr.Error())
	}

	for _, e := range controller.Events() {
		log.V(1).Info("guest event", "guest", e.Guest, "type", e.Type, "details", e.Details, "at", e.Timestamp)
	}

	// --------------------------------------------- Reports -------------------------------------------------------- //

	reporter := reporting.NewReporter(config.Report.ArtifactDir)
	reportErr := writeReports(ctx, reporter, config, o, set)

	if err := reporter.PrintSummary(os.Stdout, set); err != nil {
		log.Error(err, "printing summary")
	}

	switch {
	case set.Failed():
		return exitFailure
	case runErr != nil:
		return gracefulshutdown.ExitInterrupted
	case reportErr != nil:
		return exitError
	default:
		return exitSuccess
	}
}
