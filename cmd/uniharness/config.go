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
	"errors"
	"fmt"
	"os"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/alexandremahdhaoui/uniharness/pkg/build"
	"github.com/alexandremahdhaoui/uniharness/pkg/lifecycle"
	"github.com/alexandremahdhaoui/uniharness/pkg/reporting"
	"github.com/alexandremahdhaoui/uniharness/pkg/vmm"
)

const (
	// ConfigPathEnvKey is the environment variable key for the config file path.
	ConfigPathEnvKey = "UNIHARNESS_CONFIG_PATH"
	// BuildRootEnvKey overrides Config.BuildRoot.
	BuildRootEnvKey = "UNIGORNEL_ROOT"
)

// Config holds the configuration for uniharness.
type Config struct {
	// Build

	// BuildRoot is the directory the build tool runs in.
	BuildRoot string `json:"buildRoot"`
	// BuildTool is the build tool, relative to BuildRoot.
	BuildTool string `json:"buildTool"`
	// DepRootEnv is the variable carrying a test's dependency root to the build tool.
	DepRootEnv string `json:"depRootEnv"`
	// BuildAll rebuilds every dependency of each test. On by default.
	BuildAll bool `json:"buildAll"`
	// VerboseBuild makes the build tool print its commands. On by default.
	VerboseBuild bool `json:"verboseBuild"`

	// Tests

	// TestsRoot holds the sources of the built-in suite, under go/src.
	TestsRoot string `json:"testsRoot"`
	// TestsDir holds YAML test descriptors. Optional.
	TestsDir string `json:"testsDir,omitempty"`
	// DisableBuiltinSuite skips the compiled-in console tests.
	DisableBuiltinSuite bool `json:"disableBuiltinSuite"`
	// TempDir receives built images. Empty means the system default.
	TempDir string `json:"tempDir,omitempty"`

	// Hypervisor

	// Hypervisor is "xl" or "libvirt".
	Hypervisor string `json:"hypervisor"`
	// XLPath is the xl binary.
	XLPath string `json:"xlPath"`
	// LibvirtURI is the libvirt connection URI.
	LibvirtURI string `json:"libvirtURI"`
	// CommandPrefix is prepended to every external command, e.g. ["sudo"].
	CommandPrefix []string `json:"commandPrefix,omitempty"`
	// PollInterval is the guest state polling period.
	PollInterval metav1.Duration `json:"pollInterval"`
	// GracePeriod is how long console output is still collected after a
	// guest stops.
	GracePeriod metav1.Duration `json:"gracePeriod"`

	// Logging is the configuration for the logger.
	Logging struct {
		// Development enables human-readable output.
		Development bool `json:"development"`
		// Verbosity is 0, 1 (guest lifecycle) or 2 (command lines).
		Verbosity int `json:"verbosity"`
		// Silent discards all logs.
		Silent bool `json:"silent"`
	} `json:"logging"`

	// MetricsServer is the configuration for the metrics server.
	MetricsServer struct {
		// Port is the port for the metrics server. 0 disables it.
		Port int `json:"port"`
		// Path is the path for the metrics server.
		Path string `json:"path"`
	} `json:"metricsServer"`

	// Report is the configuration for the written reports.
	Report struct {
		// Formats lists the report formats written to ArtifactDir.
		Formats []string `json:"formats,omitempty"`
		// ArtifactDir is where reports are written, under the run ID.
		ArtifactDir string `json:"artifactDir"`
	} `json:"report"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	c := &Config{
		BuildRoot:    ".",
		BuildTool:    build.DefaultTool,
		DepRootEnv:   build.DefaultDepRootEnv,
		BuildAll:     true,
		VerboseBuild: true,
		TestsRoot:    ".",
		Hypervisor:   string(vmm.BackendXL),
		XLPath:       vmm.DefaultXLPath,
		LibvirtURI:   vmm.DefaultLibvirtURI,
		PollInterval: metav1.Duration{Duration: lifecycle.DefaultPollInterval},
		GracePeriod:  metav1.Duration{Duration: lifecycle.DefaultGracePeriod},
	}
	c.Logging.Development = true
	c.MetricsServer.Path = "/metrics"
	c.Report.ArtifactDir = "artifacts"
	return c
}

// LoadConfig loads configuration from a YAML file, if configPath is not
// empty, on top of the defaults, then applies environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	config := NewDefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}

		// Parse YAML (uses json tags)
		if err := yaml.UnmarshalStrict(data, config); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the config
func (c *Config) applyEnvironmentOverrides() {
	if val := os.Getenv(BuildRootEnvKey); val != "" {
		c.BuildRoot = val
	}
	if val := os.Getenv("UNIHARNESS_TESTS_ROOT"); val != "" {
		c.TestsRoot = val
	}
	if val := os.Getenv("UNIHARNESS_HYPERVISOR"); val != "" {
		c.Hypervisor = val
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.BuildRoot == "" {
		errs = append(errs, errors.New("buildRoot cannot be empty"))
	}

	if c.BuildTool == "" {
		errs = append(errs, errors.New("buildTool cannot be empty"))
	}

	switch vmm.Backend(c.Hypervisor) {
	case vmm.BackendXL, vmm.BackendLibvirt:
	default:
		errs = append(errs, fmt.Errorf("hypervisor must be %q or %q, got %q",
			vmm.BackendXL, vmm.BackendLibvirt, c.Hypervisor))
	}

	if c.PollInterval.Duration <= 0 {
		errs = append(errs, errors.New("pollInterval must be positive"))
	}

	if c.GracePeriod.Duration < 0 {
		errs = append(errs, errors.New("gracePeriod cannot be negative"))
	}

	if c.Logging.Verbosity < 0 {
		errs = append(errs, errors.New("logging.verbosity cannot be negative"))
	}

	if c.MetricsServer.Port < 0 || c.MetricsServer.Port > 65535 {
		errs = append(errs, fmt.Errorf("metricsServer.port %d out of range", c.MetricsServer.Port))
	}

	for _, f := range c.Report.Formats {
		if _, err := reporting.ParseFormat(f); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
