//go:build unit

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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, ".", config.BuildRoot)
	assert.Equal(t, "./build.bash", config.BuildTool)
	assert.Equal(t, "GOPATH", config.DepRootEnv)
	assert.True(t, config.BuildAll)
	assert.True(t, config.VerboseBuild)
	assert.Equal(t, "xl", config.Hypervisor)
	assert.Equal(t, "xl", config.XLPath)
	assert.Equal(t, "xen:///system", config.LibvirtURI)
	assert.Equal(t, time.Second, config.PollInterval.Duration)
	assert.Equal(t, time.Second, config.GracePeriod.Duration)
	assert.Equal(t, "/metrics", config.MetricsServer.Path)
	assert.Equal(t, 0, config.MetricsServer.Port)
	assert.NoError(t, config.Validate())
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	t.Setenv(BuildRootEnvKey, "")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `
buildRoot: /opt/unigornel
buildTool: ./build.bash
verboseBuild: false
testsRoot: /opt/unigornel/integration_tests
testsDir: /etc/uniharness/tests
hypervisor: libvirt
libvirtURI: xen:///session
commandPrefix: [sudo, -n]
pollInterval: 500ms
gracePeriod: 2s
logging:
  development: false
  verbosity: 2
metricsServer:
  port: 9090
report:
  formats: [text, junit]
  artifactDir: /tmp/reports
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o600))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "/opt/unigornel", config.BuildRoot)
	assert.True(t, config.BuildAll)
	assert.False(t, config.VerboseBuild)
	assert.Equal(t, "/opt/unigornel/integration_tests", config.TestsRoot)
	assert.Equal(t, "/etc/uniharness/tests", config.TestsDir)
	assert.Equal(t, "libvirt", config.Hypervisor)
	assert.Equal(t, "xen:///session", config.LibvirtURI)
	assert.Equal(t, []string{"sudo", "-n"}, config.CommandPrefix)
	assert.Equal(t, 500*time.Millisecond, config.PollInterval.Duration)
	assert.Equal(t, 2*time.Second, config.GracePeriod.Duration)
	assert.False(t, config.Logging.Development)
	assert.Equal(t, 2, config.Logging.Verbosity)
	assert.Equal(t, 9090, config.MetricsServer.Port)
	assert.Equal(t, []string{"text", "junit"}, config.Report.Formats)

	// untouched fields keep their defaults
	assert.Equal(t, "GOPATH", config.DepRootEnv)
	assert.Equal(t, "/metrics", config.MetricsServer.Path)
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv(BuildRootEnvKey, "")

	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, NewDefaultConfig(), config)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv(BuildRootEnvKey, "/srv/unigornel")
	t.Setenv("UNIHARNESS_TESTS_ROOT", "/srv/tests")
	t.Setenv("UNIHARNESS_HYPERVISOR", "libvirt")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("buildRoot: /opt/unigornel\n"), 0o600))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "/srv/unigornel", config.BuildRoot)
	assert.Equal(t, "/srv/tests", config.TestsRoot)
	assert.Equal(t, "libvirt", config.Hypervisor)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Setenv(BuildRootEnvKey, "")

	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid YAML", content: "buildRoot: [unterminated"},
		{name: "unknown field", content: "buildroot: /opt/unigornel\n"},
		{name: "unknown hypervisor", content: "hypervisor: kvm\n"},
		{name: "zero poll interval", content: "pollInterval: 0s\n"},
		{name: "unknown report format", content: "report:\n  formats: [yaml]\n"},
		{name: "metrics port out of range", content: "metricsServer:\n  port: 70000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.content), 0o600))

			config, err := LoadConfig(configPath)
			assert.Error(t, err)
			assert.Nil(t, config)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Nil(t, config)
}
