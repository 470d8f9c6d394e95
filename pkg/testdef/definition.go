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

// Package testdef defines integration tests and how they are discovered: a
// compiled-in registry or YAML descriptors loaded from a directory.
package testdef

import (
	"path/filepath"
	"time"

	"github.com/alexandremahdhaoui/uniharness/pkg/guest"
)

// DefaultTimeout is how long a guest may run when a test sets no timeout.
const DefaultTimeout = 10 * time.Second

// Validator inspects a finished run. A non-nil error fails the check stage.
type Validator func(guest.ExecutionResult) error

// Definition is one integration test. It must not be modified once
// registered.
type Definition struct {
	Name     string
	Category string
	// Path is the test's root directory; its sources live under
	// <Path>/go/src/<Package>.
	Path    string
	Package string

	MemoryMB int
	Timeout  time.Duration

	CanCrash    bool
	CanShutdown bool
	// OnCrash is the hypervisor crash policy, preserve when empty.
	OnCrash string

	// Stdin is written to the guest console before it starts.
	Stdin []byte

	Validate Validator
}

// DepRoot is the private dependency root handed to the build tool.
func (d *Definition) DepRoot() string {
	return filepath.Join(d.Path, "go")
}

// AppPath is the application source directory handed to the build tool.
func (d *Definition) AppPath() string {
	return filepath.Join(d.DepRoot(), "src", filepath.FromSlash(d.Package))
}

// GuestConfig returns the configuration of a guest named name booting kernel.
func (d *Definition) GuestConfig(name, kernel string) guest.Config {
	return guest.Config{
		Kernel:   kernel,
		MemoryMB: d.MemoryMB,
		Name:     name,
		OnCrash:  d.OnCrash,
	}
}

// WithDefaults returns a copy of d with unset fields defaulted.
func (d Definition) WithDefaults() *Definition {
	if d.MemoryMB == 0 {
		d.MemoryMB = guest.DefaultMemoryMB
	}
	if d.Timeout == 0 {
		d.Timeout = DefaultTimeout
	}
	if d.OnCrash == "" {
		d.OnCrash = guest.OnCrashPreserve
	}
	return &d
}
