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

package guest

import (
	"fmt"
	"io"
)

// Crash policies understood by the hypervisor's on_crash setting.
const (
	OnCrashPreserve        = "preserve"
	OnCrashDestroy         = "destroy"
	OnCrashRestart         = "restart"
	OnCrashCoredumpDestroy = "coredump-destroy"
	OnCrashCoredumpRestart = "coredump-restart"
)

// DefaultMemoryMB is the memory given to a guest when none is requested.
const DefaultMemoryMB = 256

// Config describes the guest to create.
type Config struct {
	Kernel   string // path to the kernel image
	MemoryMB int
	Name     string
	OnCrash  string
}

// NewConfig returns a Config with default memory and crash policy.
func NewConfig(name, kernel string) Config {
	return Config{
		Kernel:   kernel,
		MemoryMB: DefaultMemoryMB,
		Name:     name,
		OnCrash:  OnCrashPreserve,
	}
}

// CrashPolicy returns the configured crash policy, defaulting to preserve so
// that a crashed guest stays observable.
func (c Config) CrashPolicy() string {
	if c.OnCrash == "" {
		return OnCrashPreserve
	}
	return c.OnCrash
}

// ValidCrashPolicy reports whether p is a known crash policy.
func ValidCrashPolicy(p string) bool {
	switch p {
	case OnCrashPreserve, OnCrashDestroy, OnCrashRestart, OnCrashCoredumpDestroy, OnCrashCoredumpRestart:
		return true
	}
	return false
}

// WriteConfiguration writes the four-line key/value guest configuration
// consumed by the hypervisor CLI.
func WriteConfiguration(w io.Writer, cfg Config) error {
	_, err := fmt.Fprintf(w,
		"kernel = %q\nmemory = %d\nname = %q\non_crash = %q\n",
		cfg.Kernel,
		cfg.MemoryMB,
		cfg.Name,
		cfg.CrashPolicy(),
	)
	return err
}
