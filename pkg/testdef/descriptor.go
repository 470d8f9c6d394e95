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
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

// Descriptor is the YAML schema of a test descriptor file.
type Descriptor struct {
	// Name uniquely identifies the test.
	Name     string `yaml:"name"`
	Category string `yaml:"category,omitempty"`

	// Path is the test root, relative to the descriptor's directory unless
	// absolute.
	Path    string `yaml:"path"`
	Package string `yaml:"package"`

	// Memory in MB.
	Memory int `yaml:"memory,omitempty"`
	// Timeout is a duration such as "10s".
	Timeout string `yaml:"timeout,omitempty"`

	CanCrash    bool   `yaml:"canCrash,omitempty"`
	CanShutdown bool   `yaml:"canShutdown,omitempty"`
	OnCrash     string `yaml:"onCrash,omitempty"`

	Stdin string `yaml:"stdin,omitempty"`

	Checks CheckSpec `yaml:"checks,omitempty"`
}

// CheckSpec declares the output validation of a descriptor.
type CheckSpec struct {
	Contains    []string    `yaml:"contains,omitempty"`
	NotContains []string    `yaml:"notContains,omitempty"`
	Matches     []MatchSpec `yaml:"matches,omitempty"`
	// ExpectTimeout, when set, requires the run to have (or not have)
	// reached its deadline.
	ExpectTimeout *bool `yaml:"expectTimeout,omitempty"`
}

// MatchSpec requires a regular expression to match the output a number of
// times. Patterns are compiled in multi-line mode.
type MatchSpec struct {
	Pattern    string `yaml:"pattern"`
	MinMatches int    `yaml:"minMatches,omitempty"`
}

// Definition converts the descriptor. baseDir resolves a relative Path.
func (d Descriptor) Definition(baseDir string) (*Definition, error) {
	var errs ValidationErrors

	def := Definition{
		Name:        d.Name,
		Category:    d.Category,
		Path:        d.Path,
		Package:     d.Package,
		MemoryMB:    d.Memory,
		CanCrash:    d.CanCrash,
		CanShutdown: d.CanShutdown,
		OnCrash:     d.OnCrash,
	}

	if def.Path != "" && !filepath.IsAbs(def.Path) {
		def.Path = filepath.Join(baseDir, def.Path)
	}

	if d.Stdin != "" {
		def.Stdin = []byte(d.Stdin)
	}

	if d.Timeout != "" {
		timeout, err := time.ParseDuration(d.Timeout)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "timeout",
				Message: fmt.Sprintf("invalid duration '%s': %v", d.Timeout, err),
			})
		}
		def.Timeout = timeout
	}

	validators := make([]Validator, 0)
	for _, s := range d.Checks.Contains {
		validators = append(validators, Contains(s))
	}
	for _, s := range d.Checks.NotContains {
		validators = append(validators, NotContains(s))
	}
	for i, m := range d.Checks.Matches {
		re, err := regexp.Compile("(?m)" + m.Pattern)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("checks.matches[%d].pattern", i),
				Message: fmt.Sprintf("invalid pattern: %v", err),
			})
			continue
		}
		minMatches := m.MinMatches
		if minMatches == 0 {
			minMatches = 1
		}
		validators = append(validators, Matches(re, minMatches))
	}
	if d.Checks.ExpectTimeout != nil {
		validators = append(validators, ExpectTimeout(*d.Checks.ExpectTimeout))
	}
	if len(validators) > 0 {
		def.Validate = All(validators...)
	}

	out := def.WithDefaults()
	if err := Validate(out); err != nil {
		var verrs ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		errs = append(errs, verrs...)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}
