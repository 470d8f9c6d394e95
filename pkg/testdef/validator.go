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
	"fmt"
	"regexp"
	"strings"

	"github.com/alexandremahdhaoui/uniharness/pkg/guest"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidationError represents a validation error with field context.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks that d can be run. Defaults are expected to be applied.
func Validate(d *Definition) error {
	var errs ValidationErrors

	switch {
	case d.Name == "":
		errs = append(errs, ValidationError{Field: "name", Message: "name is required"})
	case !namePattern.MatchString(d.Name):
		// the name ends up in guest names and temp file names
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("invalid name '%s', must match %s", d.Name, namePattern),
		})
	}

	if d.Path == "" {
		errs = append(errs, ValidationError{Field: "path", Message: "path is required"})
	}
	if d.Package == "" {
		errs = append(errs, ValidationError{Field: "package", Message: "package is required"})
	}

	if d.MemoryMB <= 0 {
		errs = append(errs, ValidationError{
			Field:   "memory",
			Message: fmt.Sprintf("memory must be positive, got %d", d.MemoryMB),
		})
	}
	if d.Timeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "timeout",
			Message: fmt.Sprintf("timeout must be positive, got %s", d.Timeout),
		})
	}

	if !guest.ValidCrashPolicy(d.OnCrash) {
		errs = append(errs, ValidationError{
			Field:   "onCrash",
			Message: fmt.Sprintf("invalid crash policy '%s'", d.OnCrash),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
