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
	"regexp"
	"strings"

	"github.com/alexandremahdhaoui/uniharness/pkg/guest"
)

// ErrUnexpectedOutput is returned by the output validators below.
var ErrUnexpectedOutput = errors.New("unexpected output")

// All runs every validator and joins their errors.
func All(validators ...Validator) Validator {
	return func(res guest.ExecutionResult) error {
		var errs []error
		for _, v := range validators {
			if v == nil {
				continue
			}
			if err := v(res); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// Contains requires s to appear in the console output.
func Contains(s string) Validator {
	return func(res guest.ExecutionResult) error {
		if !strings.Contains(res.Output, s) {
			return fmt.Errorf("%w: output does not contain %q", ErrUnexpectedOutput, s)
		}
		return nil
	}
}

// NotContains requires s to be absent from the console output.
func NotContains(s string) Validator {
	return func(res guest.ExecutionResult) error {
		if strings.Contains(res.Output, s) {
			return fmt.Errorf("%w: output contains %q", ErrUnexpectedOutput, s)
		}
		return nil
	}
}

// Matches requires re to match the console output at least min times.
func Matches(re *regexp.Regexp, min int) Validator {
	return func(res guest.ExecutionResult) error {
		n := len(re.FindAllStringIndex(res.Output, -1))
		if n < min {
			return fmt.Errorf("%w: %d matches of %q, expected at least %d", ErrUnexpectedOutput, n, re, min)
		}
		return nil
	}
}

// ExpectTimeout requires the run to have (or not have) hit its deadline.
func ExpectTimeout(want bool) Validator {
	return func(res guest.ExecutionResult) error {
		if res.DidTimeout != want {
			return fmt.Errorf("%w: didTimeout=%t, expected %t", ErrUnexpectedOutput, res.DidTimeout, want)
		}
		return nil
	}
}
