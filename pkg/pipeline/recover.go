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

package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/alexandremahdhaoui/uniharness/pkg/guest"
	"github.com/alexandremahdhaoui/uniharness/pkg/result"
	"github.com/alexandremahdhaoui/uniharness/pkg/testdef"
)

// PanicError is a recovered panic with the stack it was raised on.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// StackTrace returns the stack of the panicking goroutine.
func (e *PanicError) StackTrace() string {
	return e.Stack
}

func recovered(v any) *PanicError {
	return &PanicError{Value: v, Stack: string(debug.Stack())}
}

// safely runs a stage, turning a panic into an unexpected stage error.
func safely(ctx context.Context, p *run, fn stageFunc) (output string, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = result.Classify(recovered(v), result.ErrUnexpectedStage)
		}
	}()
	return fn(ctx, p)
}

// validate runs a test's validator; a panic is a check failure.
func validate(v testdef.Validator, res guest.ExecutionResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return v(res)
}

// attempt runs a cleanup action, turning a panic into an error.
func attempt(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = recovered(v)
		}
	}()
	return fn()
}
