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
	"slices"
)

var (
	ErrDuplicateTest = errors.New("duplicate test name")
	ErrUnknownTest   = errors.New("unknown test")
)

// Registry is an ordered set of test definitions.
type Registry struct {
	defs   []*Definition
	byName map[string]*Definition
}

func NewRegistry() *Registry {
	return &Registry{
		defs:   make([]*Definition, 0),
		byName: make(map[string]*Definition),
	}
}

// Register defaults, validates and appends each definition in order.
func (r *Registry) Register(defs ...*Definition) error {
	for _, d := range defs {
		d = d.WithDefaults()
		if err := Validate(d); err != nil {
			return fmt.Errorf("test %q: %w", d.Name, err)
		}
		if _, ok := r.byName[d.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateTest, d.Name)
		}
		r.defs = append(r.defs, d)
		r.byName[d.Name] = d
	}
	return nil
}

// All returns every definition in registration order.
func (r *Registry) All() []*Definition {
	return slices.Clone(r.defs)
}

func (r *Registry) Get(name string) (*Definition, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Select returns the named definitions in the order given, or all of them
// when no name is given.
func (r *Registry) Select(names ...string) ([]*Definition, error) {
	if len(names) == 0 {
		return r.All(), nil
	}

	out := make([]*Definition, 0, len(names))
	for _, name := range names {
		d, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTest, name)
		}
		out = append(out, d)
	}
	return out, nil
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	return len(r.defs)
}
