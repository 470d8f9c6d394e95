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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Loader reads test descriptors from YAML files.
type Loader struct {
	basePath string
}

// NewLoader creates a new descriptor loader.
// basePath is used to resolve relative descriptor paths.
// If basePath is empty, the current working directory is used.
func NewLoader(basePath string) *Loader {
	if basePath == "" {
		basePath = "."
	}
	return &Loader{
		basePath: basePath,
	}
}

// Load loads one descriptor file. Unknown fields are rejected.
func (l *Loader) Load(path string) (*Definition, error) {
	resolvedPath := l.resolvePath(path)

	data, err := os.ReadFile(resolvedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor %s: %w", resolvedPath, err)
	}

	var desc Descriptor
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&desc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML from %s: %w", resolvedPath, err)
	}

	def, err := desc.Definition(filepath.Dir(resolvedPath))
	if err != nil {
		return nil, fmt.Errorf("descriptor validation failed for %s: %w", resolvedPath, err)
	}
	return def, nil
}

// LoadDir loads every *.yaml and *.yml file of dir in lexical order.
// All files are attempted; their errors are aggregated.
func (l *Loader) LoadDir(dir string) ([]*Definition, error) {
	resolvedDir := l.resolvePath(dir)

	entries, err := os.ReadDir(resolvedDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor directory %s: %w", resolvedDir, err)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(resolvedDir, e.Name()))
		}
	}
	slices.Sort(paths)

	defs := make([]*Definition, 0, len(paths))
	errs := make([]error, 0)
	for _, p := range paths {
		def, err := l.Load(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, def)
	}

	return defs, utilerrors.NewAggregate(errs)
}

// LoadInto loads dir and registers its definitions into r.
func (l *Loader) LoadInto(r *Registry, dir string) error {
	defs, err := l.LoadDir(dir)
	if err != nil {
		return err
	}
	return r.Register(defs...)
}

func (l *Loader) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.basePath, path)
}
