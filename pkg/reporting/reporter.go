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

// Package reporting renders a result set as text, JSON or JUnit XML.
package reporting

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alexandremahdhaoui/uniharness/pkg/result"
)

// ErrUnsupportedFormat is returned for an unknown report format.
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Format specifies the output format for reports
type Format string

const (
	// FormatText produces human-readable text reports
	FormatText Format = "text"
	// FormatJSON produces JSON-formatted reports
	FormatJSON Format = "json"
	// FormatJUnit produces JUnit XML reports
	FormatJUnit Format = "junit"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatJSON, FormatJUnit}

// ParseFormat returns the format named s.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

func (f Format) filename() string {
	switch f {
	case FormatJSON:
		return "report.json"
	case FormatJUnit:
		return "report.xml"
	default:
		return "report.txt"
	}
}

// Reporter generates result reports in various formats
type Reporter struct {
	artifactDir string
}

// NewReporter creates a reporter writing under artifactDir.
func NewReporter(artifactDir string) *Reporter {
	return &Reporter{
		artifactDir: artifactDir,
	}
}

// GenerateReport renders set in format.
func (r *Reporter) GenerateReport(set *result.Set, format Format) (string, error) {
	switch format {
	case FormatText:
		return formatText(set), nil
	case FormatJSON:
		return formatJSON(set)
	case FormatJUnit:
		return formatJUnit(set)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// WriteReport writes the report to <artifactDir>/<runID>/report.<ext> and
// returns its path.
func (r *Reporter) WriteReport(set *result.Set, format Format) (string, error) {
	reportDir := filepath.Join(r.artifactDir, set.RunID)
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	path := filepath.Join(reportDir, format.filename())
	if err := r.WriteFile(set, format, path); err != nil {
		return "", err
	}
	return path, nil
}

// WriteFile writes the report to path.
func (r *Reporter) WriteFile(set *result.Set, format Format, path string) error {
	content, err := r.GenerateReport(set, format)
	if err != nil {
		return fmt.Errorf("generating report: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}
	return nil
}

// PrintSummary writes a concise summary of set to w.
func (r *Reporter) PrintSummary(w io.Writer, set *result.Set) error {
	_, err := io.WriteString(w, formatSummary(set))
	return err
}
