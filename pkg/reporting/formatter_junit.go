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

package reporting

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/alexandremahdhaoui/uniharness/pkg/result"
)

type junitReport struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Name     string       `xml:"name,attr"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Time     string       `xml:"time,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Time       string          `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr,omitempty"`
	Properties []junitProperty `xml:"properties>property,omitempty"`
	Cases      []junitCase     `xml:"testcase"`
}

type junitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type junitCase struct {
	ClassName string        `xml:"classname,attr"`
	Name      string        `xml:"name,attr"`
	Time      string        `xml:"time,attr"`
	Output    string        `xml:"system-out,omitempty"`
	Failure   *junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Message  string `xml:"message,attr"`
	Type     string `xml:"type,attr"`
	Contents string `xml:",chardata"`
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%f", d.Seconds())
}

// formatJUnit renders one testsuite per test and one testcase per stage.
func formatJUnit(set *result.Set) (string, error) {
	sum := set.Summary()
	report := junitReport{
		Name:   "integration tests",
		Tests:  sum.Total,
		Time:   seconds(sum.Duration),
		Suites: make([]junitSuite, 0, len(set.Suites)),
	}

	for _, s := range set.Suites {
		js := junitSuite{
			Name:  s.Name,
			Tests: len(s.Cases),
			Time:  seconds(s.Duration()),
			Properties: []junitProperty{
				{Name: "category", Value: s.Category},
				{Name: "runID", Value: set.RunID},
			},
			Cases: make([]junitCase, 0, len(s.Cases)),
		}
		if !set.StartTime.IsZero() {
			js.Timestamp = set.StartTime.UTC().Format("2006-01-02T15:04:05")
		}

		className := s.Name
		if s.Category != "" {
			className = s.Category + "." + s.Name
		}

		for _, c := range s.Cases {
			jc := junitCase{
				ClassName: className,
				Name:      string(c.Stage),
				Time:      seconds(c.Duration),
				Output:    c.Output,
			}
			if c.Failure != nil {
				js.Failures++
				contents := c.Failure.Message
				if c.Failure.Trace != "" {
					contents = strings.Join([]string{contents, c.Failure.Trace}, "\n\n")
				}
				jc.Failure = &junitFailure{
					Message:  fmt.Sprintf("%s stage failed", c.Stage),
					Type:     string(c.Failure.Kind),
					Contents: contents,
				}
			}
			js.Cases = append(js.Cases, jc)
		}

		if js.Failures > 0 {
			report.Failures++
		}
		report.Suites = append(report.Suites, js)
	}

	data, err := xml.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling JUnit XML: %w", err)
	}
	return xml.Header + string(data) + "\n", nil
}
