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
	"fmt"
	"strings"
	"time"

	"github.com/alexandremahdhaoui/uniharness/pkg/result"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

// outputTail is how many trailing output lines a failure section shows.
const outputTail = 20

func formatText(set *result.Set) string {
	var sb strings.Builder
	sum := set.Summary()

	// Header
	sb.WriteString(strings.Repeat("=", 80) + "\n")
	sb.WriteString("UNIKERNEL INTEGRATION TEST REPORT\n")
	sb.WriteString(strings.Repeat("=", 80) + "\n\n")

	// Summary section
	sb.WriteString("SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 7) + "\n")
	sb.WriteString(fmt.Sprintf("Run ID:    %s\n", set.RunID))
	sb.WriteString(fmt.Sprintf("Status:    %s\n", formatStatus(!set.Failed())))
	sb.WriteString(fmt.Sprintf("Duration:  %.2fs\n", sum.Duration.Seconds()))
	if !set.StartTime.IsZero() {
		sb.WriteString(fmt.Sprintf("Started:   %s\n", set.StartTime.Format(time.RFC3339)))
	}
	if !set.EndTime.IsZero() {
		sb.WriteString(fmt.Sprintf("Completed: %s\n", set.EndTime.Format(time.RFC3339)))
	}
	sb.WriteString(fmt.Sprintf("Tests:     %d total, %d passed, %d failed\n\n", sum.Total, sum.Passed, sum.Failed))

	// Per-test section
	sb.WriteString("TESTS\n")
	sb.WriteString(strings.Repeat("-", 5) + "\n")
	for i, s := range set.Suites {
		sb.WriteString(fmt.Sprintf("[%d/%d] %s", i+1, len(set.Suites), s.Name))
		if s.Category != "" {
			sb.WriteString(fmt.Sprintf(" %s(%s)%s", colorGray, s.Category, colorReset))
		}
		sb.WriteString(fmt.Sprintf("  %s\n", formatStatus(!s.Failed())))

		for _, c := range s.Cases {
			symbol, color := "✓", colorGreen
			if c.Failed() {
				symbol, color = "✗", colorRed
			}
			sb.WriteString(fmt.Sprintf("    %s%s%s %-8s (%.2fs)\n",
				color, symbol, colorReset, c.Stage, c.Duration.Seconds()))
			if c.Failed() {
				sb.WriteString(fmt.Sprintf("      %s: %s\n", c.Failure.Kind, wrapText(c.Failure.Message, 6)))
			}
		}
		sb.WriteString("\n")
	}

	// Failures section (if any)
	if sum.Failed > 0 {
		sb.WriteString("FAILURES\n")
		sb.WriteString(strings.Repeat("-", 8) + "\n")
		n := 1
		for _, s := range set.Suites {
			f := s.FirstFailure()
			if f == nil {
				continue
			}
			sb.WriteString(fmt.Sprintf("[%d] Test: %s - Stage: %s\n", n, s.Name, f.Stage))
			sb.WriteString(fmt.Sprintf("    Kind:     %s\n", f.Failure.Kind))
			sb.WriteString(fmt.Sprintf("    Message:  %s\n", wrapText(f.Failure.Message, 14)))
			if out := tail(f.Output, outputTail); out != "" {
				sb.WriteString("    Output:\n")
				for _, line := range strings.Split(out, "\n") {
					sb.WriteString("      " + line + "\n")
				}
			}
			sb.WriteString("\n")
			sb.WriteString(formatFailureGuidance(f.Failure.Kind))
			sb.WriteString("\n")
			n++
		}
	}

	// Footer
	sb.WriteString(strings.Repeat("=", 80) + "\n")
	sb.WriteString(fmt.Sprintf("TEST RESULT: %s\n", formatStatus(!set.Failed())))
	sb.WriteString(strings.Repeat("=", 80) + "\n")

	return sb.String()
}

func formatStatus(passed bool) string {
	if passed {
		return fmt.Sprintf("%s✓ PASSED%s", colorGreen, colorReset)
	}
	return fmt.Sprintf("%s✗ FAILED%s", colorRed, colorReset)
}

// formatFailureGuidance gives troubleshooting hints for a failure kind.
func formatFailureGuidance(kind result.FailureKind) string {
	var guidance strings.Builder

	guidance.WriteString("    Possible Causes:\n")

	switch kind {
	case result.KindBuildFailure:
		guidance.WriteString("    - The application does not compile\n")
		guidance.WriteString("    - The build tool is missing or not executable\n")
		guidance.WriteString("    - The dependency root does not contain the application sources\n\n")
		guidance.WriteString("    Next Steps:\n")
		guidance.WriteString("    1. Run the build tool by hand with the same arguments\n")
		guidance.WriteString("    2. Check the build output above\n")

	case result.KindGuestCreationFailure:
		guidance.WriteString("    - The hypervisor rejected the guest configuration\n")
		guidance.WriteString("    - The kernel image is not a bootable unikernel\n")
		guidance.WriteString("    - Not enough memory is available for the guest\n\n")
		guidance.WriteString("    Next Steps:\n")
		guidance.WriteString("    1. Check the hypervisor logs\n")
		guidance.WriteString("    2. List running guests and free memory\n")

	case result.KindExecutionFailure:
		guidance.WriteString("    - The guest console could not be attached\n")
		guidance.WriteString("    - The hypervisor stopped answering while the guest ran\n\n")
		guidance.WriteString("    Next Steps:\n")
		guidance.WriteString("    1. Check the hypervisor toolstack is healthy\n")
		guidance.WriteString("    2. Look for leftover guests from earlier runs\n")

	case result.KindPolicyViolation:
		guidance.WriteString("    - The guest crashed or shut down although the test forbids it\n\n")
		guidance.WriteString("    Next Steps:\n")
		guidance.WriteString("    1. Read the console output for a panic or exit message\n")
		guidance.WriteString("    2. Re-run with crash policy preserve and inspect the guest\n")

	case result.KindCheckFailure:
		guidance.WriteString("    - The console output did not match the expected output\n")
		guidance.WriteString("    - The guest timed out before printing everything\n\n")
		guidance.WriteString("    Next Steps:\n")
		guidance.WriteString("    1. Compare the captured output with the test's checks\n")
		guidance.WriteString("    2. Raise the timeout if the guest is slow\n")

	default:
		guidance.WriteString("    - An unexpected error or panic in the harness\n\n")
		guidance.WriteString("    Next Steps:\n")
		guidance.WriteString("    1. Read the stack trace in the JSON or JUnit report\n")
	}

	return guidance.String()
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// wrapText wraps text at word boundaries with indentation
func wrapText(text string, indent int) string {
	if len(text) <= 64 {
		return text
	}

	var out strings.Builder
	words := strings.Fields(text)
	lineLen := 0
	indentStr := strings.Repeat(" ", indent)

	for i, word := range words {
		if i > 0 && lineLen+len(word)+1 > 64 {
			out.WriteString("\n" + indentStr)
			lineLen = 0
		} else if i > 0 {
			out.WriteString(" ")
			lineLen++
		}
		out.WriteString(word)
		lineLen += len(word)
	}

	return out.String()
}

// formatSummary formats a concise summary for stdout
func formatSummary(set *result.Set) string {
	var sb strings.Builder
	sum := set.Summary()

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	sb.WriteString("TEST SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	sb.WriteString(fmt.Sprintf("Status:   %s\n", formatStatus(!set.Failed())))
	sb.WriteString(fmt.Sprintf("Duration: %.2fs\n", sum.Duration.Seconds()))
	sb.WriteString(fmt.Sprintf("Tests:    %d total, %d passed, %d failed\n", sum.Total, sum.Passed, sum.Failed))

	if sum.Failed > 0 {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%sQuick Failure Summary:%s\n", colorYellow, colorReset))
		n := 1
		for _, s := range set.Suites {
			if f := s.FirstFailure(); f != nil {
				sb.WriteString(fmt.Sprintf("  %d. %s: %s in %s stage\n", n, s.Name, f.Failure.Kind, f.Stage))
				n++
			}
		}
	}

	sb.WriteString(strings.Repeat("=", 60) + "\n")
	return sb.String()
}
