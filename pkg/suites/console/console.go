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

// Package console is the built-in suite of console tests: guests that print
// to, and read from, their console.
package console

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alexandremahdhaoui/uniharness/pkg/guest"
	"github.com/alexandremahdhaoui/uniharness/pkg/testdef"
)

const (
	Category = "console"

	// PackagePrefix is the import path under which the suite's guest
	// applications live.
	PackagePrefix = "github.com/unigornel/integration_tests/tests/helloworld"
)

// Parameters of the sleep_and_time guest, which prints a nanosecond
// timestamp every SleepInterval.
const (
	SleepInterval = 100 * time.Millisecond
	// MinTimestamp is 2016-01-01T00:00:00Z; earlier clocks are not set.
	MinTimestamp int64 = 1451606400000000000
	// MinGreetings is how many lines one second of running yields.
	MinGreetings = int(time.Second / SleepInterval)
)

var (
	errMissingGreeting = errors.New("missing greeting")
	errClock           = errors.New("guest clock check failed")

	greetingPattern = regexp.MustCompile(`^(\d+) \[.*\] Hello World!`)
)

// Definitions returns the suite's tests. root is the directory holding the
// guest sources, under root/go/src.
func Definitions(root string) []*testdef.Definition {
	return []*testdef.Definition{
		{
			Name:        "hello_world",
			Category:    Category,
			Path:        root,
			Package:     path.Join(PackagePrefix, "simple"),
			MemoryMB:    256,
			Timeout:     10 * time.Second,
			CanCrash:    true,
			CanShutdown: true,
			Validate:    CheckHelloWorld,
		},
		{
			Name:     "sleep_and_time",
			Category: Category,
			Path:     root,
			Package:  path.Join(PackagePrefix, "sleep_and_time"),
			MemoryMB: 256,
			Timeout:  2 * time.Second,
			Validate: CheckSleepAndTime,
		},
		{
			Name:        "read_from_console",
			Category:    Category,
			Path:        root,
			Package:     path.Join(PackagePrefix, "read_from_console"),
			MemoryMB:    256,
			Timeout:     10 * time.Second,
			CanCrash:    true,
			CanShutdown: true,
			Stdin:       []byte("Unigornel\n"),
			Validate:    CheckReadFromConsole,
		},
	}
}

// Register adds the suite to r.
func Register(r *testdef.Registry, root string) error {
	return r.Register(Definitions(root)...)
}

func CheckHelloWorld(res guest.ExecutionResult) error {
	if !strings.Contains(res.Output, "Hello World!") {
		return fmt.Errorf("%w: 'Hello World!' substring not in output", errMissingGreeting)
	}
	return nil
}

func CheckReadFromConsole(res guest.ExecutionResult) error {
	if !strings.Contains(res.Output, "Hello, what's your name? Hello, Unigornel") {
		return fmt.Errorf("%w: console output did not match", errMissingGreeting)
	}
	return nil
}

// CheckSleepAndTime requires at least MinGreetings timestamped greetings,
// each after MinTimestamp and at least SleepInterval after the previous one.
func CheckSleepAndTime(res guest.ExecutionResult) error {
	n := 0
	prev := int64(0)

	for _, line := range strings.Split(res.Output, "\n") {
		m := greetingPattern.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		n++

		ts, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return errors.Join(err, fmt.Errorf("%w: timestamp %q", errClock, m[1]))
		}
		if ts < MinTimestamp {
			return fmt.Errorf("%w: time %d must be after %d", errClock, ts, MinTimestamp)
		}
		if ts-prev < SleepInterval.Nanoseconds() {
			return fmt.Errorf("%w: slept %s, minimum sleep interval is %s",
				errClock, time.Duration(ts-prev), SleepInterval)
		}
		prev = ts
	}

	if n < MinGreetings {
		return fmt.Errorf("%w: got %d hello worlds, expected at least %d", errMissingGreeting, n, MinGreetings)
	}
	return nil
}
