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

package guest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errInvalidListLine = errors.New("could not parse guest listing: invalid line")

// Snapshot is a point-in-time view of one guest, as found in the hypervisor listing.
type Snapshot struct {
	Name     string  `json:"name"`
	ID       int     `json:"id"`
	MemoryMB int     `json:"memoryMB"`
	VCPUs    int     `json:"vcpus"`
	RawState string  `json:"rawState"`
	State    State   `json:"state"`
	Time     float64 `json:"time"` // guest time in seconds
}

// Matcher selects a snapshot out of a listing.
type Matcher func(Snapshot) bool

// ByName matches the guest with the given name.
func ByName(name string) Matcher {
	return func(s Snapshot) bool { return s.Name == name }
}

// ByID matches the guest with the given numeric id.
func ByID(id int) Matcher {
	return func(s Snapshot) bool { return s.ID == id }
}

// Find returns the first snapshot accepted by match, or nil.
func Find(snapshots []Snapshot, match Matcher) *Snapshot {
	for i := range snapshots {
		if match(snapshots[i]) {
			s := snapshots[i]
			return &s
		}
	}
	return nil
}

// ParseList parses the tabular output of the hypervisor's list command.
// The first line is a header and is discarded.
func ParseList(out string) ([]Snapshot, error) {
	lines := strings.Split(out, "\n")
	if len(lines) < 2 {
		return []Snapshot{}, nil
	}

	snapshots := make([]Snapshot, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		s, err := ParseListLine(line)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}

// ParseListLine parses one whitespace-delimited row:
// name, id, memory, vcpus, state and time.
func ParseListLine(line string) (Snapshot, error) {
	fields := strings.Fields(line)
	if len(fields) != 6 {
		return Snapshot{}, fmt.Errorf("%w: %q", errInvalidListLine, line)
	}

	var (
		s   = Snapshot{Name: fields[0], RawState: fields[4]}
		err error
	)

	if s.ID, err = strconv.Atoi(fields[1]); err != nil {
		return Snapshot{}, errors.Join(err, fmt.Errorf("%w: id %q", errInvalidListLine, fields[1]))
	}
	if s.MemoryMB, err = strconv.Atoi(fields[2]); err != nil {
		return Snapshot{}, errors.Join(err, fmt.Errorf("%w: memory %q", errInvalidListLine, fields[2]))
	}
	if s.VCPUs, err = strconv.Atoi(fields[3]); err != nil {
		return Snapshot{}, errors.Join(err, fmt.Errorf("%w: vcpus %q", errInvalidListLine, fields[3]))
	}
	if s.State, err = Decode(fields[4]); err != nil {
		return Snapshot{}, err
	}
	if s.Time, err = strconv.ParseFloat(fields[5], 64); err != nil {
		return Snapshot{}, errors.Join(err, fmt.Errorf("%w: time %q", errInvalidListLine, fields[5]))
	}

	return s, nil
}
