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

// Package guest models the hypervisor's view of a guest: its coarse
// lifecycle state, point-in-time listing snapshots and the configuration
// used to create it.
package guest

import (
	"errors"
	"fmt"
	"strings"
)

// State is a bitmask over the lifecycle flags reported by the hypervisor.
type State uint8

const (
	// StateUnknown is the state of a guest that is absent from the listing.
	StateUnknown State = 0x00

	StateRunning  State = 0x01
	StateBlocked  State = 0x02
	StatePaused   State = 0x04
	StateShutdown State = 0x08
	StateCrashed  State = 0x10
	StateDying    State = 0x20
)

// StateLen is the length of a raw state string, one character per flag.
const StateLen = 6

// ErrInvalidState is returned when a raw state string is malformed.
var ErrInvalidState = errors.New("invalid guest state string")

// stateLayout maps each position of the raw state string to its flag.
var stateLayout = [StateLen]struct {
	symbol byte
	state  State
	name   string
}{
	{'r', StateRunning, "running"},
	{'b', StateBlocked, "blocked"},
	{'p', StatePaused, "paused"},
	{'s', StateShutdown, "shutdown"},
	{'c', StateCrashed, "crashed"},
	{'d', StateDying, "dying"},
}

// Decode decodes a raw 6-character state string such as "r-----".
//
// A flag is set only when its designated letter is found at its own position;
// any other character at that position leaves the flag clear.
func Decode(raw string) (State, error) {
	if len(raw) != StateLen {
		return StateUnknown, fmt.Errorf("%w: %q should have length %d", ErrInvalidState, raw, StateLen)
	}

	var state State
	for i, l := range stateLayout {
		if raw[i] == l.symbol {
			state |= l.state
		}
	}

	return state, nil
}

// Encode returns the raw state string of s. It is the inverse of Decode.
func Encode(s State) string {
	b := []byte(strings.Repeat("-", StateLen))
	for i, l := range stateLayout {
		if s&l.state != 0 {
			b[i] = l.symbol
		}
	}
	return string(b)
}

// Has reports whether every flag of mask is set in s.
func (s State) Has(mask State) bool {
	return s&mask == mask
}

// Terminal reports whether the guest stopped running on its own.
func (s State) Terminal() bool {
	return s.Has(StateShutdown) || s.Has(StateCrashed)
}

// Hex formats the bitmask, e.g. "0x18".
func (s State) Hex() string {
	return fmt.Sprintf("0x%02x", uint8(s))
}

func (s State) String() string {
	if s == StateUnknown {
		return "unknown"
	}
	names := make([]string, 0, StateLen)
	for _, l := range stateLayout {
		if s&l.state != 0 {
			names = append(names, l.name)
		}
	}
	return strings.Join(names, "|")
}
