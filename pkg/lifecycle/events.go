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

package lifecycle

import (
	"slices"
	"time"
)

// Event types recorded on the guest timeline.
const (
	EventCreateStart     = "create_start"
	EventCreated         = "created"
	EventCreateFailed    = "create_failed"
	EventUnpaused        = "unpaused"
	EventTerminal        = "terminal"
	EventTimeout         = "timeout"
	EventGone            = "gone"
	EventExecutionFailed = "execution_failed"
	EventDestroyed       = "destroyed"
	EventDestroyFailed   = "destroy_failed"
)

// Event is a guest lifecycle event for timeline tracking.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Guest     string    `json:"guest"`
	Type      string    `json:"type"`
	Details   string    `json:"details,omitempty"`
}

// RecordEvent appends an event to the timeline.
func (c *Controller) RecordEvent(guestName, eventType, details string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, Event{
		Timestamp: c.clock.Now(),
		Guest:     guestName,
		Type:      eventType,
		Details:   details,
	})
}

// Events returns a copy of all recorded events.
func (c *Controller) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.events)
}

// EventsFor returns the events recorded for the named guest.
func (c *Controller) EventsFor(guestName string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Event, 0)
	for _, e := range c.events {
		if e.Guest == guestName {
			out = append(out, e)
		}
	}
	return out
}
