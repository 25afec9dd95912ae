package network

import (
	"sort"
	"time"
)

// Scheduled is an event due once the simulation clock reaches At.
type Scheduled struct {
	At    time.Duration
	Event Event
}

// Script replays scheduled events against the simulation clock.
type Script struct {
	events []Scheduled
	next   int
}

// NewScript orders events by due time, keeping the given order for equal times.
func NewScript(events []Scheduled) *Script {
	sorted := make([]Scheduled, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].At < sorted[j].At
	})
	return &Script{events: sorted}
}

// Due returns the events that became due at or before elapsed. Each event is returned once.
func (s *Script) Due(elapsed time.Duration) []Event {
	out := make([]Event, 0)
	for s.next < len(s.events) && s.events[s.next].At <= elapsed {
		out = append(out, s.events[s.next].Event)
		s.next++
	}
	return out
}

// Done reports whether every event has been handed out.
func (s *Script) Done() bool {
	return s.next >= len(s.events)
}

// Len is the number of scheduled events.
func (s *Script) Len() int {
	return len(s.events)
}
